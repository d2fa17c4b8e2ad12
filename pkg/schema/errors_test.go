package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatflowError_Format(t *testing.T) {
	assert.Equal(t, "[PARSE_ERROR] bad", NewError(ErrCodeParse, "bad").Error())
	assert.Equal(t, "[PARSE_ERROR] 3:4: bad", NewError(ErrCodeParse, "bad").WithPos(3, 4).Error())
	assert.Equal(t, "[NAME_NOT_FOUND] flow origin: x", NewError(ErrCodeNameNotFound, "x").WithFlow("origin").Error())
	assert.Equal(t, "[NAME_NOT_FOUND] flow greet at 2:9: x",
		NewError(ErrCodeNameNotFound, "x").WithFlow("greet").WithPos(2, 9).Error())
}

func TestChatflowError_InnermostWins(t *testing.T) {
	err := NewErrorf(ErrCodeOperandType, "bad %s", "operand").
		WithPos(5, 2).
		WithFlow("inner").
		WithPos(1, 1).
		WithFlow("outer")

	assert.Equal(t, "bad operand", err.Message)
	assert.Equal(t, 5, err.Line)
	assert.Equal(t, 2, err.Column)
	assert.Equal(t, "inner", err.Flow)
}

func TestChatflowError_Cause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "write failed").WithCause(cause)
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("outer: %w", err)
	var cfErr *ChatflowError
	require.True(t, errors.As(wrapped, &cfErr))
	assert.Equal(t, ErrCodeStore, cfErr.Code)
}

func TestChatflowError_Details(t *testing.T) {
	err := NewError(ErrCodeUnknownFlow, "nope").WithDetails(map[string]any{"name": "x"})
	assert.Equal(t, "x", err.Details["name"])
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeIO, CodeOf(NewError(ErrCodeIO, "x")))
	assert.Equal(t, ErrCodeIO, CodeOf(fmt.Errorf("wrap: %w", NewError(ErrCodeIO, "x"))))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))

	assert.True(t, IsCode(NewError(ErrCodeCancelled, "x"), ErrCodeCancelled))
	assert.False(t, IsCode(NewError(ErrCodeCancelled, "x"), ErrCodeIO))
}
