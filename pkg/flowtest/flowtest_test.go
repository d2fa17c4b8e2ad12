package flowtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
)

func TestStub(t *testing.T) {
	ctx := context.Background()
	stub := NewStub([]*string{Say("a"), nil})

	require.NoError(t, stub.Speak(ctx, "hello"))

	v, ok, err := stub.Listen(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok, err = stub.Listen(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = stub.Listen(ctx, 0)
	assert.ErrorIs(t, err, ErrNoMoreInput)

	assert.Equal(t, []string{"hello"}, stub.Spoken())
	assert.Equal(t, 2, stub.Consumed())
	assert.Equal(t, []time.Duration{time.Second, 0, 0}, stub.Timeouts())
}

func TestStub_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewStub(Inputs("x")).Listen(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun(t *testing.T) {
	res, err := Run(context.Background(), `flow origin { listen for n speak "hi " + n end }`, Inputs("Ada"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi Ada"}, res.Spoken)
	assert.Equal(t, 1, res.Consumed)
	assert.True(t, res.Terminated)
	assert.NotEmpty(t, res.RunID)
}

func TestRun_PartialTranscriptOnError(t *testing.T) {
	res, err := Run(context.Background(), `flow origin { speak "first" speak missing }`, nil, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNameNotFound))
	require.NotNil(t, res)
	assert.Equal(t, []string{"first"}, res.Spoken)
}

func TestStub_LimitSpoken(t *testing.T) {
	ctx := context.Background()
	stub := NewStub(nil)
	stub.LimitSpoken(2)

	require.NoError(t, stub.Speak(ctx, "a"))
	require.NoError(t, stub.Speak(ctx, "b"))
	assert.ErrorIs(t, stub.Speak(ctx, "c"), ErrSpeakLimit)
	assert.Equal(t, []string{"a", "b"}, stub.Spoken())
}

func TestRun_MaxSpoken(t *testing.T) {
	res, err := Run(context.Background(), `flow origin { while true { speak "x" } }`, nil, nil, WithMaxSpoken(3))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeIO))
	assert.ErrorIs(t, err, ErrSpeakLimit)
	assert.Equal(t, []string{"x", "x", "x"}, res.Spoken)
}

func TestRun_ParseError(t *testing.T) {
	res, err := Run(context.Background(), `flow origin {`, nil, nil)
	assert.Nil(t, res)
	assert.True(t, schema.IsCode(err, schema.ErrCodeParse))
}

func TestRun_Options(t *testing.T) {
	res, err := Run(context.Background(), `flow origin { speak "x" }`, nil, nil,
		WithMode(runtime.ModeCooperative),
		WithRuntimeOptions(runtime.WithRunID("fixed")))
	require.NoError(t, err)
	assert.Equal(t, "fixed", res.RunID)
}

func TestExpect(t *testing.T) {
	src := `
flow origin {
	speak "Welcome"
	listen for a for 5 s
	if timeout { speak "timeout" }
}`
	ctx := context.Background()
	assert.NoError(t, Expect(ctx, src, []*string{nil}, []string{"Welcome", "timeout"}, nil))

	err := Expect(ctx, src, Inputs("hi"), []string{"Welcome", "timeout"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcript mismatch")

	assert.NoError(t, Expect(ctx, `flow origin { }`, nil, nil, nil))
}
