package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeParse             = "PARSE_ERROR"
	ErrCodeNameNotFound      = "NAME_NOT_FOUND"
	ErrCodeUnknownFlow       = "UNKNOWN_FLOW"
	ErrCodeUnknownTributary  = "UNKNOWN_TRIBUTARY"
	ErrCodeOperandType       = "OPERAND_TYPE_ERROR"
	ErrCodeStackDepth        = "STACK_DEPTH_EXCEEDED"
	ErrCodeTributaryFailed   = "TRIBUTARY_FAILED"
	ErrCodeIO                = "IO_ERROR"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeStore             = "STORE_ERROR"
)

// ChatflowError is the structured error type for all ChatFlow operations.
type ChatflowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Flow    string         `json:"flow,omitempty"`
	Line    int            `json:"line,omitempty"`
	Column  int            `json:"column,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ChatflowError) Error() string {
	switch {
	case e.Line > 0 && e.Flow != "":
		return fmt.Sprintf("[%s] flow %s at %d:%d: %s", e.Code, e.Flow, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("[%s] %d:%d: %s", e.Code, e.Line, e.Column, e.Message)
	case e.Flow != "":
		return fmt.Sprintf("[%s] flow %s: %s", e.Code, e.Flow, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ChatflowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ChatflowError.
func NewError(code, message string) *ChatflowError {
	return &ChatflowError{Code: code, Message: message}
}

// NewErrorf creates a new ChatflowError with a formatted message.
func NewErrorf(code, format string, args ...any) *ChatflowError {
	return &ChatflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithFlow attaches the name of the flow that was executing.
// An already attached flow is kept so the innermost flow wins.
func (e *ChatflowError) WithFlow(flow string) *ChatflowError {
	if e.Flow == "" {
		e.Flow = flow
	}
	return e
}

// WithPos attaches a source position. An already attached position is kept.
func (e *ChatflowError) WithPos(line, column int) *ChatflowError {
	if e.Line == 0 {
		e.Line = line
		e.Column = column
	}
	return e
}

// WithCause attaches an underlying cause.
func (e *ChatflowError) WithCause(err error) *ChatflowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ChatflowError) WithDetails(details map[string]any) *ChatflowError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first ChatflowError in err's chain, or "".
func CodeOf(err error) string {
	var cfErr *ChatflowError
	if errors.As(err, &cfErr) {
		return cfErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
