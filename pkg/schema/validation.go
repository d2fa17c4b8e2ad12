package schema

import (
	"errors"
	"fmt"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single problem found while checking a script or a
// tributary manifest. Path names the flow or manifest field concerned.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
	Line     int                `json:"line,omitempty"`
	Column   int                `json:"column,omitempty"`
}

func (i ValidationIssue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("%s %d:%d: %s [%s]", i.Path, i.Line, i.Column, i.Message, i.Code)
	}
	return fmt.Sprintf("%s: %s [%s]", i.Path, i.Message, i.Code)
}

// ValidationResult aggregates the issues of one check.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.AddErrorAt(path, code, message, 0, 0)
}

// AddErrorAt appends an error-severity issue with a source position.
func (r *ValidationResult) AddErrorAt(path, code, message string, line, column int) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError, Line: line, Column: column,
	})
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.AddWarningAt(path, code, message, 0, 0)
}

// AddWarningAt appends a warning-severity issue with a source position.
func (r *ValidationResult) AddWarningAt(path, code, message string, line, column int) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning, Line: line, Column: column,
	})
}

// AddErr records err as an error issue, keeping its code and position when
// it is a ChatflowError.
func (r *ValidationResult) AddErr(path string, err error) {
	var cfErr *ChatflowError
	if errors.As(err, &cfErr) {
		if cfErr.Flow != "" {
			path = cfErr.Flow
		}
		r.AddErrorAt(path, cfErr.Code, cfErr.Message, cfErr.Line, cfErr.Column)
		return
	}
	r.AddError(path, ErrCodeValidation, err.Error())
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError converts the result to a ChatflowError if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	first := r.Errors[0]
	msg := first.Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithPos(first.Line, first.Column).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
