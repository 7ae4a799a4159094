// Package simplimath implements the SimpliMath line interpreter.
package simplimath

import (
	"errors"
	"fmt"
)

// Error categories. The category names double as the user-facing kind.
const (
	ErrCategorySyntax  = "SyntaxError"
	ErrCategoryRuntime = "RuntimeError"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its category.
var (
	ErrSyntax  = errors.New("syntax error")
	ErrRuntime = errors.New("runtime error")
)

// Error is a structured interpreter error.
type Error struct {
	Category string // ErrCategorySyntax or ErrCategoryRuntime
	Message  string // Full message, including the offending text
	Command  string // Source line being dispatched (optional)
	Line     int    // 1-based source line, 0 outside the parse pass
	Cause    error  // Underlying failure, if any
}

// Error returns the message only; callers add their own "Error: " prefix.
func (e *Error) Error() string {
	return e.Message
}

// Is lets errors.Is match the category sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSyntax:
		return e.Category == ErrCategorySyntax
	case ErrRuntime:
		return e.Category == ErrCategoryRuntime
	}
	return false
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind returns "SyntaxError" or "RuntimeError".
func (e *Error) Kind() string {
	return e.Category
}

// NewSyntaxError builds a SyntaxError with a formatted message.
func NewSyntaxError(format string, args ...interface{}) *Error {
	return &Error{Category: ErrCategorySyntax, Message: fmt.Sprintf(format, args...)}
}

// NewRuntimeError builds a RuntimeError with a formatted message.
func NewRuntimeError(format string, args ...interface{}) *Error {
	return &Error{Category: ErrCategoryRuntime, Message: fmt.Sprintf(format, args...)}
}

// WithCommand attaches the source line that produced the error.
func (e *Error) WithCommand(cmd string) *Error {
	e.Command = cmd
	return e
}

// WithCause records the underlying failure.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithLine attaches the 1-based source line number.
func (e *Error) WithLine(line int) *Error {
	e.Line = line
	return e
}

// annotate fills Command/Line on interpreter errors that don't carry them yet.
// Non-interpreter errors pass through untouched.
func annotate(err error, command string, line int) error {
	var se *Error
	if errors.As(err, &se) {
		if se.Command == "" {
			se.Command = command
		}
		if se.Line == 0 {
			se.Line = line
		}
	}
	return err
}
