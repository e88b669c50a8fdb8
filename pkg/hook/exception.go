package hook

import (
	"errors"
	"fmt"
	"reflect"
)

// Exception is a raised error as seen by the debugger.
type Exception interface {
	// TypeName is the qualified type name used for per-type break modes.
	TypeName() string
	// Message is the human readable text.
	Message() string
	// IsA reports whether the exception's type is typeName or derives from it.
	IsA(typeName string) bool
	// ExitCode reports whether the exception requests process exit, and the code.
	ExitCode() (code int, isExit bool)
}

// ErrorException adapts a Go error. Its type hierarchy is the chain of wrapped
// errors, so a handler naming any type in the chain matches.
type ErrorException struct {
	Err error
}

// TypeName returns the dynamic type of the outermost error.
func (e ErrorException) TypeName() string {
	return errorTypeName(e.Err)
}

// Message returns the error text.
func (e ErrorException) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// IsA walks the wrapped error chain looking for typeName.
func (e ErrorException) IsA(typeName string) bool {
	for err := e.Err; err != nil; err = errors.Unwrap(err) {
		if errorTypeName(err) == typeName {
			return true
		}
	}
	return false
}

// ExitCode reports a wrapped ExitError.
func (e ErrorException) ExitCode() (int, bool) {
	var exit *ExitError
	if errors.As(e.Err, &exit) {
		return exit.Code, true
	}
	return 0, false
}

// ExitError is raised by the host when the program asks to exit.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func errorTypeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	if t.Kind() == reflect.Ptr {
		return t.Elem().String()
	}
	return t.String()
}
