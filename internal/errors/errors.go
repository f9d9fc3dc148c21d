// Package errors contains helpers for wrapping errors with stack traces and
// aggregating multiple errors from concurrent hook runs.
package errors

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// New creates a new error with a stack trace, or wraps the given error in a
// type that carries one. If the given error already has a stack trace, it is
// kept.
func New(err any) error {
	if err == nil {
		return nil
	}

	if e, ok := err.(error); ok {
		if hasStackTrace(e) {
			return e
		}

		return goerrors.Wrap(e, 1)
	}

	return goerrors.Wrap(fmt.Errorf("%v", err), 1)
}

// Errorf creates a formatted error that carries a stack trace.
func Errorf(format string, args ...any) error {
	return goerrors.Wrap(fmt.Errorf(format, args...), 1)
}

// WithPrefix wraps the given error with a stack trace and prepends the given
// formatted message. Returns nil if err is nil.
func WithPrefix(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return goerrors.WrapPrefix(err, fmt.Sprintf(format, args...), 1)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// StackTrace returns the callstack carried by err, or an empty string if err
// has none.
func StackTrace(err error) string {
	var goErr *goerrors.Error
	if errors.As(err, &goErr) {
		return string(goErr.Stack())
	}

	return ""
}

// Recover recovers from a panic and passes the cause to onPanic as an error
// with a stack trace. Must be called from a defer statement.
func Recover(onPanic func(cause error)) {
	if rec := recover(); rec != nil {
		err, ok := rec.(error)
		if !ok {
			err = fmt.Errorf("%v", rec)
		}

		onPanic(New(err))
	}
}

func hasStackTrace(err error) bool {
	var goErr *goerrors.Error
	return errors.As(err, &goErr)
}
