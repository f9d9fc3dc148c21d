package errors

import (
	"github.com/hashicorp/go-multierror"
)

// MultiError collects errors from independent operations, typically the
// concurrent instances of one execution phase. The zero value is usable.
type MultiError struct {
	inner *multierror.Error
}

// Append returns a MultiError with the given errors added. Nil errors are
// ignored. Safe to call on a nil receiver.
func (e *MultiError) Append(errs ...error) *MultiError {
	if e == nil {
		e = &MultiError{}
	}

	inner := e.inner

	for _, err := range errs {
		if err != nil {
			inner = multierror.Append(inner, err)
		}
	}

	return &MultiError{inner: inner}
}

// Error implements the error interface.
func (e *MultiError) Error() string {
	if e == nil || e.inner == nil {
		return ""
	}

	return e.inner.Error()
}

// WrappedErrors returns the collected errors.
func (e *MultiError) WrappedErrors() []error {
	if e == nil || e.inner == nil {
		return nil
	}

	return e.inner.WrappedErrors()
}

// Unwrap supports errors.Is and errors.As over the collected errors.
func (e *MultiError) Unwrap() []error {
	return e.WrappedErrors()
}

// ErrorOrNil returns the MultiError if it contains at least one error, or
// nil otherwise.
func (e *MultiError) ErrorOrNil() error {
	if e == nil || e.inner == nil || e.inner.ErrorOrNil() == nil {
		return nil
	}

	return e
}

// Len returns the number of collected errors.
func (e *MultiError) Len() int {
	if e == nil || e.inner == nil {
		return 0
	}

	return len(e.inner.Errors)
}
