// Package errors wraps github.com/pkg/errors so that every error that crosses
// a package boundary carries exactly one stack trace.  Use EnsureStack when
// returning an error from an external library; use Wrap/Wrapf/Errorf
// everywhere else.
package errors

import (
	stderrors "errors"

	pkgerrors "github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// New returns an error with the supplied message and a stack trace.
func New(msg string) error {
	return pkgerrors.New(msg)
}

// Errorf formats an error with a stack trace.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// Wrap annotates err with msg and a stack trace.  Returns nil if err is nil.
func Wrap(err error, msg string) error {
	return pkgerrors.Wrap(err, msg)
}

// Wrapf annotates err with a format string and a stack trace.  Returns nil if
// err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// EnsureStack adds a stack trace to err if it does not already have one.
// Errors from libraries outside this module should pass through EnsureStack
// on their way up.
func EnsureStack(err error) error {
	if err == nil {
		return nil
	}
	var st stackTracer
	if stderrors.As(err, &st) {
		return err
	}
	return pkgerrors.WithStack(err)
}

// WithMessage annotates err without adding a new stack trace.
func WithMessage(err error, msg string) error {
	return pkgerrors.WithMessage(err, msg)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error wrapping the provided errors, eliding nils.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// Close is a helper for closing a resource inside a defer while preserving an
// earlier error:
//
//	defer errors.Close(&retErr, f, "close %s", name)
func Close(retErr *error, c interface{ Close() error }, format string, args ...interface{}) {
	if err := c.Close(); err != nil && *retErr == nil {
		*retErr = Wrapf(err, format, args...)
	}
}

// JoinInto merges err into *dst.
func JoinInto(dst *error, err error) {
	if err == nil {
		return
	}
	if *dst == nil {
		*dst = err
		return
	}
	*dst = stderrors.Join(*dst, err)
}
