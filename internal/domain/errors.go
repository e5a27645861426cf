package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify with errors.Is.
var (
	ErrInvalid     = errors.New("invalid input")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("service unavailable")
)

// Error carries a caller-visible reason next to its kind and cause.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func Invalidf(format string, args ...any) error {
	return &Error{Kind: ErrInvalid, Reason: fmt.Sprintf(format, args...)}
}

func NotFound(resource, id string) error {
	return &Error{Kind: ErrNotFound, Reason: fmt.Sprintf("%s '%s' not found", resource, id)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Reason: fmt.Sprintf(format, args...)}
}

func Unavailable(reason string, err error) error {
	return &Error{Kind: ErrUnavailable, Reason: reason, Err: err}
}

func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
func IsConflict(err error) bool    { return errors.Is(err, ErrConflict) }
func IsInvalid(err error) bool     { return errors.Is(err, ErrInvalid) }

// Reason returns the caller-visible part of err: the Reason of the outermost
// *Error, or err.Error() otherwise.
func Reason(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return err.Error()
}
