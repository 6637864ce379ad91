// Package apperr defines the error kinds shared by the store and its callers.
package apperr

import "errors"

// Error kinds. Match them with errors.Is.
//
// NotFound and Validation are caller faults; IO and Serialization are
// server faults.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrIO            = errors.New("io failure")
	ErrSerialization = errors.New("serialization failure")
)

// Error attaches one of the kinds above to an operation and its cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if msg == "" {
		return e.Kind.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NotFound reports a missing collection or record.
func NotFound(op string) error {
	return &Error{Kind: ErrNotFound, Op: op, Err: ErrNotFound}
}

// Validation reports a caller-supplied value that cannot be accepted.
func Validation(op, reason string) error {
	return &Error{Kind: ErrValidation, Op: op, Err: errors.New(reason)}
}

// IO wraps a filesystem failure.
func IO(op string, err error) error {
	return &Error{Kind: ErrIO, Op: op, Err: err}
}

// Serialization wraps an encode/decode failure.
func Serialization(op string, err error) error {
	return &Error{Kind: ErrSerialization, Op: op, Err: err}
}

// IsClientFault reports whether err is a NotFound or Validation error.
func IsClientFault(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation)
}
