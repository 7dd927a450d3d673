package secretstore

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind classifies a storage failure.
type Kind string

const (
	KindEncodeFailed   Kind = "encode_failed"
	KindWriteFailed    Kind = "write_failed"
	KindReadFailed     Kind = "read_failed"
	KindDeleteFailed   Kind = "delete_failed"
	KindUnexpectedData Kind = "unexpected_data"
	KindDecodeFailed   Kind = "decode_failed"
)

// Error is returned by every Store implementation.
// Code carries the underlying OS error number when one is known, otherwise 0.
type Error struct {
	Kind Kind
	Code int
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("secret store: %s", e.Kind)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a store *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var sErr *Error
	return errors.As(err, &sErr) && sErr.Kind == kind
}

func newError(kind Kind, err error) *Error {
	e := &Error{Kind: kind, Err: err}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		e.Code = int(errno)
	}
	return e
}
