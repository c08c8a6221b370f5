package jwt

import (
	"errors"
	"fmt"
)

// Kind classifies codec failures. Callers must treat every verification kind
// as "unauthenticated"; the distinction is for logs only.
type Kind string

const (
	KindConfig            Kind = "config"
	KindInvalidPayload    Kind = "invalid_payload"
	KindMalformed         Kind = "malformed"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindExpired           Kind = "expired"
)

// Error is returned by every Codec operation.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jwt %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("jwt %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

var (
	ErrConfig            = &Error{Kind: KindConfig}
	ErrInvalidPayload    = &Error{Kind: KindInvalidPayload}
	ErrMalformedToken    = &Error{Kind: KindMalformed}
	ErrSignatureMismatch = &Error{Kind: KindSignatureMismatch}
	ErrExpired           = &Error{Kind: KindExpired}
)

// KindOf returns the kind of a codec error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}
