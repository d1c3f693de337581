package ciba

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/idp/pkg/authsdk"
)

// Kind classifies a backchannel failure. There is no redirect: every kind
// maps to an HTTP status of the backchannel or token endpoint.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindServerError
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Error is a backchannel protocol error.
type Error struct {
	Kind        Kind
	Code        string
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return e.Code + ": " + e.Description
}

func (e *Error) Unwrap() error { return e.Err }

func badRequest(code, format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Description: fmt.Sprintf(format, args...)}
}

func unauthorized(err error) *Error {
	return &Error{Kind: KindUnauthorized, Code: authsdk.ErrorCodeInvalidClient, Description: "client authentication failed", Err: err}
}

func serverError(err error) *Error {
	return &Error{Kind: KindServerError, Code: authsdk.ErrorCodeServerError, Description: "unexpected server error", Err: err}
}

// asError converts any error into an *Error, treating unknown errors as
// server errors.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return serverError(err)
}
