package oauth

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/idp/pkg/authsdk"
)

// Kind classifies a protocol failure by how it must be surfaced.
type Kind int

const (
	// KindBadRequest is returned to the user agent directly; the redirect
	// target cannot be trusted.
	KindBadRequest Kind = iota + 1
	// KindRedirectableBadRequest is delivered to the client's redirect_uri.
	KindRedirectableBadRequest
	KindConfigurationInvalid
	KindJoseInvalid
	KindUnauthorized
	KindUnSupported
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindRedirectableBadRequest:
		return "redirectable_bad_request"
	case KindConfigurationInvalid:
		return "configuration_invalid"
	case KindJoseInvalid:
		return "jose_invalid"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnSupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the typed protocol error of the OAuth flow.
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

// Redirectable reports whether the error is returned to the client's
// redirect_uri.
func (e *Error) Redirectable() bool {
	return e.Kind == KindRedirectableBadRequest
}

func newError(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Description: fmt.Sprintf(format, args...)}
}

func badRequest(code, format string, args ...any) *Error {
	return newError(KindBadRequest, code, format, args...)
}

func redirectable(code, format string, args ...any) *Error {
	return newError(KindRedirectableBadRequest, code, format, args...)
}

func misconfigured(code, format string, args ...any) *Error {
	return newError(KindConfigurationInvalid, code, format, args...)
}

// joseInvalid wraps a crypto failure as an invalid_request_object error.
// The cause stays in Err for logging and never reaches the wire.
func joseInvalid(err error, format string, args ...any) *Error {
	e := newError(KindJoseInvalid, authsdk.ErrorCodeInvalidRequestObject, format, args...)
	e.Err = err
	return e
}

// AsError extracts *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// serverError wraps an unexpected failure.
func serverError(err error) *Error {
	return &Error{Kind: KindUnSupported, Code: authsdk.ErrorCodeServerError, Description: "unexpected error", Err: err}
}
