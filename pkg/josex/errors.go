// Package josex is the JOSE engine: compact JWS signing and verification,
// nested JWE encryption and decryption, JWK/JWKS handling, header analysis
// and the OIDC half-hash claims.
//
// Every failure surfaces as *Error wrapping ErrInvalid, so callers can map
// any crypto problem onto their own protocol error with a single errors.Is.
package josex

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every error returned by this package.
var ErrInvalid = errors.New("josex: invalid jose")

// Sentinel causes. They are always wrapped in *Error.
var (
	ErrMalformed        = errors.New("malformed token")
	ErrUnsupportedAlg   = errors.New("unsupported algorithm")
	ErrNoKey            = errors.New("no matching key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpired          = errors.New("token expired")
	ErrNotYetValid      = errors.New("token not yet valid")
	ErrIssuer           = errors.New("issuer mismatch")
	ErrAudience         = errors.New("audience mismatch")
	ErrMissingClaim     = errors.New("missing claim")
)

// Error is the single JOSE failure type.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("josex: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrInvalid and the cause.
func (e *Error) Unwrap() []error {
	return []error{ErrInvalid, e.Err}
}

func fail(op string, err error) error {
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{Op: op, Err: err}
}

func failf(op, format string, args ...any) error {
	return &Error{Op: op, Err: fmt.Errorf(format, args...)}
}
