package authn

import "errors"

var (
	// ErrUnauthorized means the caller did not present the AUTH_SESSION
	// bound to the transaction.
	ErrUnauthorized = errors.New("authentication session does not match the transaction")

	ErrUnknownInteraction = errors.New("unknown interaction type")
	ErrIncomplete         = errors.New("authentication transaction is incomplete")
)
