package authn

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/idp/internal/idp/store"
)

var errDelegateMissing = errors.New("authn: no authenticator server configured")

// delegateInteractor hands FIDO UAF and WebAuthn assertions to the
// external server that holds the registered credentials.
type delegateInteractor struct {
	method   string
	delegate Delegate
}

func (i *delegateInteractor) Method() string       { return i.method }
func (i *delegateInteractor) Operation() Operation { return OperationAuthenticate }

func (i *delegateInteractor) Interact(ctx context.Context, req *Request) Response {
	if i.delegate == nil {
		return serverFailure(errDelegateMissing)
	}

	sub, err := i.delegate.Authenticate(ctx, req.Tenant.ID, req.Params)
	if errors.Is(err, ErrDeliveryRejected) {
		return clientError("invalid_assertion", "the authenticator assertion was rejected")
	}
	if err != nil {
		return serverFailure(err)
	}

	user, err := req.Users.Get(ctx, req.Tenant.ID, sub)
	if errors.Is(err, store.ErrNotFound) {
		return clientError("user_not_found", "the credential belongs to no user")
	}
	if err != nil {
		return serverFailure(err)
	}
	if txn := req.Transaction; txn.User.Exists() && txn.User.Sub != user.Sub {
		return clientError("user_mismatch", "the transaction belongs to another user")
	}
	return succeeded(&user, map[string]any{"sub": user.Sub})
}
