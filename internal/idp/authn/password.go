package authn

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// PasswordVerifier checks a password against a stored hash.
// cryptox.PasswordHasher satisfies it.
type PasswordVerifier interface {
	Verify(password, encoded string) error
}

var _ PasswordVerifier = cryptox.PasswordHasher{}

type passwordInteractor struct {
	passwords PasswordVerifier
}

func (i *passwordInteractor) Method() string       { return MethodPassword }
func (i *passwordInteractor) Operation() Operation { return OperationAuthenticate }

func (i *passwordInteractor) Interact(ctx context.Context, req *Request) Response {
	username := req.Params["username"]
	password := req.Params["password"]
	if username == "" || password == "" {
		return clientError("invalid_request", "username and password are required")
	}

	user, err := findByUsername(ctx, req.Users, req.Tenant.ID, username)
	if errors.Is(err, store.ErrNotFound) {
		return clientError("user_not_found", "username or password is incorrect")
	}
	if err != nil {
		return serverFailure(err)
	}
	if txn := req.Transaction; txn.User.Exists() && txn.User.Sub != user.Sub {
		return clientError("user_mismatch", "the transaction belongs to another user")
	}
	if !user.HasPassword() {
		return clientError("password_not_set", "username or password is incorrect")
	}

	if err := i.passwords.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return Response{Status: StatusClientError, User: &user, Body: map[string]any{
				"error":             "invalid_credentials",
				"error_description": "username or password is incorrect",
			}}
		}
		return serverFailure(err)
	}
	return succeeded(&user, map[string]any{"sub": user.Sub})
}

// findByUsername accepts a preferred_username or an email address.
func findByUsername(ctx context.Context, users store.Users, tenantID, username string) (domain.User, error) {
	user, err := users.FindBy(ctx, tenantID, "preferred_username", username)
	if errors.Is(err, store.ErrNotFound) {
		return users.FindBy(ctx, tenantID, "email", username)
	}
	return user, err
}
