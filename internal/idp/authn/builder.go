package authn

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/idx"
)

// Built is the result of TransactionBuilder.Build: either Complete or
// Partial.
type Built interface {
	built()
}

// Complete carries a transaction with every required field set.
type Complete struct {
	Transaction domain.AuthenticationTransaction
}

// Partial says why no transaction could be built. It never carries one.
type Partial struct {
	Reason error
}

func (Complete) built() {}
func (Partial) built()  {}

// TransactionBuilder assembles an AuthenticationTransaction from the
// pieces the OAuth and CIBA flows collect.
type TransactionBuilder struct {
	TenantID  string
	Flow      domain.Flow
	RequestID string
	ClientID  string
	User      *domain.User
	DeviceID  string
	Context   domain.AuthenticationContext
	Policy    *domain.AuthenticationPolicy
	// AuthSession is the raw AUTH_SESSION value; only its fingerprint is
	// kept.
	AuthSession string
	ExpiresAt   time.Time
}

// Build finalizes the transaction. A device flow needs its user up front;
// a browser flow identifies the user during interaction.
func (b TransactionBuilder) Build(now time.Time) Built {
	var missing []error
	require := func(ok bool, field string) {
		if !ok {
			missing = append(missing, fmt.Errorf("%w: %s is required", ErrIncomplete, field))
		}
	}
	require(b.TenantID != "", "tenant id")
	require(b.Flow != "", "flow")
	require(b.RequestID != "", "request id")
	require(b.ClientID != "", "client id")
	require(b.Policy != nil, "policy")
	require(!b.ExpiresAt.IsZero(), "expiry")
	if b.Flow == domain.FlowCIBA {
		require(b.User.Exists(), "user")
	}
	if len(missing) > 0 {
		return Partial{Reason: errors.Join(missing...)}
	}

	txn := domain.AuthenticationTransaction{
		ID:        idx.NewAt(now).String(),
		TenantID:  b.TenantID,
		Flow:      b.Flow,
		RequestID: b.RequestID,
		ClientID:  b.ClientID,
		DeviceID:  b.DeviceID,
		Context:   b.Context,
		Policy:    *b.Policy,
		Status:    domain.TransactionCreated,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: b.ExpiresAt,
	}
	if b.User != nil {
		txn.User = *b.User
	}
	if b.AuthSession != "" && b.Flow != domain.FlowCIBA {
		txn.AuthSessionHash = cryptox.FingerprintToken(b.AuthSession)
	}
	return Complete{Transaction: txn}
}
