package domain

import (
	"slices"
	"time"
)

// BackchannelAuthenticationRequest is an accepted CIBA request.
type BackchannelAuthenticationRequest struct {
	ID       string
	TenantID string
	Profile  Profile
	Pattern  RequestPattern

	ClientID     string
	DeliveryMode string
	Scopes       []string

	// Exactly one of the three hints is set.
	LoginHint      string
	LoginHintToken string
	IDTokenHint    string

	ACRValues               []string
	BindingMessage          string
	UserCode                string
	ClientNotificationToken string
	RequestedExpiry         int
	AuthorizationDetails    string
	Claims                  string
	RequestObject           string

	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r *BackchannelAuthenticationRequest) IsOIDC() bool {
	return slices.Contains(r.Scopes, "openid")
}

func (r *BackchannelAuthenticationRequest) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// CibaGrantStatus is the outcome of the out-of-band authentication.
type CibaGrantStatus string

const (
	CibaGrantPending    CibaGrantStatus = "authorization_pending"
	CibaGrantAuthorized CibaGrantStatus = "authorized"
	CibaGrantDenied     CibaGrantStatus = "access_denied"
	CibaGrantConsumed   CibaGrantStatus = "consumed"
)

// CibaGrant tracks one BackchannelAuthenticationRequest from acceptance to
// token issuance. AuthReqID is the value handed to the client.
type CibaGrant struct {
	AuthReqID    string
	RequestID    string
	TenantID     string
	ClientID     string
	Status       CibaGrantStatus
	Grant        AuthorizationGrant
	Interval     time.Duration
	LastPolledAt time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (g *CibaGrant) IsExpired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// PolledTooSoon reports a poll arriving before the interval has elapsed.
func (g *CibaGrant) PolledTooSoon(now time.Time) bool {
	if g.LastPolledAt.IsZero() {
		return false
	}
	return now.Sub(g.LastPolledAt) < g.Interval
}
