package domain

import (
	"slices"
	"time"
)

// AuthorizationGrant is what a user approved for a client: the basis of
// codes, tokens and the reusable AuthorizationGranted record.
type AuthorizationGrant struct {
	TenantID       string
	User           User
	Authentication Authentication
	ClientID       string
	Scopes         []string

	// IDTokenClaims and UserinfoClaims are the granted claim names.
	IDTokenClaims  []string
	UserinfoClaims []string
	// ClaimsRequest is the raw claims request, kept for verified_claims.
	ClaimsRequest string

	AuthorizationDetails string
	Consent              ConsentClaims
	CustomProperties     map[string]any
}

// missing returns the values of requested absent from granted, in request
// order.
func missing(granted, requested []string) []string {
	var out []string
	for _, v := range requested {
		if !slices.Contains(granted, v) && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// UnauthorizedScopes lists requested scopes not covered by g.
func (g AuthorizationGrant) UnauthorizedScopes(requested []string) []string {
	return missing(g.Scopes, requested)
}

func (g AuthorizationGrant) UnauthorizedIDTokenClaims(requested []string) []string {
	return missing(g.IDTokenClaims, requested)
}

func (g AuthorizationGrant) UnauthorizedUserinfoClaims(requested []string) []string {
	return missing(g.UserinfoClaims, requested)
}

// UnconsentedItems lists the documents of required that were never
// consented under g.
func (g AuthorizationGrant) UnconsentedItems(required ConsentClaims) []string {
	return g.Consent.Missing(required)
}

// AuthorizationGranted is the persisted superset of everything a user has
// granted a client. It is consulted only for prompt=none.
type AuthorizationGranted struct {
	ID        string
	TenantID  string
	ClientID  string
	UserSub   string
	Grant     AuthorizationGrant
	CreatedAt time.Time
	UpdatedAt time.Time
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// Merge folds a newer grant into the record. Scopes, claims and consent
// only grow; user, authentication and authorization details follow the
// newest grant.
func (g AuthorizationGranted) Merge(newer AuthorizationGrant, now time.Time) AuthorizationGranted {
	merged := newer
	merged.Scopes = union(g.Grant.Scopes, newer.Scopes)
	merged.IDTokenClaims = union(g.Grant.IDTokenClaims, newer.IDTokenClaims)
	merged.UserinfoClaims = union(g.Grant.UserinfoClaims, newer.UserinfoClaims)
	merged.Consent = g.Grant.Consent.Merge(newer.Consent)
	if merged.ClaimsRequest == "" {
		merged.ClaimsRequest = g.Grant.ClaimsRequest
	}

	g.Grant = merged
	g.UpdatedAt = now
	return g
}

// AuthorizationCodeGrant is an issued, not yet exchanged, authorization
// code. Only the code fingerprint is stored.
type AuthorizationCodeGrant struct {
	CodeHash            string
	RequestID           string
	Grant               AuthorizationGrant
	RedirectURI         string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	CreatedAt           time.Time
}

// OAuthToken records an issued access token and its refresh token.
type OAuthToken struct {
	ID               string
	TenantID         string
	ClientID         string
	AccessTokenHash  string
	RefreshTokenHash string
	Grant            AuthorizationGrant
	CertThumbprint   string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
}

func (t OAuthToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
