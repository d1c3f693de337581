package authsdk

import (
	"time"

	"github.com/aussiebroadwan/idp/pkg/josex"
)

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// This is used internally for parsing HTTP error responses.
// Client code should use the OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g., "invalid_request", "login_required")
	Error string `json:"error" example:"invalid_request"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description" example:"client_id is required"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse represents the token endpoint response per RFC 6749 and
// CIBA Core 11.
type TokenResponse struct {
	// AccessToken is the JWT access token
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type" example:"Bearer"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in" example:"3600"`

	// RefreshToken is the opaque refresh token
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is present when openid was granted
	IDToken string `json:"id_token,omitempty"`

	// Scope is the space-delimited list of granted scopes
	Scope string `json:"scope,omitempty" example:"openid profile"`
}

// ============================================================================
// Authorization Types
// ============================================================================

// PushedAuthorizationResponse is the PAR endpoint response (RFC 9126).
type PushedAuthorizationResponse struct {
	RequestURI string `json:"request_uri" example:"urn:ietf:params:oauth:request_uri:par_01J9X3T2"`
	ExpiresIn  int64  `json:"expires_in" example:"90"`
}

// AuthorizationResponse is returned by the authorization endpoint when the
// user has to interact before the client gets its answer.
type AuthorizationResponse struct {
	// Status is OK, OK_SESSION_ENABLE or OK_ACCOUNT_CREATION
	Status string `json:"status" example:"OK"`

	// RequestID names the request in interaction URLs
	RequestID string `json:"request_id"`

	// TransactionID is the authentication transaction bound to the request
	TransactionID string `json:"transaction_id,omitempty"`

	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes,omitempty"`

	// Methods are the authentication methods the policy accepts
	Methods []string `json:"methods,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
}

// TransactionResponse describes an authentication transaction to the
// interaction UI or the authentication device.
type TransactionResponse struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id"`
	Flow           string    `json:"flow" example:"oauth"`
	Status         string    `json:"status" example:"in_progress"`
	ClientID       string    `json:"client_id"`
	Scopes         []string  `json:"scopes,omitempty"`
	ACRValues      []string  `json:"acr_values,omitempty"`
	BindingMessage string    `json:"binding_message,omitempty"`
	Methods        []string  `json:"methods,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// InteractionResponse is the result of one authentication interaction.
type InteractionResponse struct {
	// Outcome is PENDING, SUCCESS, FAILURE or LOCKED
	Outcome string `json:"outcome" example:"PENDING"`

	// Next is the interaction the policy expects next, if any
	Next string `json:"next,omitempty" example:"sms-authentication-challenge"`

	// Location is the client redirect once an OAuth request was settled
	Location string `json:"location,omitempty"`

	// Parameters must be posted to Location for form_post responses
	Parameters map[string]string `json:"parameters,omitempty"`

	Sub       string `json:"sub,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
	Remaining int    `json:"remaining,omitempty"`

	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// AuthorizeResultResponse carries the client redirect produced by
// authorize-with-session and deny.
type AuthorizeResultResponse struct {
	Location   string            `json:"location"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ============================================================================
// CIBA Types
// ============================================================================

// BackchannelAuthenticationResponse is the backchannel authentication
// endpoint response (CIBA Core 7.3).
type BackchannelAuthenticationResponse struct {
	AuthReqID string `json:"auth_req_id" example:"01J9X3T2Q8M6B3ZK7W4V5N1C0D"`
	ExpiresIn int    `json:"expires_in" example:"300"`
	Interval  int    `json:"interval,omitempty" example:"5"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Sessions indicates the session store status
	Sessions string `json:"sessions"`

	// Tenants reports whether at least one tenant is configured
	Tenants string `json:"tenants"`
}

// ============================================================================
// JWKS Types
// ============================================================================

// JWKSResponse is a tenant's public JSON Web Key Set.
type JWKSResponse josex.JWKS
