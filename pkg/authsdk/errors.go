package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/idp/pkg/httpx"
)

// ============================================================================
// OAuth2 Error Codes (RFC 6749)
// ============================================================================

const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeServerError             = "server_error"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
)

// ============================================================================
// OpenID Connect Error Codes (OIDC Core 3.1.2.6, RFC 9101, RFC 9396)
// ============================================================================

const (
	ErrorCodeLoginRequired               = "login_required"
	ErrorCodeInteractionRequired         = "interaction_required"
	ErrorCodeConsentRequired             = "consent_required"
	ErrorCodeInvalidRequestObject        = "invalid_request_object"
	ErrorCodeInvalidRequestURI           = "invalid_request_uri"
	ErrorCodeRequestURINotSupported      = "request_uri_not_supported"
	ErrorCodeInvalidAuthorizationDetails = "invalid_authorization_details"
)

// ============================================================================
// CIBA Error Codes (CIBA Core 11, 13)
// ============================================================================

const (
	ErrorCodeAuthorizationPending  = "authorization_pending"
	ErrorCodeSlowDown              = "slow_down"
	ErrorCodeExpiredToken          = "expired_token"
	ErrorCodeUnknownUserID         = "unknown_user_id"
	ErrorCodeExpiredLoginHintToken = "expired_login_hint_token"
	ErrorCodeInvalidBindingMessage = "invalid_binding_message"
	ErrorCodeMissingUserCode       = "missing_user_code"
	ErrorCodeInvalidUserCode       = "invalid_user_code"
)

// ============================================================================
// OAuth2Error - Standard OAuth2 error type
// ============================================================================

// OAuth2Error represents a standard OAuth2 error response per RFC 6749.
// It implements the error interface and can be used both by the server
// (to write HTTP responses) and by the SDK client (to represent errors).
type OAuth2Error struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the OAuth2 error code (e.g., "invalid_request", "login_required")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this OAuth2Error to an HTTP response writer.
func (e *OAuth2Error) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	if e.StatusCode == http.StatusUnauthorized {
		if e.Code == ErrorCodeInvalidClient {
			w.Header().Set("WWW-Authenticate", `Basic realm="idp"`)
		} else {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// ============================================================================
// Predefined OAuth2 Errors
// ============================================================================

var (
	// ErrInvalidRequest is returned when the request is missing a required parameter,
	// includes an invalid parameter value, includes a parameter more than once,
	// or is otherwise malformed.
	ErrInvalidRequest = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidClient is returned when client authentication failed.
	ErrInvalidClient = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidClient,
		Description: "invalid client",
	}

	// ErrServerError is returned when the authorization server encountered an
	// unexpected condition that prevented it from fulfilling the request.
	ErrServerError = &OAuth2Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	// ErrMethodNotAllowed is returned when the HTTP method is not allowed.
	ErrMethodNotAllowed = &OAuth2Error{
		StatusCode:  http.StatusMethodNotAllowed,
		Code:        ErrorCodeInvalidRequest,
		Description: "method not allowed",
	}

	// ErrInvalidContentType is returned when the Content-Type header is not
	// application/x-www-form-urlencoded as required by OAuth2 spec.
	ErrInvalidContentType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "content-type must be application/x-www-form-urlencoded",
	}

	// ErrInvalidFormBody is returned when the form body cannot be parsed.
	ErrInvalidFormBody = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "invalid form body",
	}

	// ErrUnknownTenant is returned for a tenant id that is not configured.
	ErrUnknownTenant = &OAuth2Error{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeInvalidRequest,
		Description: "unknown tenant",
	}

	// ErrUnauthorizedSession is returned when an interaction does not carry
	// the AUTH_SESSION bound to its transaction.
	ErrUnauthorizedSession = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeAccessDenied,
		Description: "authentication session mismatch",
	}
)

// NewOAuth2Error creates a new OAuth2Error with the given status code, error code, and description.
func NewOAuth2Error(statusCode int, code, description string) *OAuth2Error {
	return &OAuth2Error{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse maps a non-2xx response onto *OAuth2Error. Bodies that
// are not an OAuth error document become server_error with the HTTP status
// text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}

	oerr := &OAuth2Error{StatusCode: resp.StatusCode}
	var doc ErrorResponse
	if json.Unmarshal(body, &doc) == nil && doc.Error != "" {
		oerr.Code, oerr.Description = doc.Error, doc.ErrorDescription
		return oerr
	}
	oerr.Code = ErrorCodeServerError
	oerr.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return oerr
}
