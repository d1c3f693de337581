package domain

import (
	"slices"
	"strings"
	"time"
)

// Profile is the authorization profile a request is verified under.
type Profile string

const (
	ProfileOAuth2       Profile = "OAUTH2"
	ProfileOIDC         Profile = "OIDC"
	ProfileFAPIBaseline Profile = "FAPI_BASELINE"
	ProfileFAPIAdvance  Profile = "FAPI_ADVANCE"
	ProfileCIBA         Profile = "CIBA"
	ProfileFAPICIBA     Profile = "FAPI_CIBA"
)

func (p Profile) IsFAPI() bool {
	return p == ProfileFAPIBaseline || p == ProfileFAPIAdvance || p == ProfileFAPICIBA
}

// RequestPattern is how the request parameters were delivered.
type RequestPattern string

const (
	PatternNormal        RequestPattern = "NORMAL"
	PatternRequestObject RequestPattern = "REQUEST_OBJECT"
	PatternRequestURI    RequestPattern = "REQUEST_URI"
	PatternPushed        RequestPattern = "PUSHED"
)

func (p RequestPattern) UsesRequestObject() bool {
	return p == PatternRequestObject || p == PatternRequestURI
}

// Prompt values.
const (
	PromptNone          = "none"
	PromptLogin         = "login"
	PromptConsent       = "consent"
	PromptSelectAccount = "select_account"
	PromptCreate        = "create"
)

// PushedRequestURIPrefix prefixes request_uri values issued by the pushed
// authorization request endpoint.
const PushedRequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

// ResponseType is a canonical response_type: its space separated values in
// lexical order ("code id_token token").
type ResponseType string

const (
	ResponseTypeNone             ResponseType = "none"
	ResponseTypeCode             ResponseType = "code"
	ResponseTypeToken            ResponseType = "token"
	ResponseTypeIDToken          ResponseType = "id_token"
	ResponseTypeCodeIDToken      ResponseType = "code id_token"
	ResponseTypeCodeToken        ResponseType = "code token"
	ResponseTypeIDTokenToken     ResponseType = "id_token token"
	ResponseTypeCodeIDTokenToken ResponseType = "code id_token token"
)

// ParseResponseType canonicalises the order of response_type values.
func ParseResponseType(s string) ResponseType {
	parts := strings.Fields(s)
	slices.Sort(parts)
	return ResponseType(strings.Join(slices.Compact(parts), " "))
}

func (rt ResponseType) has(v string) bool {
	return slices.Contains(strings.Fields(string(rt)), v)
}

func (rt ResponseType) HasCode() bool    { return rt.has("code") }
func (rt ResponseType) HasIDToken() bool { return rt.has("id_token") }
func (rt ResponseType) HasToken() bool   { return rt.has("token") }

// IsFrontChannelToken reports whether tokens are returned from the
// authorization endpoint (implicit and hybrid flows).
func (rt ResponseType) IsFrontChannelToken() bool {
	return rt.HasIDToken() || rt.HasToken()
}

// ResponseMode is the response_mode parameter.
type ResponseMode string

const (
	ResponseModeDefault     ResponseMode = ""
	ResponseModeQuery       ResponseMode = "query"
	ResponseModeFragment    ResponseMode = "fragment"
	ResponseModeFormPost    ResponseMode = "form_post"
	ResponseModeJWT         ResponseMode = "jwt"
	ResponseModeQueryJWT    ResponseMode = "query.jwt"
	ResponseModeFragmentJWT ResponseMode = "fragment.jwt"
	ResponseModeFormPostJWT ResponseMode = "form_post.jwt"
)

func (m ResponseMode) IsJWT() bool {
	return m == ResponseModeJWT || strings.HasSuffix(string(m), ".jwt")
}

// Resolve replaces the default and the bare "jwt" mode with the concrete
// delivery for rt.
func (m ResponseMode) Resolve(rt ResponseType) ResponseMode {
	frontChannel := rt.IsFrontChannelToken()
	switch m {
	case ResponseModeDefault:
		if frontChannel {
			return ResponseModeFragment
		}
		return ResponseModeQuery
	case ResponseModeJWT:
		if frontChannel {
			return ResponseModeFragmentJWT
		}
		return ResponseModeQueryJWT
	default:
		return m
	}
}

// AuthorizationRequest is a validated authorization request. It is
// immutable once stored.
type AuthorizationRequest struct {
	ID       string
	TenantID string
	Profile  Profile
	Pattern  RequestPattern

	ClientID     string
	Scopes       []string
	ResponseType ResponseType
	ResponseMode ResponseMode
	RedirectURI  string
	State        string
	Nonce        string
	Prompts      []string
	MaxAge       *int
	ACRValues    []string
	Display      string
	UILocales    string
	LoginHint    string
	IDTokenHint  string

	// Claims is the raw claims request parameter (JSON).
	Claims string
	// AuthorizationDetails is the raw RAR parameter (JSON array).
	AuthorizationDetails string

	CodeChallenge       string
	CodeChallengeMethod string

	// RequestObject holds the raw request object when one was used.
	RequestObject string

	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r *AuthorizationRequest) IsOIDC() bool {
	return slices.Contains(r.Scopes, "openid")
}

func (r *AuthorizationRequest) HasPrompt(p string) bool {
	return slices.Contains(r.Prompts, p)
}

// MaxAgeDuration returns max_age and whether it was requested.
func (r *AuthorizationRequest) MaxAgeDuration() (time.Duration, bool) {
	if r.MaxAge == nil {
		return 0, false
	}
	return time.Duration(*r.MaxAge) * time.Second, true
}

func (r *AuthorizationRequest) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// EffectiveResponseMode is the concrete delivery used for this request.
func (r *AuthorizationRequest) EffectiveResponseMode() ResponseMode {
	return r.ResponseMode.Resolve(r.ResponseType)
}

func (r *AuthorizationRequest) ScopeString() string {
	return strings.Join(r.Scopes, " ")
}
