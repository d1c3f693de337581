package oauth

import (
	"net/url"
	"slices"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aussiebroadwan/idp/internal/idp/claims"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

// knownResponseTypes are the response_type values of OAuth 2.0 Multiple
// Response Type Encoding Practices, in canonical order.
var knownResponseTypes = []domain.ResponseType{
	domain.ResponseTypeNone,
	domain.ResponseTypeCode,
	domain.ResponseTypeToken,
	domain.ResponseTypeIDToken,
	domain.ResponseTypeCodeIDToken,
	domain.ResponseTypeCodeToken,
	domain.ResponseTypeIDTokenToken,
	domain.ResponseTypeCodeIDTokenToken,
}

var knownResponseModes = []domain.ResponseMode{
	domain.ResponseModeQuery,
	domain.ResponseModeFragment,
	domain.ResponseModeFormPost,
	domain.ResponseModeJWT,
	domain.ResponseModeQueryJWT,
	domain.ResponseModeFragmentJWT,
	domain.ResponseModeFormPostJWT,
}

var knownPrompts = []string{
	domain.PromptNone,
	domain.PromptLogin,
	domain.PromptConsent,
	domain.PromptSelectAccount,
	domain.PromptCreate,
}

var knownDisplays = []string{"page", "popup", "touch", "wap"}

// fapiAdvanceAlgs are the request object algorithms FAPI part 2 allows.
var fapiAdvanceAlgs = []string{"PS256", "ES256"}

// maxRequestObjectLifetime bounds exp - nbf and the age of nbf for FAPI.
const maxRequestObjectLifetime = 60 * time.Minute

type verifyFunc func(*Verifier, *RequestContext) error

// profileVerifiers maps every profile reachable from the authorization
// endpoint to its rule set.
var profileVerifiers = map[domain.Profile]verifyFunc{
	domain.ProfileOAuth2:       (*Verifier).verifyOAuth2,
	domain.ProfileOIDC:         (*Verifier).verifyOIDC,
	domain.ProfileFAPIBaseline: (*Verifier).verifyFAPIBaseline,
	domain.ProfileFAPIAdvance:  (*Verifier).verifyFAPIAdvance,
}

// Verifier applies the profile rules to a RequestContext.
type Verifier struct {
	Keys *token.KeyRing
	Now  func() time.Time
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify runs the profile rules, then the extension rules shared by every
// profile.
func (v *Verifier) Verify(rc *RequestContext) error {
	fn, ok := profileVerifiers[rc.Profile]
	if !ok {
		return newError(KindUnSupported, authsdk.ErrorCodeServerError, "profile %s has no verifier", rc.Profile)
	}
	if err := fn(v, rc); err != nil {
		return err
	}
	if err := verifyAuthorizationDetails(rc); err != nil {
		return err
	}
	if rc.Tenant.Server.PushedAuthorizationRequired && !rc.Pushed {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "pushed authorization request is required")
	}
	return nil
}

func (v *Verifier) verifyOAuth2(rc *RequestContext) error {
	if err := verifyRedirectURI(rc); err != nil {
		return err
	}
	if err := verifyResponseType(rc); err != nil {
		return err
	}
	if err := verifyResponseMode(rc); err != nil {
		return err
	}
	if len(rc.Request.Scopes) == 0 {
		return redirectable(authsdk.ErrorCodeInvalidScope, "authorization request does not contain a valid scope (%s)", rc.Params.Get(ParamScope))
	}
	return verifyPKCE(rc)
}

func (v *Verifier) verifyOIDC(rc *RequestContext) error {
	if !rc.HasRedirectURI() {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "oidc authorization request must contain redirect_uri")
	}
	if err := v.verifyOAuth2(rc); err != nil {
		return err
	}
	req := rc.Request
	if req.ResponseType.HasIDToken() && req.Nonce == "" {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "nonce is required when response_type contains id_token")
	}
	for _, p := range req.Prompts {
		if !slices.Contains(knownPrompts, p) {
			return redirectable(authsdk.ErrorCodeInvalidRequest, "prompt %s is not supported", p)
		}
	}
	if req.HasPrompt(domain.PromptNone) && len(req.Prompts) > 1 {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "prompt none must not be combined with other values")
	}
	if req.Display != "" && !slices.Contains(knownDisplays, req.Display) {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "display %s is not supported", req.Display)
	}
	if req.Claims != "" {
		if !rc.Tenant.Server.ClaimsParameterSupported {
			return redirectable(authsdk.ErrorCodeInvalidRequest, "claims parameter is not supported")
		}
		if _, err := claims.ParseRequest(req.Claims); err != nil {
			return redirectable(authsdk.ErrorCodeInvalidRequest, "claims parameter is invalid")
		}
	}
	return nil
}

// verifyBase applies the OIDC rules to openid requests and the OAuth rules
// to the rest.
func (v *Verifier) verifyBase(rc *RequestContext) error {
	if rc.Request.IsOIDC() {
		return v.verifyOIDC(rc)
	}
	return v.verifyOAuth2(rc)
}

// verifyFAPIBaseline applies FAPI 1.0 Part 1 (5.2.2).
func (v *Verifier) verifyFAPIBaseline(rc *RequestContext) error {
	if err := verifyRegisteredRedirectURI(rc); err != nil {
		return err
	}
	if err := verifyHTTPSRedirectURI(rc); err != nil {
		return err
	}
	if err := v.verifyBase(rc); err != nil {
		return err
	}
	if rc.ClientConfig.UsesSecretAuthentication() {
		return redirectable(authsdk.ErrorCodeUnauthorizedClient, "client_secret_basic and client_secret_post are not allowed under FAPI")
	}
	if rc.Request.CodeChallengeMethod != "S256" || rc.Request.CodeChallenge == "" {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "PKCE with S256 is required")
	}
	return verifyNonceOrState(rc)
}

// verifyFAPIAdvance applies FAPI 1.0 Part 2 (5.2.2).
func (v *Verifier) verifyFAPIAdvance(rc *RequestContext) error {
	if err := v.verifyJARMConfiguration(rc); err != nil {
		return err
	}
	if err := v.verifyBase(rc); err != nil {
		return err
	}
	if err := verifyHTTPSRedirectURI(rc); err != nil {
		return err
	}
	if err := verifyNonceOrState(rc); err != nil {
		return err
	}

	switch rc.ClientConfig.TokenEndpointAuthMethod {
	case domain.AuthMethodClientSecretBasic, domain.AuthMethodClientSecretPost, domain.AuthMethodClientSecretJWT:
		return redirectable(authsdk.ErrorCodeUnauthorizedClient, "%s is not allowed under FAPI advance", rc.ClientConfig.TokenEndpointAuthMethod)
	}
	if rc.Pushed {
		if rc.Request.CodeChallengeMethod != "S256" || rc.Request.CodeChallenge == "" {
			return redirectable(authsdk.ErrorCodeInvalidRequest, "pushed requests require PKCE with S256")
		}
	} else {
		if rc.Object == nil {
			return redirectable(authsdk.ErrorCodeInvalidRequest, "FAPI advance requires a request object or a pushed request")
		}
		if rc.Object.IsUnsigned() {
			return redirectable(authsdk.ErrorCodeInvalidRequestObject, "request object must not use alg none")
		}
		if !slices.Contains(fapiAdvanceAlgs, rc.Object.Alg()) {
			return redirectable(authsdk.ErrorCodeInvalidRequestObject, "request object alg %s is not allowed, use PS256 or ES256", rc.Object.Alg())
		}
	}

	rt := rc.Request.ResponseType
	if rt != domain.ResponseTypeCodeIDToken && !(rt == domain.ResponseTypeCode && rc.Request.ResponseMode.IsJWT()) {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "response_type must be code id_token, or code with a jwt response_mode")
	}
	if !rc.Tenant.Server.TLSClientCertificateBoundAccessTokens {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "server does not support certificate bound access tokens")
	}
	if !rc.ClientConfig.TLSClientCertificateBoundAccessTokens {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "client must use certificate bound access tokens")
	}
	if rc.ClientConfig.IsPublic() {
		return redirectable(authsdk.ErrorCodeUnauthorizedClient, "public clients are not allowed under FAPI advance")
	}
	if !rc.Pushed {
		return v.verifyObjectLifetime(rc.Object)
	}
	return nil
}

// verifyJARMConfiguration checks before anything else that a JARM
// response can actually be signed.
func (v *Verifier) verifyJARMConfiguration(rc *RequestContext) error {
	if !rc.Request.ResponseMode.IsJWT() {
		return nil
	}
	alg := rc.ClientConfig.AuthorizationSignedResponseAlg
	if alg == "" {
		return misconfigured(authsdk.ErrorCodeUnauthorizedClient, "client has no authorization_signed_response_alg for jwt response mode")
	}
	keys, err := v.Keys.Private(rc.Tenant)
	if err == nil {
		_, err = josex.SelectKey(keys, "", alg, "sig")
	}
	if err != nil {
		return misconfigured(authsdk.ErrorCodeUnauthorizedClient, "server has no key for authorization_signed_response_alg %s", alg)
	}
	return nil
}

func (v *Verifier) verifyObjectLifetime(obj *josex.JWS) error {
	exp, hasExp := obj.Time("exp")
	nbf, hasNbf := obj.Time("nbf")
	switch {
	case !hasExp:
		return redirectable(authsdk.ErrorCodeInvalidRequestObject, "request object must contain exp")
	case !hasNbf:
		return redirectable(authsdk.ErrorCodeInvalidRequestObject, "request object must contain nbf")
	case exp.Sub(nbf) > maxRequestObjectLifetime:
		return redirectable(authsdk.ErrorCodeInvalidRequestObject, "request object exp must be no more than 60 minutes after nbf")
	case v.now().Sub(nbf) > maxRequestObjectLifetime:
		return redirectable(authsdk.ErrorCodeInvalidRequestObject, "request object nbf must be no older than 60 minutes")
	case !obj.Has("aud"):
		return redirectable(authsdk.ErrorCodeInvalidRequestObject, "request object must contain aud")
	}
	return nil
}

func verifyRedirectURI(rc *RequestContext) error {
	if !rc.HasRedirectURI() {
		switch len(rc.ClientConfig.RedirectURIs) {
		case 0:
			return badRequest(authsdk.ErrorCodeInvalidRequest, "client has no registered redirect uri")
		case 1:
			return nil
		default:
			return badRequest(authsdk.ErrorCodeInvalidRequest, "on multiple registered redirect uris, authorization request redirect_uri must be present")
		}
	}
	uri := rc.Params.Get(ParamRedirectURI)
	fragment, err := hasFragment(uri)
	if err != nil {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "authorization request redirect_uri is invalid (%s)", uri)
	}
	if fragment {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "redirect_uri must not contain a fragment (%s)", uri)
	}
	if !rc.ClientConfig.IsRegisteredRedirectURI(uri) {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "authorization request redirect_uri does not match registered redirect uris (%s)", uri)
	}
	return nil
}

// verifyRegisteredRedirectURI enforces FAPI's registered, present and
// exactly matching redirect_uri.
func verifyRegisteredRedirectURI(rc *RequestContext) error {
	if len(rc.ClientConfig.RedirectURIs) == 0 {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI client must register redirect uris")
	}
	if !rc.HasRedirectURI() {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI authorization request must contain redirect_uri")
	}
	if !rc.ClientConfig.IsRegisteredRedirectURI(rc.Params.Get(ParamRedirectURI)) {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "redirect_uri does not exactly match a registered redirect uri")
	}
	return nil
}

func verifyHTTPSRedirectURI(rc *RequestContext) error {
	u, err := url.Parse(rc.RedirectURI())
	if err != nil || u.Scheme != "https" {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "redirect_uri must use https (%s)", rc.RedirectURI())
	}
	return nil
}

func verifyResponseType(rc *RequestContext) error {
	rt := rc.Request.ResponseType
	switch {
	case rt == "":
		return redirectable(authsdk.ErrorCodeInvalidRequest, "response type is required in authorization request")
	case !slices.Contains(knownResponseTypes, rt):
		return redirectable(authsdk.ErrorCodeInvalidRequest, "response type is unknown type (%s)", rc.Params.Get(ParamResponseType))
	case !rc.Tenant.Server.SupportsResponseType(string(rt)):
		return redirectable(authsdk.ErrorCodeUnsupportedResponseType, "authorization server is unsupported response_type (%s)", rt)
	case !rc.ClientConfig.SupportsResponseType(string(rt)):
		return redirectable(authsdk.ErrorCodeUnauthorizedClient, "client is unauthorized response_type (%s)", rt)
	}
	return nil
}

func verifyResponseMode(rc *RequestContext) error {
	mode := rc.Request.ResponseMode
	if mode == domain.ResponseModeDefault {
		return nil
	}
	if !slices.Contains(knownResponseModes, mode) {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "response_mode %s is unknown", mode)
	}
	if !rc.Tenant.Server.SupportsResponseMode(string(mode)) {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "response_mode %s is not supported", mode)
	}
	return nil
}

func verifyPKCE(rc *RequestContext) error {
	req := rc.Request
	switch req.CodeChallengeMethod {
	case "", "plain", "S256":
	default:
		return redirectable(authsdk.ErrorCodeInvalidRequest, "code_challenge_method %s is not supported", req.CodeChallengeMethod)
	}
	if req.CodeChallengeMethod != "" && req.CodeChallenge == "" {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "code_challenge_method requires code_challenge")
	}
	if rc.ClientConfig.IsPublic() && req.ResponseType.HasCode() && req.CodeChallenge == "" {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "public clients must use PKCE")
	}
	return nil
}

func verifyNonceOrState(rc *RequestContext) error {
	if rc.Request.IsOIDC() {
		if rc.Request.Nonce == "" {
			return redirectable(authsdk.ErrorCodeInvalidRequest, "nonce is required when scope contains openid")
		}
		return nil
	}
	if rc.Request.State == "" {
		return redirectable(authsdk.ErrorCodeInvalidRequest, "state is required when scope does not contain openid")
	}
	return nil
}

// verifyAuthorizationDetails checks the RAR parameter is an array of
// objects each carrying a type.
func verifyAuthorizationDetails(rc *RequestContext) error {
	raw := rc.Request.AuthorizationDetails
	if raw == "" {
		return nil
	}
	if !gjson.Valid(raw) {
		return redirectable(authsdk.ErrorCodeInvalidAuthorizationDetails, "authorization_details is not valid json")
	}
	details := gjson.Parse(raw)
	if !details.IsArray() {
		return redirectable(authsdk.ErrorCodeInvalidAuthorizationDetails, "authorization_details must be an array")
	}
	var err *Error
	details.ForEach(func(_, d gjson.Result) bool {
		if !d.IsObject() || d.Get("type").String() == "" {
			err = redirectable(authsdk.ErrorCodeInvalidAuthorizationDetails, "every authorization detail needs a type")
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return nil
}
