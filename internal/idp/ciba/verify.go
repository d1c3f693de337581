package ciba

import (
	"slices"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
)

// maxBindingMessageLength is counted in characters.
const maxBindingMessageLength = 20

// maxRequestObjectLifetime bounds exp - nbf and the age of nbf under
// FAPI-CIBA.
const maxRequestObjectLifetime = 60 * time.Minute

var fapiCIBAAlgs = []string{"PS256", "ES256"}

var fapiCIBAAuthMethods = []string{
	domain.AuthMethodPrivateKeyJWT,
	domain.AuthMethodTLSClientAuth,
	domain.AuthMethodSelfSignedTLS,
}

type verifyFunc func(*Verifier, *RequestContext) error

var profileVerifiers = map[domain.Profile]verifyFunc{
	domain.ProfileCIBA:     (*Verifier).verifyCIBA,
	domain.ProfileFAPICIBA: (*Verifier).verifyFAPICIBA,
}

// Verifier applies CIBA Core 7.1 and, for FAPI scopes, the FAPI-CIBA
// profile to a RequestContext.
type Verifier struct {
	Now func() time.Time
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) Verify(rc *RequestContext) error {
	fn, ok := profileVerifiers[rc.Profile]
	if !ok {
		return &Error{Kind: KindServerError, Code: authsdk.ErrorCodeServerError, Description: "profile " + string(rc.Profile) + " has no verifier"}
	}
	return fn(v, rc)
}

func (v *Verifier) verifyCIBA(rc *RequestContext) error {
	req := &rc.Request
	server := rc.Tenant.Server
	client := rc.ClientConfig

	if !server.SupportsGrantType(GrantType) {
		return badRequest(authsdk.ErrorCodeUnauthorizedClient, "authorization server does not support the ciba grant")
	}
	if !client.SupportsGrantType(GrantType) {
		return badRequest(authsdk.ErrorCodeUnauthorizedClient, "client is not registered for the ciba grant")
	}
	if !req.IsOIDC() {
		return badRequest(authsdk.ErrorCodeInvalidScope, "backchannel authentication request must contain openid scope (%s)", rc.Params.Get("scope"))
	}
	if n := len(Hints(req)); n != 1 {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "exactly one of login_hint, login_hint_token and id_token_hint is required, got %d", n)
	}
	if utf8.RuneCountInString(req.BindingMessage) > maxBindingMessageLength {
		return badRequest(authsdk.ErrorCodeInvalidBindingMessage, "binding_message must be at most %d characters", maxBindingMessageLength)
	}
	if server.BackchannelUserCodeSupported && client.BackchannelUserCodeParameter && req.UserCode == "" {
		return badRequest(authsdk.ErrorCodeMissingUserCode, "user_code is required")
	}

	mode := req.DeliveryMode
	if !server.SupportsDeliveryMode(mode) {
		return badRequest(authsdk.ErrorCodeUnauthorizedClient, "token delivery mode %s is not supported", mode)
	}
	if mode == domain.DeliveryModePing || mode == domain.DeliveryModePush {
		if req.ClientNotificationToken == "" {
			return badRequest(authsdk.ErrorCodeInvalidRequest, "client_notification_token is required in %s mode", mode)
		}
		if client.BackchannelClientNotificationEndpoint == "" {
			return badRequest(authsdk.ErrorCodeUnauthorizedClient, "client has no backchannel_client_notification_endpoint")
		}
	}

	if len(server.ACRValuesSupported) > 0 {
		for _, acr := range req.ACRValues {
			if !slices.Contains(server.ACRValuesSupported, acr) {
				return badRequest(authsdk.ErrorCodeInvalidRequest, "acr_values %s is not supported", acr)
			}
		}
	}
	return verifyAuthorizationDetails(req.AuthorizationDetails)
}

// verifyFAPICIBA applies the FAPI-CIBA profile (5.2.2) on top of CIBA
// Core.
func (v *Verifier) verifyFAPICIBA(rc *RequestContext) error {
	if err := v.verifyCIBA(rc); err != nil {
		return err
	}
	req := &rc.Request
	server := rc.Tenant.Server
	client := rc.ClientConfig

	if !rc.IsSignedObject() {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA requires a signed request object")
	}
	if err := v.verifyObjectLifetime(rc); err != nil {
		return err
	}
	if alg := rc.Object.Alg(); !slices.Contains(fapiCIBAAlgs, alg) {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA requires PS256 or ES256, got %s", alg)
	}
	if client.IsPublic() {
		return &Error{Kind: KindUnauthorized, Code: authsdk.ErrorCodeInvalidClient, Description: "FAPI CIBA does not allow public clients"}
	}
	if req.BindingMessage == "" && req.AuthorizationDetails == "" {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA requires binding_message when authorization_details is absent")
	}
	if req.DeliveryMode == domain.DeliveryModePush {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA does not allow push token delivery")
	}
	if !slices.Contains(fapiCIBAAuthMethods, client.TokenEndpointAuthMethod) {
		return &Error{Kind: KindUnauthorized, Code: authsdk.ErrorCodeInvalidClient, Description: "FAPI CIBA requires private_key_jwt, tls_client_auth or self_signed_tls_client_auth"}
	}
	if !rc.Object.Has("aud") {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA request object must contain aud")
	}
	if !slices.Contains(rc.Object.Strings("aud"), server.Issuer) {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA request object aud must contain the issuer")
	}
	if !server.TLSClientCertificateBoundAccessTokens {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "server does not support certificate bound access tokens")
	}
	if !client.TLSClientCertificateBoundAccessTokens {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "client must use certificate bound access tokens")
	}
	return nil
}

func (v *Verifier) verifyObjectLifetime(rc *RequestContext) error {
	obj := rc.Object
	if !obj.Has("iat") {
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA request object must contain iat")
	}
	exp, hasExp := obj.Time("exp")
	nbf, hasNbf := obj.Time("nbf")
	switch {
	case !hasExp:
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA request object must contain exp")
	case !hasNbf:
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA request object must contain nbf")
	case !exp.After(nbf):
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA request object exp must be after nbf")
	case exp.Sub(nbf) > maxRequestObjectLifetime:
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA request object lifetime must be at most 60 minutes")
	case v.now().Sub(nbf) > maxRequestObjectLifetime:
		return badRequest(authsdk.ErrorCodeInvalidRequest, "FAPI CIBA request object nbf must be no older than 60 minutes")
	}
	return nil
}

func verifyAuthorizationDetails(raw string) error {
	if raw == "" {
		return nil
	}
	details := gjson.Parse(raw)
	if !gjson.Valid(raw) || !details.IsArray() {
		return badRequest(authsdk.ErrorCodeInvalidAuthorizationDetails, "authorization_details must be a json array")
	}
	for _, d := range details.Array() {
		if !d.IsObject() || d.Get("type").String() == "" {
			return badRequest(authsdk.ErrorCodeInvalidAuthorizationDetails, "every authorization detail needs a type")
		}
	}
	return nil
}
