package ciba

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/idx"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

// GrantType is the token endpoint grant_type of CIBA Core 10.1.
const GrantType = "urn:openid:params:grant-type:ciba"

// Endpoint paths relative to the issuer, accepted as client assertion
// audiences.
const (
	BackchannelPath = "/backchannel/authentications"
	TokenPath       = "/tokens"
)

// Server defaults when the tenant leaves them unset.
const (
	DefaultExpiresIn = 300 * time.Second
	DefaultInterval  = 5 * time.Second
	// slowDownStep is added to the interval on every slow_down.
	slowDownStep = 5 * time.Second
)

// Backchannel authentication request parameter names. The common ones are
// shared with the authorization endpoint.
const (
	ParamLoginHintToken          = "login_hint_token"
	ParamBindingMessage          = "binding_message"
	ParamUserCode                = "user_code"
	ParamClientNotificationToken = "client_notification_token"
	ParamRequestedExpiry         = "requested_expiry"
	ParamAuthReqID               = "auth_req_id"
	ParamGrantType               = "grant_type"
)

// RequestContext is a backchannel request resolved against its tenant and
// client. It satisfies clientauth.Context.
type RequestContext struct {
	Tenant       *domain.Tenant
	ClientConfig domain.ClientConfig
	Pattern      domain.RequestPattern
	Profile      domain.Profile

	Query oauth.Parameters
	// Params is the effective view: request object values merged over the
	// query, so a query value survives unless the object overrides it.
	Params oauth.Parameters
	Object *josex.JWS

	Request domain.BackchannelAuthenticationRequest

	credentials clientauth.Credentials
}

func (rc *RequestContext) Server() domain.ServerConfig         { return rc.Tenant.Server }
func (rc *RequestContext) Client() domain.ClientConfig         { return rc.ClientConfig }
func (rc *RequestContext) Credentials() clientauth.Credentials { return rc.credentials }
func (rc *RequestContext) Endpoint() string                    { return rc.Tenant.Server.Endpoint(BackchannelPath) }

// IsSignedObject reports a request object with a real signature.
func (rc *RequestContext) IsSignedObject() bool {
	return rc.Object != nil && !rc.Object.IsUnsigned()
}

// ContextBuilder turns backchannel parameters into a RequestContext.
type ContextBuilder struct {
	Objects *oauth.RequestObjects
	Now     func() time.Time
}

func (b *ContextBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Build resolves the client from the credentials and, when a request
// object is present, merges its claims over the query parameters.
func (b *ContextBuilder) Build(ctx context.Context, tc *domain.TenantConfig, query oauth.Parameters, creds clientauth.Credentials) (*RequestContext, error) {
	clientID := creds.RequestedClientID()
	if clientID == "" {
		clientID = query.Get(oauth.ParamClientID)
	}
	if clientID == "" {
		return nil, unauthorized(clientauth.ErrInvalidClient)
	}
	client, err := tc.Client(clientID)
	if err != nil {
		return nil, unauthorized(err)
	}

	rc := &RequestContext{
		Tenant:       &tc.Tenant,
		ClientConfig: *client,
		Pattern:      domain.PatternNormal,
		Query:        query,
		Params:       query,
		credentials:  creds,
	}

	if query.Has(oauth.ParamRequestURI) {
		return nil, badRequest(authsdk.ErrorCodeInvalidRequest, "request_uri is not supported at the backchannel authentication endpoint")
	}
	if query.Has(oauth.ParamRequest) {
		if err := b.applyObject(ctx, rc, query.Get(oauth.ParamRequest)); err != nil {
			return nil, err
		}
	}

	req, err := b.toRequest(rc)
	if err != nil {
		return nil, err
	}
	rc.Request = req
	return rc, nil
}

func (b *ContextBuilder) applyObject(ctx context.Context, rc *RequestContext, raw string) error {
	allowUnsigned := !rc.Tenant.Server.RequireSignedRequestObject && rc.ClientConfig.BackchannelAuthRequestSigningAlg == ""
	jws, err := b.Objects.Verify(ctx, rc.Tenant, rc.ClientConfig, raw, allowUnsigned)
	if err != nil {
		if oe, ok := oauth.AsError(err); ok {
			return &Error{Kind: KindBadRequest, Code: oe.Code, Description: oe.Description, Err: oe.Err}
		}
		return serverError(err)
	}
	if alg := rc.ClientConfig.BackchannelAuthRequestSigningAlg; alg != "" && jws.Alg() != alg {
		return badRequest(authsdk.ErrorCodeInvalidRequestObject, "request object alg %s does not match registered %s", jws.Alg(), alg)
	}

	merged := make(oauth.Parameters, len(rc.Query)+len(jws.Claims))
	for k, v := range rc.Query {
		merged[k] = v
	}
	for k, v := range oauth.ParametersFromClaims(jws.Claims) {
		merged[k] = v
	}
	delete(merged, oauth.ParamRequest)

	rc.Pattern = domain.PatternRequestObject
	rc.Object = jws
	rc.Params = merged
	return nil
}

func (b *ContextBuilder) toRequest(rc *RequestContext) (domain.BackchannelAuthenticationRequest, error) {
	p := rc.Params
	now := b.now()
	server := rc.Tenant.Server

	scopes := rc.ClientConfig.FilterScopes(p.Fields(oauth.ParamScope))
	scopes = slices.DeleteFunc(scopes, func(s string) bool { return !server.SupportsScope(s) })

	profile := domain.ProfileCIBA
	if server.HasAnyFAPIAdvanceScope(scopes) {
		profile = domain.ProfileFAPICIBA
	}
	rc.Profile = profile

	req := domain.BackchannelAuthenticationRequest{
		ID:                      idx.NewAt(now).String(),
		TenantID:                rc.Tenant.ID,
		Profile:                 profile,
		Pattern:                 rc.Pattern,
		ClientID:                rc.ClientConfig.ClientID,
		DeliveryMode:            rc.ClientConfig.DeliveryMode(),
		Scopes:                  scopes,
		LoginHint:               p.Get(oauth.ParamLoginHint),
		LoginHintToken:          p.Get(ParamLoginHintToken),
		IDTokenHint:             p.Get(oauth.ParamIDTokenHint),
		ACRValues:               p.Fields(oauth.ParamACRValues),
		BindingMessage:          p.Get(ParamBindingMessage),
		UserCode:                p.Get(ParamUserCode),
		ClientNotificationToken: p.Get(ParamClientNotificationToken),
		AuthorizationDetails:    p.Get(oauth.ParamAuthorizationDetails),
		Claims:                  p.Get(oauth.ParamClaims),
		CreatedAt:               now,
	}
	if rc.Object != nil {
		req.RequestObject = rc.Object.Raw
	}

	expiresIn := server.BackchannelExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	if p.Has(ParamRequestedExpiry) {
		v, err := strconv.Atoi(p.Get(ParamRequestedExpiry))
		if err != nil || v <= 0 {
			return req, badRequest(authsdk.ErrorCodeInvalidRequest, "requested_expiry must be a positive integer")
		}
		req.RequestedExpiry = v
		expiresIn = time.Duration(v) * time.Second
	}
	req.ExpiresAt = now.Add(expiresIn)
	return req, nil
}
