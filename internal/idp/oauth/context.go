package oauth

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/idx"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

// RequestContext is an authorization request resolved against its tenant
// and client but not yet verified. It satisfies clientauth.Context so the
// pushed authorization endpoint can authenticate the client with it.
type RequestContext struct {
	Tenant       *domain.Tenant
	ClientConfig domain.ClientConfig
	Pattern      domain.RequestPattern
	Profile      domain.Profile

	// Query is what arrived at the endpoint; Params is the effective view.
	// With a request object Params holds only the object's values.
	Query  Parameters
	Params Parameters
	Object *josex.JWS

	// Pushed is set for requests arriving at or resolved from the pushed
	// authorization endpoint.
	Pushed bool

	Request domain.AuthorizationRequest

	credentials clientauth.Credentials
	endpoint    string
}

func (rc *RequestContext) Server() domain.ServerConfig         { return rc.Tenant.Server }
func (rc *RequestContext) Client() domain.ClientConfig         { return rc.ClientConfig }
func (rc *RequestContext) Credentials() clientauth.Credentials { return rc.credentials }
func (rc *RequestContext) Endpoint() string                    { return rc.endpoint }

// HasRedirectURI reports whether redirect_uri was sent.
func (rc *RequestContext) HasRedirectURI() bool {
	return rc.Params.Has(ParamRedirectURI)
}

// RedirectURI is the redirect target: the requested one, or the single
// registered one.
func (rc *RequestContext) RedirectURI() string {
	if rc.HasRedirectURI() {
		return rc.Params.Get(ParamRedirectURI)
	}
	if len(rc.ClientConfig.RedirectURIs) == 1 {
		return rc.ClientConfig.RedirectURIs[0]
	}
	return ""
}

// IsSignedObject reports a request object with a real signature.
func (rc *RequestContext) IsSignedObject() bool {
	return rc.Object != nil && !rc.Object.IsUnsigned()
}

// ContextBuilder turns raw parameters into a RequestContext.
type ContextBuilder struct {
	Objects *RequestObjects
	URIs    *RequestURIFetcher
	Store   store.Store
	Now     func() time.Time
}

func (b *ContextBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Build resolves query into a RequestContext. A request object, by value
// or by reference, is authoritative: the query contributes only client_id.
func (b *ContextBuilder) Build(ctx context.Context, tc *domain.TenantConfig, query Parameters) (*RequestContext, error) {
	clientID := query.Get(ParamClientID)
	if clientID == "" {
		return nil, badRequest(authsdk.ErrorCodeInvalidRequest, "client_id is required")
	}
	client, err := tc.Client(clientID)
	if err != nil {
		return nil, badRequest(authsdk.ErrorCodeInvalidRequest, "client %s is not registered", clientID)
	}

	rc := &RequestContext{
		Tenant:       &tc.Tenant,
		ClientConfig: *client,
		Pattern:      DetectPattern(query),
		Query:        query,
		Params:       query,
	}

	switch rc.Pattern {
	case domain.PatternRequestObject:
		if err := b.applyObject(ctx, rc, query.Get(ParamRequest)); err != nil {
			return nil, err
		}
	case domain.PatternRequestURI:
		if b.URIs == nil {
			return nil, badRequest(authsdk.ErrorCodeRequestURINotSupported, "request_uri is not supported")
		}
		raw, err := b.URIs.Fetch(ctx, query.Get(ParamRequestURI))
		if err != nil {
			return nil, &Error{Kind: KindBadRequest, Code: authsdk.ErrorCodeInvalidRequestURI, Description: "request_uri cannot be retrieved", Err: err}
		}
		if err := b.applyObject(ctx, rc, raw); err != nil {
			return nil, err
		}
	case domain.PatternPushed:
		return b.resolvePushed(ctx, rc)
	}

	req, err := b.toRequest(rc)
	if err != nil {
		return nil, err
	}
	rc.Request = req
	rc.Profile = DetectProfile(rc.Tenant.Server, req.Scopes)
	rc.Request.Profile = rc.Profile
	return rc, nil
}

// BuildPushed resolves a pushed authorization request body. creds carry
// the client authentication material of the push.
func (b *ContextBuilder) BuildPushed(ctx context.Context, tc *domain.TenantConfig, body Parameters, creds clientauth.Credentials) (*RequestContext, error) {
	if body.Has(ParamRequestURI) {
		return nil, badRequest(authsdk.ErrorCodeInvalidRequest, "request_uri is not allowed at the pushed authorization endpoint")
	}
	if !body.Has(ParamClientID) {
		if id := creds.RequestedClientID(); id != "" {
			body = cloneWith(body, ParamClientID, id)
		}
	}
	rc, err := b.Build(ctx, tc, body)
	if err != nil {
		return nil, err
	}
	rc.Pushed = true
	rc.credentials = creds
	rc.endpoint = tc.Tenant.Server.Endpoint(tc.Tenant.Server.PARPath)
	return rc, nil
}

func cloneWith(p Parameters, name, value string) Parameters {
	out := make(Parameters, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[name] = value
	return out
}

func (b *ContextBuilder) applyObject(ctx context.Context, rc *RequestContext, raw string) error {
	allowUnsigned := !rc.Tenant.Server.RequireSignedRequestObject
	jws, err := b.Objects.Verify(ctx, rc.Tenant, rc.ClientConfig, raw, allowUnsigned)
	if err != nil {
		return err
	}
	params := ParametersFromClaims(jws.Claims)
	if !params.Has(ParamClientID) {
		params[ParamClientID] = rc.ClientConfig.ClientID
	}
	rc.Object = jws
	rc.Params = params
	return nil
}

func (b *ContextBuilder) resolvePushed(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
	id := strings.TrimPrefix(rc.Query.Get(ParamRequestURI), domain.PushedRequestURIPrefix)
	if !isPushedID(id) {
		return nil, badRequest(authsdk.ErrorCodeInvalidRequestURI, "request_uri is unknown or already used")
	}
	req, err := b.Store.AuthorizationRequests().Consume(ctx, rc.Tenant.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, badRequest(authsdk.ErrorCodeInvalidRequestURI, "request_uri is unknown or already used")
		}
		return nil, serverError(err)
	}
	if !isPushedID(req.ID) || req.ClientID != rc.ClientConfig.ClientID {
		return nil, badRequest(authsdk.ErrorCodeInvalidRequestURI, "request_uri was not issued to this client")
	}
	now := b.now()
	if req.IsExpired(now) {
		return nil, badRequest(authsdk.ErrorCodeInvalidRequestURI, "request_uri is expired")
	}

	rc.Pushed = true
	rc.Profile = req.Profile
	rc.Params = requestParameters(req)
	if req.RequestObject != "" {
		if rc.Object, err = josex.Peek(req.RequestObject); err != nil {
			return nil, serverError(err)
		}
	}
	req.ID = idx.NewAt(now).String()
	req.CreatedAt = now
	req.ExpiresAt = now.Add(rc.Tenant.Server.AuthorizationRequestTTL)
	rc.Request = req
	return rc, nil
}

// toRequest copies the effective parameters into an AuthorizationRequest.
func (b *ContextBuilder) toRequest(rc *RequestContext) (domain.AuthorizationRequest, error) {
	p := rc.Params
	now := b.now()
	req := domain.AuthorizationRequest{
		ID:                   idx.NewAt(now).String(),
		TenantID:             rc.Tenant.ID,
		Pattern:              rc.Pattern,
		ClientID:             rc.ClientConfig.ClientID,
		Scopes:               grantableScopes(rc, p.Fields(ParamScope)),
		ResponseType:         domain.ParseResponseType(p.Get(ParamResponseType)),
		ResponseMode:         domain.ResponseMode(p.Get(ParamResponseMode)),
		RedirectURI:          rc.RedirectURI(),
		State:                p.Get(ParamState),
		Nonce:                p.Get(ParamNonce),
		Prompts:              p.Fields(ParamPrompt),
		ACRValues:            p.Fields(ParamACRValues),
		Display:              p.Get(ParamDisplay),
		UILocales:            p.Get(ParamUILocales),
		LoginHint:            p.Get(ParamLoginHint),
		IDTokenHint:          p.Get(ParamIDTokenHint),
		Claims:               p.Get(ParamClaims),
		AuthorizationDetails: p.Get(ParamAuthorizationDetails),
		CodeChallenge:        p.Get(ParamCodeChallenge),
		CodeChallengeMethod:  p.Get(ParamCodeChallengeMethod),
		CreatedAt:            now,
		ExpiresAt:            now.Add(rc.Tenant.Server.AuthorizationRequestTTL),
	}
	if rc.Object != nil {
		req.RequestObject = rc.Object.Raw
	}
	if p.Has(ParamMaxAge) {
		maxAge, err := strconv.Atoi(p.Get(ParamMaxAge))
		if err != nil || maxAge < 0 {
			return req, badRequest(authsdk.ErrorCodeInvalidRequest, "max_age must be a non-negative integer")
		}
		req.MaxAge = &maxAge
	}
	return req, nil
}

// grantableScopes keeps the requested scopes both the client is registered
// for and the server supports.
func grantableScopes(rc *RequestContext, requested []string) []string {
	out := rc.ClientConfig.FilterScopes(requested)
	return slices.DeleteFunc(out, func(s string) bool { return !rc.Tenant.Server.SupportsScope(s) })
}

// requestParameters rebuilds the parameter view of a stored request, so a
// pushed request is verified by the same rules as a fresh one.
func requestParameters(req domain.AuthorizationRequest) Parameters {
	p := Parameters{
		ParamClientID:             req.ClientID,
		ParamScope:                strings.Join(req.Scopes, " "),
		ParamResponseType:         string(req.ResponseType),
		ParamResponseMode:         string(req.ResponseMode),
		ParamRedirectURI:          req.RedirectURI,
		ParamState:                req.State,
		ParamNonce:                req.Nonce,
		ParamPrompt:               strings.Join(req.Prompts, " "),
		ParamACRValues:            strings.Join(req.ACRValues, " "),
		ParamDisplay:              req.Display,
		ParamUILocales:            req.UILocales,
		ParamLoginHint:            req.LoginHint,
		ParamIDTokenHint:          req.IDTokenHint,
		ParamClaims:               req.Claims,
		ParamAuthorizationDetails: req.AuthorizationDetails,
		ParamCodeChallenge:        req.CodeChallenge,
		ParamCodeChallengeMethod:  req.CodeChallengeMethod,
	}
	if req.MaxAge != nil {
		p[ParamMaxAge] = strconv.Itoa(*req.MaxAge)
	}
	for k, v := range p {
		if v == "" {
			delete(p, k)
		}
	}
	return p
}

// hasFragment reports a redirect_uri carrying a fragment, or one that does
// not parse.
func hasFragment(uri string) (bool, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return false, err
	}
	return u.Fragment != "" || strings.Contains(uri, "#"), nil
}
