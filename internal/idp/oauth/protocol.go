// Package oauth implements the OAuth 2.0 / OpenID Connect authorization
// endpoint: request context building, profile verification, automatic
// reauthorization for prompt=none, the grant issuer, pushed authorization
// requests and deny.
//
// Every entry point takes the tenant explicitly and returns a typed result
// with a status; errors never escape as raw Go errors.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// RequestStatus is the outcome of an authorization request.
type RequestStatus string

const (
	RequestOK                     RequestStatus = "OK"
	RequestOKSessionEnable        RequestStatus = "OK_SESSION_ENABLE"
	RequestOKAccountCreation      RequestStatus = "OK_ACCOUNT_CREATION"
	RequestNoInteractionOK        RequestStatus = "NO_INTERACTION_OK"
	RequestBadRequest             RequestStatus = "BAD_REQUEST"
	RequestRedirectableBadRequest RequestStatus = "REDIRECABLE_BAD_REQUEST"
	RequestServerError            RequestStatus = "SERVER_ERROR"
)

// ResultStatus is the outcome of push, authorize and deny.
type ResultStatus string

const (
	StatusOK           ResultStatus = "OK"
	StatusBadRequest   ResultStatus = "BAD_REQUEST"
	StatusUnauthorized ResultStatus = "UNAUTHORIZED"
	StatusServerError  ResultStatus = "SERVER_ERROR"
)

// Protocol is the authorization endpoint of every tenant.
type Protocol struct {
	Builder  *ContextBuilder
	Verifier *Verifier
	Issuer   *GrantIssuer
	Clients  *clientauth.Authenticator
	Store    store.Store
	Sessions store.Sessions
	Now      func() time.Time
}

func (p *Protocol) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// RequestResult is what the authorization endpoint renders. For OK
// statuses Request is the stored request the interaction UI works on; for
// NO_INTERACTION_OK and REDIRECABLE_BAD_REQUEST Response is the redirect.
type RequestResult struct {
	Status   RequestStatus
	Request  *domain.AuthorizationRequest
	Client   *domain.ClientConfig
	Session  *domain.OAuthSession
	Response *Response
	Error    *Error
}

// Request handles an authorization request. browserID identifies the
// user agent's session cookie and may be empty.
func (p *Protocol) Request(ctx context.Context, tc *domain.TenantConfig, params Parameters, browserID string) RequestResult {
	log := slogx.FromContext(ctx)

	rc, err := p.Builder.Build(ctx, tc, params)
	if err != nil {
		return p.requestFailure(ctx, nil, err)
	}
	if err := p.Verifier.Verify(rc); err != nil {
		return p.requestFailure(ctx, rc, err)
	}

	req := &rc.Request
	session, err := p.findSession(ctx, tc, rc.ClientConfig.ClientID, browserID)
	if err != nil {
		return p.requestFailure(ctx, rc, serverError(err))
	}

	if req.HasPrompt(domain.PromptNone) {
		return p.requestWithoutInteraction(ctx, rc, session)
	}

	if err := p.Store.AuthorizationRequests().Create(ctx, *req); err != nil {
		return p.requestFailure(ctx, rc, serverError(err))
	}
	log.Debug("authorization request accepted",
		slog.String("request_id", req.ID),
		slog.String("client_id", req.ClientID),
		slog.String("profile", string(req.Profile)),
		slog.String("pattern", string(req.Pattern)),
	)

	result := RequestResult{Status: RequestOK, Request: req, Client: &rc.ClientConfig}
	switch {
	case req.HasPrompt(domain.PromptCreate):
		result.Status = RequestOKAccountCreation
	case session.IsValid(p.now(), req):
		result.Status = RequestOKSessionEnable
		result.Session = session
	}
	return result
}

// requestWithoutInteraction answers prompt=none from the session and the
// existing grant alone.
func (p *Protocol) requestWithoutInteraction(ctx context.Context, rc *RequestContext, session *domain.OAuthSession) RequestResult {
	check := Reauthorization{
		Now:     p.now(),
		Server:  rc.Tenant.Server,
		Client:  rc.ClientConfig,
		Request: &rc.Request,
		Session: session,
	}
	if session.Exists() {
		granted, err := p.Store.AuthorizationGranted().Find(ctx, rc.Tenant.ID, rc.ClientConfig.ClientID, session.User.Sub)
		switch {
		case err == nil:
			check.Granted = &granted
		case !errors.Is(err, store.ErrNotFound):
			return p.requestFailure(ctx, rc, serverError(err))
		}
	}
	if e := check.Decide(); e != nil {
		return p.requestFailure(ctx, rc, e)
	}

	grant := NewGrant(rc.Tenant.Server, rc.ClientConfig, &rc.Request, session.User, session.Authentication, nil, p.now())
	var resp *Response
	err := p.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		resp, err = p.Issuer.Issue(ctx, tx, rc.Tenant, rc.ClientConfig, &rc.Request, grant)
		return err
	})
	if err != nil {
		return p.requestFailure(ctx, rc, serverError(err))
	}
	return RequestResult{Status: RequestNoInteractionOK, Request: &rc.Request, Client: &rc.ClientConfig, Session: session, Response: resp}
}

func (p *Protocol) findSession(ctx context.Context, tc *domain.TenantConfig, clientID, browserID string) (*domain.OAuthSession, error) {
	if browserID == "" || p.Sessions == nil {
		return &domain.OAuthSession{}, nil
	}
	key := domain.SessionKey{BrowserID: browserID, TokenIssuer: tc.Tenant.Server.Issuer, ClientID: clientID}
	s, err := store.FindOrInitialize(ctx, p.Sessions, tc.Tenant.ID, key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// requestFailure converts err into a result. Redirectable errors become a
// redirect to the client; everything else is rendered to the user agent.
func (p *Protocol) requestFailure(ctx context.Context, rc *RequestContext, err error) RequestResult {
	log := slogx.FromContext(ctx)
	e, ok := AsError(err)
	if !ok {
		e = serverError(err)
	}

	switch {
	case e.Kind == KindUnSupported:
		log.Error("authorization request failed", slog.String("error", e.Error()))
		return RequestResult{Status: RequestServerError, Error: e}
	case e.Redirectable() && rc != nil && rc.RedirectURI() != "":
		log.Info("authorization request rejected", slog.String("error", e.Code), slog.String("description", e.Description))
		resp, rerr := p.errorResponse(ctx, rc, e)
		if rerr != nil {
			log.Error("authorization error response failed", slog.String("error", rerr.Error()))
			return RequestResult{Status: RequestServerError, Error: serverError(rerr)}
		}
		return RequestResult{Status: RequestRedirectableBadRequest, Client: &rc.ClientConfig, Response: resp, Error: e}
	default:
		log.Info("authorization request rejected", slog.String("error", e.Code), slog.String("description", e.Description))
		return RequestResult{Status: RequestBadRequest, Error: e}
	}
}

func (p *Protocol) errorResponse(ctx context.Context, rc *RequestContext, e *Error) (*Response, error) {
	mode := domain.ResponseMode(rc.Params.Get(ParamResponseMode))
	if !isKnownMode(mode) {
		mode = domain.ResponseModeDefault
	}
	mode = responseMode(rc.Profile, rc.Request.ResponseType, mode)
	if mode.IsJWT() && rc.ClientConfig.AuthorizationSignedResponseAlg == "" {
		mode = domain.ResponseModeDefault.Resolve(rc.Request.ResponseType)
	}
	return newResponse(ctx, p.Issuer.Tokens, rc.Tenant, rc.ClientConfig, rc.RedirectURI(), mode, errorParams(e, rc.Params.Get(ParamState)))
}

func isKnownMode(mode domain.ResponseMode) bool {
	return mode == domain.ResponseModeDefault || slices.Contains(knownResponseModes, mode)
}

// PushResult is the pushed authorization response (RFC 9126).
type PushResult struct {
	Status     ResultStatus
	RequestURI string
	ExpiresIn  int64
	Error      *Error
}

// Push authenticates the client, verifies the request like the
// authorization endpoint would and stores it for a single later use.
func (p *Protocol) Push(ctx context.Context, tc *domain.TenantConfig, body Parameters, creds clientauth.Credentials) PushResult {
	log := slogx.FromContext(ctx)

	rc, err := p.Builder.BuildPushed(ctx, tc, body, creds)
	if err != nil {
		return pushFailure(ctx, err)
	}
	if err := p.Clients.Authenticate(ctx, rc); err != nil {
		log.Info("pushed request client authentication failed", slog.String("client_id", rc.ClientConfig.ClientID), slog.String("error", err.Error()))
		return PushResult{Status: StatusUnauthorized, Error: &Error{Kind: KindUnauthorized, Code: authsdk.ErrorCodeInvalidClient, Description: "client authentication failed", Err: err}}
	}
	if err := p.Verifier.Verify(rc); err != nil {
		return pushFailure(ctx, err)
	}

	now := p.now()
	ttl := tc.Tenant.Server.PushedRequestTTL
	req := rc.Request
	req.ID = pushedIDPrefix + req.ID
	req.Pattern = domain.PatternPushed
	req.ExpiresAt = now.Add(ttl)
	if err := p.Store.AuthorizationRequests().Create(ctx, req); err != nil {
		return pushFailure(ctx, serverError(err))
	}
	return PushResult{
		Status:     StatusOK,
		RequestURI: domain.PushedRequestURIPrefix + req.ID,
		ExpiresIn:  int64(ttl / time.Second),
	}
}

// pushedIDPrefix marks stored pushed requests. They are only usable
// through request_uri at the authorization endpoint.
const pushedIDPrefix = "par_"

func isPushedID(id string) bool {
	return strings.HasPrefix(id, pushedIDPrefix)
}

func pushFailure(ctx context.Context, err error) PushResult {
	e, ok := AsError(err)
	if !ok {
		e = serverError(err)
	}
	if e.Kind == KindUnSupported {
		slogx.FromContext(ctx).Error("pushed authorization request failed", slog.String("error", e.Error()))
		return PushResult{Status: StatusServerError, Error: e}
	}
	return PushResult{Status: StatusBadRequest, Error: e}
}

// AuthorizeInput is the outcome of the user's interaction.
type AuthorizeInput struct {
	RequestID        string
	User             domain.User
	Authentication   domain.Authentication
	CustomProperties map[string]any
	// BrowserID, when set, registers the authentication as an OAuthSession
	// of this user agent.
	BrowserID string
}

// AuthorizeResult carries the redirect on success.
type AuthorizeResult struct {
	Status   ResultStatus
	Response *Response
	Error    *Error
}

// Authorize consumes the stored request and issues the grant. A request
// can be authorized once; a concurrent second call fails with
// invalid_request.
func (p *Protocol) Authorize(ctx context.Context, tc *domain.TenantConfig, in AuthorizeInput) AuthorizeResult {
	if !in.User.Exists() {
		return authorizeFailure(ctx, badRequest(authsdk.ErrorCodeInvalidRequest, "user is not authenticated"))
	}
	if !in.User.Status.CanAuthenticate() {
		return authorizeFailure(ctx, badRequest(authsdk.ErrorCodeAccessDenied, "user status %s cannot authorize", in.User.Status))
	}

	now := p.now()
	var (
		resp   *Response
		client *domain.ClientConfig
	)
	err := p.Store.WithTx(ctx, func(tx store.Tx) error {
		req, err := p.consume(ctx, tx, tc, in.RequestID, now)
		if err != nil {
			return err
		}
		if client, err = tc.Client(req.ClientID); err != nil {
			return badRequest(authsdk.ErrorCodeInvalidRequest, "client %s is not registered", req.ClientID)
		}
		grant := NewGrant(tc.Tenant.Server, *client, &req, in.User, in.Authentication, in.CustomProperties, now)
		resp, err = p.Issuer.Issue(ctx, tx, &tc.Tenant, *client, &req, grant)
		return err
	})
	if err != nil {
		return authorizeFailure(ctx, err)
	}

	if in.BrowserID != "" && p.Sessions != nil {
		p.registerSession(ctx, tc, client.ClientID, in, now)
	}
	return AuthorizeResult{Status: StatusOK, Response: resp}
}

// AuthorizeWithSession authorizes from the user agent's existing session,
// for example when the user confirms a consent screen.
func (p *Protocol) AuthorizeWithSession(ctx context.Context, tc *domain.TenantConfig, requestID, browserID string) AuthorizeResult {
	req, err := p.Store.AuthorizationRequests().Get(ctx, tc.Tenant.ID, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authorizeFailure(ctx, badRequest(authsdk.ErrorCodeInvalidRequest, "authorization request is unknown or already used"))
		}
		return authorizeFailure(ctx, serverError(err))
	}
	session, err := p.findSession(ctx, tc, req.ClientID, browserID)
	if err != nil {
		return authorizeFailure(ctx, serverError(err))
	}
	if !session.IsValid(p.now(), &req) {
		return authorizeFailure(ctx, badRequest(authsdk.ErrorCodeLoginRequired, "session is not valid for this request"))
	}
	return p.Authorize(ctx, tc, AuthorizeInput{
		RequestID:      requestID,
		User:           session.User,
		Authentication: session.Authentication,
	})
}

// Deny resolves the request into an access_denied redirect.
func (p *Protocol) Deny(ctx context.Context, tc *domain.TenantConfig, requestID string) AuthorizeResult {
	req, err := p.consume(ctx, p.Store, tc, requestID, p.now())
	if err != nil {
		return authorizeFailure(ctx, err)
	}
	client, err := tc.Client(req.ClientID)
	if err != nil {
		return authorizeFailure(ctx, badRequest(authsdk.ErrorCodeInvalidRequest, "client %s is not registered", req.ClientID))
	}

	denied := &Error{Code: authsdk.ErrorCodeAccessDenied, Description: "the resource owner denied the request"}
	mode := responseMode(req.Profile, req.ResponseType, req.ResponseMode)
	resp, err := newResponse(ctx, p.Issuer.Tokens, &tc.Tenant, *client, req.RedirectURI, mode, errorParams(denied, req.State))
	if err != nil {
		return authorizeFailure(ctx, serverError(err))
	}
	return AuthorizeResult{Status: StatusOK, Response: resp}
}

func (p *Protocol) consume(ctx context.Context, s store.Store, tc *domain.TenantConfig, requestID string, now time.Time) (domain.AuthorizationRequest, error) {
	if isPushedID(requestID) {
		return domain.AuthorizationRequest{}, badRequest(authsdk.ErrorCodeInvalidRequest, "pushed request must be resolved through the authorization endpoint")
	}
	req, err := s.AuthorizationRequests().Consume(ctx, tc.Tenant.ID, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return req, badRequest(authsdk.ErrorCodeInvalidRequest, "authorization request is unknown or already used")
		}
		return req, serverError(err)
	}
	if req.IsExpired(now) {
		return req, badRequest(authsdk.ErrorCodeInvalidRequest, "authorization request is expired")
	}
	return req, nil
}

func (p *Protocol) registerSession(ctx context.Context, tc *domain.TenantConfig, clientID string, in AuthorizeInput, now time.Time) {
	key := domain.SessionKey{BrowserID: in.BrowserID, TokenIssuer: tc.Tenant.Server.Issuer, ClientID: clientID}
	session := domain.OAuthSession{
		Key:            key,
		SessionID:      in.BrowserID,
		User:           in.User,
		Authentication: in.Authentication,
		CreatedAt:      now,
		ExpiresAt:      now.Add(tc.Tenant.Server.SessionTTL),
	}
	existing, err := p.Sessions.Find(ctx, tc.Tenant.ID, key)
	switch {
	case err == nil && existing.User.Sub == in.User.Sub:
		session.CreatedAt = existing.CreatedAt
		err = p.Sessions.Update(ctx, tc.Tenant.ID, session)
	case err == nil:
		if err = p.Sessions.Delete(ctx, tc.Tenant.ID, key); err == nil {
			err = p.Sessions.Register(ctx, tc.Tenant.ID, session)
		}
	case errors.Is(err, store.ErrNotFound):
		err = p.Sessions.Register(ctx, tc.Tenant.ID, session)
	}
	if err != nil {
		slogx.FromContext(ctx).Warn("session registration failed", slog.String("client_id", clientID), slog.String("error", err.Error()))
	}
}

func authorizeFailure(ctx context.Context, err error) AuthorizeResult {
	e, ok := AsError(err)
	if !ok {
		e = serverError(err)
	}
	if e.Kind == KindUnSupported {
		slogx.FromContext(ctx).Error("authorize failed", slog.String("error", e.Error()))
		return AuthorizeResult{Status: StatusServerError, Error: e}
	}
	return AuthorizeResult{Status: StatusBadRequest, Error: e}
}
