// Package ciba implements Client Initiated Backchannel Authentication: the
// backchannel authentication endpoint, resolution of the out-of-band
// authentication, ping and push delivery, and the token endpoint polling
// of the ciba grant.
//
// Entry points never return errors. Every failure becomes a status on the
// result so the endpoint always renders a well formed error body.
package ciba

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/claims"
	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/idx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// Status is the outcome of a CIBA entry point.
type Status string

const (
	StatusOK           Status = "OK"
	StatusBadRequest   Status = "BAD_REQUEST"
	StatusUnauthorized Status = "UNAUTHORIZE"
	StatusServerError  Status = "SERVER_ERROR"
)

func statusOf(e *Error) Status {
	switch e.Kind {
	case KindBadRequest:
		return StatusBadRequest
	case KindUnauthorized:
		return StatusUnauthorized
	default:
		return StatusServerError
	}
}

// ErrNoPolicy means no authentication policy of the tenant matches the
// request.
var ErrNoPolicy = errors.New("no authentication policy matches the request")

// Protocol is the CIBA flow engine of every tenant.
type Protocol struct {
	Builder  *ContextBuilder
	Verifier *Verifier
	Users    *UserResolver
	Clients  *clientauth.Authenticator
	Tokens   *token.Issuer
	Gateway  Gateway
	Store    store.Store
	Now      func() time.Time
}

func (p *Protocol) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// BackchannelResponse is the successful backchannel authentication
// response (CIBA Core 7.3).
type BackchannelResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int    `json:"expires_in"`
	Interval  int    `json:"interval,omitempty"`
}

// RequestResult is what the backchannel endpoint renders. On OK the
// transaction is the one the user's device must complete.
type RequestResult struct {
	Status      Status
	Response    *BackchannelResponse
	Request     *domain.BackchannelAuthenticationRequest
	Transaction *domain.AuthenticationTransaction
	Error       *Error
}

// Request handles a backchannel authentication request.
func (p *Protocol) Request(ctx context.Context, tc *domain.TenantConfig, params oauth.Parameters, creds clientauth.Credentials) (result RequestResult) {
	defer func() {
		if r := recover(); r != nil {
			result = p.requestFailure(ctx, tc, serverError(fmt.Errorf("panic: %v", r)))
		}
	}()

	rc, err := p.Builder.Build(ctx, tc, params, creds)
	if err != nil {
		return p.requestFailure(ctx, tc, err)
	}
	if err := p.Clients.Authenticate(ctx, rc); err != nil {
		return p.requestFailure(ctx, tc, unauthorized(err))
	}
	if err := p.Verifier.Verify(rc); err != nil {
		return p.requestFailure(ctx, tc, err)
	}

	target, err := p.Users.Resolve(ctx, p.Store.Users(), rc)
	if err != nil {
		return p.requestFailure(ctx, tc, err)
	}
	if !target.User.Status.CanAuthenticate() {
		return p.requestFailure(ctx, tc, badRequest(authsdk.ErrorCodeAccessDenied, "user cannot authenticate in status %s", target.User.Status))
	}
	if err := verifyUserCode(rc, &target.User); err != nil {
		return p.requestFailure(ctx, tc, err)
	}

	req := rc.Request
	policy, ok := domain.SelectPolicy(tc.Policies, domain.FlowCIBA, req.ClientID, req.ACRValues, req.Scopes)
	if !ok {
		return p.requestFailure(ctx, tc, serverError(ErrNoPolicy))
	}

	now := p.now()
	interval := tc.Tenant.Server.BackchannelInterval
	if interval <= 0 {
		interval = DefaultInterval
	}
	grant := domain.CibaGrant{
		AuthReqID: idx.NewAt(now).String(),
		RequestID: req.ID,
		TenantID:  req.TenantID,
		ClientID:  req.ClientID,
		Status:    domain.CibaGrantPending,
		Grant: domain.AuthorizationGrant{
			TenantID: req.TenantID,
			User:     target.User,
			ClientID: req.ClientID,
			Scopes:   req.Scopes,
		},
		Interval:  interval,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	built := authn.TransactionBuilder{
		TenantID:  req.TenantID,
		Flow:      domain.FlowCIBA,
		RequestID: req.ID,
		ClientID:  req.ClientID,
		User:      &target.User,
		DeviceID:  target.DeviceID,
		Context: domain.AuthenticationContext{
			Scopes:               req.Scopes,
			ACRValues:            req.ACRValues,
			BindingMessage:       req.BindingMessage,
			AuthorizationDetails: req.AuthorizationDetails,
		},
		Policy:    &policy,
		ExpiresAt: req.ExpiresAt,
	}.Build(now)
	complete, ok := built.(authn.Complete)
	if !ok {
		return p.requestFailure(ctx, tc, serverError(built.(authn.Partial).Reason))
	}
	txn := complete.Transaction

	err = p.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackchannelRequests().Create(ctx, req); err != nil {
			return err
		}
		if err := tx.CibaGrants().Create(ctx, grant); err != nil {
			return err
		}
		return tx.Transactions().Create(ctx, txn)
	})
	if err != nil {
		return p.requestFailure(ctx, tc, serverError(err))
	}

	slogx.FromContext(ctx).Info("backchannel authentication request accepted",
		slog.String("request_id", req.ID),
		slog.String("client_id", req.ClientID),
		slog.String("profile", string(req.Profile)),
		slog.String("delivery_mode", req.DeliveryMode),
		slog.String("policy", policy.ID),
	)
	return RequestResult{
		Status: StatusOK,
		Response: &BackchannelResponse{
			AuthReqID: grant.AuthReqID,
			ExpiresIn: int(req.ExpiresAt.Sub(req.CreatedAt) / time.Second),
			Interval:  int(interval / time.Second),
		},
		Request:     &req,
		Transaction: &txn,
	}
}

func (p *Protocol) requestFailure(ctx context.Context, tc *domain.TenantConfig, err error) RequestResult {
	e := asError(err)
	log := slogx.FromContext(ctx).With(
		slog.String("tenant", tc.Tenant.ID),
		slog.String("error", e.Code),
		slog.String("error_description", e.Description),
	)
	if e.Err != nil {
		log = log.With(slog.Any("err", e.Err))
	}
	if e.Kind == KindServerError {
		log.Error("backchannel authentication request failed")
	} else {
		log.Warn("backchannel authentication request rejected")
	}
	return RequestResult{Status: statusOf(e), Error: e}
}

// verifyUserCode checks user_code against the code the user registered
// as the user_code custom property.
func verifyUserCode(rc *RequestContext, user *domain.User) error {
	if !rc.Tenant.Server.BackchannelUserCodeSupported || !rc.ClientConfig.BackchannelUserCodeParameter {
		return nil
	}
	want, _ := user.CustomProperties[ParamUserCode].(string)
	if want == "" || !cryptox.EqualSecret(want, rc.Request.UserCode) {
		return badRequest(authsdk.ErrorCodeInvalidUserCode, "user_code is invalid")
	}
	return nil
}

// Get returns a stored backchannel request.
func (p *Protocol) Get(ctx context.Context, tenantID, requestID string) (domain.BackchannelAuthenticationRequest, error) {
	return p.Store.BackchannelRequests().Get(ctx, tenantID, requestID)
}

// Result is the outcome of Authorize and Deny.
type Result struct {
	Status Status
	Error  *Error
}

func failed(err error) Result {
	e := asError(err)
	return Result{Status: statusOf(e), Error: e}
}

// AuthorizeInput is the evidence of a completed out-of-band
// authentication.
type AuthorizeInput struct {
	RequestID      string
	Authentication domain.Authentication
	// DeniedScopes are removed from the granted scopes.
	DeniedScopes     []string
	CustomProperties map[string]any
}

// Authorize resolves a pending request as approved and notifies ping and
// push clients. Push clients receive their tokens here.
func (p *Protocol) Authorize(ctx context.Context, tc *domain.TenantConfig, in AuthorizeInput) Result {
	log := slogx.FromContext(ctx)
	now := p.now()

	req, g, client, err := p.pending(ctx, tc, in.RequestID)
	if err != nil {
		return failed(err)
	}

	scopes := slices.DeleteFunc(slices.Clone(req.Scopes), func(s string) bool { return slices.Contains(in.DeniedScopes, s) })
	claimsReq := claims.MustParseRequest(req.Claims)
	server := tc.Tenant.Server
	g.Grant = domain.AuthorizationGrant{
		TenantID:             req.TenantID,
		User:                 g.Grant.User,
		Authentication:       in.Authentication,
		ClientID:             client.ClientID,
		Scopes:               scopes,
		IDTokenClaims:        claims.GrantIDTokenClaims(server, scopes, domain.ResponseTypeCode, claimsReq),
		UserinfoClaims:       claims.GrantUserinfoClaims(server, scopes, claimsReq),
		ClaimsRequest:        req.Claims,
		AuthorizationDetails: req.AuthorizationDetails,
		Consent:              domain.ConsentClaimsFor(*client, now),
		CustomProperties:     in.CustomProperties,
	}
	g.Status = domain.CibaGrantAuthorized
	g.UpdatedAt = now

	var pushed *TokenResponse
	err = p.Store.WithTx(ctx, func(tx store.Tx) error {
		if req.DeliveryMode == domain.DeliveryModePush {
			tr, err := p.issueTokens(ctx, tx, &tc.Tenant, *client, g, "")
			if err != nil {
				return err
			}
			pushed = tr
			g.Status = domain.CibaGrantConsumed
		}
		return updateGrant(ctx, tx, g, domain.CibaGrantPending)
	})
	if err != nil {
		return failed(err)
	}

	switch req.DeliveryMode {
	case domain.DeliveryModePing:
		p.notify(ctx, pingNotification(client.BackchannelClientNotificationEndpoint, req.ClientNotificationToken, g.AuthReqID))
	case domain.DeliveryModePush:
		p.notify(ctx, pushNotification(client.BackchannelClientNotificationEndpoint, req.ClientNotificationToken, g.AuthReqID, pushed))
	}
	log.Info("backchannel authentication authorized",
		slog.String("request_id", req.ID),
		slog.String("client_id", req.ClientID),
		slog.String("delivery_mode", req.DeliveryMode),
	)
	return Result{Status: StatusOK}
}

// Deny resolves a pending request as denied. Ping clients learn it on
// their next poll; push clients receive the error.
func (p *Protocol) Deny(ctx context.Context, tc *domain.TenantConfig, requestID string) Result {
	req, g, client, err := p.pending(ctx, tc, requestID)
	if err != nil {
		return failed(err)
	}
	g.Status = domain.CibaGrantDenied
	g.UpdatedAt = p.now()
	if err := updateGrant(ctx, p.Store, g, domain.CibaGrantPending); err != nil {
		return failed(err)
	}

	const description = "the end user denied the authorization request"
	switch req.DeliveryMode {
	case domain.DeliveryModePing:
		p.notify(ctx, pingNotification(client.BackchannelClientNotificationEndpoint, req.ClientNotificationToken, g.AuthReqID))
	case domain.DeliveryModePush:
		p.notify(ctx, pushErrorNotification(client.BackchannelClientNotificationEndpoint, req.ClientNotificationToken, g.AuthReqID, authsdk.ErrorCodeAccessDenied, description))
	}
	slogx.FromContext(ctx).Info("backchannel authentication denied",
		slog.String("request_id", req.ID),
		slog.String("client_id", req.ClientID),
	)
	return Result{Status: StatusOK}
}

// pending loads a request still waiting for the user.
func (p *Protocol) pending(ctx context.Context, tc *domain.TenantConfig, requestID string) (domain.BackchannelAuthenticationRequest, domain.CibaGrant, *domain.ClientConfig, error) {
	var (
		req domain.BackchannelAuthenticationRequest
		g   domain.CibaGrant
	)
	req, err := p.Store.BackchannelRequests().Get(ctx, tc.Tenant.ID, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return req, g, nil, badRequest(authsdk.ErrorCodeInvalidRequest, "backchannel authentication request is not found")
	}
	if err != nil {
		return req, g, nil, serverError(err)
	}
	if req.IsExpired(p.now()) {
		return req, g, nil, badRequest(authsdk.ErrorCodeExpiredToken, "backchannel authentication request is expired")
	}
	client, err := tc.Client(req.ClientID)
	if err != nil {
		return req, g, nil, serverError(err)
	}
	g, err = p.Store.CibaGrants().GetByRequestID(ctx, tc.Tenant.ID, req.ID)
	if errors.Is(err, store.ErrNotFound) {
		return req, g, nil, badRequest(authsdk.ErrorCodeInvalidRequest, "ciba grant is not found")
	}
	if err != nil {
		return req, g, nil, serverError(err)
	}
	if g.Status != domain.CibaGrantPending {
		return req, g, nil, badRequest(authsdk.ErrorCodeInvalidRequest, "backchannel authentication request is already %s", g.Status)
	}
	return req, g, client, nil
}

// updateGrant writes g if no one resolved it concurrently.
func updateGrant(ctx context.Context, s store.Store, g domain.CibaGrant, expected domain.CibaGrantStatus) error {
	err := s.CibaGrants().Update(ctx, g, expected)
	switch {
	case errors.Is(err, store.ErrConflict):
		return badRequest(authsdk.ErrorCodeInvalidRequest, "backchannel authentication request was resolved concurrently")
	case err != nil:
		return serverError(err)
	}
	return nil
}

// notify delivers n. Failures are logged only: the grant is already
// resolved and a ping client can still poll.
func (p *Protocol) notify(ctx context.Context, n Notification) {
	if p.Gateway == nil || n.Endpoint == "" {
		return
	}
	if err := p.Gateway.Notify(ctx, n); err != nil {
		slogx.FromContext(ctx).Error("client notification failed",
			slog.String("endpoint", n.Endpoint),
			slog.Any("err", err),
		)
	}
}
