package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/metrics"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// OAuthFlow is the browser based authorization flow of every tenant.
type OAuthFlow struct {
	Catalog  *domain.Catalog
	Protocol *oauth.Protocol
	Authn    *authn.Engine
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (f *OAuthFlow) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// OAuthRequestResult is the authorization request outcome plus the
// transaction the user must complete for interactive statuses.
type OAuthRequestResult struct {
	oauth.RequestResult
	Transaction *domain.AuthenticationTransaction
	// AuthSession is set when a new AUTH_SESSION was issued and must be
	// written as a cookie.
	AuthSession string
}

func interactive(s oauth.RequestStatus) bool {
	switch s {
	case oauth.RequestOK, oauth.RequestOKSessionEnable, oauth.RequestOKAccountCreation:
		return true
	default:
		return false
	}
}

// Request handles the authorization endpoint. authSession is the presented
// AUTH_SESSION cookie and may be empty.
func (f *OAuthFlow) Request(ctx context.Context, tenantID string, params oauth.Parameters, authSession string) (OAuthRequestResult, error) {
	tc, err := resolveTenant(f.Catalog, tenantID)
	if err != nil {
		return OAuthRequestResult{}, err
	}
	ctx = slogx.WithTenant(ctx, tc.Tenant.ID)

	res := f.Protocol.Request(ctx, tc, params, browserID(authSession))
	out := OAuthRequestResult{RequestResult: res}
	if interactive(res.Status) {
		out = f.begin(ctx, tc, res, authSession)
	}
	f.Metrics.AuthorizationRequest(tc.Tenant.ID, "authorize", string(out.Status))
	return out, nil
}

// begin binds a new authentication transaction to the request and to the
// user agent's AUTH_SESSION.
func (f *OAuthFlow) begin(ctx context.Context, tc *domain.TenantConfig, res oauth.RequestResult, authSession string) OAuthRequestResult {
	out := OAuthRequestResult{RequestResult: res}
	req := res.Request

	if authSession == "" {
		fresh, err := authn.NewAuthSession()
		if err != nil {
			return oauthServerFailure(ctx, err)
		}
		authSession = fresh
		out.AuthSession = fresh
	}

	policy, ok := domain.SelectPolicy(tc.Policies, domain.FlowOAuth, req.ClientID, req.ACRValues, req.Scopes)
	if !ok {
		return oauthServerFailure(ctx, errNoOAuthPolicy)
	}
	txn, err := f.Authn.Create(ctx, authn.TransactionBuilder{
		TenantID:  tc.Tenant.ID,
		Flow:      domain.FlowOAuth,
		RequestID: req.ID,
		ClientID:  req.ClientID,
		Context: domain.AuthenticationContext{
			Scopes:               req.Scopes,
			ACRValues:            req.ACRValues,
			AuthorizationDetails: req.AuthorizationDetails,
		},
		Policy:      &policy,
		AuthSession: authSession,
		ExpiresAt:   req.ExpiresAt,
	}.Build(f.now()))
	if err != nil {
		return oauthServerFailure(ctx, err)
	}
	out.Transaction = &txn
	return out
}

var errNoOAuthPolicy = errors.New("no authentication policy matches the authorization request")

func oauthServerFailure(ctx context.Context, err error) OAuthRequestResult {
	slogx.FromContext(ctx).Error("authorization request failed", slog.Any("err", err))
	return OAuthRequestResult{RequestResult: oauth.RequestResult{
		Status: oauth.RequestServerError,
		Error: &oauth.Error{
			Kind:        oauth.KindUnSupported,
			Code:        authsdk.ErrorCodeServerError,
			Description: "unexpected server error",
			Err:         err,
		},
	}}
}

// Push handles the pushed authorization request endpoint.
func (f *OAuthFlow) Push(ctx context.Context, tenantID string, body oauth.Parameters, creds clientauth.Credentials) (oauth.PushResult, error) {
	tc, err := resolveTenant(f.Catalog, tenantID)
	if err != nil {
		return oauth.PushResult{}, err
	}
	res := f.Protocol.Push(slogx.WithTenant(ctx, tc.Tenant.ID), tc, body, creds)
	f.Metrics.AuthorizationRequest(tc.Tenant.ID, "par", string(res.Status))
	return res, nil
}

// Transaction returns the transaction of a request for the interaction
// UI. The AUTH_SESSION must match.
func (f *OAuthFlow) Transaction(ctx context.Context, tenantID, requestID, authSession string) (domain.AuthenticationTransaction, error) {
	tc, err := resolveTenant(f.Catalog, tenantID)
	if err != nil {
		return domain.AuthenticationTransaction{}, err
	}
	txn, err := f.Authn.Find(ctx, tc.Tenant.ID, requestID)
	if err != nil {
		return txn, err
	}
	if err := authn.ValidateAuthSession(&txn, authSession); err != nil {
		return domain.AuthenticationTransaction{}, err
	}
	return txn, nil
}

// OAuthInteractResult is the interaction outcome. Authorize is set once
// the transaction resolved and the request was settled with it.
type OAuthInteractResult struct {
	authn.InteractResult
	Authorize *oauth.AuthorizeResult
}

// Interact runs an authentication interaction. A successful transaction
// authorizes the request; a failed or locked one denies it.
func (f *OAuthFlow) Interact(ctx context.Context, tenantID, requestID, authSession string, typ authn.InteractionType, params map[string]string) (OAuthInteractResult, error) {
	tc, err := resolveTenant(f.Catalog, tenantID)
	if err != nil {
		return OAuthInteractResult{}, err
	}
	ctx = slogx.WithTenant(ctx, tc.Tenant.ID)

	res := f.Authn.Interact(ctx, tc, authn.InteractInput{
		RequestID:   requestID,
		AuthSession: authSession,
		Type:        typ,
		Params:      params,
	})
	f.Metrics.Interaction(tc.Tenant.ID, string(domain.FlowOAuth), typ.String(), string(res.Status), string(res.Outcome))
	out := OAuthInteractResult{InteractResult: res}

	if errors.Is(res.Error, authn.ErrTransactionExpired) {
		discard(ctx, f.Authn, res.Transaction)
		return out, nil
	}
	if !resolved(res) {
		return out, nil
	}

	txn := res.Transaction
	var settled oauth.AuthorizeResult
	if res.Outcome == authn.OutcomeSuccess {
		settled = f.Protocol.Authorize(ctx, tc, oauth.AuthorizeInput{
			RequestID:      requestID,
			User:           txn.User,
			Authentication: txn.Authentication(),
			BrowserID:      browserID(authSession),
		})
		f.Metrics.AuthorizationResult(tc.Tenant.ID, "authorize", string(settled.Status))
	} else {
		settled = f.Protocol.Deny(ctx, tc, requestID)
		f.Metrics.AuthorizationResult(tc.Tenant.ID, "deny", string(settled.Status))
	}
	discard(ctx, f.Authn, txn)
	out.Authorize = &settled
	return out, nil
}

// AuthorizeWithSession authorizes from the user agent's existing OAuth
// session without another authentication.
func (f *OAuthFlow) AuthorizeWithSession(ctx context.Context, tenantID, requestID, authSession string) (oauth.AuthorizeResult, error) {
	tc, err := resolveTenant(f.Catalog, tenantID)
	if err != nil {
		return oauth.AuthorizeResult{}, err
	}
	ctx = slogx.WithTenant(ctx, tc.Tenant.ID)

	txn, rejected := f.bound(ctx, tc, requestID, authSession)
	if rejected != nil {
		return *rejected, nil
	}
	res := f.Protocol.AuthorizeWithSession(ctx, tc, requestID, browserID(authSession))
	f.Metrics.AuthorizationResult(tc.Tenant.ID, "authorize_with_session", string(res.Status))
	if res.Status == oauth.StatusOK && txn != nil {
		discard(ctx, f.Authn, txn)
	}
	return res, nil
}

// Deny resolves the request as refused by the user.
func (f *OAuthFlow) Deny(ctx context.Context, tenantID, requestID, authSession string) (oauth.AuthorizeResult, error) {
	tc, err := resolveTenant(f.Catalog, tenantID)
	if err != nil {
		return oauth.AuthorizeResult{}, err
	}
	ctx = slogx.WithTenant(ctx, tc.Tenant.ID)

	txn, rejected := f.bound(ctx, tc, requestID, authSession)
	if rejected != nil {
		return *rejected, nil
	}
	res := f.Protocol.Deny(ctx, tc, requestID)
	f.Metrics.AuthorizationResult(tc.Tenant.ID, "deny", string(res.Status))
	if txn != nil {
		discard(ctx, f.Authn, txn)
	}
	return res, nil
}

// bound loads the request's transaction, if any, and checks that it
// belongs to this user agent.
func (f *OAuthFlow) bound(ctx context.Context, tc *domain.TenantConfig, requestID, authSession string) (*domain.AuthenticationTransaction, *oauth.AuthorizeResult) {
	txn, err := f.Authn.Find(ctx, tc.Tenant.ID, requestID)
	switch {
	case errors.Is(err, authn.ErrTransactionNotFound):
		return nil, nil
	case err != nil:
		slogx.FromContext(ctx).Error("load authentication transaction", slog.Any("err", err))
		return nil, &oauth.AuthorizeResult{Status: oauth.StatusServerError, Error: &oauth.Error{
			Kind: oauth.KindUnSupported, Code: authsdk.ErrorCodeServerError, Description: "unexpected server error", Err: err,
		}}
	}
	if err := authn.ValidateAuthSession(&txn, authSession); err != nil {
		return nil, &oauth.AuthorizeResult{Status: oauth.StatusUnauthorized, Error: &oauth.Error{
			Kind: oauth.KindUnauthorized, Code: authsdk.ErrorCodeAccessDenied, Description: "the authentication session does not match", Err: err,
		}}
	}
	return &txn, nil
}
