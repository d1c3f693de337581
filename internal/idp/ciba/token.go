package ciba

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// TokenResponse is the token endpoint answer for the ciba grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope,omitempty"`
}

// TokenResult is what the token endpoint renders.
type TokenResult struct {
	Status   Status
	Response *TokenResponse
	Error    *Error
}

func tokenFailure(err error) TokenResult {
	e := asError(err)
	return TokenResult{Status: statusOf(e), Error: e}
}

// tokenContext is the token endpoint request as seen by client
// authentication.
type tokenContext struct {
	tenant *domain.Tenant
	client domain.ClientConfig
	creds  clientauth.Credentials
}

func (t *tokenContext) Server() domain.ServerConfig         { return t.tenant.Server }
func (t *tokenContext) Client() domain.ClientConfig         { return t.client }
func (t *tokenContext) Credentials() clientauth.Credentials { return t.creds }
func (t *tokenContext) Endpoint() string                    { return t.tenant.Server.Endpoint(TokenPath) }

// Token answers a poll of the ciba grant (CIBA Core 10.1, 11).
func (p *Protocol) Token(ctx context.Context, tc *domain.TenantConfig, params oauth.Parameters, creds clientauth.Credentials) TokenResult {
	if params.Get(ParamGrantType) != GrantType {
		return tokenFailure(badRequest(authsdk.ErrorCodeUnsupportedGrantType, "grant_type must be %s", GrantType))
	}

	clientID := creds.RequestedClientID()
	if clientID == "" {
		clientID = params.Get(oauth.ParamClientID)
	}
	client, err := tc.Client(clientID)
	if err != nil {
		return tokenFailure(unauthorized(err))
	}
	tctx := &tokenContext{tenant: &tc.Tenant, client: *client, creds: creds}
	if err := p.Clients.Authenticate(ctx, tctx); err != nil {
		return tokenFailure(unauthorized(err))
	}
	if !client.SupportsGrantType(GrantType) {
		return tokenFailure(badRequest(authsdk.ErrorCodeUnauthorizedClient, "client is not registered for the ciba grant"))
	}
	if client.DeliveryMode() == domain.DeliveryModePush {
		return tokenFailure(badRequest(authsdk.ErrorCodeUnauthorizedClient, "push mode clients receive tokens at their notification endpoint"))
	}

	authReqID := params.Get(ParamAuthReqID)
	if authReqID == "" {
		return tokenFailure(badRequest(authsdk.ErrorCodeInvalidRequest, "auth_req_id is required"))
	}
	g, err := p.Store.CibaGrants().GetByAuthReqID(ctx, tc.Tenant.ID, authReqID)
	if errors.Is(err, store.ErrNotFound) {
		return tokenFailure(badRequest(authsdk.ErrorCodeInvalidGrant, "auth_req_id is unknown"))
	}
	if err != nil {
		return tokenFailure(serverError(err))
	}
	if g.ClientID != client.ClientID {
		return tokenFailure(badRequest(authsdk.ErrorCodeInvalidGrant, "auth_req_id was not issued to this client"))
	}

	now := p.now()
	if g.IsExpired(now) {
		return tokenFailure(badRequest(authsdk.ErrorCodeExpiredToken, "auth_req_id is expired"))
	}

	switch g.Status {
	case domain.CibaGrantPending:
		return tokenFailure(p.poll(ctx, g, now))
	case domain.CibaGrantDenied:
		return tokenFailure(badRequest(authsdk.ErrorCodeAccessDenied, "the end user denied the authorization request"))
	case domain.CibaGrantConsumed:
		return tokenFailure(badRequest(authsdk.ErrorCodeInvalidGrant, "auth_req_id was already used"))
	case domain.CibaGrantAuthorized:
	default:
		return tokenFailure(serverError(errors.New("unknown ciba grant status " + string(g.Status))))
	}

	thumbprint := ""
	if tc.Tenant.Server.TLSClientCertificateBoundAccessTokens && client.TLSClientCertificateBoundAccessTokens {
		if thumbprint = creds.CertificateThumbprint(); thumbprint == "" {
			return tokenFailure(badRequest(authsdk.ErrorCodeInvalidGrant, "certificate bound access tokens require a client certificate"))
		}
	}

	var resp *TokenResponse
	err = p.Store.WithTx(ctx, func(tx store.Tx) error {
		consumed := g
		consumed.Status = domain.CibaGrantConsumed
		consumed.UpdatedAt = now
		if err := tx.CibaGrants().Update(ctx, consumed, domain.CibaGrantAuthorized); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return badRequest(authsdk.ErrorCodeInvalidGrant, "auth_req_id was already used")
			}
			return err
		}
		tr, err := p.issueTokens(ctx, tx, &tc.Tenant, *client, g, thumbprint)
		resp = tr
		return err
	})
	if err != nil {
		return tokenFailure(err)
	}
	slogx.FromContext(ctx).Info("ciba tokens issued",
		slog.String("client_id", client.ClientID),
		slog.String("auth_req_id", cryptox.FingerprintToken(g.AuthReqID)),
	)
	return TokenResult{Status: StatusOK, Response: resp}
}

// poll records a poll of a pending grant. It always returns the error to
// answer with: authorization_pending, or slow_down when the client polls
// faster than the interval, which also widens the interval.
func (p *Protocol) poll(ctx context.Context, g domain.CibaGrant, now time.Time) error {
	tooSoon := g.PolledTooSoon(now)
	if tooSoon {
		g.Interval += slowDownStep
	}
	g.LastPolledAt = now
	g.UpdatedAt = now
	err := p.Store.CibaGrants().Update(ctx, g, domain.CibaGrantPending)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return serverError(err)
	}
	if tooSoon {
		return badRequest(authsdk.ErrorCodeSlowDown, "polling too frequently, wait at least %d seconds", int(g.Interval/time.Second))
	}
	return badRequest(authsdk.ErrorCodeAuthorizationPending, "the end user has not completed authentication")
}

// issueTokens mints the access, refresh and ID tokens of an authorized
// grant and records them. tx must be the transaction the grant is resolved
// in. Push deliveries carry auth_req_id and rt_hash in the ID token.
func (p *Protocol) issueTokens(ctx context.Context, tx store.Store, tenant *domain.Tenant, client domain.ClientConfig, g domain.CibaGrant, certThumbprint string) (*TokenResponse, error) {
	now := p.now()
	server := tenant.Server

	at, err := p.Tokens.NewAccessToken(tenant, g.Grant, certThumbprint)
	if err != nil {
		return nil, err
	}
	refresh, err := token.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	idParams := token.IDTokenParams{AccessToken: at.Value}
	if client.DeliveryMode() == domain.DeliveryModePush {
		idParams.AuthReqID = g.AuthReqID
		idParams.RefreshToken = refresh
	}
	idToken, err := p.Tokens.NewIDToken(ctx, tenant, client, g.Grant, idParams)
	if err != nil {
		return nil, err
	}

	err = tx.OAuthTokens().Create(ctx, domain.OAuthToken{
		ID:               uuid.NewString(),
		TenantID:         tenant.ID,
		ClientID:         client.ClientID,
		AccessTokenHash:  cryptox.FingerprintToken(at.Value),
		RefreshTokenHash: cryptox.FingerprintToken(refresh),
		Grant:            g.Grant,
		CertThumbprint:   certThumbprint,
		ExpiresAt:        at.ExpiresAt,
		RefreshExpiresAt: now.Add(server.RefreshTokenTTL),
		CreatedAt:        now,
	})
	if err != nil {
		return nil, err
	}
	if err := oauth.RegisterGranted(ctx, tx, g.Grant, now); err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  at.Value,
		TokenType:    "Bearer",
		ExpiresIn:    int(server.AccessTokenTTL / time.Second),
		RefreshToken: refresh,
		IDToken:      idToken,
		Scope:        strings.Join(g.Grant.Scopes, " "),
	}, nil
}
