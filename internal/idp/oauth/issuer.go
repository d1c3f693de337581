package oauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/idp/internal/idp/claims"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// NewGrant combines what the user approved into an AuthorizationGrant.
func NewGrant(server domain.ServerConfig, client domain.ClientConfig, req *domain.AuthorizationRequest, user domain.User, auth domain.Authentication, custom map[string]any, now time.Time) domain.AuthorizationGrant {
	claimsReq := claims.MustParseRequest(req.Claims)
	return domain.AuthorizationGrant{
		TenantID:             req.TenantID,
		User:                 user,
		Authentication:       auth,
		ClientID:             client.ClientID,
		Scopes:               req.Scopes,
		IDTokenClaims:        claims.GrantIDTokenClaims(server, req.Scopes, req.ResponseType, claimsReq),
		UserinfoClaims:       claims.GrantUserinfoClaims(server, req.Scopes, claimsReq),
		ClaimsRequest:        req.Claims,
		AuthorizationDetails: req.AuthorizationDetails,
		Consent:              domain.ConsentClaimsFor(client, now),
		CustomProperties:     custom,
	}
}

// GrantIssuer turns an approved request into codes and tokens.
type GrantIssuer struct {
	Tokens *token.Issuer
	Now    func() time.Time
}

func (g *GrantIssuer) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Issue mints what the response_type asks for, records the grant for later
// prompt=none checks and returns the response to deliver. tx must be the
// transaction the request was consumed in.
func (g *GrantIssuer) Issue(ctx context.Context, tx store.Store, tenant *domain.Tenant, client domain.ClientConfig, req *domain.AuthorizationRequest, grant domain.AuthorizationGrant) (*Response, error) {
	now := g.now()
	server := tenant.Server
	params := map[string]string{}
	if req.State != "" {
		params[ParamState] = req.State
	}

	var idParams token.IDTokenParams
	idParams.Nonce = req.Nonce
	if req.ResponseType.IsFrontChannelToken() {
		idParams.State = req.State
	}

	if req.ResponseType.HasCode() {
		code, err := token.NewAuthorizationCode()
		if err != nil {
			return nil, err
		}
		err = tx.AuthorizationCodes().Create(ctx, domain.AuthorizationCodeGrant{
			CodeHash:            cryptox.FingerprintToken(code),
			RequestID:           req.ID,
			Grant:               grant,
			RedirectURI:         req.RedirectURI,
			Nonce:               req.Nonce,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: req.CodeChallengeMethod,
			ExpiresAt:           now.Add(server.AuthorizationCodeTTL),
			CreatedAt:           now,
		})
		if err != nil {
			return nil, err
		}
		params["code"] = code
		idParams.Code = code
	}

	if req.ResponseType.HasToken() {
		at, err := g.Tokens.NewAccessToken(tenant, grant, "")
		if err != nil {
			return nil, err
		}
		err = tx.OAuthTokens().Create(ctx, domain.OAuthToken{
			ID:              uuid.NewString(),
			TenantID:        tenant.ID,
			ClientID:        client.ClientID,
			AccessTokenHash: cryptox.FingerprintToken(at.Value),
			Grant:           grant,
			ExpiresAt:       at.ExpiresAt,
			CreatedAt:       now,
		})
		if err != nil {
			return nil, err
		}
		params["access_token"] = at.Value
		params["token_type"] = "Bearer"
		params["expires_in"] = strconv.FormatInt(int64(server.AccessTokenTTL/time.Second), 10)
		params[ParamScope] = req.ScopeString()
		idParams.AccessToken = at.Value
	}

	if req.ResponseType.HasIDToken() {
		idToken, err := g.Tokens.NewIDToken(ctx, tenant, client, grant, idParams)
		if err != nil {
			return nil, err
		}
		params["id_token"] = idToken
	}

	if err := RegisterGranted(ctx, tx, grant, now); err != nil {
		return nil, err
	}

	mode := responseMode(req.Profile, req.ResponseType, req.ResponseMode)
	return newResponse(ctx, g.Tokens, tenant, client, req.RedirectURI, mode, params)
}

// RegisterGranted merges grant into the user's AuthorizationGranted
// record, creating it on first use. The backchannel token endpoint records
// its grants the same way.
func RegisterGranted(ctx context.Context, tx store.Store, grant domain.AuthorizationGrant, now time.Time) error {
	repo := tx.AuthorizationGranted()
	existing, err := repo.Find(ctx, grant.TenantID, grant.ClientID, grant.User.Sub)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return repo.Register(ctx, domain.AuthorizationGranted{
			ID:        uuid.NewString(),
			TenantID:  grant.TenantID,
			ClientID:  grant.ClientID,
			UserSub:   grant.User.Sub,
			Grant:     grant,
			CreatedAt: now,
			UpdatedAt: now,
		})
	case err != nil:
		return err
	default:
		return repo.Update(ctx, existing.Merge(grant, now))
	}
}
