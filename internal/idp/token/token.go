// Package token mints the artifacts handed to clients: signed access
// tokens, ID tokens (optionally encrypted), opaque refresh tokens and JARM
// authorization responses.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/idp/internal/idp/claims"
	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

// CIBA ID token claims (CIBA Core 10.1.1).
const (
	ClaimAuthReqID        = "urn:openid:params:jwt:claim:auth_req_id"
	ClaimRefreshTokenHash = "urn:openid:params:jwt:claim:rt_hash"
)

// Issuer signs tokens with the tenant keys.
type Issuer struct {
	Keys       *KeyRing
	ClientKeys clientauth.KeyResolver
	Now        func() time.Time
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// AccessToken is a minted access token.
type AccessToken struct {
	Value     string
	JTI       string
	ExpiresAt time.Time
}

// NewAccessToken signs an RFC 9068 JWT access token for grant. When
// certThumbprint is set the token is certificate bound (RFC 8705).
func (i *Issuer) NewAccessToken(tenant *domain.Tenant, grant domain.AuthorizationGrant, certThumbprint string) (AccessToken, error) {
	keys, err := i.Keys.Private(tenant)
	if err != nil {
		return AccessToken{}, err
	}
	now := i.now()
	exp := now.Add(tenant.Server.AccessTokenTTL)
	jti := uuid.NewString()

	sub := grant.ClientID
	if grant.User.Exists() {
		sub = grant.User.Sub
	}
	body := map[string]any{
		"iss":       tenant.Server.Issuer,
		"sub":       sub,
		"aud":       tenant.Server.Issuer,
		"client_id": grant.ClientID,
		"scope":     strings.Join(grant.Scopes, " "),
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
		"jti":       jti,
	}
	if certThumbprint != "" {
		body["cnf"] = map[string]any{"x5t#S256": certThumbprint}
	}
	if grant.AuthorizationDetails != "" {
		var details any
		if err := json.Unmarshal([]byte(grant.AuthorizationDetails), &details); err == nil {
			body["authorization_details"] = details
		}
	}

	value, err := josex.SignWithAlg(body, map[string]any{"typ": "at+jwt"}, keys, tenant.Server.DefaultSigningAlg)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Value: value, JTI: jti, ExpiresAt: exp}, nil
}

// NewRefreshToken returns an opaque refresh token.
func NewRefreshToken() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

// NewAuthorizationCode returns an opaque authorization code.
func NewAuthorizationCode() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

// IDTokenParams carries the values hashed or echoed into an ID token.
type IDTokenParams struct {
	Nonce       string
	State       string
	Code        string
	AccessToken string
	// AuthReqID and RefreshToken are set for ping and push deliveries.
	AuthReqID    string
	RefreshToken string
}

// NewIDToken builds, signs and, when the client registered an encryption
// algorithm, encrypts an ID token.
func (i *Issuer) NewIDToken(ctx context.Context, tenant *domain.Tenant, client domain.ClientConfig, grant domain.AuthorizationGrant, p IDTokenParams) (string, error) {
	keys, err := i.Keys.Private(tenant)
	if err != nil {
		return "", err
	}
	alg := client.IDTokenSignedResponseAlg
	if alg == "" {
		alg = tenant.Server.DefaultSigningAlg
	}
	now := i.now()

	body := claims.IDToken(&grant.User, grant, tenant.Server.IDTokenStrictMode)
	body["iss"] = tenant.Server.Issuer
	body["aud"] = client.ClientID
	body["iat"] = now.Unix()
	body["exp"] = now.Add(tenant.Server.IDTokenTTL).Unix()

	if p.Nonce != "" {
		body["nonce"] = p.Nonce
	}
	if p.State != "" {
		body["s_hash"] = josex.HalfHash(p.State, alg)
	}
	if p.Code != "" {
		body["c_hash"] = josex.HalfHash(p.Code, alg)
	}
	if p.AccessToken != "" {
		body["at_hash"] = josex.HalfHash(p.AccessToken, alg)
	}
	if p.AuthReqID != "" {
		body[ClaimAuthReqID] = p.AuthReqID
	}
	if p.RefreshToken != "" {
		body[ClaimRefreshTokenHash] = josex.HalfHash(p.RefreshToken, alg)
	}

	auth := grant.Authentication
	if auth.Exists() {
		body["auth_time"] = auth.Time.Unix()
	}
	if len(auth.Methods) > 0 {
		body["amr"] = auth.Methods
	}
	if auth.ACR != "" {
		body["acr"] = auth.ACR
	}

	signed, err := josex.SignWithAlg(body, nil, keys, alg)
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}
	if client.IDTokenEncryptedResponseAlg == "" {
		return signed, nil
	}
	return i.encrypt(ctx, client, signed, client.IDTokenEncryptedResponseAlg, client.IDTokenEncryptedResponseEnc)
}

// NewAuthorizationResponse wraps authorization response parameters into a
// JARM JWT.
func (i *Issuer) NewAuthorizationResponse(ctx context.Context, tenant *domain.Tenant, client domain.ClientConfig, params map[string]string) (string, error) {
	keys, err := i.Keys.Private(tenant)
	if err != nil {
		return "", err
	}
	alg := client.AuthorizationSignedResponseAlg
	if alg == "" {
		alg = tenant.Server.DefaultSigningAlg
	}
	now := i.now()

	body := make(map[string]any, len(params)+3)
	for k, v := range params {
		body[k] = v
	}
	body["iss"] = tenant.Server.Issuer
	body["aud"] = client.ClientID
	body["exp"] = now.Add(tenant.Server.AuthorizationResponseTTL).Unix()

	signed, err := josex.SignWithAlg(body, nil, keys, alg)
	if err != nil {
		return "", fmt.Errorf("sign authorization response: %w", err)
	}
	if client.AuthorizationEncryptedResponseAlg == "" {
		return signed, nil
	}
	return i.encrypt(ctx, client, signed, client.AuthorizationEncryptedResponseAlg, client.AuthorizationEncryptedResponseEnc)
}

func (i *Issuer) encrypt(ctx context.Context, client domain.ClientConfig, signed, alg, enc string) (string, error) {
	if enc == "" {
		enc = "A128CBC-HS256"
	}
	to := josex.Recipient{Secret: client.ClientSecret}
	if !josex.IsSymmetricKeyAlgorithm(alg) {
		if i.ClientKeys == nil {
			return "", clientauth.ErrNoClientKeys
		}
		keys, err := i.ClientKeys.ClientKeys(ctx, client)
		if err != nil {
			return "", fmt.Errorf("client encryption keys: %w", err)
		}
		to.JWKS = keys
	}
	out, err := josex.Encrypt(signed, alg, enc, to)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return out, nil
}
