package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

type oauthTokensRepo struct {
	db dbtx
}

func (r *oauthTokensRepo) Create(ctx context.Context, t domain.OAuthToken) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	expires := t.ExpiresAt
	if t.RefreshExpiresAt.After(expires) {
		expires = t.RefreshExpiresAt
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (id, tenant_id, client_id, access_token_hash, refresh_token_hash, expires_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.ClientID, t.AccessTokenHash, mapStringNull(t.RefreshTokenHash), unixMilli(expires), data,
	)
	return mapConstraint(err)
}

func (r *oauthTokensRepo) GetByAccessTokenHash(ctx context.Context, tenantID, hash string) (domain.OAuthToken, error) {
	return scanData[domain.OAuthToken](r.db.QueryRowContext(ctx,
		`SELECT data FROM oauth_tokens WHERE tenant_id = ? AND access_token_hash = ?`, tenantID, hash))
}

func (r *oauthTokensRepo) GetByRefreshTokenHash(ctx context.Context, tenantID, hash string) (domain.OAuthToken, error) {
	return scanData[domain.OAuthToken](r.db.QueryRowContext(ctx,
		`SELECT data FROM oauth_tokens WHERE tenant_id = ? AND refresh_token_hash = ?`, tenantID, hash))
}

// DeleteExpired removes tokens whose access and refresh tokens both lapsed.
func (r *oauthTokensRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, "oauth_tokens", now)
}
