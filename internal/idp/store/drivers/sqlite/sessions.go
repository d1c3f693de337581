package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

// Sessions stores OAuthSessions in the database. Expired rows are removed
// by DeleteExpired.
type Sessions struct {
	db dbtx
}

func (r *Sessions) Find(ctx context.Context, tenantID string, key domain.SessionKey) (domain.OAuthSession, error) {
	return scanData[domain.OAuthSession](r.db.QueryRowContext(ctx, `
		SELECT data FROM oauth_sessions
		WHERE tenant_id = ? AND session_key = ?`,
		tenantID, key.String(),
	))
}

func (r *Sessions) Register(ctx context.Context, tenantID string, s domain.OAuthSession) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO oauth_sessions (tenant_id, session_key, expires_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, session_key) DO UPDATE SET
			expires_at = excluded.expires_at,
			data = excluded.data`,
		tenantID, s.Key.String(), unixMilli(s.ExpiresAt), data,
	)
	return err
}

func (r *Sessions) Update(ctx context.Context, tenantID string, s domain.OAuthSession) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE oauth_sessions SET expires_at = ?, data = ?
		WHERE tenant_id = ? AND session_key = ?`,
		unixMilli(s.ExpiresAt), data, tenantID, s.Key.String(),
	))
}

func (r *Sessions) Delete(ctx context.Context, tenantID string, key domain.SessionKey) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_sessions WHERE tenant_id = ? AND session_key = ?`, tenantID, key.String())
	return err
}

func (r *Sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, "oauth_sessions", now)
}
