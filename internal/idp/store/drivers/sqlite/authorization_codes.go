package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

type authorizationCodesRepo struct {
	db dbtx
}

func (r *authorizationCodesRepo) Create(ctx context.Context, code domain.AuthorizationCodeGrant) error {
	data, err := encode(code)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (tenant_id, code_hash, request_id, expires_at, data)
		VALUES (?, ?, ?, ?, ?)`,
		code.Grant.TenantID, code.CodeHash, code.RequestID, unixMilli(code.ExpiresAt), data,
	)
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) ConsumeByHash(ctx context.Context, tenantID, hash string) (domain.AuthorizationCodeGrant, error) {
	return scanData[domain.AuthorizationCodeGrant](r.db.QueryRowContext(ctx,
		`DELETE FROM authorization_codes WHERE tenant_id = ? AND code_hash = ? RETURNING data`, tenantID, hash))
}

func (r *authorizationCodesRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, "authorization_codes", now)
}
