package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

type authorizationRequestsRepo struct {
	db dbtx
}

func (r *authorizationRequestsRepo) Create(ctx context.Context, req domain.AuthorizationRequest) error {
	data, err := encode(req)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO authorization_requests (tenant_id, id, client_id, expires_at, data)
		VALUES (?, ?, ?, ?, ?)`,
		req.TenantID, req.ID, req.ClientID, unixMilli(req.ExpiresAt), data,
	)
	return mapConstraint(err)
}

func (r *authorizationRequestsRepo) Get(ctx context.Context, tenantID, id string) (domain.AuthorizationRequest, error) {
	return scanData[domain.AuthorizationRequest](r.db.QueryRowContext(ctx,
		`SELECT data FROM authorization_requests WHERE tenant_id = ? AND id = ?`, tenantID, id))
}

func (r *authorizationRequestsRepo) Consume(ctx context.Context, tenantID, id string) (domain.AuthorizationRequest, error) {
	return scanData[domain.AuthorizationRequest](r.db.QueryRowContext(ctx,
		`DELETE FROM authorization_requests WHERE tenant_id = ? AND id = ? RETURNING data`, tenantID, id))
}

func (r *authorizationRequestsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, "authorization_requests", now)
}
