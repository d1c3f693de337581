package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
)

type cibaGrantsRepo struct {
	db dbtx
}

func (r *cibaGrantsRepo) Create(ctx context.Context, g domain.CibaGrant) error {
	data, err := encode(g)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO ciba_grants (tenant_id, auth_req_id, request_id, status, expires_at, data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.TenantID, g.AuthReqID, g.RequestID, string(g.Status), unixMilli(g.ExpiresAt), data,
	)
	return mapConstraint(err)
}

func (r *cibaGrantsRepo) GetByAuthReqID(ctx context.Context, tenantID, authReqID string) (domain.CibaGrant, error) {
	return scanData[domain.CibaGrant](r.db.QueryRowContext(ctx,
		`SELECT data FROM ciba_grants WHERE tenant_id = ? AND auth_req_id = ?`, tenantID, authReqID))
}

func (r *cibaGrantsRepo) GetByRequestID(ctx context.Context, tenantID, requestID string) (domain.CibaGrant, error) {
	return scanData[domain.CibaGrant](r.db.QueryRowContext(ctx,
		`SELECT data FROM ciba_grants WHERE tenant_id = ? AND request_id = ?`, tenantID, requestID))
}

func (r *cibaGrantsRepo) Update(ctx context.Context, g domain.CibaGrant, expected domain.CibaGrantStatus) error {
	data, err := encode(g)
	if err != nil {
		return err
	}
	err = expectOne(r.db.ExecContext(ctx, `
		UPDATE ciba_grants SET status = ?, data = ?
		WHERE tenant_id = ? AND auth_req_id = ? AND status = ?`,
		string(g.Status), data, g.TenantID, g.AuthReqID, string(expected),
	))
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	// Distinguish a lost race from a missing grant.
	if _, getErr := r.GetByAuthReqID(ctx, g.TenantID, g.AuthReqID); getErr == nil {
		return store.ErrConflict
	}
	return err
}

func (r *cibaGrantsRepo) Delete(ctx context.Context, tenantID, authReqID string) error {
	return expectOne(r.db.ExecContext(ctx,
		`DELETE FROM ciba_grants WHERE tenant_id = ? AND auth_req_id = ?`, tenantID, authReqID))
}

func (r *cibaGrantsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, "ciba_grants", now)
}
