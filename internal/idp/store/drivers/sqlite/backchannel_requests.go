package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

type backchannelRequestsRepo struct {
	db dbtx
}

func (r *backchannelRequestsRepo) Create(ctx context.Context, req domain.BackchannelAuthenticationRequest) error {
	data, err := encode(req)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO backchannel_requests (tenant_id, id, client_id, expires_at, data)
		VALUES (?, ?, ?, ?, ?)`,
		req.TenantID, req.ID, req.ClientID, unixMilli(req.ExpiresAt), data,
	)
	return mapConstraint(err)
}

func (r *backchannelRequestsRepo) Get(ctx context.Context, tenantID, id string) (domain.BackchannelAuthenticationRequest, error) {
	return scanData[domain.BackchannelAuthenticationRequest](r.db.QueryRowContext(ctx,
		`SELECT data FROM backchannel_requests WHERE tenant_id = ? AND id = ?`, tenantID, id))
}

func (r *backchannelRequestsRepo) Delete(ctx context.Context, tenantID, id string) error {
	return expectOne(r.db.ExecContext(ctx,
		`DELETE FROM backchannel_requests WHERE tenant_id = ? AND id = ?`, tenantID, id))
}

func (r *backchannelRequestsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, "backchannel_requests", now)
}
