package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

type transactionsRepo struct {
	db dbtx
}

func (r *transactionsRepo) Create(ctx context.Context, tx domain.AuthenticationTransaction) error {
	data, err := encode(tx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO authentication_transactions (tenant_id, id, request_id, status, expires_at, data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tx.TenantID, tx.ID, tx.RequestID, string(tx.Status), unixMilli(tx.ExpiresAt), data,
	)
	return mapConstraint(err)
}

func (r *transactionsRepo) Get(ctx context.Context, tenantID, id string) (domain.AuthenticationTransaction, error) {
	return scanData[domain.AuthenticationTransaction](r.db.QueryRowContext(ctx,
		`SELECT data FROM authentication_transactions WHERE tenant_id = ? AND id = ?`, tenantID, id))
}

func (r *transactionsRepo) GetByRequestID(ctx context.Context, tenantID, requestID string) (domain.AuthenticationTransaction, error) {
	return scanData[domain.AuthenticationTransaction](r.db.QueryRowContext(ctx,
		`SELECT data FROM authentication_transactions WHERE tenant_id = ? AND request_id = ?`, tenantID, requestID))
}

func (r *transactionsRepo) Update(ctx context.Context, tx domain.AuthenticationTransaction) error {
	data, err := encode(tx)
	if err != nil {
		return err
	}
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE authentication_transactions SET status = ?, expires_at = ?, data = ?
		WHERE tenant_id = ? AND id = ?`,
		string(tx.Status), unixMilli(tx.ExpiresAt), data, tx.TenantID, tx.ID,
	))
}

func (r *transactionsRepo) Delete(ctx context.Context, tenantID, id string) error {
	return expectOne(r.db.ExecContext(ctx,
		`DELETE FROM authentication_transactions WHERE tenant_id = ? AND id = ?`, tenantID, id))
}

func (r *transactionsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, "authentication_transactions", now)
}
