package sqlite

import (
	"context"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

type authorizationGrantedRepo struct {
	db dbtx
}

func (r *authorizationGrantedRepo) Find(ctx context.Context, tenantID, clientID, userSub string) (domain.AuthorizationGranted, error) {
	return scanData[domain.AuthorizationGranted](r.db.QueryRowContext(ctx, `
		SELECT data FROM authorization_granted
		WHERE tenant_id = ? AND client_id = ? AND user_sub = ?`,
		tenantID, clientID, userSub,
	))
}

func (r *authorizationGrantedRepo) Register(ctx context.Context, g domain.AuthorizationGranted) error {
	data, err := encode(g)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO authorization_granted (id, tenant_id, client_id, user_sub, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.TenantID, g.ClientID, g.UserSub, unixMilli(g.UpdatedAt), data,
	)
	return mapConstraint(err)
}

func (r *authorizationGrantedRepo) Update(ctx context.Context, g domain.AuthorizationGranted) error {
	data, err := encode(g)
	if err != nil {
		return err
	}
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE authorization_granted SET updated_at = ?, data = ?
		WHERE id = ? AND tenant_id = ?`,
		unixMilli(g.UpdatedAt), data, g.ID, g.TenantID,
	))
}
