package sqlite

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

type usersRepo struct {
	db dbtx
}

// lookupColumns maps the FindBy fields to their indexed column.
var lookupColumns = map[string]string{
	"email":              "email",
	"phone_number":       "phone_number",
	"preferred_username": "preferred_username",
}

func (r *usersRepo) Get(ctx context.Context, tenantID, sub string) (domain.User, error) {
	return scanData[domain.User](r.db.QueryRowContext(ctx,
		`SELECT data FROM users WHERE tenant_id = ? AND sub = ?`, tenantID, sub))
}

func (r *usersRepo) FindBy(ctx context.Context, tenantID, field, value string) (domain.User, error) {
	if field == "device" {
		return scanData[domain.User](r.db.QueryRowContext(ctx, `
			SELECT u.data FROM users u
			JOIN user_devices d ON d.tenant_id = u.tenant_id AND d.sub = u.sub
			WHERE d.tenant_id = ? AND d.device_id = ?`,
			tenantID, value,
		))
	}
	column, ok := lookupColumns[field]
	if !ok {
		return domain.User{}, fmt.Errorf("sqlite: unsupported user lookup field %q", field)
	}
	return scanData[domain.User](r.db.QueryRowContext(ctx,
		`SELECT data FROM users WHERE tenant_id = ? AND `+column+` = ? LIMIT 1`, tenantID, value))
}

func (r *usersRepo) Upsert(ctx context.Context, u domain.User) error {
	data, err := encode(u)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (tenant_id, sub, status, email, phone_number, preferred_username, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, sub) DO UPDATE SET
			status = excluded.status,
			email = excluded.email,
			phone_number = excluded.phone_number,
			preferred_username = excluded.preferred_username,
			data = excluded.data`,
		u.TenantID, u.Sub, string(u.Status),
		mapStringNull(u.Email), mapStringNull(u.PhoneNumber), mapStringNull(u.PreferredUsername),
		data,
	)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM user_devices WHERE tenant_id = ? AND sub = ?`, u.TenantID, u.Sub); err != nil {
		return err
	}
	for _, d := range u.Devices {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO user_devices (tenant_id, device_id, sub) VALUES (?, ?, ?)`, u.TenantID, d.ID, u.Sub)
		if err != nil {
			return mapConstraint(err)
		}
	}
	return nil
}

func (r *usersRepo) UpdateStatus(ctx context.Context, tenantID, sub string, status domain.UserStatus) error {
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE users SET status = ?, data = json_set(data, '$.Status', ?)
		WHERE tenant_id = ? AND sub = ?`,
		string(status), string(status), tenantID, sub,
	))
}
