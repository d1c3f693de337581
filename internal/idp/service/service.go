// Package service holds the flow entry points of the identity provider.
// Each flow resolves the tenant, runs the protocol and the
// authentication transaction, and settles the request once the
// transaction reaches a final outcome.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

var ErrUnknownTenant = errors.New("unknown tenant")

func resolveTenant(catalog *domain.Catalog, tenantID string) (*domain.TenantConfig, error) {
	tc, err := catalog.Tenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}
	return tc, nil
}

// browserID keys OAuthSessions by the AUTH_SESSION fingerprint, never by
// the cookie value itself.
func browserID(authSession string) string {
	if authSession == "" {
		return ""
	}
	return cryptox.FingerprintToken(authSession)
}

// resolved reports an interaction that brought the transaction to a final
// outcome just now.
func resolved(res authn.InteractResult) bool {
	if res.Error != nil || res.Transaction == nil {
		return false
	}
	return res.Outcome != authn.OutcomePending
}

func discard(ctx context.Context, engine *authn.Engine, txn *domain.AuthenticationTransaction) {
	if err := engine.Delete(ctx, txn); err != nil {
		slogx.FromContext(ctx).Warn("delete authentication transaction",
			slog.String("transaction_id", txn.ID),
			slog.Any("err", err),
		)
	}
}
