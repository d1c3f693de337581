package http

import (
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// JWKSHandler exposes a tenant's public keys for ID token, JARM and
// request object verification.
//
//	@Summary		Get JWKS
//	@Description	Returns the public JSON Web Key Set of the tenant.
//	@Tags			well-known
//	@Produce		json
//	@Param			tenantId	path		string					true	"Tenant"
//	@Success		200			{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Failure		404			{object}	authsdk.ErrorResponse	"Unknown tenant"
//	@Router			/{tenantId}/jwks [get].
func JWKSHandler(catalog *domain.Catalog, keys *token.KeyRing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, err := catalog.Tenant(r.PathValue("tenantId"))
		if err != nil {
			authsdk.ErrUnknownTenant.WriteError(w)
			return
		}
		set, err := keys.Public(&tc.Tenant)
		if err != nil {
			slogx.FromContext(r.Context()).Error("load tenant keys", slog.String("tenant", tc.Tenant.ID), slog.Any("err", err))
			authsdk.ErrServerError.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(*set))
	}
}
