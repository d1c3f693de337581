package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/ciba"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/internal/idp/service"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// writeOAuthError writes a non-redirectable protocol error.
func writeOAuthError(w http.ResponseWriter, e *oauth.Error) {
	if e == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}
	status := http.StatusBadRequest
	switch e.Kind {
	case oauth.KindUnauthorized:
		status = http.StatusUnauthorized
	case oauth.KindUnSupported:
		status = http.StatusInternalServerError
	}
	authsdk.NewOAuth2Error(status, e.Code, e.Description).WriteError(w)
}

func writeCIBAError(w http.ResponseWriter, e *ciba.Error) {
	if e == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}
	status := http.StatusBadRequest
	switch e.Kind {
	case ciba.KindUnauthorized:
		status = http.StatusUnauthorized
	case ciba.KindServerError:
		status = http.StatusInternalServerError
	}
	authsdk.NewOAuth2Error(status, e.Code, e.Description).WriteError(w)
}

// writeServiceError maps the errors a flow returns outside its typed
// result.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownTenant):
		authsdk.ErrUnknownTenant.WriteError(w)
	case errors.Is(err, authn.ErrTransactionNotFound):
		authsdk.NewOAuth2Error(http.StatusNotFound, authsdk.ErrorCodeInvalidRequest, "authentication transaction not found").WriteError(w)
	case errors.Is(err, authn.ErrUnauthorized):
		authsdk.ErrUnauthorizedSession.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", slog.Any("err", err))
		authsdk.ErrServerError.WriteError(w)
	}
}
