package http

import (
	"maps"
	"net/http"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/internal/idp/service"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/httpx"
)

// TransactionHandler describes the authentication transaction of an
// authorization request to the interaction UI.
type TransactionHandler struct {
	Flow *service.OAuthFlow
}

// ServeHTTP godoc
//
//	@Summary		Get authentication transaction
//	@Description	Returns the transaction bound to the request. The AUTH_SESSION cookie must match the one issued with the request.
//	@Tags			Authentication
//	@Produce		json
//	@Param			tenantId	path		string						true	"Tenant"
//	@Param			id			path		string						true	"Authorization request id"
//	@Success		200			{object}	authsdk.TransactionResponse	"Transaction"
//	@Failure		401			{object}	authsdk.ErrorResponse		"AUTH_SESSION mismatch"
//	@Failure		404			{object}	authsdk.ErrorResponse		"Unknown tenant or transaction"
//	@Router			/{tenantId}/authorizations/{id} [get]
func (h *TransactionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	txn, err := h.Flow.Transaction(r.Context(), r.PathValue("tenantId"), r.PathValue("id"), authn.AuthSessionFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, transactionResponse(&txn))
}

func transactionResponse(txn *domain.AuthenticationTransaction) authsdk.TransactionResponse {
	return authsdk.TransactionResponse{
		ID:             txn.ID,
		RequestID:      txn.RequestID,
		Flow:           string(txn.Flow),
		Status:         string(txn.Status),
		ClientID:       txn.ClientID,
		Scopes:         txn.Context.Scopes,
		ACRValues:      txn.Context.ACRValues,
		BindingMessage: txn.Context.BindingMessage,
		Methods:        txn.Policy.AvailableMethods,
		ExpiresAt:      txn.ExpiresAt,
	}
}

// InteractionHandler runs one authentication interaction of the browser
// flow. Once the transaction resolves the response carries the client
// redirect.
type InteractionHandler struct {
	Flow *service.OAuthFlow
}

// ServeHTTP godoc
//
//	@Summary		Authentication interaction
//	@Description	Runs one interaction (password-authentication, sms-authentication-challenge, sms-authentication,
//	@Description	email-authentication-challenge, email-authentication, totp-authentication, fido-uaf-authentication,
//	@Description	webauthn-authentication) against the request's transaction.
//	@Tags			Authentication
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			tenantId	path		string						true	"Tenant"
//	@Param			id			path		string						true	"Authorization request id"
//	@Param			interaction	path		string						true	"Interaction type"
//	@Success		200			{object}	authsdk.InteractionResponse	"Interaction outcome"
//	@Failure		400			{object}	authsdk.InteractionResponse	"Rejected interaction"
//	@Failure		401			{object}	authsdk.InteractionResponse	"AUTH_SESSION mismatch"
//	@Failure		404			{object}	authsdk.ErrorResponse		"Unknown tenant or interaction"
//	@Router			/{tenantId}/authorizations/{id}/{interaction} [post]
func (h *InteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	typ, ok := interactionType(w, r)
	if !ok {
		return
	}
	params, ok := formParams(w, r)
	if !ok {
		return
	}

	res, err := h.Flow.Interact(r.Context(), r.PathValue("tenantId"), r.PathValue("id"), authn.AuthSessionFrom(r), typ, params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	body := interactionBody(res.InteractResult)
	if settled := res.Authorize; settled != nil {
		if settled.Status != oauth.StatusOK {
			writeOAuthError(w, settled.Error)
			return
		}
		maps.Copy(body, redirectBody(settled.Response))
	}
	writeInteraction(w, res.Status, body)
}

func interactionType(w http.ResponseWriter, r *http.Request) (authn.InteractionType, bool) {
	typ, err := authn.ParseInteractionType(r.PathValue("interaction"))
	if err != nil {
		authsdk.NewOAuth2Error(http.StatusNotFound, authsdk.ErrorCodeInvalidRequest, "unknown interaction").WriteError(w)
		return 0, false
	}
	return typ, true
}

func interactionBody(res authn.InteractResult) map[string]any {
	body := make(map[string]any, len(res.Body)+1)
	maps.Copy(body, res.Body)
	body["outcome"] = string(res.Outcome)
	return body
}

func redirectBody(resp *oauth.Response) map[string]any {
	if resp == nil {
		return nil
	}
	body := map[string]any{"location": resp.Location()}
	if resp.IsFormPost() {
		body["parameters"] = resp.Params
	}
	return body
}

func writeInteraction(w http.ResponseWriter, status authn.ResultStatus, body map[string]any) {
	code := http.StatusOK
	switch status {
	case authn.ResultBadRequest:
		code = http.StatusBadRequest
	case authn.ResultUnauthorized:
		code = http.StatusUnauthorized
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	case authn.ResultServerError:
		code = http.StatusInternalServerError
	}
	httpx.WriteJSON(w, code, body)
}

// AuthorizeWithSessionHandler confirms a request from the user agent's
// existing OAuth session.
type AuthorizeWithSessionHandler struct {
	Flow *service.OAuthFlow
}

// ServeHTTP godoc
//
//	@Summary		Authorize with the existing session
//	@Description	Confirms a request answered OK_SESSION_ENABLE from the user agent's OAuth session.
//	@Tags			Authentication
//	@Produce		json
//	@Param			tenantId	path		string							true	"Tenant"
//	@Param			id			path		string							true	"Authorization request id"
//	@Success		200			{object}	authsdk.AuthorizeResultResponse	"Client redirect"
//	@Failure		400			{object}	authsdk.ErrorResponse			"Request not found or session invalid"
//	@Failure		401			{object}	authsdk.ErrorResponse			"AUTH_SESSION mismatch"
//	@Router			/{tenantId}/authorizations/{id}/authorize-with-session [post]
func (h *AuthorizeWithSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.Flow.AuthorizeWithSession(r.Context(), r.PathValue("tenantId"), r.PathValue("id"), authn.AuthSessionFrom(r))
	writeSettled(w, r, res, err)
}

// DenyHandler resolves a request as refused by the user.
type DenyHandler struct {
	Flow *service.OAuthFlow
}

// ServeHTTP godoc
//
//	@Summary		Deny an authorization request
//	@Description	Resolves the request with error=access_denied and deletes it.
//	@Tags			Authentication
//	@Produce		json
//	@Param			tenantId	path		string							true	"Tenant"
//	@Param			id			path		string							true	"Authorization request id"
//	@Success		200			{object}	authsdk.AuthorizeResultResponse	"Client redirect"
//	@Failure		400			{object}	authsdk.ErrorResponse			"Request not found"
//	@Failure		401			{object}	authsdk.ErrorResponse			"AUTH_SESSION mismatch"
//	@Router			/{tenantId}/authorizations/{id}/deny [post]
func (h *DenyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.Flow.Deny(r.Context(), r.PathValue("tenantId"), r.PathValue("id"), authn.AuthSessionFrom(r))
	writeSettled(w, r, res, err)
}

func writeSettled(w http.ResponseWriter, r *http.Request, res oauth.AuthorizeResult, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Status != oauth.StatusOK || res.Response == nil {
		writeOAuthError(w, res.Error)
		return
	}

	out := authsdk.AuthorizeResultResponse{Location: res.Response.Location()}
	if res.Response.IsFormPost() {
		out.Parameters = res.Response.Params
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
