package http

import (
	"net/http"

	"github.com/aussiebroadwan/idp/internal/idp/ciba"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/internal/idp/service"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/httpx"
)

// BackchannelHandler serves the CIBA backchannel authentication endpoint.
type BackchannelHandler struct {
	Flow *service.CIBAFlow
}

// ServeHTTP godoc
//
//	@Summary		Backchannel authentication
//	@Description	Starts a client initiated backchannel authentication (CIBA Core 7.1).
//	@Description	Exactly one of login_hint, login_hint_token and id_token_hint identifies the user.
//	@Tags			CIBA
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			tenantId					path		string										true	"Tenant"
//	@Param			scope						formData	string										true	"Space-delimited scopes including openid"
//	@Param			login_hint					formData	string										false	"sub:, phone:, email: or device: hint"
//	@Param			login_hint_token			formData	string										false	"Signed hint token"
//	@Param			id_token_hint				formData	string										false	"ID token previously issued"
//	@Param			binding_message				formData	string										false	"Message shown on both devices"
//	@Param			user_code					formData	string										false	"User secret"
//	@Param			client_notification_token	formData	string										false	"Bearer token for ping and push"
//	@Param			requested_expiry			formData	int											false	"Requested expires_in"
//	@Param			request						formData	string										false	"Signed request object"
//	@Success		200							{object}	authsdk.BackchannelAuthenticationResponse	"auth_req_id, expires_in, interval"
//	@Failure		400							{object}	authsdk.ErrorResponse						"error, error_description"
//	@Failure		401							{object}	authsdk.ErrorResponse						"Client authentication failed"
//	@Router			/{tenantId}/backchannel/authentications [post]
func (h *BackchannelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params, ok := formParams(w, r)
	if !ok {
		return
	}

	res, err := h.Flow.Request(r.Context(), r.PathValue("tenantId"), oauth.Parameters(params), credentials(r, params))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Status != ciba.StatusOK || res.Response == nil {
		writeCIBAError(w, res.Error)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackchannelAuthenticationResponse{
		AuthReqID: res.Response.AuthReqID,
		ExpiresIn: res.Response.ExpiresIn,
		Interval:  res.Response.Interval,
	})
}

// DeviceInteractionHandler runs an interaction of the user's
// authentication device against a backchannel request.
type DeviceInteractionHandler struct {
	Flow *service.CIBAFlow
}

// ServeHTTP godoc
//
//	@Summary		Authentication device interaction
//	@Description	Runs one interaction of the authentication device (authentication-device-notification,
//	@Description	authentication-device-deny, fido-uaf-authentication, password-authentication, ...).
//	@Description	A deny with a scope parameter approves the request without those scopes.
//	@Tags			CIBA
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			tenantId	path		string						true	"Tenant"
//	@Param			id			path		string						true	"auth_req_id"
//	@Param			interaction	path		string						true	"Interaction type"
//	@Success		200			{object}	authsdk.InteractionResponse	"Interaction outcome"
//	@Failure		400			{object}	authsdk.InteractionResponse	"Rejected interaction"
//	@Failure		404			{object}	authsdk.ErrorResponse		"Unknown tenant or interaction"
//	@Router			/{tenantId}/backchannel/authentications/{id}/{interaction} [post]
func (h *DeviceInteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	typ, ok := interactionType(w, r)
	if !ok {
		return
	}
	params, ok := formParams(w, r)
	if !ok {
		return
	}

	res, err := h.Flow.Interact(r.Context(), r.PathValue("tenantId"), r.PathValue("id"), typ, params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if settled := res.Resolution; settled != nil && settled.Status != ciba.StatusOK {
		writeCIBAError(w, settled.Error)
		return
	}
	writeInteraction(w, res.Status, interactionBody(res.InteractResult))
}

// TokenHandler serves the token endpoint. Only the CIBA grant is issued
// here; authorization codes are redeemed by the resource tier.
type TokenHandler struct {
	Flow *service.CIBAFlow
}

// ServeHTTP godoc
//
//	@Summary		Token endpoint
//	@Description	Exchanges an auth_req_id for tokens (CIBA Core 10.1). Pending requests answer authorization_pending,
//	@Description	polling faster than the interval answers slow_down.
//	@Tags			CIBA
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			tenantId	path		string					true	"Tenant"
//	@Param			grant_type	formData	string					true	"urn:openid:params:grant-type:ciba"
//	@Param			auth_req_id	formData	string					true	"auth_req_id from the backchannel response"
//	@Success		200			{object}	authsdk.TokenResponse	"Tokens"
//	@Failure		400			{object}	authsdk.ErrorResponse	"authorization_pending, slow_down, expired_token, access_denied"
//	@Failure		401			{object}	authsdk.ErrorResponse	"Client authentication failed"
//	@Router			/{tenantId}/tokens [post]
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params, ok := formParams(w, r)
	if !ok {
		return
	}

	res, err := h.Flow.Token(r.Context(), r.PathValue("tenantId"), oauth.Parameters(params), credentials(r, params))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Status != ciba.StatusOK || res.Response == nil {
		writeCIBAError(w, res.Error)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  res.Response.AccessToken,
		TokenType:    res.Response.TokenType,
		ExpiresIn:    int64(res.Response.ExpiresIn),
		RefreshToken: res.Response.RefreshToken,
		IDToken:      res.Response.IDToken,
		Scope:        res.Response.Scope,
	})
}
