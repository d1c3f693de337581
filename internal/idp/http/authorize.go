package http

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/internal/idp/service"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/httpx"
)

// AuthorizeHandler serves the authorization endpoint of every tenant.
type AuthorizeHandler struct {
	Flow    *service.OAuthFlow
	Cookies authn.CookieOptions
}

// ServeHTTP godoc
//
//	@Summary		Authorization endpoint
//	@Description	Starts an OAuth 2.0 / OpenID Connect authorization request (RFC 6749, OIDC Core 3.1.2).
//	@Description	Plain parameters, a request object (request) or a request_uri (remote or from PAR) are accepted.
//	@Description
//	@Description	**Response:**
//	@Description	- Interaction required: 200 JSON naming the request and its authentication transaction, plus the AUTH_SESSION cookie
//	@Description	- prompt=none and redirectable errors: 302 to redirect_uri, or an auto-submitting form for form_post
//	@Description	- Untrusted redirect_uri or client: 400 JSON error
//	@Tags			OAuth2
//	@Produce		json
//	@Param			tenantId		path		string							true	"Tenant"
//	@Param			response_type	query		string							true	"code, id_token, code id_token, ..."
//	@Param			client_id		query		string							true	"Client identifier"
//	@Param			redirect_uri	query		string							false	"Registered redirect URI"
//	@Param			scope			query		string							false	"Space-delimited scopes"	example("openid profile")
//	@Param			state			query		string							false	"Opaque client state"
//	@Param			nonce			query		string							false	"ID token nonce"
//	@Param			prompt			query		string							false	"none, login, consent, select_account or create"
//	@Param			max_age			query		int								false	"Maximum authentication age in seconds"
//	@Param			acr_values		query		string							false	"Requested ACR values"
//	@Param			request			query		string							false	"Request object (JWS or JWE)"
//	@Param			request_uri		query		string							false	"Request object reference or PAR request_uri"
//	@Param			code_challenge	query		string							false	"PKCE challenge"
//	@Success		200				{object}	authsdk.AuthorizationResponse	"Interaction required"
//	@Success		302				{string}	string							"Redirect to the client"
//	@Failure		400				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		404				{object}	authsdk.ErrorResponse			"Unknown tenant"
//	@Router			/{tenantId}/authorizations [get]
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params, err := httpx.Params(r)
	if err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	tenantID := r.PathValue("tenantId")
	res, err := h.Flow.Request(r.Context(), tenantID, oauth.Parameters(params), authn.AuthSessionFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.AuthSession != "" {
		http.SetCookie(w, authn.AuthSessionCookie(tenantID, res.AuthSession, h.Cookies))
	}

	switch res.Status {
	case oauth.RequestOK, oauth.RequestOKSessionEnable, oauth.RequestOKAccountCreation:
		httpx.WriteJSON(w, http.StatusOK, authorizationResponse(res))
	case oauth.RequestNoInteractionOK, oauth.RequestRedirectableBadRequest:
		writeAuthorizationResponse(w, r, res.Response)
	default:
		writeOAuthError(w, res.Error)
	}
}

func authorizationResponse(res service.OAuthRequestResult) authsdk.AuthorizationResponse {
	out := authsdk.AuthorizationResponse{Status: string(res.Status)}
	if req := res.Request; req != nil {
		out.RequestID = req.ID
		out.ClientID = req.ClientID
		out.Scopes = req.Scopes
		out.ExpiresAt = req.ExpiresAt
	}
	if txn := res.Transaction; txn != nil {
		out.TransactionID = txn.ID
		out.Methods = txn.Policy.AvailableMethods
	}
	return out
}

var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Submit This Form</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{- range $name, $values := .Values}}
<input type="hidden" name="{{$name}}" value="{{index $values 0}}"/>
{{- end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

// writeAuthorizationResponse delivers an authorization response to the
// client through the user agent.
func writeAuthorizationResponse(w http.ResponseWriter, r *http.Request, resp *oauth.Response) {
	if resp == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.NoCache(w)
	if resp.IsFormPost() {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = formPostTemplate.Execute(w, map[string]any{
			"Action": resp.RedirectURI,
			"Values": resp.FormValues(),
		})
		return
	}
	http.Redirect(w, r, resp.Location(), http.StatusFound)
}

// PushedAuthorizationHandler serves the pushed authorization request
// endpoint (RFC 9126).
type PushedAuthorizationHandler struct {
	Flow *service.OAuthFlow
}

// ServeHTTP godoc
//
//	@Summary		Pushed authorization request
//	@Description	Authenticates the client, validates the request like the authorization endpoint and stores it for a single use.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			tenantId		path		string								true	"Tenant"
//	@Param			client_id		formData	string								false	"Client identifier"
//	@Param			client_secret	formData	string								false	"Client secret (client_secret_post)"
//	@Param			response_type	formData	string								true	"Response type"
//	@Param			redirect_uri	formData	string								false	"Registered redirect URI"
//	@Param			scope			formData	string								false	"Space-delimited scopes"
//	@Param			request			formData	string								false	"Request object"
//	@Success		201				{object}	authsdk.PushedAuthorizationResponse	"request_uri, expires_in"
//	@Failure		400				{object}	authsdk.ErrorResponse				"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse				"Client authentication failed"
//	@Router			/{tenantId}/par [post]
func (h *PushedAuthorizationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params, ok := formParams(w, r)
	if !ok {
		return
	}

	res, err := h.Flow.Push(r.Context(), r.PathValue("tenantId"), oauth.Parameters(params), credentials(r, params))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Status != oauth.StatusOK {
		writeOAuthError(w, res.Error)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.PushedAuthorizationResponse{
		RequestURI: res.RequestURI,
		ExpiresIn:  res.ExpiresIn,
	})
}

// formParams enforces an urlencoded body and returns its parameters.
func formParams(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return nil, false
	}
	params, err := httpx.Params(r)
	if err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return nil, false
	}
	return params, true
}
