package http_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/ciba"
	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	idphttp "github.com/aussiebroadwan/idp/internal/idp/http"
	"github.com/aussiebroadwan/idp/internal/idp/metrics"
	"github.com/aussiebroadwan/idp/internal/idp/service"
	"github.com/aussiebroadwan/idp/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/josex"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

const (
	redirectURI  = "https://rp.example.com/cb"
	clientSecret = "rp-secret-rp-secret-rp-secret-32"
	password     = "correct horse battery"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func tenantConfig(t *testing.T) domain.TenantConfig {
	t.Helper()
	set, err := josex.GenerateJWKS(josex.KeySpec{Alg: "ES256"})
	require.NoError(t, err)
	raw, err := josex.MarshalJWKS(set)
	require.NoError(t, err)

	return domain.TenantConfig{
		Tenant: domain.Tenant{
			ID: "t1",
			Server: domain.ServerConfig{
				Issuer:                   "https://op.example.com/t1",
				PARPath:                  "/par",
				ScopesSupported:          []string{"openid", "email", "profile"},
				ResponseTypesSupported:   []string{"code"},
				GrantTypesSupported:      []string{"authorization_code", ciba.GrantType},
				BackchannelDeliveryModes: []string{domain.DeliveryModePoll},
				JWKS:                     raw,
				DefaultSigningAlg:        "ES256",
				AuthorizationCodeTTL:     time.Minute,
				AccessTokenTTL:           time.Hour,
				IDTokenTTL:               time.Hour,
				RefreshTokenTTL:          24 * time.Hour,
				AuthorizationRequestTTL:  10 * time.Minute,
				AuthorizationResponseTTL: time.Minute,
				PushedRequestTTL:         90 * time.Second,
				SessionTTL:               time.Hour,
				BackchannelExpiresIn:     300 * time.Second,
				BackchannelInterval:      5 * time.Second,
			},
		},
		Clients: map[string]domain.ClientConfig{
			"rp": {
				ClientID:                "rp",
				ClientSecret:            clientSecret,
				RedirectURIs:            []string{redirectURI},
				ResponseTypes:           []string{"code"},
				Scopes:                  []string{"openid", "email", "profile"},
				TokenEndpointAuthMethod: domain.AuthMethodClientSecretBasic,
			},
			"poller": {
				ClientID:                     "poller",
				ClientSecret:                 clientSecret,
				GrantTypes:                   []string{ciba.GrantType},
				Scopes:                       []string{"openid", "email", "profile"},
				TokenEndpointAuthMethod:      domain.AuthMethodClientSecretBasic,
				BackchannelTokenDeliveryMode: domain.DeliveryModePoll,
			},
		},
		Policies: []domain.AuthenticationPolicy{
			{
				ID:               "browser",
				Conditions:       domain.PolicyConditions{Flows: []domain.Flow{domain.FlowOAuth}},
				AvailableMethods: []string{authn.MethodPassword},
			},
			{
				ID:               "device",
				Conditions:       domain.PolicyConditions{Flows: []domain.Flow{domain.FlowCIBA}},
				AvailableMethods: []string{authn.MethodDevice},
			},
		},
	}
}

type fixture struct {
	clock  *clock
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	hasher := cryptox.PasswordHasher{}
	hash, err := hasher.Hash(password)
	require.NoError(t, err)
	require.NoError(t, st.Users().Upsert(context.Background(), domain.User{
		Sub:               "alice",
		TenantID:          "t1",
		Status:            domain.UserRegistered,
		PreferredUsername: "alice",
		Email:             "alice@example.com",
		PasswordHash:      hash,
		Devices:           []domain.AuthenticationDevice{{ID: "phone-1", Priority: 1}},
	}))

	clk := &clock{now: time.Now().Truncate(time.Second)}
	catalog := domain.NewCatalog(tenantConfig(t))
	keys := token.NewKeyRing()
	m := metrics.New()
	stack := service.NewStack(service.StackConfig{
		Catalog:     catalog,
		Store:       st,
		Sessions:    st.Sessions(),
		Keys:        keys,
		ClientKeys:  clientauth.RegisteredKeys{},
		Interactors: authn.Dependencies{Passwords: hasher, Devices: authn.DiscardDeviceNotifier{}},
		Metrics:     m,
		Now:         clk.Now,
	})

	router := idphttp.NewRouter(catalog, keys, "test", st, st.Sessions(), slogx.Discard())
	router.OAuth = stack.OAuth
	router.CIBA = stack.CIBA
	router.Metrics = m
	router.Cookies = authn.CookieOptions{SameSite: http.SameSiteLaxMode}
	router.Limits = httpx.Limits{}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{clock: clk, server: srv}
}

func (f *fixture) client() *authsdk.SDKClient {
	return authsdk.NewSDKClient(f.server.URL)
}

func authorizeParams() url.Values {
	return url.Values{
		"client_id":     {"rp"},
		"response_type": {"code"},
		"scope":         {"openid email"},
		"redirect_uri":  {redirectURI},
		"state":         {"st-1"},
		"nonce":         {"n-1"},
	}
}

func query(t *testing.T, location string) url.Values {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	require.Equal(t, redirectURI, u.Scheme+"://"+u.Host+u.Path)
	return u.Query()
}

func requireOAuthError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var oerr *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, status, oerr.StatusCode)
	require.Equal(t, code, oerr.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	client := f.client()

	live, err := client.GetLiveness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := client.GetReadiness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Tenants)
}

func TestJWKS(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	set, err := f.client().GetJWKS(t.Context(), "t1")
	require.NoError(t, err)
	require.Len(t, set.Keys, 1)
	require.True(t, set.Keys[0].IsPublic())

	_, err = f.client().GetJWKS(t.Context(), "nope")
	requireOAuthError(t, err, http.StatusNotFound, authsdk.ErrorCodeInvalidRequest)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.client().Authorize(t.Context(), "t1", authorizeParams())
	require.NoError(t, err)

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "idp_authorization_requests_total")
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	browser := f.client()
	ctx := t.Context()

	out, err := browser.Authorize(ctx, "t1", authorizeParams())
	require.NoError(t, err)
	require.NotNil(t, out.Interaction)
	require.Equal(t, "OK", out.Interaction.Status)
	require.NotEmpty(t, out.Interaction.TransactionID)
	require.Equal(t, []string{authn.MethodPassword}, out.Interaction.Methods)
	requestID := out.Interaction.RequestID

	t.Run("other user agents are refused", func(t *testing.T) {
		_, err := f.client().GetTransaction(ctx, "t1", requestID)
		requireOAuthError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeAccessDenied)

		_, err = f.client().Interact(ctx, "t1", requestID, "password-authentication",
			url.Values{"username": {"alice"}, "password": {password}})
		requireOAuthError(t, err, http.StatusUnauthorized, "unauthorized")
	})

	txn, err := browser.GetTransaction(ctx, "t1", requestID)
	require.NoError(t, err)
	require.Equal(t, out.Interaction.TransactionID, txn.ID)
	require.Equal(t, "rp", txn.ClientID)

	res, err := browser.Interact(ctx, "t1", requestID, "password-authentication",
		url.Values{"username": {"alice"}, "password": {"wrong"}})
	requireOAuthError(t, err, http.StatusBadRequest, "invalid_credentials")
	require.Equal(t, "PENDING", res.Outcome)

	res, err = browser.Interact(ctx, "t1", requestID, "password-authentication",
		url.Values{"username": {"alice"}, "password": {password}})
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", res.Outcome)
	q := query(t, res.Location)
	require.NotEmpty(t, q.Get("code"))
	require.Equal(t, "st-1", q.Get("state"))

	t.Run("existing session authorizes without interaction", func(t *testing.T) {
		next, err := browser.Authorize(ctx, "t1", authorizeParams())
		require.NoError(t, err)
		require.NotNil(t, next.Interaction)
		require.Equal(t, "OK_SESSION_ENABLE", next.Interaction.Status)

		location, err := browser.AuthorizeWithSession(ctx, "t1", next.Interaction.RequestID)
		require.NoError(t, err)
		require.NotEmpty(t, query(t, location).Get("code"))
	})
}

func TestDeny(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	browser := f.client()

	out, err := browser.Authorize(t.Context(), "t1", authorizeParams())
	require.NoError(t, err)

	location, err := browser.Deny(t.Context(), "t1", out.Interaction.RequestID)
	require.NoError(t, err)
	q := query(t, location)
	require.Equal(t, authsdk.ErrorCodeAccessDenied, q.Get("error"))
	require.Equal(t, "st-1", q.Get("state"))

	_, err = browser.Deny(t.Context(), "t1", out.Interaction.RequestID)
	require.Error(t, err)
}

func TestAuthorizeErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	t.Run("prompt none without session redirects", func(t *testing.T) {
		params := authorizeParams()
		params.Set("prompt", "none")
		out, err := f.client().Authorize(t.Context(), "t1", params)
		require.NoError(t, err)
		require.Nil(t, out.Interaction)
		require.Equal(t, authsdk.ErrorCodeLoginRequired, query(t, out.Location).Get("error"))
	})

	t.Run("unregistered redirect uri is not redirected to", func(t *testing.T) {
		params := authorizeParams()
		params.Set("redirect_uri", "https://evil.example.com/cb")
		_, err := f.client().Authorize(t.Context(), "t1", params)
		var oerr *authsdk.OAuth2Error
		require.ErrorAs(t, err, &oerr)
		require.Equal(t, http.StatusBadRequest, oerr.StatusCode)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := f.client().Authorize(t.Context(), "nope", authorizeParams())
		requireOAuthError(t, err, http.StatusNotFound, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("unknown interaction", func(t *testing.T) {
		_, err := f.client().Interact(t.Context(), "t1", "req", "carrier-pigeon", nil)
		requireOAuthError(t, err, http.StatusNotFound, authsdk.ErrorCodeInvalidRequest)
	})
}

func TestFormPostResponse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	params := authorizeParams()
	params.Set("prompt", "none")
	params.Set("response_mode", "form_post")
	resp, err := http.Get(f.server.URL + "/t1/authorizations?" + params.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `action="https://rp.example.com/cb"`)
	require.Contains(t, string(body), `name="error" value="login_required"`)
}

func TestPushedAuthorizationRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	browser := f.client()
	rp := authsdk.ClientAuth{ClientID: "rp", ClientSecret: clientSecret, Basic: true}

	pushed, err := browser.PushAuthorizationRequest(t.Context(), "t1", rp, authorizeParams())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(pushed.RequestURI, "urn:ietf:params:oauth:request_uri:"))
	require.Equal(t, int64(90), pushed.ExpiresIn)

	ref := url.Values{"client_id": {"rp"}, "request_uri": {pushed.RequestURI}}
	out, err := browser.Authorize(t.Context(), "t1", ref)
	require.NoError(t, err)
	require.NotNil(t, out.Interaction)
	require.Equal(t, []string{"openid", "email"}, out.Interaction.Scopes)

	t.Run("request uri is single use", func(t *testing.T) {
		_, err := browser.Authorize(t.Context(), "t1", ref)
		require.Error(t, err)
	})

	t.Run("bad client secret", func(t *testing.T) {
		_, err := browser.PushAuthorizationRequest(t.Context(), "t1",
			authsdk.ClientAuth{ClientID: "rp", ClientSecret: "nope", Basic: true}, authorizeParams())
		requireOAuthError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidClient)
	})
}

func TestPushedAuthorizationRequestRejectsJSON(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, err := http.Post(f.server.URL+"/t1/par", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBackchannelFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	client := f.client()
	ctx := t.Context()
	poller := authsdk.ClientAuth{ClientID: "poller", ClientSecret: clientSecret, Basic: true}

	started, err := client.BackchannelAuthenticate(ctx, "t1", poller, url.Values{
		"scope":      {"openid email profile"},
		"login_hint": {"alice"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, started.AuthReqID)
	require.Equal(t, 300, started.ExpiresIn)
	require.Equal(t, 5, started.Interval)

	_, err = client.CIBAToken(ctx, "t1", poller, started.AuthReqID)
	requireOAuthError(t, err, http.StatusBadRequest, authsdk.ErrorCodeAuthorizationPending)

	res, err := client.DeviceInteract(ctx, "t1", started.AuthReqID, "authentication-device-deny",
		url.Values{"denied_scopes": {"email"}})
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", res.Outcome)

	f.clock.Advance(6 * time.Second)
	tokens, err := client.CIBAToken(ctx, "t1", poller, started.AuthReqID)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.IDToken)
	require.NotContains(t, tokens.Scope, "email")
}

func TestBackchannelDeny(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	client := f.client()
	ctx := t.Context()
	poller := authsdk.ClientAuth{ClientID: "poller", ClientSecret: clientSecret, Basic: true}

	started, err := client.BackchannelAuthenticate(ctx, "t1", poller, url.Values{
		"scope":      {"openid"},
		"login_hint": {"alice"},
	})
	require.NoError(t, err)

	res, err := client.DeviceInteract(ctx, "t1", started.AuthReqID, "authentication-device-deny", nil)
	require.NoError(t, err)
	require.Equal(t, "FAILURE", res.Outcome)

	_, err = client.CIBAToken(ctx, "t1", poller, started.AuthReqID)
	requireOAuthError(t, err, http.StatusBadRequest, authsdk.ErrorCodeAccessDenied)
}

func TestBackchannelErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	client := f.client()
	poller := authsdk.ClientAuth{ClientID: "poller", ClientSecret: clientSecret, Basic: true}

	t.Run("unknown user", func(t *testing.T) {
		_, err := client.BackchannelAuthenticate(t.Context(), "t1", poller, url.Values{
			"scope":      {"openid"},
			"login_hint": {"mallory"},
		})
		requireOAuthError(t, err, http.StatusBadRequest, authsdk.ErrorCodeUnknownUserID)
	})

	t.Run("client authentication", func(t *testing.T) {
		_, err := client.BackchannelAuthenticate(t.Context(), "t1",
			authsdk.ClientAuth{ClientID: "poller", ClientSecret: "nope", Basic: true},
			url.Values{"scope": {"openid"}, "login_hint": {"alice"}})
		requireOAuthError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidClient)
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		form := url.Values{"grant_type": {"password"}, "username": {"alice"}}
		req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, f.server.URL+"/t1/tokens", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("poller", clientSecret)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	})
}
