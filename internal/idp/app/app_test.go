package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idp/internal/idp/ciba"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/josex"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

const tenantsYAML = `
tenants:
  - id: acme
    name: Acme
    server:
      scopes_supported: [openid, email, profile]
      backchannel_interval: 2s
      access_token_ttl: 15m
    clients:
      - client_id: web
        client_secret: web-secret
        redirect_uris: [https://web.example.com/cb]
        scopes: [openid, email]
      - client_id: bank
        token_endpoint_auth_method: private_key_jwt
        backchannel_token_delivery_mode: ping
        backchannel_client_notification_endpoint: https://bank.example.com/notify
    policies:
      - id: browser
        conditions:
          flows: [oauth]
        available_methods: [pwd]
    users:
      - sub: alice
        password: correct horse battery
        email: alice@example.com
        custom_properties:
          user_code: "1234"
        devices:
          - id: phone-1
            priority: 1
`

func testConfig() Config {
	return Config{
		IssuerBase: "https://idp.example.com",
		Algorithm:  "ES256",
		NumKeys:    2,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("IDP_ISSUER_BASE", "https://idp.example.com/")
	t.Setenv("IDP_NUM_KEYS", "50")
	t.Setenv("IDP_COOKIE_SAMESITE", "strict")
	t.Setenv("IDP_REQUEST_URI_ALLOWED_HOSTS", "rp.example.com, ,cdn.example.com")
	t.Setenv("HOUSEKEEPING_INTERVAL", "15")
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "3")

	cfg := LoadConfig()
	require.Equal(t, "https://idp.example.com", cfg.IssuerBase)
	require.Equal(t, "ES256", cfg.Algorithm)
	require.Equal(t, 10, cfg.NumKeys)
	require.True(t, cfg.CookieSecure)
	require.Equal(t, http.SameSiteStrictMode, cfg.CookieSameSite)
	require.Equal(t, []string{"rp.example.com", "cdn.example.com"}, cfg.RequestURIAllowedHosts)
	require.Equal(t, 15*time.Minute, cfg.HousekeepingInterval)
	require.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	require.Equal(t, 3, cfg.Limits.Strict.RequestsPerWindow)
	require.Empty(t, cfg.RedisAddr)
}

func TestParseCatalogue(t *testing.T) {
	t.Parallel()
	hasher := cryptox.PasswordHasher{Pepper: "pepper"}

	cat, err := ParseCatalogue([]byte(tenantsYAML), testConfig(), hasher)
	require.NoError(t, err)
	require.Equal(t, []string{"acme"}, cat.Generated)

	tc, err := cat.Catalog.Tenant("acme")
	require.NoError(t, err)

	t.Run("server defaults", func(t *testing.T) {
		t.Parallel()
		s := tc.Tenant.Server
		require.Equal(t, "https://idp.example.com/acme", s.Issuer)
		require.Equal(t, []string{"code"}, s.ResponseTypesSupported)
		require.Contains(t, s.GrantTypesSupported, ciba.GrantType)
		require.Equal(t, 2*time.Second, s.BackchannelInterval)
		require.Equal(t, 300*time.Second, s.BackchannelExpiresIn)
		require.Equal(t, 15*time.Minute, s.AccessTokenTTL)
		require.Equal(t, 90*time.Second, s.PushedRequestTTL)
		require.Equal(t, "/par", s.PARPath)
		require.Equal(t, "ES256", s.DefaultSigningAlg)

		set, err := josex.ParseJWKS(s.JWKS)
		require.NoError(t, err)
		require.Len(t, set.Keys, 2)
		require.False(t, set.Keys[0].IsPublic())
	})

	t.Run("clients", func(t *testing.T) {
		t.Parallel()
		web := tc.Clients["web"]
		require.Equal(t, domain.AuthMethodClientSecretBasic, web.TokenEndpointAuthMethod)
		require.Equal(t, "web", web.ApplicationType)
		require.Equal(t, []string{"https://web.example.com/cb"}, web.RedirectURIs)

		bank := tc.Clients["bank"]
		require.Equal(t, "private_key_jwt", bank.TokenEndpointAuthMethod)
		require.Equal(t, domain.DeliveryModePing, bank.BackchannelTokenDeliveryMode)
	})

	t.Run("policies and users", func(t *testing.T) {
		t.Parallel()
		require.Len(t, tc.Policies, 1)
		require.Equal(t, []domain.Flow{domain.FlowOAuth}, tc.Policies[0].Conditions.Flows)

		require.Len(t, cat.Users, 1)
		alice := cat.Users[0]
		require.Equal(t, "acme", alice.TenantID)
		require.Equal(t, domain.UserRegistered, alice.Status)
		require.Equal(t, "1234", alice.CustomProperties["user_code"])
		require.Len(t, alice.Devices, 1)
		require.NoError(t, hasher.Verify("correct horse battery", alice.PasswordHash))
	})
}

func TestParseCatalogueRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":        "tenants: []",
		"missing id":   "tenants:\n  - name: x",
		"duplicate":    "tenants:\n  - id: a\n  - id: a",
		"bad jwks":     "tenants:\n  - id: a\n    server:\n      jwks: '{'",
		"client no id": "tenants:\n  - id: a\n    clients:\n      - client_secret: x",
		"user no sub":  "tenants:\n  - id: a\n    users:\n      - email: a@example.com",
		"not yaml":     "tenants: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseCatalogue([]byte(doc), testConfig(), cryptox.PasswordHasher{})
			require.Error(t, err)
		})
	}
}

func TestSeedKeepsLifecycleStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	cat, err := ParseCatalogue([]byte(tenantsYAML), testConfig(), cryptox.PasswordHasher{})
	require.NoError(t, err)
	logger := slogx.Discard()

	require.NoError(t, cat.Seed(ctx, st, logger))
	require.NoError(t, st.Users().UpdateStatus(ctx, "acme", "alice", domain.UserLocked))

	require.NoError(t, cat.Seed(ctx, st, logger))
	alice, err := st.Users().Get(ctx, "acme", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.UserLocked, alice.Status)
	require.Equal(t, "alice@example.com", alice.Email)
}
