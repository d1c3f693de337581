package service_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/authn/mocks"
	"github.com/aussiebroadwan/idp/internal/idp/ciba"
	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/metrics"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/internal/idp/service"
	"github.com/aussiebroadwan/idp/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
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
				LockConditions: domain.ResultConditions{AnyOf: [][]domain.ResultCondition{{
					{Method: authn.MethodPassword, Type: domain.ConditionFailureCount, Value: 2},
				}}},
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
	clock   *clock
	store   *sqlite.Store
	devices *mocks.MockDeviceNotifier
	engine  *authn.Engine
	oauth   *service.OAuthFlow
	ciba    *service.CIBAFlow
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	hasher := cryptox.PasswordHasher{}
	hash, err := hasher.Hash(password)
	require.NoError(t, err)
	require.NoError(t, st.Users().Upsert(ctx, domain.User{
		Sub:               "alice",
		TenantID:          "t1",
		Status:            domain.UserRegistered,
		PreferredUsername: "alice",
		Email:             "alice@example.com",
		PasswordHash:      hash,
		Devices:           []domain.AuthenticationDevice{{ID: "phone-1", Priority: 1}},
	}))

	clk := &clock{now: time.Now().Truncate(time.Second)}
	devices := mocks.NewMockDeviceNotifier(gomock.NewController(t))
	m := metrics.New()
	stack := service.NewStack(service.StackConfig{
		Catalog:     domain.NewCatalog(tenantConfig(t)),
		Store:       st,
		Sessions:    st.Sessions(),
		Keys:        token.NewKeyRing(),
		ClientKeys:  clientauth.RegisteredKeys{},
		Interactors: authn.Dependencies{Passwords: hasher, Devices: devices},
		Metrics:     m,
		Now:         clk.Now,
	})

	return &fixture{
		clock:   clk,
		store:   st,
		devices: devices,
		engine:  stack.Authn,
		metrics: m,
		oauth:   stack.OAuth,
		ciba:    stack.CIBA,
	}
}

func authorizeParams() oauth.Parameters {
	return oauth.Parameters{
		"client_id":     "rp",
		"response_type": "code",
		"scope":         "openid email",
		"redirect_uri":  redirectURI,
		"state":         "st-1",
		"nonce":         "n-1",
	}
}

func location(t *testing.T, res *oauth.AuthorizeResult) url.Values {
	t.Helper()
	require.NotNil(t, res)
	require.Equal(t, oauth.StatusOK, res.Status, res.Error)
	u, err := url.Parse(res.Response.Location())
	require.NoError(t, err)
	return u.Query()
}

func login(username, pw string) map[string]string {
	return map[string]string{"username": username, "password": pw}
}

func TestOAuthFlowAuthenticatesAndAuthorizes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.oauth.Request(ctx, "t1", authorizeParams(), "")
	require.NoError(t, err)
	require.Equal(t, oauth.RequestOK, res.Status, res.Error)
	require.NotEmpty(t, res.AuthSession)
	require.NotNil(t, res.Transaction)
	require.Equal(t, "browser", res.Transaction.Policy.ID)
	cookie := res.AuthSession
	requestID := res.Request.ID

	t.Run("other user agents are refused", func(t *testing.T) {
		out, err := f.oauth.Interact(ctx, "t1", requestID, "stolen", authn.PasswordAuthentication, login("alice", password))
		require.NoError(t, err)
		require.Equal(t, authn.ResultUnauthorized, out.Status)
		require.Nil(t, out.Authorize)

		_, err = f.oauth.Transaction(ctx, "t1", requestID, "stolen")
		require.ErrorIs(t, err, authn.ErrUnauthorized)
	})

	txn, err := f.oauth.Transaction(ctx, "t1", requestID, cookie)
	require.NoError(t, err)
	require.Equal(t, res.Transaction.ID, txn.ID)

	out, err := f.oauth.Interact(ctx, "t1", requestID, cookie, authn.PasswordAuthentication, login("alice", password))
	require.NoError(t, err)
	require.Equal(t, authn.OutcomeSuccess, out.Outcome)
	q := location(t, out.Authorize)
	require.NotEmpty(t, q.Get("code"))
	require.Equal(t, "st-1", q.Get("state"))

	_, err = f.engine.Find(ctx, "t1", requestID)
	require.ErrorIs(t, err, authn.ErrTransactionNotFound)

	next, err := f.oauth.Request(ctx, "t1", authorizeParams(), cookie)
	require.NoError(t, err)
	require.Equal(t, oauth.RequestOKSessionEnable, next.Status, next.Error)
	require.Empty(t, next.AuthSession)

	done, err := f.oauth.AuthorizeWithSession(ctx, "t1", next.Request.ID, cookie)
	require.NoError(t, err)
	require.NotEmpty(t, location(t, &done).Get("code"))
	_, err = f.engine.Find(ctx, "t1", next.Request.ID)
	require.ErrorIs(t, err, authn.ErrTransactionNotFound)
}

func TestOAuthFlowDeny(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.oauth.Request(ctx, "t1", authorizeParams(), "")
	require.NoError(t, err)

	refused, err := f.oauth.Deny(ctx, "t1", res.Request.ID, "wrong")
	require.NoError(t, err)
	require.Equal(t, oauth.StatusUnauthorized, refused.Status)

	denied, err := f.oauth.Deny(ctx, "t1", res.Request.ID, res.AuthSession)
	require.NoError(t, err)
	require.Equal(t, "access_denied", location(t, &denied).Get("error"))
	_, err = f.engine.Find(ctx, "t1", res.Request.ID)
	require.ErrorIs(t, err, authn.ErrTransactionNotFound)
}

func TestOAuthFlowLockDeniesRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.oauth.Request(ctx, "t1", authorizeParams(), "")
	require.NoError(t, err)

	out, err := f.oauth.Interact(ctx, "t1", res.Request.ID, res.AuthSession, authn.PasswordAuthentication, login("alice", "nope"))
	require.NoError(t, err)
	require.Equal(t, authn.OutcomePending, out.Outcome)
	require.Nil(t, out.Authorize)

	out, err = f.oauth.Interact(ctx, "t1", res.Request.ID, res.AuthSession, authn.PasswordAuthentication, login("alice", "nope"))
	require.NoError(t, err)
	require.Equal(t, authn.OutcomeLocked, out.Outcome)
	require.Equal(t, "access_denied", location(t, out.Authorize).Get("error"))

	user, err := f.store.Users().Get(ctx, "t1", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.UserLocked, user.Status)
}

func TestUnknownTenant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.oauth.Request(ctx, "nope", authorizeParams(), "")
	require.ErrorIs(t, err, service.ErrUnknownTenant)
	_, err = f.ciba.Token(ctx, "nope", nil, clientauth.Credentials{})
	require.ErrorIs(t, err, service.ErrUnknownTenant)
}

func (f *fixture) backchannel(t *testing.T) ciba.RequestResult {
	t.Helper()
	f.devices.EXPECT().NotifyDevice(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d domain.AuthenticationDevice, txn *domain.AuthenticationTransaction) error {
			require.Equal(t, "phone-1", d.ID)
			require.Equal(t, "alice", txn.User.Sub)
			return nil
		})
	res, err := f.ciba.Request(context.Background(), "t1", oauth.Parameters{
		"scope":      "openid email profile",
		"login_hint": "alice",
	}, clientauth.Credentials{BasicID: "poller", BasicSecret: clientSecret, HasBasic: true})
	require.NoError(t, err)
	require.Equal(t, ciba.StatusOK, res.Status, res.Error)
	return res
}

func (f *fixture) poll(t *testing.T, authReqID string) ciba.TokenResult {
	t.Helper()
	res, err := f.ciba.Token(context.Background(), "t1", oauth.Parameters{
		"grant_type":  ciba.GrantType,
		"auth_req_id": authReqID,
	}, clientauth.Credentials{BasicID: "poller", BasicSecret: clientSecret, HasBasic: true})
	require.NoError(t, err)
	return res
}

func TestCIBAFlowPartialApproval(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	req := f.backchannel(t)

	pending := f.poll(t, req.Response.AuthReqID)
	require.Equal(t, ciba.StatusBadRequest, pending.Status)
	require.Equal(t, "authorization_pending", pending.Error.Code)

	out, err := f.ciba.Interact(ctx, "t1", req.Request.ID, authn.AuthenticationDeviceDeny, map[string]string{"denied_scopes": "email"})
	require.NoError(t, err)
	require.Equal(t, authn.OutcomeSuccess, out.Outcome)
	require.NotNil(t, out.Resolution)
	require.Equal(t, ciba.StatusOK, out.Resolution.Status, out.Resolution.Error)

	f.clock.Advance(6 * time.Second)
	tokens := f.poll(t, req.Response.AuthReqID)
	require.Equal(t, ciba.StatusOK, tokens.Status, tokens.Error)
	require.NotEmpty(t, tokens.Response.AccessToken)
	require.NotContains(t, tokens.Response.Scope, "email")

	_, err = f.engine.Find(ctx, "t1", req.Request.ID)
	require.ErrorIs(t, err, authn.ErrTransactionNotFound)
}

func TestCIBAFlowDeny(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	req := f.backchannel(t)

	out, err := f.ciba.Interact(ctx, "t1", req.Request.ID, authn.AuthenticationDeviceDeny, nil)
	require.NoError(t, err)
	require.Equal(t, authn.OutcomeFailure, out.Outcome)
	require.Equal(t, ciba.StatusOK, out.Resolution.Status)

	denied := f.poll(t, req.Response.AuthReqID)
	require.Equal(t, ciba.StatusBadRequest, denied.Status)
	require.Equal(t, "access_denied", denied.Error.Code)
}

func TestHousekeepingPurgesExpiredRecords(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.oauth.Request(ctx, "t1", authorizeParams(), "")
	require.NoError(t, err)
	f.backchannel(t)

	hk := service.NewHousekeepingService(f.store, f.store.Sessions(), slogx.Discard(), time.Hour)
	hk.Metrics = f.metrics
	hk.Now = f.clock.Now
	require.Zero(t, hk.Cleanup(ctx))

	f.clock.Advance(time.Hour)
	// authorization request, its transaction, backchannel request, ciba
	// grant and its transaction
	require.EqualValues(t, 5, hk.Cleanup(ctx))
}
