package authn_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/authn/mocks"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

const password = "correct horse battery"

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

func condition(method, typ string, value int) domain.ResultCondition {
	return domain.ResultCondition{Method: method, Type: typ, Value: value}
}

var policies = []domain.AuthenticationPolicy{
	{
		ID:               "login",
		ACRValue:         "urn:idp:acr:mfa",
		AvailableMethods: []string{authn.MethodPassword, authn.MethodSMS},
		StepDefinitions: []domain.StepDefinition{
			{Method: authn.MethodPassword, Order: 1, Next: authn.MethodSMS},
			{Method: authn.MethodSMS, Order: 2, MaxAttempts: 2},
		},
		SuccessConditions: domain.ResultConditions{AnyOf: [][]domain.ResultCondition{{
			condition(authn.MethodPassword, domain.ConditionSuccessCount, 1),
			condition(authn.MethodSMS, domain.ConditionSuccessCount, 1),
		}}},
		LockConditions: domain.ResultConditions{AnyOf: [][]domain.ResultCondition{{
			condition(authn.MethodPassword, domain.ConditionFailureCount, 3),
		}}},
	},
	{ID: "totp", AvailableMethods: []string{authn.MethodTOTP}},
	{ID: "fido", AvailableMethods: []string{authn.MethodFidoUAF, authn.MethodWebAuthn}},
	{ID: "device", AvailableMethods: []string{authn.MethodDevice}},
}

func policy(t *testing.T, id string) *domain.AuthenticationPolicy {
	t.Helper()
	for i := range policies {
		if policies[i].ID == id {
			p := policies[i]
			return &p
		}
	}
	t.Fatalf("no policy %q", id)
	return nil
}

type fixture struct {
	tc       *domain.TenantConfig
	clock    *clock
	store    *sqlite.Store
	engine   *authn.Engine
	sender   *mocks.MockMessageSender
	devices  *mocks.MockDeviceNotifier
	delegate *mocks.MockDelegate
	secret   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	hasher := cryptox.PasswordHasher{Pepper: "pepper"}
	hash, err := hasher.Hash(password)
	require.NoError(t, err)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "idp", AccountName: "alice"})
	require.NoError(t, err)

	require.NoError(t, st.Users().Upsert(ctx, domain.User{
		Sub:               "alice",
		TenantID:          "t1",
		Status:            domain.UserRegistered,
		PreferredUsername: "alice",
		Email:             "alice@example.com",
		PhoneNumber:       "+61400000000",
		PasswordHash:      hash,
		TOTPSecret:        key.Secret(),
		Devices:           []domain.AuthenticationDevice{{ID: "phone-1", Priority: 1}},
	}))
	require.NoError(t, st.Users().Upsert(ctx, domain.User{
		Sub:               "frozen",
		TenantID:          "t1",
		Status:            domain.UserSuspended,
		PreferredUsername: "frozen",
		PasswordHash:      hash,
	}))

	ctrl := gomock.NewController(t)
	f := &fixture{
		tc: &domain.TenantConfig{
			Tenant:   domain.Tenant{ID: "t1", Server: domain.ServerConfig{Issuer: "https://op.example.com/t1"}},
			Policies: policies,
		},
		clock:    &clock{now: time.Now().Truncate(time.Second)},
		store:    st,
		sender:   mocks.NewMockMessageSender(ctrl),
		devices:  mocks.NewMockDeviceNotifier(ctrl),
		delegate: mocks.NewMockDelegate(ctrl),
		secret:   key.Secret(),
	}
	f.engine = &authn.Engine{
		Store: st,
		Interactors: authn.NewInteractors(authn.Dependencies{
			Passwords: hasher,
			Sender:    f.sender,
			Devices:   f.devices,
			FidoUAF:   f.delegate,
			Now:       f.clock.Now,
		}),
		Now: f.clock.Now,
	}
	return f
}

type txnOpts struct {
	flow        domain.Flow
	user        *domain.User
	authSession string
}

func (f *fixture) create(t *testing.T, requestID, policyID string, opts txnOpts) domain.AuthenticationTransaction {
	t.Helper()
	flow := opts.flow
	if flow == "" {
		flow = domain.FlowOAuth
	}
	built := authn.TransactionBuilder{
		TenantID:    "t1",
		Flow:        flow,
		RequestID:   requestID,
		ClientID:    "rp",
		User:        opts.user,
		DeviceID:    "phone-1",
		Context:     domain.AuthenticationContext{Scopes: []string{"openid", "email", "profile"}},
		Policy:      policy(t, policyID),
		AuthSession: opts.authSession,
		ExpiresAt:   f.clock.Now().Add(10 * time.Minute),
	}.Build(f.clock.Now())
	txn, err := f.engine.Create(context.Background(), built)
	require.NoError(t, err)
	return txn
}

func (f *fixture) interact(t *testing.T, requestID string, typ authn.InteractionType, params map[string]string) authn.InteractResult {
	t.Helper()
	return f.interactWithSession(t, requestID, "", typ, params)
}

func (f *fixture) interactWithSession(t *testing.T, requestID, session string, typ authn.InteractionType, params map[string]string) authn.InteractResult {
	t.Helper()
	return f.engine.Interact(context.Background(), f.tc, authn.InteractInput{
		RequestID:   requestID,
		AuthSession: session,
		Type:        typ,
		Params:      params,
	})
}

func (f *fixture) user(t *testing.T, sub string) domain.User {
	t.Helper()
	u, err := f.store.Users().Get(context.Background(), "t1", sub)
	require.NoError(t, err)
	return u
}

func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func TestPasswordThenSMS(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "req-1", "login", txnOpts{})

	res := f.interact(t, "req-1", authn.PasswordAuthentication, map[string]string{"username": "alice", "password": password})
	require.Equal(t, authn.ResultOK, res.Status)
	require.Equal(t, authn.OutcomePending, res.Outcome)
	require.Equal(t, authn.MethodSMS, res.Body["next"])
	require.Equal(t, "alice", res.Transaction.User.Sub)
	require.Equal(t, domain.TransactionInProgress, res.Transaction.Status)

	var sent authn.Message
	f.sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m authn.Message) error {
		sent = m
		return nil
	})
	res = f.interact(t, "req-1", authn.SMSAuthenticationChallenge, nil)
	require.Equal(t, authn.ResultOK, res.Status)
	require.Equal(t, authn.OutcomePending, res.Outcome)
	require.Equal(t, 300, res.Body["expires_in"])
	require.Equal(t, "+61400000000", sent.To)
	require.Equal(t, authn.MethodSMS, sent.Channel)
	require.Len(t, sent.Code, 6)
	require.NotContains(t, res.Transaction.Results, authn.MethodSMS)

	res = f.interact(t, "req-1", authn.SMSAuthentication, map[string]string{"verification_code": wrongCode(sent.Code)})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.Equal(t, "invalid_code", res.Body["error"])
	require.Equal(t, 1, res.Body["remaining"])

	res = f.interact(t, "req-1", authn.SMSAuthentication, map[string]string{"verification_code": sent.Code})
	require.Equal(t, authn.ResultOK, res.Status)
	require.Equal(t, authn.OutcomeSuccess, res.Outcome)
	require.Equal(t, domain.TransactionAuthorized, res.Transaction.Status)
	require.Empty(t, res.Transaction.Challenges)

	auth := res.Transaction.Authentication()
	require.Equal(t, []string{authn.MethodPassword, authn.MethodSMS}, auth.Methods)
	require.Equal(t, "urn:idp:acr:mfa", auth.ACR)

	res = f.interact(t, "req-1", authn.PasswordAuthentication, map[string]string{"username": "alice", "password": password})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.ErrorIs(t, res.Error, authn.ErrTransactionResolved)
	require.Equal(t, authn.OutcomeSuccess, res.Outcome)
}

func TestSMSTooManyAttempts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "req-1", "login", txnOpts{})

	var code string
	f.sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m authn.Message) error {
		code = m.Code
		return nil
	})
	res := f.interact(t, "req-1", authn.SMSAuthenticationChallenge, map[string]string{"phone_number": "+61400000000"})
	require.Equal(t, authn.ResultOK, res.Status)

	res = f.interact(t, "req-1", authn.SMSAuthentication, map[string]string{"verification_code": wrongCode(code)})
	require.Equal(t, "invalid_code", res.Body["error"])
	res = f.interact(t, "req-1", authn.SMSAuthentication, map[string]string{"verification_code": wrongCode(code)})
	require.Equal(t, "too_many_attempts", res.Body["error"])
	require.Equal(t, 2, res.Transaction.Results[authn.MethodSMS].FailureCount)

	res = f.interact(t, "req-1", authn.SMSAuthentication, map[string]string{"verification_code": code})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.Equal(t, "invalid_request", res.Body["error"])
}

func TestSMSChallengeExpires(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "req-1", "login", txnOpts{})

	var code string
	f.sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m authn.Message) error {
		code = m.Code
		return nil
	})
	f.interact(t, "req-1", authn.SMSAuthenticationChallenge, map[string]string{"phone_number": "+61400000000"})
	f.clock.Advance(authn.ChallengeTTL)

	res := f.interact(t, "req-1", authn.SMSAuthentication, map[string]string{"verification_code": code})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.Equal(t, "expired_code", res.Body["error"])
}

func TestPasswordFailuresLockUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "req-1", "login", txnOpts{})

	bad := map[string]string{"username": "alice@example.com", "password": "wrong"}
	for i := range 2 {
		res := f.interact(t, "req-1", authn.PasswordAuthentication, bad)
		require.Equal(t, authn.ResultBadRequest, res.Status, "attempt %d", i)
		require.Equal(t, "invalid_credentials", res.Body["error"])
		require.Equal(t, authn.OutcomePending, res.Outcome)
	}

	res := f.interact(t, "req-1", authn.PasswordAuthentication, bad)
	require.Equal(t, authn.OutcomeLocked, res.Outcome)
	require.Equal(t, domain.TransactionLocked, res.Transaction.Status)
	require.Equal(t, domain.UserLocked, f.user(t, "alice").Status)

	f.create(t, "req-2", "login", txnOpts{})
	res = f.interact(t, "req-2", authn.PasswordAuthentication, map[string]string{"username": "alice", "password": password})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.Equal(t, "user_inactive", res.Body["error"])
}

func TestInactiveUserCannotAuthenticate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "req-1", "login", txnOpts{})

	res := f.interact(t, "req-1", authn.PasswordAuthentication, map[string]string{"username": "frozen", "password": password})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.Equal(t, "user_inactive", res.Body["error"])
	require.Equal(t, 1, res.Transaction.Results[authn.MethodPassword].FailureCount)
}

func TestPasswordRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params map[string]string
		code   string
	}{
		{name: "missing password", params: map[string]string{"username": "alice"}, code: "invalid_request"},
		{name: "unknown user", params: map[string]string{"username": "nobody", "password": password}, code: "user_not_found"},
		{name: "wrong password", params: map[string]string{"username": "alice", "password": "nope"}, code: "invalid_credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.create(t, "req-1", "login", txnOpts{})

			res := f.interact(t, "req-1", authn.PasswordAuthentication, tt.params)
			require.Equal(t, authn.ResultBadRequest, res.Status)
			require.Equal(t, tt.code, res.Body["error"])
		})
	}
}

func TestPasswordUserMismatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	bob := domain.User{Sub: "bob", TenantID: "t1", Status: domain.UserRegistered}
	f.create(t, "req-1", "login", txnOpts{user: &bob})

	res := f.interact(t, "req-1", authn.PasswordAuthentication, map[string]string{"username": "alice", "password": password})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.Equal(t, "user_mismatch", res.Body["error"])
}

func TestInteractRejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "req-1", "login", txnOpts{})

	res := f.interact(t, "missing", authn.PasswordAuthentication, nil)
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.ErrorIs(t, res.Error, authn.ErrTransactionNotFound)

	res = f.interact(t, "req-1", authn.TOTPAuthentication, map[string]string{"code": "123456"})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.ErrorIs(t, res.Error, authn.ErrMethodNotAllowed)

	res = f.interact(t, "req-1", authn.InteractionType(99), nil)
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.ErrorIs(t, res.Error, authn.ErrUnknownInteraction)

	f.clock.Advance(11 * time.Minute)
	res = f.interact(t, "req-1", authn.PasswordAuthentication, map[string]string{"username": "alice", "password": password})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.ErrorIs(t, res.Error, authn.ErrTransactionExpired)
}

func TestAuthSessionBinding(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "req-1", "totp", txnOpts{authSession: "session-a"})
	code, err := totp.GenerateCode(f.secret, f.clock.Now())
	require.NoError(t, err)
	params := map[string]string{"username": "alice", "code": code}

	for _, presented := range []string{"", "session-b"} {
		res := f.interactWithSession(t, "req-1", presented, authn.TOTPAuthentication, params)
		require.Equal(t, authn.ResultUnauthorized, res.Status)
		require.ErrorIs(t, res.Error, authn.ErrUnauthorized)
		require.Nil(t, res.Transaction)
	}

	res := f.interactWithSession(t, "req-1", "session-a", authn.TOTPAuthentication, params)
	require.Equal(t, authn.ResultOK, res.Status)
	require.Equal(t, authn.OutcomeSuccess, res.Outcome)
	require.Equal(t, []string{authn.MethodTOTP}, res.Transaction.Authentication().Methods)
}

func TestTOTPRejectsWrongCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "req-1", "totp", txnOpts{})
	code, err := totp.GenerateCode(f.secret, f.clock.Now().Add(-10*time.Minute))
	require.NoError(t, err)

	res := f.interact(t, "req-1", authn.TOTPAuthentication, map[string]string{"username": "alice", "code": code})
	require.Equal(t, authn.ResultBadRequest, res.Status)
	require.Equal(t, "invalid_code", res.Body["error"])
	require.Equal(t, "alice", res.Transaction.User.Sub)

	f.create(t, "req-2", "totp", txnOpts{})
	res = f.interact(t, "req-2", authn.TOTPAuthentication, map[string]string{"username": "frozen", "code": code})
	require.Equal(t, "mfa_not_enabled", res.Body["error"])
}

func TestDelegatedAuthentication(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "req-1", "fido", txnOpts{})

	assertion := map[string]string{"assertion": "opaque"}
	f.delegate.EXPECT().Authenticate(gomock.Any(), "t1", assertion).Return("alice", nil)
	res := f.interact(t, "req-1", authn.FidoUAFAuthentication, assertion)
	require.Equal(t, authn.ResultOK, res.Status)
	require.Equal(t, authn.OutcomeSuccess, res.Outcome)
	require.Equal(t, []string{authn.MethodFidoUAF}, res.Transaction.Authentication().Methods)

	f.create(t, "req-2", "fido", txnOpts{})
	res = f.interact(t, "req-2", authn.WebAuthnAuthentication, assertion)
	require.Equal(t, authn.ResultServerError, res.Status)
	require.Error(t, res.Error)
}

func TestDeviceNotificationAndDeny(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.user(t, "alice")

	t.Run("partial approval", func(t *testing.T) {
		t.Parallel()
		f.create(t, "ciba-1", "device", txnOpts{flow: domain.FlowCIBA, user: &alice})

		f.devices.EXPECT().NotifyDevice(gomock.Any(), alice.Devices[0], gomock.Any()).Return(nil)
		res := f.interact(t, "ciba-1", authn.AuthenticationDeviceNotification, nil)
		require.Equal(t, authn.ResultOK, res.Status)
		require.Equal(t, authn.OutcomePending, res.Outcome)
		require.Equal(t, "phone-1", res.Body["device_id"])

		res = f.interact(t, "ciba-1", authn.AuthenticationDeviceDeny, map[string]string{"denied_scopes": "email"})
		require.Equal(t, authn.ResultOK, res.Status)
		require.Equal(t, authn.OutcomeSuccess, res.Outcome)
		require.Equal(t, []string{"email"}, res.Transaction.DeniedScopes)
	})

	t.Run("full deny", func(t *testing.T) {
		t.Parallel()
		f.create(t, "ciba-2", "device", txnOpts{flow: domain.FlowCIBA, user: &alice})

		res := f.interact(t, "ciba-2", authn.AuthenticationDeviceDeny, map[string]string{"denied_scopes": "openid email profile"})
		require.Equal(t, authn.ResultOK, res.Status)
		require.Equal(t, authn.OutcomeFailure, res.Outcome)
		require.Equal(t, domain.TransactionDenied, res.Transaction.Status)
		require.Empty(t, res.Transaction.DeniedScopes)
	})

	t.Run("device session is not bound", func(t *testing.T) {
		t.Parallel()
		f.create(t, "ciba-3", "device", txnOpts{flow: domain.FlowCIBA, user: &alice, authSession: "ignored"})

		res := f.interactWithSession(t, "ciba-3", "", authn.AuthenticationDeviceDeny, nil)
		require.Equal(t, authn.ResultOK, res.Status)
		require.Equal(t, authn.OutcomeFailure, res.Outcome)
	})
}
