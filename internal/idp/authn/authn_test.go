package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

func TestInteractorsCoverEveryType(t *testing.T) {
	t.Parallel()

	table := NewInteractors(Dependencies{})
	require.Empty(t, table.Missing())
	require.Len(t, table, len(InteractionTypes()))

	for _, typ := range InteractionTypes() {
		parsed, err := ParseInteractionType(typ.String())
		require.NoError(t, err)
		require.Equal(t, typ, parsed)
	}

	_, err := ParseInteractionType("carrier-pigeon")
	require.ErrorIs(t, err, ErrUnknownInteraction)
	require.Equal(t, "InteractionType(42)", InteractionType(42).String())

	delete(table, TOTPAuthentication)
	require.Equal(t, []InteractionType{TOTPAuthentication}, table.Missing())
}

func TestInteractorOperations(t *testing.T) {
	t.Parallel()

	table := NewInteractors(Dependencies{})
	tests := []struct {
		typ    InteractionType
		method string
		op     Operation
	}{
		{PasswordAuthentication, MethodPassword, OperationAuthenticate},
		{SMSAuthenticationChallenge, MethodSMS, OperationChallenge},
		{SMSAuthentication, MethodSMS, OperationAuthenticate},
		{EmailAuthenticationChallenge, MethodEmail, OperationChallenge},
		{EmailAuthentication, MethodEmail, OperationAuthenticate},
		{TOTPAuthentication, MethodTOTP, OperationAuthenticate},
		{FidoUAFAuthentication, MethodFidoUAF, OperationAuthenticate},
		{WebAuthnAuthentication, MethodWebAuthn, OperationAuthenticate},
		{AuthenticationDeviceNotification, MethodDevice, OperationChallenge},
		{AuthenticationDeviceDeny, MethodDeny, OperationDeny},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.method, table[tt.typ].Method())
			require.Equal(t, tt.op, table[tt.typ].Operation())
		})
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	now := time.Now()
	user := &domain.User{Sub: "alice", TenantID: "t1"}
	policy := &domain.AuthenticationPolicy{ID: "p"}
	valid := func() TransactionBuilder {
		return TransactionBuilder{
			TenantID:    "t1",
			Flow:        domain.FlowOAuth,
			RequestID:   "req-1",
			ClientID:    "rp",
			Policy:      policy,
			AuthSession: "cookie",
			ExpiresAt:   now.Add(time.Minute),
		}
	}

	t.Run("complete", func(t *testing.T) {
		t.Parallel()
		built := valid().Build(now)
		c, ok := built.(Complete)
		require.True(t, ok, "got %#v", built)
		require.NotEmpty(t, c.Transaction.ID)
		require.Equal(t, domain.TransactionCreated, c.Transaction.Status)
		require.Equal(t, cryptox.FingerprintToken("cookie"), c.Transaction.AuthSessionHash)
		require.False(t, c.Transaction.User.Exists())
	})

	t.Run("device flow needs a user and skips the session", func(t *testing.T) {
		t.Parallel()
		b := valid()
		b.Flow = domain.FlowCIBA
		p, ok := b.Build(now).(Partial)
		require.True(t, ok)
		require.ErrorIs(t, p.Reason, ErrIncomplete)
		require.ErrorContains(t, p.Reason, "user")

		b.User = user
		c, ok := b.Build(now).(Complete)
		require.True(t, ok)
		require.Empty(t, c.Transaction.AuthSessionHash)
		require.Equal(t, "alice", c.Transaction.User.Sub)
	})

	tests := []struct {
		name   string
		mutate func(b *TransactionBuilder)
		field  string
	}{
		{"tenant", func(b *TransactionBuilder) { b.TenantID = "" }, "tenant id"},
		{"flow", func(b *TransactionBuilder) { b.Flow = "" }, "flow"},
		{"request", func(b *TransactionBuilder) { b.RequestID = "" }, "request id"},
		{"client", func(b *TransactionBuilder) { b.ClientID = "" }, "client id"},
		{"policy", func(b *TransactionBuilder) { b.Policy = nil }, "policy"},
		{"expiry", func(b *TransactionBuilder) { b.ExpiresAt = time.Time{} }, "expiry"},
	}
	for _, tt := range tests {
		t.Run("missing "+tt.name, func(t *testing.T) {
			t.Parallel()
			b := valid()
			tt.mutate(&b)
			p, ok := b.Build(now).(Partial)
			require.True(t, ok)
			require.ErrorIs(t, p.Reason, ErrIncomplete)
			require.ErrorContains(t, p.Reason, tt.field+" is required")
		})
	}
}

func TestAuthSessionCookie(t *testing.T) {
	t.Parallel()

	value, err := NewAuthSession()
	require.NoError(t, err)
	require.NotEmpty(t, value)

	c := AuthSessionCookie("t1", value, CookieOptions{Secure: true, MaxAge: time.Hour})
	require.Equal(t, AuthSessionCookieName, c.Name)
	require.Equal(t, "/t1/", c.Path)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	require.Equal(t, 3600, c.MaxAge)

	r := httptest.NewRequest(http.MethodPost, "/t1/authorizations/req-1/password-authentication", nil)
	require.Empty(t, AuthSessionFrom(r))
	r.AddCookie(c)
	require.Equal(t, value, AuthSessionFrom(r))
}

func TestValidateAuthSession(t *testing.T) {
	t.Parallel()
	bound := &domain.AuthenticationTransaction{Flow: domain.FlowOAuth, AuthSessionHash: cryptox.FingerprintToken("a")}

	require.NoError(t, ValidateAuthSession(bound, "a"))
	require.ErrorIs(t, ValidateAuthSession(bound, "b"), ErrUnauthorized)
	require.ErrorIs(t, ValidateAuthSession(bound, ""), ErrUnauthorized)

	unbound := &domain.AuthenticationTransaction{Flow: domain.FlowOAuth}
	require.NoError(t, ValidateAuthSession(unbound, ""))

	device := &domain.AuthenticationTransaction{Flow: domain.FlowCIBA, AuthSessionHash: cryptox.FingerprintToken("a")}
	require.NoError(t, ValidateAuthSession(device, "b"))
}

func TestDenialOf(t *testing.T) {
	t.Parallel()
	requested := []string{"openid", "email", "profile"}

	tests := []struct {
		param string
		want  []string
	}{
		{"", nil},
		{"email", []string{"email"}},
		{"email email profile", []string{"email", "profile"}},
		{"openid", nil},
		{"openid email profile", nil},
		{"unknown", nil},
		{"email unknown", []string{"email"}},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, denialOf(tt.param, requested), "param %q", tt.param)
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"alice"}`))
	}))
	t.Cleanup(srv.Close)

	d := &WebhookDelegate{Webhook{Endpoint: srv.URL, Client: srv.Client()}}
	sub, err := d.Authenticate(context.Background(), "t1", map[string]string{"assertion": "x"})
	require.NoError(t, err)
	require.Equal(t, "alice", sub)
	require.EqualValues(t, 2, calls.Load())
}

func TestWebhookClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	s := &WebhookSender{Webhook{Endpoint: srv.URL, Client: srv.Client()}}
	err := s.Send(context.Background(), Message{Channel: MethodSMS, To: "+61400000000", Code: "123456"})
	require.ErrorIs(t, err, ErrDeliveryRejected)
	require.EqualValues(t, 1, calls.Load())
}
