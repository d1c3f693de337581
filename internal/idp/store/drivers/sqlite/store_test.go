package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestAuthorizationRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	req := domain.AuthorizationRequest{
		ID:           "req-1",
		TenantID:     "t1",
		Profile:      domain.ProfileOIDC,
		ClientID:     "client",
		Scopes:       []string{"openid", "email"},
		ResponseType: domain.ResponseTypeCode,
		RedirectURI:  "https://client.example/cb",
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Minute),
	}
	require.NoError(t, s.AuthorizationRequests().Create(ctx, req))
	require.ErrorIs(t, s.AuthorizationRequests().Create(ctx, req), store.ErrAlreadyExists)

	t.Run("get is scoped by tenant", func(t *testing.T) {
		_, err := s.AuthorizationRequests().Get(ctx, "t2", "req-1")
		require.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.AuthorizationRequests().Get(ctx, "t1", "req-1")
		require.NoError(t, err)
		require.Equal(t, req.Scopes, got.Scopes)
		require.True(t, req.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("consume succeeds once", func(t *testing.T) {
		got, err := s.AuthorizationRequests().Consume(ctx, "t1", "req-1")
		require.NoError(t, err)
		require.Equal(t, "client", got.ClientID)

		_, err = s.AuthorizationRequests().Consume(ctx, "t1", "req-1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestConsumeIsSingleUseUnderConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := NewStore("file:" + t.TempDir() + "/idp.db?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	now := time.Now()
	require.NoError(t, s.AuthorizationRequests().Create(ctx, domain.AuthorizationRequest{
		ID: "req", TenantID: "t1", ClientID: "c", CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AuthorizationRequests().Consume(ctx, "t1", "req"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)
}

func TestDeleteExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.BackchannelRequests().Create(ctx, domain.BackchannelAuthenticationRequest{
		ID: "old", TenantID: "t1", ClientID: "c", ExpiresAt: now.Add(-time.Second),
	}))
	require.NoError(t, s.BackchannelRequests().Create(ctx, domain.BackchannelAuthenticationRequest{
		ID: "new", TenantID: "t1", ClientID: "c", ExpiresAt: now.Add(time.Minute),
	}))

	n, err := s.BackchannelRequests().DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.BackchannelRequests().Get(ctx, "t1", "old")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.BackchannelRequests().Get(ctx, "t1", "new")
	require.NoError(t, err)
}

func TestAuthorizationGranted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	g := domain.AuthorizationGranted{
		ID: "g1", TenantID: "t1", ClientID: "c", UserSub: "alice",
		Grant: domain.AuthorizationGrant{Scopes: []string{"openid"}},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.AuthorizationGranted().Register(ctx, g))

	dup := g
	dup.ID = "g2"
	require.ErrorIs(t, s.AuthorizationGranted().Register(ctx, dup), store.ErrAlreadyExists)

	merged := g.Merge(domain.AuthorizationGrant{Scopes: []string{"email"}}, now.Add(time.Minute))
	require.NoError(t, s.AuthorizationGranted().Update(ctx, merged))

	got, err := s.AuthorizationGranted().Find(ctx, "t1", "c", "alice")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"openid", "email"}, got.Grant.Scopes)
}

func TestCibaGrantUpdateIsConditional(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	g := domain.CibaGrant{
		AuthReqID: "ar1", RequestID: "r1", TenantID: "t1", ClientID: "c",
		Status: domain.CibaGrantPending, ExpiresAt: now.Add(time.Minute),
	}
	require.NoError(t, s.CibaGrants().Create(ctx, g))

	g.Status = domain.CibaGrantAuthorized
	require.NoError(t, s.CibaGrants().Update(ctx, g, domain.CibaGrantPending))

	g.Status = domain.CibaGrantDenied
	require.ErrorIs(t, s.CibaGrants().Update(ctx, g, domain.CibaGrantPending), store.ErrConflict)

	g.AuthReqID = "missing"
	require.ErrorIs(t, s.CibaGrants().Update(ctx, g, domain.CibaGrantPending), store.ErrNotFound)

	got, err := s.CibaGrants().GetByRequestID(ctx, "t1", "r1")
	require.NoError(t, err)
	require.Equal(t, domain.CibaGrantAuthorized, got.Status)
}

func TestUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	u := domain.User{
		Sub: "alice", TenantID: "t1", Status: domain.UserRegistered,
		Email: "alice@example.com", PhoneNumber: "+61400000000",
		Devices: []domain.AuthenticationDevice{{ID: "dev-1", Priority: 1}},
	}
	require.NoError(t, s.Users().Upsert(ctx, u))

	for field, value := range map[string]string{
		"email":        "alice@example.com",
		"phone_number": "+61400000000",
		"device":       "dev-1",
	} {
		got, err := s.Users().FindBy(ctx, "t1", field, value)
		require.NoError(t, err, field)
		require.Equal(t, "alice", got.Sub)
	}

	_, err := s.Users().FindBy(ctx, "t1", "password", "x")
	require.Error(t, err)

	require.NoError(t, s.Users().UpdateStatus(ctx, "t1", "alice", domain.UserLocked))
	got, err := s.Users().Get(ctx, "t1", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.UserLocked, got.Status)

	require.ErrorIs(t, s.Users().UpdateStatus(ctx, "t1", "bob", domain.UserLocked), store.ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.AuthorizationRequests().Create(ctx, domain.AuthorizationRequest{
			ID: "req", TenantID: "t1", ClientID: "c", ExpiresAt: now.Add(time.Minute),
		}))
		return store.ErrConflict
	})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.AuthorizationRequests().Get(ctx, "t1", "req")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	sessions := s.Sessions()
	now := time.Now()

	key := domain.SessionKey{BrowserID: "b1", TokenIssuer: "https://idp.example/t1", ClientID: "c"}
	sess, err := store.FindOrInitialize(ctx, sessions, "t1", key)
	require.NoError(t, err)
	require.False(t, sess.Exists())

	sess.User = domain.User{Sub: "alice"}
	sess.ExpiresAt = now.Add(time.Hour)
	require.NoError(t, sessions.Register(ctx, "t1", sess))

	other := key
	other.BrowserID = "b2"
	_, err = sessions.Find(ctx, "t1", other)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := sessions.Find(ctx, "t1", key)
	require.NoError(t, err)
	require.Equal(t, "alice", got.User.Sub)

	n, err := sessions.DeleteExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
