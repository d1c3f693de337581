package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
)

func newTestSessions(t *testing.T) (*Sessions, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionsWithClient(client, "idp:"), mr
}

func TestSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sessions, mr := newTestSessions(t)

	key := domain.SessionKey{BrowserID: "browser", TokenIssuer: "https://idp.example/t1", ClientID: "client"}
	session := domain.OAuthSession{
		Key:       key,
		User:      domain.User{Sub: "alice"},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	t.Run("find unknown session", func(t *testing.T) {
		_, err := sessions.Find(ctx, "t1", key)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update requires an existing session", func(t *testing.T) {
		require.ErrorIs(t, sessions.Update(ctx, "t1", session), store.ErrNotFound)
	})

	t.Run("register sets a ttl", func(t *testing.T) {
		require.NoError(t, sessions.Register(ctx, "t1", session))
		ttl := mr.TTL("idp:session:t1:" + key.String())
		require.Greater(t, ttl, 59*time.Minute)

		got, err := sessions.Find(ctx, "t1", key)
		require.NoError(t, err)
		require.Equal(t, "alice", got.User.Sub)
	})

	t.Run("sessions are scoped by tenant and browser", func(t *testing.T) {
		_, err := sessions.Find(ctx, "t2", key)
		require.ErrorIs(t, err, store.ErrNotFound)

		other := key
		other.BrowserID = "other"
		_, err = sessions.Find(ctx, "t1", other)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired by redis", func(t *testing.T) {
		mr.FastForward(2 * time.Hour)
		_, err := sessions.Find(ctx, "t1", key)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired sessions are rejected", func(t *testing.T) {
		expired := session
		expired.ExpiresAt = time.Now().Add(-time.Second)
		require.Error(t, sessions.Register(ctx, "t1", expired))
	})
}
