// Package redis stores OAuthSessions in redis so that every replica of the
// server sees the same browser sessions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
)

// Default timeouts for redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Config holds the connection settings.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// MasterName selects sentinel failover when set.
	MasterName string
	// KeyPrefix namespaces every key, e.g. "idp:".
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Sessions implements store.Sessions. Keys expire with the session.
type Sessions struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

var _ store.Sessions = (*Sessions)(nil)

// NewSessions connects to redis and verifies the connection.
func NewSessions(ctx context.Context, cfg Config) (*Sessions, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: at least one address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewSessionsWithClient(client, cfg.KeyPrefix), nil
}

// NewSessionsWithClient wraps a configured client, for example one
// pointing at miniredis.
func NewSessionsWithClient(client redis.UniversalClient, keyPrefix string) *Sessions {
	return &Sessions{client: client, keyPrefix: keyPrefix, now: time.Now}
}

func (s *Sessions) Close() error {
	return s.client.Close()
}

// Ping checks redis connectivity.
func (s *Sessions) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Sessions) key(tenantID string, key domain.SessionKey) string {
	return s.keyPrefix + "session:" + tenantID + ":" + key.String()
}

func (s *Sessions) Find(ctx context.Context, tenantID string, key domain.SessionKey) (domain.OAuthSession, error) {
	data, err := s.client.Get(ctx, s.key(tenantID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OAuthSession{}, store.ErrNotFound
		}
		return domain.OAuthSession{}, fmt.Errorf("failed to get session: %w", err)
	}

	var session domain.OAuthSession
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.OAuthSession{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

func (s *Sessions) Register(ctx context.Context, tenantID string, session domain.OAuthSession) error {
	return s.write(ctx, tenantID, session, false)
}

func (s *Sessions) Update(ctx context.Context, tenantID string, session domain.OAuthSession) error {
	return s.write(ctx, tenantID, session, true)
}

func (s *Sessions) write(ctx context.Context, tenantID string, session domain.OAuthSession, mustExist bool) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("redis: session for %s is already expired", session.Key)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := s.key(tenantID, session.Key)
	if !mustExist {
		return s.client.Set(ctx, key, data, ttl).Err()
	}
	ok, err := s.client.SetXX(ctx, key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Sessions) Delete(ctx context.Context, tenantID string, key domain.SessionKey) error {
	return s.client.Del(ctx, s.key(tenantID, key)).Err()
}
