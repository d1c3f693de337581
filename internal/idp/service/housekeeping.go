package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/metrics"
	"github.com/aussiebroadwan/idp/internal/idp/store"
)

// expirer is the purge method shared by the repositories that hold
// expiring records.
type expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// HousekeepingService periodically removes expired authorization
// requests, codes, tokens, backchannel requests and grants,
// authentication transactions and sessions.
type HousekeepingService struct {
	Store    store.Store
	Sessions store.Sessions
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Interval time.Duration
	Now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to one hour.
func NewHousekeepingService(st store.Store, sessions store.Sessions, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Sessions: sessions,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the cleanup loop in the background until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the loop down and waits for an in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

type purgeTarget struct {
	kind string
	repo expirer
}

func (s *HousekeepingService) targets() []purgeTarget {
	targets := []purgeTarget{
		{"authorization_requests", s.Store.AuthorizationRequests()},
		{"authorization_codes", s.Store.AuthorizationCodes()},
		{"oauth_tokens", s.Store.OAuthTokens()},
		{"backchannel_requests", s.Store.BackchannelRequests()},
		{"ciba_grants", s.Store.CibaGrants()},
		{"authentication_transactions", s.Store.Transactions()},
	}
	// Redis sessions expire by TTL and have nothing to purge.
	if e, ok := s.Sessions.(expirer); ok {
		targets = append(targets, purgeTarget{"sessions", e})
	}
	return targets
}

// Cleanup purges every expired record kind once and returns the number
// of records removed. A failing kind does not stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) int64 {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	s.Logger.Debug("starting housekeeping cleanup")

	var total int64
	for _, t := range s.targets() {
		n, err := t.repo.DeleteExpired(ctx, now)
		if err != nil {
			s.Logger.Error("failed to delete expired records", "kind", t.kind, "error", err)
			continue
		}
		s.Metrics.Purged(t.kind, n)
		total += n
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted", total)
	return total
}
