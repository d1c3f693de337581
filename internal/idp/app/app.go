package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/ciba"
	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	idphttp "github.com/aussiebroadwan/idp/internal/idp/http"
	"github.com/aussiebroadwan/idp/internal/idp/metrics"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/internal/idp/service"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/internal/idp/store/drivers/redis"
	"github.com/aussiebroadwan/idp/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/josex"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the identity provider with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       *sqlite.Store
	sessions store.Sessions
	redis    *redis.Sessions // Optional: nil when sessions live in SQLite
	catalog  *domain.Catalog
	keys     *token.KeyRing
	hasher   cryptox.PasswordHasher
	metrics  *metrics.Metrics

	// Services
	stack               *service.Stack
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *idphttp.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "idp",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		keys:    token.NewKeyRing(),
		metrics: metrics.New(),
	}

	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.PasswordHasher{Pepper: pepper}

	catalogue, err := LoadCatalogue(cfg, app.hasher)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}
	app.catalog = catalogue.Catalog
	for _, id := range catalogue.Generated {
		app.logger.Warn("generated ephemeral signing keys, tokens will not survive a restart",
			"tenant", id,
			"algorithm", cfg.Algorithm,
			"num_keys", cfg.NumKeys,
		)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initSessions(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := catalogue.Seed(ctx, app.db, app.logger); err != nil {
		app.closeStores()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("identity provider starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"tenants", len(app.catalog.TenantIDs()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		app.logger.Info("shutdown requested", "cause", context.Cause(ctx))
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity provider...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("identity provider stopped")
	return nil
}

func (app *Application) closeStores() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initSessions selects Redis for OAuth sessions when configured, and the
// SQLite session table otherwise.
func (app *Application) initSessions(ctx context.Context) error {
	if app.cfg.RedisAddr == "" {
		app.sessions = app.db.Sessions()
		app.logger.Info("oauth sessions stored in sqlite")
		return nil
	}

	sessions, err := redis.NewSessions(ctx, redis.Config{
		Addrs:     strings.Split(app.cfg.RedisAddr, ","),
		Password:  app.cfg.RedisPassword,
		DB:        app.cfg.RedisDB,
		KeyPrefix: "idp:",
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = sessions
	app.sessions = sessions
	app.logger.Info("oauth sessions stored in redis", "addr", app.cfg.RedisAddr)
	return nil
}

// initServices initializes the protocol stack and housekeeping
func (app *Application) initServices() {
	deps := authn.Dependencies{
		Passwords: app.hasher,
		Sender:    authn.DiscardSender{},
		Devices:   authn.DiscardDeviceNotifier{},
	}
	if app.cfg.MessageWebhook != "" {
		deps.Sender = &authn.WebhookSender{Webhook: authn.Webhook{Endpoint: app.cfg.MessageWebhook}}
	} else {
		app.logger.Warn("no message gateway configured, sms and email codes are dropped")
	}
	if app.cfg.DeviceWebhook != "" {
		deps.Devices = &authn.WebhookDeviceNotifier{Webhook: authn.Webhook{Endpoint: app.cfg.DeviceWebhook}}
	}
	if app.cfg.FidoWebhook != "" {
		fido := &authn.WebhookDelegate{Webhook: authn.Webhook{Endpoint: app.cfg.FidoWebhook}}
		deps.FidoUAF = fido
		deps.WebAuthn = fido
	}

	app.stack = service.NewStack(service.StackConfig{
		Catalog:  app.catalog,
		Store:    app.db,
		Sessions: app.sessions,
		Keys:     app.keys,
		ClientKeys: clientauth.RegisteredKeys{
			Fetcher: josex.NewJWKSFetcher(&http.Client{Timeout: 10 * time.Second}, 10*time.Minute),
		},
		RequestURIs: &oauth.RequestURIFetcher{
			AllowedHosts: app.cfg.RequestURIAllowedHosts,
			Timeout:      app.cfg.RequestURITimeout,
		},
		Gateway:     &ciba.HTTPGateway{Timeout: 30 * time.Second},
		Interactors: deps,
		Metrics:     app.metrics,
		Now:         time.Now,
	})

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.sessions,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.Metrics = app.metrics
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := idphttp.NewRouter(
		app.catalog,
		app.keys,
		BuildVersion,
		app.db,
		app.sessions,
		app.logger,
	)

	// Wire services to router
	router.OAuth = app.stack.OAuth
	router.CIBA = app.stack.CIBA
	router.Metrics = app.metrics
	router.Cookies = authn.CookieOptions{
		Secure:   app.cfg.CookieSecure,
		SameSite: app.cfg.CookieSameSite,
	}
	router.Limits = app.cfg.Limits
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
