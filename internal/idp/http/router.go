package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/metrics"
	"github.com/aussiebroadwan/idp/internal/idp/service"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/slogx"

	_ "github.com/aussiebroadwan/idp/api/idp" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	tenants     *http.ServeMux
	middlewares []httpx.Middleware

	catalog      *domain.Catalog
	keys         *token.KeyRing
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	sessions store.Sessions

	OAuth   *service.OAuthFlow
	CIBA    *service.CIBAFlow
	Metrics *metrics.Metrics // Optional: /metrics is not served without it
	Cookies authn.CookieOptions
	Limits  httpx.Limits
}

func NewRouter(
	catalog *domain.Catalog,
	keys *token.KeyRing,
	buildVersion string,
	st store.Store,
	sessions store.Sessions,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		tenants:      http.NewServeMux(),
		catalog:      catalog,
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		sessions:     sessions,
		logger:       logger,
		Cookies:      authn.CookieOptions{Secure: true, SameSite: http.SameSiteLaxMode},
		Limits:       httpx.DefaultLimits,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers every endpoint. Tenant routes live on their own
// mux so that the fixed top level paths always win over a tenant id.
func (r *Router) ApplyRoutes() {
	r.registerAuthorization()
	r.registerInteraction()
	r.registerBackchannel()
	r.registerKeys()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
	r.Mux.Handle("/", r.tenants)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			AussieBroadWAN Identity Provider API
//	@version		0.1.0
//	@description	Multi-tenant OpenID Connect provider: authorization endpoint with PAR and request objects,
//	@description	interactive authentication transactions and client initiated backchannel authentication (CIBA).
//	@description
//	@description	Every tenant publishes its signing keys at /{tenantId}/jwks.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/idp
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.basic	ClientBasic
//	@description				client_secret_basic with form-urlencoded client_id and client_secret.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuthorization() {
	// GET|POST /authorizations - lenient rate limit (browser redirects and prompt=none checks)
	authorizeHandler := &AuthorizeHandler{Flow: r.OAuth, Cookies: r.Cookies}
	authorize := httpx.Chain(authorizeHandler, httpx.RateLimitByIP(r.Limits.Lenient))
	r.tenants.Handle("GET /{tenantId}/authorizations", authorize)
	r.tenants.Handle("POST /{tenantId}/authorizations", authorize)

	// POST /par - moderate rate limit per tenant and client
	parHandler := &PushedAuthorizationHandler{Flow: r.OAuth}
	r.tenants.Handle("POST /{tenantId}/par",
		httpx.Chain(parHandler,
			httpx.RateLimitByTenantAndField(r.Limits.Moderate, "client_id"),
		),
	)
}

func (r *Router) registerInteraction() {
	transactionHandler := &TransactionHandler{Flow: r.OAuth}
	r.tenants.Handle("GET /{tenantId}/authorizations/{id}",
		httpx.Chain(transactionHandler,
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)

	// POST /{interaction} - strict rate limit (credential and code checks)
	interactionHandler := &InteractionHandler{Flow: r.OAuth}
	r.tenants.Handle("POST /{tenantId}/authorizations/{id}/{interaction}",
		httpx.Chain(interactionHandler,
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)

	// Literal segments take precedence over {interaction}
	r.tenants.Handle("POST /{tenantId}/authorizations/{id}/authorize-with-session",
		httpx.Chain(&AuthorizeWithSessionHandler{Flow: r.OAuth},
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)
	r.tenants.Handle("POST /{tenantId}/authorizations/{id}/deny",
		httpx.Chain(&DenyHandler{Flow: r.OAuth},
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)
}

func (r *Router) registerBackchannel() {
	// POST /backchannel/authentications - moderate rate limit per tenant and client
	backchannelHandler := &BackchannelHandler{Flow: r.CIBA}
	r.tenants.Handle("POST /{tenantId}/backchannel/authentications",
		httpx.Chain(backchannelHandler,
			httpx.RateLimitByTenantAndField(r.Limits.Moderate, "client_id"),
		),
	)

	// POST /backchannel/authentications/{id}/{interaction} - strict rate limit (device credentials)
	deviceHandler := &DeviceInteractionHandler{Flow: r.CIBA}
	r.tenants.Handle("POST /{tenantId}/backchannel/authentications/{id}/{interaction}",
		httpx.Chain(deviceHandler,
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)

	// POST /tokens - moderate rate limit per auth_req_id; polling faster
	// than the interval is answered with slow_down before this applies
	tokenHandler := &TokenHandler{Flow: r.CIBA}
	r.tenants.Handle("POST /{tenantId}/tokens",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByTenantAndField(r.Limits.Moderate, "auth_req_id"),
		),
	)
}

func (r *Router) registerKeys() {
	// GET /jwks - public endpoint with high limit
	r.tenants.Handle("GET /{tenantId}/jwks",
		httpx.Chain(JWKSHandler(r.catalog, r.keys),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.sessions, r.catalog),
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)
	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
