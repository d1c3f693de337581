package domain

import (
	"errors"
	"slices"
	"time"
)

var (
	ErrUnknownTenant = errors.New("unknown tenant")
	ErrUnknownClient = errors.New("unknown client")
)

// Tenant is one isolated authorization server.
type Tenant struct {
	ID     string
	Name   string
	Server ServerConfig
}

// ServerConfig is the per-tenant AuthorizationServerConfiguration.
type ServerConfig struct {
	Issuer string

	ScopesSupported              []string
	ClaimsSupported              []string
	ResponseTypesSupported       []string
	ResponseModesSupported       []string
	GrantTypesSupported          []string
	ACRValuesSupported           []string
	TokenEndpointAuthMethods     []string
	BackchannelDeliveryModes     []string
	BackchannelUserCodeSupported bool
	RequestObjectSigningAlgs     []string
	IDTokenSigningAlgs           []string
	AuthorizationSigningAlgs     []string
	FAPIBaselineScopes           []string
	FAPIAdvanceScopes            []string
	ClaimsParameterSupported     bool
	IDTokenStrictMode            bool
	RequireSignedRequestObject   bool
	PushedAuthorizationRequired  bool

	TLSClientCertificateBoundAccessTokens bool

	// JWKS is the private JWK Set document. Public keys are published
	// from it.
	JWKS string
	// DefaultSigningAlg picks the ID token / JARM key when the client has
	// no preference.
	DefaultSigningAlg string

	AuthorizationCodeTTL     time.Duration
	AccessTokenTTL           time.Duration
	IDTokenTTL               time.Duration
	RefreshTokenTTL          time.Duration
	AuthorizationRequestTTL  time.Duration
	AuthorizationResponseTTL time.Duration // JARM lifetime
	PushedRequestTTL         time.Duration
	SessionTTL               time.Duration
	BackchannelExpiresIn     time.Duration
	BackchannelInterval      time.Duration
	RequestObjectLeeway      time.Duration

	// PARPath is the pushed authorization request endpoint relative to the
	// issuer, accepted as a request object audience.
	PARPath string
}

// Endpoint resolves a path against the issuer.
func (s ServerConfig) Endpoint(path string) string {
	return s.Issuer + path
}

func (s ServerConfig) SupportsScope(scope string) bool {
	return len(s.ScopesSupported) == 0 || slices.Contains(s.ScopesSupported, scope)
}

func (s ServerConfig) SupportsClaim(name string) bool {
	return len(s.ClaimsSupported) == 0 || slices.Contains(s.ClaimsSupported, name)
}

func (s ServerConfig) SupportsResponseType(rt string) bool {
	return slices.Contains(s.ResponseTypesSupported, rt)
}

func (s ServerConfig) SupportsResponseMode(mode string) bool {
	return len(s.ResponseModesSupported) == 0 || slices.Contains(s.ResponseModesSupported, mode)
}

func (s ServerConfig) SupportsGrantType(gt string) bool {
	return slices.Contains(s.GrantTypesSupported, gt)
}

func (s ServerConfig) SupportsDeliveryMode(mode string) bool {
	return slices.Contains(s.BackchannelDeliveryModes, mode)
}

// HasAnyFAPIAdvanceScope reports whether scopes request FAPI part 2.
func (s ServerConfig) HasAnyFAPIAdvanceScope(scopes []string) bool {
	return containsAny(s.FAPIAdvanceScopes, scopes)
}

// HasAnyFAPIBaselineScope reports whether scopes request FAPI part 1.
func (s ServerConfig) HasAnyFAPIBaselineScope(scopes []string) bool {
	return containsAny(s.FAPIBaselineScopes, scopes)
}

func containsAny(set, values []string) bool {
	for _, v := range values {
		if slices.Contains(set, v) {
			return true
		}
	}
	return false
}

// TenantConfig bundles everything the catalogue holds for one tenant.
type TenantConfig struct {
	Tenant   Tenant
	Clients  map[string]ClientConfig
	Policies []AuthenticationPolicy
}

// Catalog is the read-only tenant registry. It is built once at startup and
// never mutated, so concurrent reads need no locking.
type Catalog struct {
	tenants map[string]*TenantConfig
}

func NewCatalog(tenants ...TenantConfig) *Catalog {
	c := &Catalog{tenants: make(map[string]*TenantConfig, len(tenants))}
	for i := range tenants {
		tc := tenants[i]
		c.tenants[tc.Tenant.ID] = &tc
	}
	return c
}

// Tenant returns the tenant or ErrUnknownTenant.
func (c *Catalog) Tenant(id string) (*TenantConfig, error) {
	tc, ok := c.tenants[id]
	if !ok {
		return nil, ErrUnknownTenant
	}
	return tc, nil
}

// Client looks up a client of tenant.
func (c *Catalog) Client(tenantID, clientID string) (*ClientConfig, error) {
	tc, err := c.Tenant(tenantID)
	if err != nil {
		return nil, err
	}
	return tc.Client(clientID)
}

// TenantIDs lists every configured tenant.
func (c *Catalog) TenantIDs() []string {
	ids := make([]string, 0, len(c.tenants))
	for id := range c.tenants {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (tc *TenantConfig) Client(clientID string) (*ClientConfig, error) {
	cl, ok := tc.Clients[clientID]
	if !ok || clientID == "" {
		return nil, ErrUnknownClient
	}
	return &cl, nil
}
