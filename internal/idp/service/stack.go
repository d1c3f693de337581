package service

import (
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/authn"
	"github.com/aussiebroadwan/idp/internal/idp/ciba"
	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/metrics"
	"github.com/aussiebroadwan/idp/internal/idp/oauth"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/internal/idp/token"
)

// StackConfig lists the collaborators shared by both flows.
type StackConfig struct {
	Catalog  *domain.Catalog
	Store    store.Store
	Sessions store.Sessions
	Keys     *token.KeyRing
	// ClientKeys resolves client JWKS for request objects, assertions and
	// ID token encryption.
	ClientKeys  clientauth.KeyResolver
	RequestURIs *oauth.RequestURIFetcher
	Gateway     ciba.Gateway
	Interactors authn.Dependencies
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Stack is the wired identity provider core.
type Stack struct {
	OAuth *OAuthFlow
	CIBA  *CIBAFlow
	Authn *authn.Engine
}

// NewStack wires the protocol engines, the authentication engine and the
// flows on top of them.
func NewStack(cfg StackConfig) *Stack {
	now := cfg.Now
	if cfg.Interactors.Now == nil {
		cfg.Interactors.Now = now
	}

	objects := &oauth.RequestObjects{Keys: cfg.Keys, ClientKeys: cfg.ClientKeys, Now: now}
	tokens := &token.Issuer{Keys: cfg.Keys, ClientKeys: cfg.ClientKeys, Now: now}
	clients := &clientauth.Authenticator{Keys: cfg.ClientKeys, Now: now}
	engine := &authn.Engine{
		Store:       cfg.Store,
		Interactors: authn.NewInteractors(cfg.Interactors),
		Now:         now,
	}

	return &Stack{
		Authn: engine,
		OAuth: &OAuthFlow{
			Catalog: cfg.Catalog,
			Protocol: &oauth.Protocol{
				Builder:  &oauth.ContextBuilder{Objects: objects, URIs: cfg.RequestURIs, Store: cfg.Store, Now: now},
				Verifier: &oauth.Verifier{Keys: cfg.Keys, Now: now},
				Issuer:   &oauth.GrantIssuer{Tokens: tokens, Now: now},
				Clients:  clients,
				Store:    cfg.Store,
				Sessions: cfg.Sessions,
				Now:      now,
			},
			Authn:   engine,
			Metrics: cfg.Metrics,
			Now:     now,
		},
		CIBA: &CIBAFlow{
			Catalog: cfg.Catalog,
			Protocol: &ciba.Protocol{
				Builder:  &ciba.ContextBuilder{Objects: objects, Now: now},
				Verifier: &ciba.Verifier{Now: now},
				Users:    &ciba.UserResolver{Keys: cfg.Keys, ClientKeys: cfg.ClientKeys, Now: now},
				Clients:  clients,
				Tokens:   tokens,
				Gateway:  cfg.Gateway,
				Store:    cfg.Store,
				Now:      now,
			},
			Authn:   engine,
			Metrics: cfg.Metrics,
		},
	}
}
