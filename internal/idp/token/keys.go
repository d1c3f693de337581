package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

var ErrNoServerKeys = errors.New("tenant has no signing keys")

// KeyRing holds each tenant's parsed private JWKS. Tenants are parsed on
// first use and cached for the life of the process.
type KeyRing struct {
	mu   sync.RWMutex
	sets map[string]*josex.JWKS
}

func NewKeyRing() *KeyRing {
	return &KeyRing{sets: make(map[string]*josex.JWKS)}
}

// Private returns the tenant's private key set.
func (k *KeyRing) Private(tenant *domain.Tenant) (*josex.JWKS, error) {
	k.mu.RLock()
	set, ok := k.sets[tenant.ID]
	k.mu.RUnlock()
	if ok {
		return set, nil
	}

	if tenant.Server.JWKS == "" {
		return nil, ErrNoServerKeys
	}
	set, err := josex.ParseJWKS(tenant.Server.JWKS)
	if err != nil {
		return nil, fmt.Errorf("tenant %s jwks: %w", tenant.ID, err)
	}

	k.mu.Lock()
	k.sets[tenant.ID] = set
	k.mu.Unlock()
	return set, nil
}

// Public returns the publishable half of the tenant's keys.
func (k *KeyRing) Public(tenant *domain.Tenant) (*josex.JWKS, error) {
	set, err := k.Private(tenant)
	if err != nil {
		return nil, err
	}
	return josex.PublicJWKS(set), nil
}
