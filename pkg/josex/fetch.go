package josex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const maxJWKSBytes = 1 << 20

// JWKSFetcher loads remote jwks_uri documents, caching them for TTL and
// collapsing concurrent fetches of the same URI.
type JWKSFetcher struct {
	Client *http.Client
	TTL    time.Duration

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cachedJWKS
}

type cachedJWKS struct {
	set     *JWKS
	expires time.Time
}

// NewJWKSFetcher returns a fetcher using client (http.DefaultClient when nil).
func NewJWKSFetcher(client *http.Client, ttl time.Duration) *JWKSFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWKSFetcher{Client: client, TTL: ttl, cache: make(map[string]cachedJWKS)}
}

// Fetch returns the key set published at uri.
func (f *JWKSFetcher) Fetch(ctx context.Context, uri string) (*JWKS, error) {
	f.mu.RLock()
	c, ok := f.cache[uri]
	f.mu.RUnlock()
	if ok && time.Now().Before(c.expires) {
		return c.set, nil
	}

	v, err, _ := f.group.Do(uri, func() (any, error) {
		set, err := f.load(ctx, uri)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.cache[uri] = cachedJWKS{set: set, expires: time.Now().Add(f.TTL)}
		f.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, fail("fetch jwks", err)
	}
	return v.(*JWKS), nil
}

func (f *JWKSFetcher) load(ctx context.Context, uri string) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, uri)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, err
	}
	return ParseJWKS(string(body))
}
