package clientauth

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

var ErrNoClientKeys = errors.New("client has no jwks or jwks_uri")

// RegisteredKeys resolves inline JWKS first and falls back to fetching
// jwks_uri.
type RegisteredKeys struct {
	Fetcher *josex.JWKSFetcher
}

func (r RegisteredKeys) ClientKeys(ctx context.Context, client domain.ClientConfig) (*josex.JWKS, error) {
	if client.JWKS != "" {
		return josex.ParseJWKS(client.JWKS)
	}
	if client.JWKSURI != "" && r.Fetcher != nil {
		return r.Fetcher.Fetch(ctx, client.JWKSURI)
	}
	return nil, ErrNoClientKeys
}
