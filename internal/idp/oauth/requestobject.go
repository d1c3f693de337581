package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/token"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

// RequestObjects opens and verifies JWT request objects (RFC 9101). It is
// shared by the authorization and backchannel endpoints.
type RequestObjects struct {
	// Keys decrypt request objects encrypted to the server.
	Keys       *token.KeyRing
	ClientKeys clientauth.KeyResolver
	Now        func() time.Time
}

func (r *RequestObjects) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Verify decrypts raw when it is a JWE, then checks its signature against
// the client's registration and its registered claims. Unsigned objects are
// accepted only when allowUnsigned is set. aud, when present, must contain
// the issuer or the pushed authorization endpoint.
func (r *RequestObjects) Verify(ctx context.Context, tenant *domain.Tenant, client domain.ClientConfig, raw string, allowUnsigned bool) (*josex.JWS, error) {
	kind, _, err := josex.Analyze(raw)
	if err != nil {
		return nil, joseInvalid(err, "request object is not a valid JWT")
	}

	if kind.IsEncrypted() {
		dec := josex.Decryptor{Secret: client.ClientSecret}
		if kind == josex.TokenAsymmetricEncryption {
			if dec.JWKS, err = r.Keys.Private(tenant); err != nil {
				return nil, joseInvalid(err, "no key to decrypt request object")
			}
		}
		if raw, err = josex.Decrypt(raw, dec); err != nil {
			return nil, joseInvalid(err, "request object cannot be decrypted")
		}
		if kind, _, err = josex.Analyze(raw); err != nil {
			return nil, joseInvalid(err, "encrypted request object has no valid JWT inside")
		}
	}

	var jws *josex.JWS
	switch kind {
	case josex.TokenUnsigned:
		if !allowUnsigned {
			return nil, joseInvalid(nil, "request object must be signed")
		}
		if jws, err = josex.ParseUnsigned(raw); err != nil {
			return nil, joseInvalid(err, "request object is malformed")
		}
	case josex.TokenSignature:
		if jws, err = r.verifySignature(ctx, client, raw); err != nil {
			return nil, err
		}
	default:
		return nil, joseInvalid(nil, "request object has unsupported type %s", kind)
	}

	if err := r.validateClaims(jws, tenant.Server, client); err != nil {
		return nil, err
	}
	return jws, nil
}

func (r *RequestObjects) verifySignature(ctx context.Context, client domain.ClientConfig, raw string) (*josex.JWS, error) {
	peeked, err := josex.Peek(raw)
	if err != nil {
		return nil, joseInvalid(err, "request object is malformed")
	}
	alg := peeked.Alg()
	if client.RequestObjectSigningAlg != "" && client.RequestObjectSigningAlg != alg {
		return nil, joseInvalid(nil, "request object alg %s does not match registered %s", alg, client.RequestObjectSigningAlg)
	}

	cred := josex.Credential{Secret: client.ClientSecret}
	if !josex.IsHMAC(alg) {
		if r.ClientKeys == nil {
			return nil, joseInvalid(nil, "client keys are not available")
		}
		keys, err := r.ClientKeys.ClientKeys(ctx, client)
		if err != nil {
			return nil, joseInvalid(err, "client keys cannot be resolved")
		}
		cred.JWKS = keys
	}

	jws, err := josex.Verify(raw, cred)
	if err != nil {
		return nil, joseInvalid(err, "request object signature is invalid")
	}
	return jws, nil
}

func (r *RequestObjects) validateClaims(jws *josex.JWS, server domain.ServerConfig, client domain.ClientConfig) error {
	want := josex.Expectations{Now: r.now(), Leeway: server.RequestObjectLeeway}
	if jws.Has("aud") {
		want.Audience = []string{server.Issuer}
		if server.PARPath != "" {
			want.Audience = append(want.Audience, server.Endpoint(server.PARPath))
		}
	}
	if err := josex.ValidateClaims(jws, want); err != nil {
		switch {
		case errors.Is(err, josex.ErrExpired):
			return joseInvalid(err, "request object is expired")
		case errors.Is(err, josex.ErrNotYetValid):
			return joseInvalid(err, "request object is not yet valid")
		case errors.Is(err, josex.ErrAudience):
			return joseInvalid(err, "request object aud does not contain the issuer")
		default:
			return joseInvalid(err, "request object claims are invalid")
		}
	}
	if jws.Has("iss") && jws.String("iss") != client.ClientID {
		return joseInvalid(nil, "request object iss must be the client_id")
	}
	if jws.Has(ParamClientID) && jws.String(ParamClientID) != client.ClientID {
		return joseInvalid(nil, "request object client_id does not match the request")
	}
	return nil
}
