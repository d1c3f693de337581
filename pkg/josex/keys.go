package josex

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/go-jose/go-jose/v4"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// JWKS is a parsed JSON Web Key Set.
type JWKS = jose.JSONWebKeySet

// JWK is a single parsed JSON Web Key.
type JWK = jose.JSONWebKey

// ParseJWKS parses a JWK Set document. Private and public members are kept as
// given.
func ParseJWKS(raw string) (*JWKS, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fail("parse jwks", ErrNoKey)
	}
	var set JWKS
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fail("parse jwks", err)
	}
	return &set, nil
}

// PublicJWKS strips private material from every key in set. Symmetric keys
// are dropped.
func PublicJWKS(set *JWKS) *JWKS {
	out := &JWKS{Keys: make([]JWK, 0, len(set.Keys))}
	for _, k := range set.Keys {
		pub := k.Public()
		if !pub.Valid() {
			continue
		}
		out.Keys = append(out.Keys, pub)
	}
	return out
}

// MarshalJWKS serialises set as a JWK Set document.
func MarshalJWKS(set *JWKS) (string, error) {
	b, err := json.Marshal(set)
	if err != nil {
		return "", fail("marshal jwks", err)
	}
	return string(b), nil
}

// SelectKey resolves a key from set: an explicit kid match wins, otherwise
// the first key usable for alg with the given use ("sig" or "enc", empty
// accepts either).
func SelectKey(set *JWKS, kid, alg, use string) (JWK, error) {
	if set == nil {
		return JWK{}, fail("select key", ErrNoKey)
	}
	if kid != "" {
		for _, k := range set.Key(kid) {
			if usableFor(k, alg, use) {
				return k, nil
			}
		}
		return JWK{}, failf("select key", "%w: kid %q", ErrNoKey, kid)
	}
	for _, k := range set.Keys {
		if usableFor(k, alg, use) {
			return k, nil
		}
	}
	return JWK{}, failf("select key", "%w: alg %q", ErrNoKey, alg)
}

func usableFor(k JWK, alg, use string) bool {
	if use != "" && k.Use != "" && k.Use != use {
		return false
	}
	if alg == "" {
		return true
	}
	if k.Algorithm != "" {
		return k.Algorithm == alg
	}
	return keyTypeSupports(k.Key, alg)
}

func keyTypeSupports(key any, alg string) bool {
	switch key.(type) {
	case *rsa.PrivateKey, *rsa.PublicKey:
		return strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS") || strings.HasPrefix(alg, "RSA")
	case *ecdsa.PrivateKey, *ecdsa.PublicKey:
		return strings.HasPrefix(alg, "ES") || strings.HasPrefix(alg, "ECDH-ES")
	case ed25519.PrivateKey, ed25519.PublicKey:
		return alg == "EdDSA"
	case []byte:
		return strings.HasPrefix(alg, "HS") || IsSymmetricKeyAlgorithm(alg)
	default:
		return false
	}
}

// DefaultAlgorithm picks the JWS alg for a bare private key: EC keys by
// curve, RSA keys RS256, Ed25519 EdDSA.
func DefaultAlgorithm(key crypto.PrivateKey) (string, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return "RS256", nil
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return "ES256", nil
		case 384:
			return "ES384", nil
		case 521:
			return "ES512", nil
		}
		return "", failf("default alg", "%w: curve %s", ErrUnsupportedAlg, k.Curve.Params().Name)
	case ed25519.PrivateKey:
		return "EdDSA", nil
	default:
		return "", failf("default alg", "%w: key %T", ErrUnsupportedAlg, key)
	}
}

// Thumbprint is the RFC 7638 SHA-256 thumbprint of key in base64url.
func Thumbprint(key crypto.PublicKey) (string, error) {
	tp, err := (&JWK{Key: key}).Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fail("thumbprint", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

// KeySpec describes one key to generate for a JWKS.
type KeySpec struct {
	Alg     string
	Use     string // "sig" or "enc"
	RSABits int
}

// GenerateJWKS creates a private JWK Set with one key per spec. Key ids are
// RFC 7638 thumbprints.
func GenerateJWKS(specs ...KeySpec) (*JWKS, error) {
	set := &JWKS{}
	for _, spec := range specs {
		genAlg := spec.Alg
		switch {
		case strings.HasPrefix(spec.Alg, "RSA"):
			genAlg = "RS256"
		case strings.HasPrefix(spec.Alg, "ECDH-ES"):
			genAlg = "ES256"
		}

		key, err := cryptox.GenerateSigningKey(genAlg, spec.RSABits)
		if err != nil {
			return nil, fail("generate jwks", err)
		}
		kid, err := Thumbprint(key.Public())
		if err != nil {
			return nil, err
		}
		use := spec.Use
		if use == "" {
			use = "sig"
		}
		set.Keys = append(set.Keys, JWK{Key: key, KeyID: kid, Algorithm: spec.Alg, Use: use})
	}
	return set, nil
}
