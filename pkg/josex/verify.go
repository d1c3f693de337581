package josex

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is what a verifier holds: a shared secret for HMAC, a JWKS for
// asymmetric algorithms, or both.
type Credential struct {
	Secret string
	JWKS   *JWKS

	// Algorithms restricts accepted JWS algs. Empty accepts every
	// supported algorithm except "none".
	Algorithms []string
}

// Verify checks the signature of a compact JWS. The key is resolved by the
// header kid when present, otherwise the first key usable for the header alg.
// Time based claims are not checked here; see ValidateClaims.
func Verify(token string, cred Credential) (*JWS, error) {
	kind, header, err := Analyze(token)
	if err != nil {
		return nil, err
	}
	if kind != TokenSignature {
		return nil, failf("verify", "%w: expected signed token, got %s", ErrMalformed, kind)
	}

	alg := header.Alg()
	if jwt.GetSigningMethod(alg) == nil {
		return nil, failf("verify", "%w: %q", ErrUnsupportedAlg, alg)
	}
	if len(cred.Algorithms) > 0 && !slices.Contains(cred.Algorithms, alg) {
		return nil, failf("verify", "%w: %q not allowed", ErrUnsupportedAlg, alg)
	}

	key, err := verificationKey(header, cred)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{alg}), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return key, nil }); err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fail("verify", ErrInvalidSignature)
		}
		return nil, fail("verify", err)
	}
	return &JWS{Raw: token, Header: header, Claims: claims}, nil
}

// ParseUnsigned parses an alg "none" JWT. Signed tokens are rejected.
func ParseUnsigned(token string) (*JWS, error) {
	kind, header, err := Analyze(token)
	if err != nil {
		return nil, err
	}
	if kind != TokenUnsigned {
		return nil, failf("parse unsigned", "%w: got %s", ErrMalformed, kind)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"none"}), jwt.WithoutClaimsValidation())
	_, err = parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return jwt.UnsafeAllowNoneSignatureType, nil
	})
	if err != nil {
		return nil, fail("parse unsigned", err)
	}
	return &JWS{Raw: token, Header: header, Claims: claims}, nil
}

// Peek decodes a JWS without verifying it. Only for picking the credential
// that will verify it afterwards (client assertions, hint tokens).
func Peek(token string) (*JWS, error) {
	_, header, err := Analyze(token)
	if err != nil {
		return nil, err
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fail("peek", err)
	}
	return &JWS{Raw: token, Header: header, Claims: claims}, nil
}

func verificationKey(header Header, cred Credential) (any, error) {
	alg := header.Alg()
	if IsHMAC(alg) {
		if cred.Secret == "" {
			return nil, failf("verify", "%w: no shared secret for %s", ErrNoKey, alg)
		}
		return []byte(cred.Secret), nil
	}

	jwk, err := SelectKey(cred.JWKS, header.KeyID(), alg, "sig")
	if err != nil {
		return nil, err
	}
	switch k := jwk.Public().Key.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return k, nil
	default:
		return nil, failf("verify", "%w: key %T cannot verify %s", ErrNoKey, jwk.Key, alg)
	}
}
