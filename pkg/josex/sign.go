package josex

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// SignWithKeyID signs claims with the key whose kid matches in jwks.
func SignWithKeyID(claims map[string]any, headers map[string]any, jwks *JWKS, kid string) (string, error) {
	key, err := SelectKey(jwks, kid, "", "sig")
	if err != nil {
		return "", err
	}
	alg := key.Algorithm
	if alg == "" {
		if alg, err = DefaultAlgorithm(key.Key); err != nil {
			return "", err
		}
	}
	return sign(claims, headers, alg, key.KeyID, key.Key)
}

// SignWithAlg signs claims with the first signing key in jwks usable for alg.
func SignWithAlg(claims map[string]any, headers map[string]any, jwks *JWKS, alg string) (string, error) {
	key, err := SelectKey(jwks, "", alg, "sig")
	if err != nil {
		return "", err
	}
	return sign(claims, headers, alg, key.KeyID, key.Key)
}

// SignWithPEM signs with a PEM encoded EC or RSA private key. An empty alg
// defaults to ES256 for P-256 keys and RS256 for RSA keys. No kid header is
// added unless headers carries one.
func SignWithPEM(claims map[string]any, headers map[string]any, pemKey []byte, alg string) (string, error) {
	key, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return "", fail("sign", err)
	}
	if alg == "" {
		if alg, err = DefaultAlgorithm(key); err != nil {
			return "", err
		}
	}
	return sign(claims, headers, alg, "", key)
}

// SignWithSecret produces an HS256/384/512 JWS keyed by secret.
func SignWithSecret(claims map[string]any, headers map[string]any, secret, alg string) (string, error) {
	if !IsHMAC(alg) {
		return "", failf("sign", "%w: %q is not an HMAC algorithm", ErrUnsupportedAlg, alg)
	}
	return sign(claims, headers, alg, "", []byte(secret))
}

// SignUnsigned produces an alg "none" JWT.
func SignUnsigned(claims map[string]any, headers map[string]any) (string, error) {
	return sign(claims, headers, "none", "", jwt.UnsafeAllowNoneSignatureType)
}

func sign(claims map[string]any, headers map[string]any, alg, kid string, key any) (string, error) {
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return "", failf("sign", "%w: %q", ErrUnsupportedAlg, alg)
	}

	signingKey, err := signingKeyFor(alg, key)
	if err != nil {
		return "", err
	}

	if claims == nil {
		claims = map[string]any{}
	}
	t := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	for k, v := range headers {
		t.Header[k] = v
	}
	t.Header["alg"] = alg
	if kid != "" {
		t.Header["kid"] = kid
	}

	out, err := t.SignedString(signingKey)
	if err != nil {
		return "", fail("sign", err)
	}
	return out, nil
}

// signingKeyFor narrows key to the concrete type golang-jwt expects for alg.
func signingKeyFor(alg string, key any) (any, error) {
	switch {
	case alg == "none":
		return jwt.UnsafeAllowNoneSignatureType, nil
	case IsHMAC(alg):
		if b, ok := key.([]byte); ok {
			return b, nil
		}
	case alg == "EdDSA":
		if k, ok := key.(ed25519.PrivateKey); ok {
			return k, nil
		}
	case alg[0] == 'E':
		if k, ok := key.(*ecdsa.PrivateKey); ok {
			return k, nil
		}
	case alg[0] == 'R', alg[0] == 'P':
		if k, ok := key.(*rsa.PrivateKey); ok {
			return k, nil
		}
	}
	return nil, failf("sign", "%w: key %T cannot sign %s", ErrNoKey, key, alg)
}

// IsHMAC reports the shared secret JWS algorithms.
func IsHMAC(alg string) bool {
	return alg == "HS256" || alg == "HS384" || alg == "HS512"
}
