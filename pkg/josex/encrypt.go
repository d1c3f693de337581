package josex

import (
	"crypto/ecdsa"
	"crypto/rsa"

	"github.com/go-jose/go-jose/v4"
)

// Recipient identifies who a JWE is encrypted to: a client secret for the
// symmetric algorithms, or a JWKS holding the recipient's public keys.
type Recipient struct {
	Secret string
	JWKS   *JWKS
}

// Encrypt wraps a compact JWS into a nested JWE (RFC 7516 A.2) with cty
// "JWT".
func Encrypt(jws, alg, enc string, to Recipient) (string, error) {
	if _, ok := contentKeyLengths[enc]; !ok {
		return "", failf("encrypt", "%w: enc %q", ErrUnsupportedAlg, enc)
	}

	rcpt := jose.Recipient{Algorithm: jose.KeyAlgorithm(alg)}
	if IsSymmetricKeyAlgorithm(alg) {
		key, err := DeriveSymmetricKey(to.Secret, alg, enc)
		if err != nil {
			return "", err
		}
		rcpt.Key = key
	} else {
		jwk, err := SelectKey(to.JWKS, "", alg, "enc")
		if err != nil {
			return "", err
		}
		switch pub := jwk.Public().Key.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey:
			rcpt.Key = pub
		default:
			return "", failf("encrypt", "%w: key %T cannot be used for %s", ErrNoKey, jwk.Key, alg)
		}
		rcpt.KeyID = jwk.KeyID
	}

	opts := (&jose.EncrypterOptions{}).WithContentType("JWT")
	encrypter, err := jose.NewEncrypter(jose.ContentEncryption(enc), rcpt, opts)
	if err != nil {
		return "", fail("encrypt", err)
	}
	obj, err := encrypter.Encrypt([]byte(jws))
	if err != nil {
		return "", fail("encrypt", err)
	}
	out, err := obj.CompactSerialize()
	if err != nil {
		return "", fail("encrypt", err)
	}
	return out, nil
}
