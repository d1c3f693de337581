package josex

import (
	"github.com/go-jose/go-jose/v4"
)

var (
	keyAlgorithms = []jose.KeyAlgorithm{
		jose.RSA1_5, jose.RSA_OAEP, jose.RSA_OAEP_256,
		jose.ECDH_ES, jose.ECDH_ES_A128KW, jose.ECDH_ES_A192KW, jose.ECDH_ES_A256KW,
		jose.A128KW, jose.A192KW, jose.A256KW,
		jose.A128GCMKW, jose.A192GCMKW, jose.A256GCMKW,
		jose.DIRECT,
	}
	contentEncryptions = []jose.ContentEncryption{
		jose.A128CBC_HS256, jose.A192CBC_HS384, jose.A256CBC_HS512,
		jose.A128GCM, jose.A192GCM, jose.A256GCM,
	}
)

// Decryptor holds what a JWE recipient can decrypt with.
type Decryptor struct {
	Secret string
	JWKS   *JWKS // private keys
}

// Decrypt opens a compact JWE and returns the plaintext (the inner JWS for
// nested tokens).
func Decrypt(token string, with Decryptor) (string, error) {
	kind, header, err := Analyze(token)
	if err != nil {
		return "", err
	}
	if !kind.IsEncrypted() {
		return "", failf("decrypt", "%w: expected encrypted token, got %s", ErrMalformed, kind)
	}

	obj, err := jose.ParseEncrypted(token, keyAlgorithms, contentEncryptions)
	if err != nil {
		return "", fail("decrypt", err)
	}

	var key any
	if kind == TokenSymmetricEncryption {
		if with.Secret == "" {
			return "", failf("decrypt", "%w: no client secret", ErrNoKey)
		}
		if key, err = DeriveSymmetricKey(with.Secret, header.Alg(), header.Enc()); err != nil {
			return "", err
		}
	} else {
		jwk, err := SelectKey(with.JWKS, header.KeyID(), header.Alg(), "enc")
		if err != nil {
			return "", err
		}
		key = jwk.Key
	}

	plaintext, err := obj.Decrypt(key)
	if err != nil {
		return "", fail("decrypt", err)
	}
	return string(plaintext), nil
}

// DecryptAndVerify opens a nested JWE and verifies the JWS inside it. An
// unsigned inner token is returned only when allowUnsigned is set.
func DecryptAndVerify(token string, with Decryptor, cred Credential, allowUnsigned bool) (*JWS, error) {
	inner, err := Decrypt(token, with)
	if err != nil {
		return nil, err
	}

	kind, _, err := Analyze(inner)
	if err != nil {
		return nil, err
	}
	if kind == TokenUnsigned {
		if !allowUnsigned {
			return nil, failf("decrypt", "%w: unsigned inner token", ErrInvalidSignature)
		}
		return ParseUnsigned(inner)
	}
	return Verify(inner, cred)
}
