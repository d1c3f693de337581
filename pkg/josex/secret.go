package josex

// Key management algorithms that wrap or derive the CEK from a shared secret.
var symmetricKeyLengths = map[string]int{
	"A128KW":    16,
	"A192KW":    24,
	"A256KW":    32,
	"A128GCMKW": 16,
	"A192GCMKW": 24,
	"A256GCMKW": 32,
}

// Content encryption key lengths, used for "dir".
var contentKeyLengths = map[string]int{
	"A128GCM":       16,
	"A192GCM":       24,
	"A256GCM":       32,
	"A128CBC-HS256": 32,
	"A192CBC-HS384": 48,
	"A256CBC-HS512": 64,
}

// IsSymmetricKeyAlgorithm reports whether alg derives its key from a client
// secret.
func IsSymmetricKeyAlgorithm(alg string) bool {
	if alg == "dir" {
		return true
	}
	_, ok := symmetricKeyLengths[alg]
	return ok
}

// SymmetricKeyLength returns the key length in bytes required by alg, using
// enc when alg is "dir".
func SymmetricKeyLength(alg, enc string) (int, error) {
	if alg == "dir" {
		if n, ok := contentKeyLengths[enc]; ok {
			return n, nil
		}
		return 0, failf("derive key", "%w: enc %q", ErrUnsupportedAlg, enc)
	}
	if n, ok := symmetricKeyLengths[alg]; ok {
		return n, nil
	}
	return 0, failf("derive key", "%w: alg %q", ErrUnsupportedAlg, alg)
}

// DeriveSymmetricKey builds the JWE key for alg/enc from a client secret per
// OIDC Core 10.2: the UTF-8 octets of the secret, truncated or right padded
// with zero bytes to the required length.
func DeriveSymmetricKey(secret, alg, enc string) ([]byte, error) {
	n, err := SymmetricKeyLength(alg, enc)
	if err != nil {
		return nil, err
	}
	key := make([]byte, n)
	copy(key, secret)
	return key, nil
}
