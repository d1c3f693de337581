package josex

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"strings"
)

// HalfHash computes the at_hash / c_hash / s_hash value: base64url of the
// left-most half of the SHA-2 digest of value, with the digest size taken
// from the JWS alg (…256, …384, …512). EdDSA uses SHA-512.
func HalfHash(value, alg string) string {
	var sum []byte
	switch {
	case strings.HasSuffix(alg, "384"):
		s := sha512.Sum384([]byte(value))
		sum = s[:]
	case strings.HasSuffix(alg, "512"), alg == "EdDSA":
		s := sha512.Sum512([]byte(value))
		sum = s[:]
	default:
		s := sha256.Sum256([]byte(value))
		sum = s[:]
	}
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
