package josex

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// TokenType classifies a compact token by its header alone.
type TokenType int

const (
	TokenUnknown TokenType = iota
	TokenUnsigned
	TokenSignature
	TokenSymmetricEncryption
	TokenAsymmetricEncryption
)

func (t TokenType) String() string {
	switch t {
	case TokenUnsigned:
		return "unsigned"
	case TokenSignature:
		return "signature"
	case TokenSymmetricEncryption:
		return "symmetric_encryption"
	case TokenAsymmetricEncryption:
		return "asymmetric_encryption"
	default:
		return "unknown"
	}
}

// IsEncrypted reports whether t is either JWE variant.
func (t TokenType) IsEncrypted() bool {
	return t == TokenSymmetricEncryption || t == TokenAsymmetricEncryption
}

// Header is the decoded protected header of a compact JWS or JWE.
type Header map[string]any

func (h Header) Alg() string { return h.str("alg") }
func (h Header) Enc() string { return h.str("enc") }
func (h Header) KeyID() string { return h.str("kid") }
func (h Header) Type() string { return h.str("typ") }
func (h Header) ContentType() string { return h.str("cty") }

func (h Header) str(name string) string {
	s, _ := h[name].(string)
	return s
}

// Analyze decodes the first segment of token and classifies it. No signature
// or decryption work is done.
func Analyze(token string) (TokenType, Header, error) {
	segments := strings.Split(strings.TrimSpace(token), ".")

	var kind TokenType
	switch len(segments) {
	case 3:
		kind = TokenSignature
	case 5:
		kind = TokenAsymmetricEncryption
	default:
		return TokenUnknown, nil, fail("analyze", ErrMalformed)
	}

	header, err := decodeHeader(segments[0])
	if err != nil {
		return TokenUnknown, nil, fail("analyze", err)
	}

	alg := header.Alg()
	switch {
	case alg == "":
		return TokenUnknown, nil, failf("analyze", "header has no alg")
	case kind == TokenSignature && alg == "none":
		kind = TokenUnsigned
	case kind == TokenAsymmetricEncryption && IsSymmetricKeyAlgorithm(alg):
		kind = TokenSymmetricEncryption
	}
	return kind, header, nil
}

func decodeHeader(segment string) (Header, error) {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, ErrMalformed
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, ErrMalformed
	}
	return h, nil
}
