package josex

import (
	"encoding/json"
	"time"
)

// JWS is a parsed compact JWS (or unsigned JWT) with its header and claims.
type JWS struct {
	Raw    string
	Header Header
	Claims map[string]any
}

func (j *JWS) Alg() string   { return j.Header.Alg() }
func (j *JWS) KeyID() string { return j.Header.KeyID() }

// IsUnsigned reports alg "none".
func (j *JWS) IsUnsigned() bool { return j.Header.Alg() == "none" }

// Has reports whether claim name is present.
func (j *JWS) Has(name string) bool {
	_, ok := j.Claims[name]
	return ok
}

// String returns a string claim or "".
func (j *JWS) String(name string) string {
	s, _ := j.Claims[name].(string)
	return s
}

// Strings returns a claim that may be a single string or an array of strings
// (aud is the usual suspect).
func (j *JWS) Strings(name string) []string {
	switch v := j.Claims[name].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

// Time returns a NumericDate claim.
func (j *JWS) Time(name string) (time.Time, bool) {
	switch v := j.Claims[name].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case int:
		return time.Unix(int64(v), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}
