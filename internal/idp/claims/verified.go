package claims

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Members of an individual claim request that describe the request rather
// than name a sub-claim.
var requestMeta = map[string]struct{}{
	"essential": {},
	"value":     {},
	"values":    {},
	"purpose":   {},
	"max_age":   {},
}

// Verified intersects a verified_claims request with the user's verified
// data. Only fields named by the request are returned; nested objects are
// intersected field by field. The result is false when nothing matched.
func Verified(requested gjson.Result, user map[string]any) (map[string]any, bool) {
	if !requested.IsObject() || len(user) == 0 {
		return nil, false
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, false
	}
	have := gjson.ParseBytes(raw)

	out := map[string]any{}
	for _, member := range []string{"verification", "claims"} {
		want := requested.Get(member)
		if !want.Exists() {
			continue
		}
		if v := intersect(want, have.Get(member)); len(v) > 0 {
			out[member] = v
		}
	}
	if _, ok := out["claims"]; !ok {
		return nil, false
	}
	return out, true
}

func intersect(want, have gjson.Result) map[string]any {
	if !have.IsObject() {
		return nil
	}
	values := have.Map()
	out := map[string]any{}
	want.ForEach(func(key, shape gjson.Result) bool {
		name := key.String()
		v, ok := values[name]
		if !ok || v.Type == gjson.Null {
			return true
		}
		if isNested(shape) && v.IsObject() {
			if sub := intersect(shape, v); len(sub) > 0 {
				out[name] = sub
			}
			return true
		}
		out[name] = v.Value()
		return true
	})
	return out
}

// isNested reports whether shape names sub-claims rather than just
// describing the request for this claim.
func isNested(shape gjson.Result) bool {
	if !shape.IsObject() {
		return false
	}
	nested := false
	shape.ForEach(func(key, _ gjson.Result) bool {
		if _, meta := requestMeta[key.String()]; !meta {
			nested = true
			return false
		}
		return true
	})
	return nested
}
