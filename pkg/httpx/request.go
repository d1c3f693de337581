package httpx

import (
	"net/http"
	"net/url"
)

// maxFormBytes bounds urlencoded request bodies.
const maxFormBytes = 1 << 20

// Params flattens a request's query string and, for POST, its urlencoded
// body into a single-valued map. Body values win over the query. Repeated
// keys keep their first value.
func Params(r *http.Request) (map[string]string, error) {
	out := flatten(r.URL.Query())
	if r.Method != http.MethodPost {
		return out, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for k, v := range flatten(r.PostForm) {
		out[k] = v
	}
	return out, nil
}

func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
