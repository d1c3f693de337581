package claims

import (
	"errors"
	"slices"

	"github.com/tidwall/gjson"
)

var ErrInvalidRequest = errors.New("claims: invalid claims request")

// Request is a parsed OIDC claims request parameter.
type Request struct {
	raw    string
	parsed gjson.Result
}

// ParseRequest parses the claims parameter. An empty raw value is an empty
// request.
func ParseRequest(raw string) (Request, error) {
	if raw == "" {
		return Request{}, nil
	}
	if !gjson.Valid(raw) {
		return Request{}, ErrInvalidRequest
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return Request{}, ErrInvalidRequest
	}
	for _, member := range []string{"id_token", "userinfo"} {
		if v := parsed.Get(member); v.Exists() && !v.IsObject() {
			return Request{}, ErrInvalidRequest
		}
	}
	return Request{raw: raw, parsed: parsed}, nil
}

// MustParseRequest is ParseRequest for values validated earlier, such as
// those stored with a grant.
func MustParseRequest(raw string) Request {
	r, err := ParseRequest(raw)
	if err != nil {
		return Request{}
	}
	return r
}

func (r Request) Raw() string { return r.raw }

func (r Request) IsEmpty() bool { return r.raw == "" }

func (r Request) names(member string) []string {
	var out []string
	r.parsed.Get(member).ForEach(func(key, _ gjson.Result) bool {
		out = append(out, key.String())
		return true
	})
	slices.Sort(out)
	return out
}

// IDTokenNames lists the claim names requested for the ID token.
func (r Request) IDTokenNames() []string { return r.names("id_token") }

// UserinfoNames lists the claim names requested for the UserInfo response.
func (r Request) UserinfoNames() []string { return r.names("userinfo") }

func (r Request) HasIDToken(name string) bool {
	return r.parsed.Get("id_token").Map()[name].Exists()
}

func (r Request) HasUserinfo(name string) bool {
	return r.parsed.Get("userinfo").Map()[name].Exists()
}

// IDTokenVerifiedClaims returns the verified_claims request of the ID token.
func (r Request) IDTokenVerifiedClaims() gjson.Result {
	return r.parsed.Get("id_token").Map()["verified_claims"]
}

func (r Request) UserinfoVerifiedClaims() gjson.Result {
	return r.parsed.Get("userinfo").Map()["verified_claims"]
}

// RequestedACR returns the values of an essential or voluntary acr request
// in the ID token member.
func (r Request) RequestedACR() []string {
	acr := r.parsed.Get("id_token").Map()["acr"]
	if !acr.IsObject() {
		return nil
	}
	if v := acr.Get("value"); v.Exists() {
		return []string{v.String()}
	}
	var out []string
	for _, v := range acr.Get("values").Array() {
		out = append(out, v.String())
	}
	return out
}
