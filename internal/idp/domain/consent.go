package domain

import "time"

// Consent item groups.
const (
	ConsentTerms   = "terms"
	ConsentPrivacy = "privacy"
)

// ConsentClaim is one consented document.
type ConsentClaim struct {
	Name        string    `json:"name"`
	Value       string    `json:"value"`
	ConsentedAt time.Time `json:"consented_at"`
}

// ConsentClaims groups consented documents by kind.
type ConsentClaims map[string][]ConsentClaim

// ConsentClaimsFor snapshots the documents client declares.
func ConsentClaimsFor(client ClientConfig, now time.Time) ConsentClaims {
	out := ConsentClaims{}
	if client.TOSURI != "" {
		out[ConsentTerms] = []ConsentClaim{{Name: "tos_uri", Value: client.TOSURI, ConsentedAt: now}}
	}
	if client.PolicyURI != "" {
		out[ConsentPrivacy] = []ConsentClaim{{Name: "policy_uri", Value: client.PolicyURI, ConsentedAt: now}}
	}
	return out
}

func (c ConsentClaims) contains(kind string, want ConsentClaim) bool {
	for _, have := range c[kind] {
		if have.Name == want.Name && have.Value == want.Value {
			return true
		}
	}
	return false
}

// Missing lists the items of required that c does not hold, compared by
// document name and URI.
func (c ConsentClaims) Missing(required ConsentClaims) []string {
	var out []string
	for _, kind := range []string{ConsentTerms, ConsentPrivacy} {
		for _, want := range required[kind] {
			if !c.contains(kind, want) {
				out = append(out, want.Value)
			}
		}
	}
	return out
}

// Merge adds the items of other that c does not hold yet.
func (c ConsentClaims) Merge(other ConsentClaims) ConsentClaims {
	out := ConsentClaims{}
	for kind, items := range c {
		out[kind] = append([]ConsentClaim(nil), items...)
	}
	for kind, items := range other {
		for _, item := range items {
			if !out.contains(kind, item) {
				out[kind] = append(out[kind], item)
			}
		}
	}
	return out
}
