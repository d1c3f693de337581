package josex

import (
	"slices"
	"time"
)

// Expectations are the registered-claim checks applied after a signature has
// been verified.
type Expectations struct {
	// Issuer must equal iss. Empty skips the check.
	Issuer string
	// Audience must intersect aud. Empty skips the check.
	Audience []string
	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration
	// Now overrides the clock.
	Now time.Time
	// Required claim names that must be present.
	Required []string
}

// ValidateClaims applies exp/nbf (with leeway), iss, aud and presence checks.
func ValidateClaims(j *JWS, want Expectations) error {
	now := want.Now
	if now.IsZero() {
		now = time.Now()
	}

	for _, name := range want.Required {
		if !j.Has(name) {
			return failf("validate claims", "%w: %s", ErrMissingClaim, name)
		}
	}

	if exp, ok := j.Time("exp"); ok && now.After(exp.Add(want.Leeway)) {
		return fail("validate claims", ErrExpired)
	}
	if nbf, ok := j.Time("nbf"); ok && now.Before(nbf.Add(-want.Leeway)) {
		return fail("validate claims", ErrNotYetValid)
	}

	if want.Issuer != "" && j.String("iss") != want.Issuer {
		return fail("validate claims", ErrIssuer)
	}

	if len(want.Audience) > 0 {
		aud := j.Strings("aud")
		if !slices.ContainsFunc(want.Audience, func(a string) bool { return slices.Contains(aud, a) }) {
			return fail("validate claims", ErrAudience)
		}
	}
	return nil
}
