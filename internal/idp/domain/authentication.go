package domain

import (
	"slices"
	"time"
)

// Authentication is the evidence of how and when a user authenticated.
type Authentication struct {
	Time    time.Time `json:"time"`
	Methods []string  `json:"methods,omitempty"` // amr values
	ACR     string    `json:"acr,omitempty"`
}

func (a Authentication) Exists() bool {
	return !a.Time.IsZero()
}

// AddMethods merges amr values, keeping order and dropping duplicates.
func (a Authentication) AddMethods(methods ...string) Authentication {
	out := slices.Clone(a.Methods)
	for _, m := range methods {
		if m != "" && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	a.Methods = out
	return a
}

// SessionKey identifies an OAuthSession: within one browser, one session
// per token issuer and client. BrowserID is the opaque browser session
// cookie value.
type SessionKey struct {
	BrowserID   string
	TokenIssuer string
	ClientID    string
}

func (k SessionKey) String() string {
	return k.BrowserID + "|" + k.TokenIssuer + "|" + k.ClientID
}

// OAuthSession is an authenticated browser session.
type OAuthSession struct {
	Key            SessionKey
	SessionID      string
	User           User
	Authentication Authentication
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

func (s *OAuthSession) Exists() bool {
	return s != nil && s.User.Exists()
}

func (s *OAuthSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SatisfiesMaxAge reports whether the authentication happened within
// maxAge of now.
func (s *OAuthSession) SatisfiesMaxAge(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.Authentication.Time) <= maxAge
}

// IsValid applies the checks needed to reuse the session for req.
func (s *OAuthSession) IsValid(now time.Time, req *AuthorizationRequest) bool {
	if !s.Exists() || s.IsExpired(now) {
		return false
	}
	if req == nil {
		return true
	}
	if req.HasPrompt(PromptLogin) {
		return false
	}
	if maxAge, ok := req.MaxAgeDuration(); ok {
		return s.SatisfiesMaxAge(now, maxAge)
	}
	return true
}
