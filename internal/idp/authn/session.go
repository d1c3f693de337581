package authn

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// AuthSessionCookieName binds a browser to the transactions it started.
const AuthSessionCookieName = "IDP_AUTH_SESSION"

// CookieOptions controls the AUTH_SESSION cookie attributes.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// NewAuthSession returns a fresh opaque AUTH_SESSION value.
func NewAuthSession() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

// AuthSessionCookie scopes the cookie to the tenant path so tenants never
// see each other's sessions.
func AuthSessionCookie(tenantID, value string, opts CookieOptions) *http.Cookie {
	sameSite := opts.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	c := &http.Cookie{
		Name:     AuthSessionCookieName,
		Value:    value,
		Path:     "/" + strings.Trim(tenantID, "/") + "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: sameSite,
	}
	if opts.MaxAge > 0 {
		c.MaxAge = int(opts.MaxAge / time.Second)
	}
	return c
}

// AuthSessionFrom reads the AUTH_SESSION value of r, or "".
func AuthSessionFrom(r *http.Request) string {
	c, err := r.Cookie(AuthSessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// ValidateAuthSession checks that presented is the AUTH_SESSION bound to
// txn. Device transactions and transactions without a binding pass.
func ValidateAuthSession(txn *domain.AuthenticationTransaction, presented string) error {
	if txn.IsDeviceAuthentication() || !txn.HasAuthSession() {
		return nil
	}
	if presented == "" {
		return ErrUnauthorized
	}
	if !cryptox.EqualSecret(txn.AuthSessionHash, cryptox.FingerprintToken(presented)) {
		return ErrUnauthorized
	}
	return nil
}
