package oauth

import (
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/claims"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/authsdk"
)

// Reauthorization is what a prompt=none request is checked against.
type Reauthorization struct {
	Now     time.Time
	Server  domain.ServerConfig
	Client  domain.ClientConfig
	Request *domain.AuthorizationRequest
	Session *domain.OAuthSession
	// Granted is nil when the user never granted anything to the client.
	Granted *domain.AuthorizationGranted
}

// Decide runs the automatic reauthorization checks in order and stops at
// the first failure. A nil result means the request can be authorized
// without any interaction.
func (r Reauthorization) Decide() *Error {
	req := r.Request

	if !r.Session.Exists() || r.Session.IsExpired(r.Now) {
		return redirectable(authsdk.ErrorCodeLoginRequired, "invalid session, session is not registered or expired")
	}
	if maxAge, ok := req.MaxAgeDuration(); ok && !r.Session.SatisfiesMaxAge(r.Now, maxAge) {
		return redirectable(authsdk.ErrorCodeLoginRequired, "authentication is older than max_age")
	}
	if r.Granted == nil {
		return redirectable(authsdk.ErrorCodeInteractionRequired, "authorization is not granted for this client")
	}

	granted := r.Granted.Grant
	if missing := granted.UnauthorizedScopes(req.Scopes); len(missing) > 0 {
		return redirectable(authsdk.ErrorCodeInteractionRequired, "authorization is not granted for scopes (%s)", strings.Join(missing, " "))
	}

	claimsReq, _ := claims.ParseRequest(req.Claims)
	idTokenClaims := claims.GrantIDTokenClaims(r.Server, req.Scopes, req.ResponseType, claimsReq)
	if missing := granted.UnauthorizedIDTokenClaims(idTokenClaims); len(missing) > 0 {
		return redirectable(authsdk.ErrorCodeInteractionRequired, "authorization is not granted for id_token claims (%s)", strings.Join(missing, " "))
	}
	userinfoClaims := claims.GrantUserinfoClaims(r.Server, req.Scopes, claimsReq)
	if missing := granted.UnauthorizedUserinfoClaims(userinfoClaims); len(missing) > 0 {
		return redirectable(authsdk.ErrorCodeInteractionRequired, "authorization is not granted for userinfo claims (%s)", strings.Join(missing, " "))
	}

	if r.Client.HasConsentDocuments() {
		required := domain.ConsentClaimsFor(r.Client, r.Now)
		if missing := granted.UnconsentedItems(required); len(missing) > 0 {
			return redirectable(authsdk.ErrorCodeInteractionRequired, "consent is required for (%s)", strings.Join(missing, " "))
		}
	}
	return nil
}
