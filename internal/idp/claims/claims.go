// Package claims assembles ID token and UserInfo claim sets from a user, the
// granted scopes and an optional claims request.
//
// Everything here is pure: the same inputs always produce the same claims.
package claims

import (
	"slices"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

// Standard lists the OIDC standard claims in their canonical order.
var Standard = []string{
	"name", "given_name", "family_name", "middle_name", "nickname",
	"preferred_username", "profile", "picture", "website",
	"email", "email_verified",
	"gender", "birthdate", "zoneinfo", "locale",
	"phone_number", "phone_number_verified",
	"address", "updated_at",
}

// ScopeClaims is the OIDC Core 5.4 scope to claim table.
var ScopeClaims = map[string][]string{
	"profile": {
		"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
	},
	"email":   {"email", "email_verified"},
	"address": {"address"},
	"phone":   {"phone_number", "phone_number_verified"},
}

// ImpliedBy reports whether a claim is implied by any of scopes.
func ImpliedBy(scopes []string, claim string) bool {
	for _, s := range scopes {
		if slices.Contains(ScopeClaims[s], claim) {
			return true
		}
	}
	return false
}

// Non-standard claims suppressed from strict ID tokens.
const (
	ClaimRoles           = "roles"
	ClaimPermissions     = "permissions"
	ClaimAssignedTenants = "assigned_tenants"
	ClaimVerifiedClaims  = "verified_claims"
)

// GrantIDTokenClaims computes the ID token claim names to grant.
//
// In strict mode a standard claim is granted only when explicitly requested,
// except for response_type=id_token, where no access token exists to fetch
// UserInfo and scope implied claims are still granted.
func GrantIDTokenClaims(server domain.ServerConfig, scopes []string, rt domain.ResponseType, req Request) []string {
	idTokenOnly := rt == domain.ResponseTypeIDToken
	var out []string
	for _, name := range Standard {
		if !server.SupportsClaim(name) {
			continue
		}
		requested := req.HasIDToken(name)
		implied := ImpliedBy(scopes, name)
		switch {
		case idTokenOnly:
			if implied || requested {
				out = append(out, name)
			}
		case server.IDTokenStrictMode:
			if requested {
				out = append(out, name)
			}
		case implied || requested:
			out = append(out, name)
		}
	}
	if req.IDTokenVerifiedClaims().Exists() {
		out = append(out, ClaimVerifiedClaims)
	}
	return out
}

// GrantUserinfoClaims computes the UserInfo claim names to grant. UserInfo
// is never strict.
func GrantUserinfoClaims(server domain.ServerConfig, scopes []string, req Request) []string {
	var out []string
	for _, name := range Standard {
		if server.SupportsClaim(name) && (ImpliedBy(scopes, name) || req.HasUserinfo(name)) {
			out = append(out, name)
		}
	}
	if req.UserinfoVerifiedClaims().Exists() {
		out = append(out, ClaimVerifiedClaims)
	}
	return out
}

// individual copies the granted standard claims the user has a value for.
func individual(user *domain.User, granted []string) map[string]any {
	out := map[string]any{"sub": user.Sub}
	for _, name := range Standard {
		if !slices.Contains(granted, name) {
			continue
		}
		if v, ok := user.Claim(name); ok {
			out[name] = v
		}
	}
	return out
}

func addNonStandard(out map[string]any, user *domain.User) {
	if len(user.Roles) > 0 {
		out[ClaimRoles] = slices.Clone(user.Roles)
	}
	if len(user.Permissions) > 0 {
		out[ClaimPermissions] = slices.Clone(user.Permissions)
	}
	if len(user.AssignedTenants) > 0 {
		out[ClaimAssignedTenants] = slices.Clone(user.AssignedTenants)
	}
	for k, v := range user.CustomProperties {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
}

// IDToken builds the user claims of an ID token. Protocol claims (iss, aud,
// nonce, hashes) are added by the token issuer.
func IDToken(user *domain.User, grant domain.AuthorizationGrant, strict bool) map[string]any {
	out := individual(user, grant.IDTokenClaims)
	if !strict {
		addNonStandard(out, user)
	}
	if slices.Contains(grant.IDTokenClaims, ClaimVerifiedClaims) {
		req := MustParseRequest(grant.ClaimsRequest)
		if v, ok := Verified(req.IDTokenVerifiedClaims(), user.VerifiedClaims); ok {
			out[ClaimVerifiedClaims] = v
		}
	}
	return out
}

// Userinfo builds the UserInfo response body.
func Userinfo(user *domain.User, grant domain.AuthorizationGrant) map[string]any {
	out := individual(user, grant.UserinfoClaims)
	addNonStandard(out, user)
	if slices.Contains(grant.UserinfoClaims, ClaimVerifiedClaims) {
		req := MustParseRequest(grant.ClaimsRequest)
		if v, ok := Verified(req.UserinfoVerifiedClaims(), user.VerifiedClaims); ok {
			out[ClaimVerifiedClaims] = v
		}
	}
	return out
}
