package claims_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idp/internal/idp/claims"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
)

func boolPtr(b bool) *bool { return &b }

func testUser() *domain.User {
	return &domain.User{
		Sub:           "user-1",
		Name:          "Ada Lovelace",
		GivenName:     "Ada",
		Email:         "ada@example.com",
		EmailVerified: boolPtr(true),
		Roles:         []string{"admin"},
		UpdatedAt:     time.Unix(1700000000, 0),
		CustomProperties: map[string]any{
			"department": "engineering",
		},
		VerifiedClaims: map[string]any{
			"verification": map[string]any{
				"trust_framework": "eidas",
				"time":            "2024-01-01T00:00:00Z",
			},
			"claims": map[string]any{
				"given_name": "Ada",
				"birthdate":  "1815-12-10",
				"address": map[string]any{
					"locality": "London",
					"country":  "UK",
				},
			},
		},
	}
}

func TestParseRequest(t *testing.T) {
	t.Parallel()

	req, err := claims.ParseRequest(`{"id_token":{"email":null,"acr":{"values":["urn:a","urn:b"]}},"userinfo":{"name":{"essential":true}}}`)
	require.NoError(t, err)
	require.Equal(t, []string{"acr", "email"}, req.IDTokenNames())
	require.Equal(t, []string{"name"}, req.UserinfoNames())
	require.Equal(t, []string{"urn:a", "urn:b"}, req.RequestedACR())

	empty, err := claims.ParseRequest("")
	require.NoError(t, err)
	require.True(t, empty.IsEmpty())

	for _, bad := range []string{`{`, `[]`, `{"id_token":"x"}`} {
		_, err := claims.ParseRequest(bad)
		require.ErrorIs(t, err, claims.ErrInvalidRequest, bad)
	}
}

func TestGrantIDTokenClaims(t *testing.T) {
	t.Parallel()

	req, err := claims.ParseRequest(`{"id_token":{"email":null}}`)
	require.NoError(t, err)

	t.Run("scope implied and requested", func(t *testing.T) {
		t.Parallel()
		got := claims.GrantIDTokenClaims(domain.ServerConfig{}, []string{"openid", "phone"}, domain.ResponseTypeCode, req)
		require.Equal(t, []string{"email", "phone_number", "phone_number_verified"}, got)
	})

	t.Run("strict mode keeps requested only", func(t *testing.T) {
		t.Parallel()
		server := domain.ServerConfig{IDTokenStrictMode: true}
		got := claims.GrantIDTokenClaims(server, []string{"openid", "profile"}, domain.ResponseTypeCode, req)
		require.Equal(t, []string{"email"}, got)
	})

	t.Run("strict mode with id_token only response", func(t *testing.T) {
		t.Parallel()
		server := domain.ServerConfig{IDTokenStrictMode: true}
		got := claims.GrantIDTokenClaims(server, []string{"openid", "email"}, domain.ResponseTypeIDToken, claims.Request{})
		require.Equal(t, []string{"email", "email_verified"}, got)
	})

	t.Run("unsupported claims dropped", func(t *testing.T) {
		t.Parallel()
		server := domain.ServerConfig{ClaimsSupported: []string{"sub", "email_verified"}}
		got := claims.GrantIDTokenClaims(server, []string{"openid", "email"}, domain.ResponseTypeCode, claims.Request{})
		require.Equal(t, []string{"email_verified"}, got)
	})
}

func TestIDTokenIsPure(t *testing.T) {
	t.Parallel()

	user := testUser()
	grant := domain.AuthorizationGrant{IDTokenClaims: []string{"name", "email", "email_verified", "family_name"}}

	first := claims.IDToken(user, grant, false)
	second := claims.IDToken(user, grant, false)
	require.Equal(t, first, second)

	require.Equal(t, "user-1", first["sub"])
	require.Equal(t, "Ada Lovelace", first["name"])
	require.Equal(t, true, first["email_verified"])
	require.NotContains(t, first, "family_name")
	require.Equal(t, []string{"admin"}, first["roles"])
	require.Equal(t, "engineering", first["department"])
}

func TestStrictSuppressesNonStandardFromIDTokenOnly(t *testing.T) {
	t.Parallel()

	user := testUser()
	grant := domain.AuthorizationGrant{
		IDTokenClaims:  []string{"name"},
		UserinfoClaims: []string{"name"},
	}

	idToken := claims.IDToken(user, grant, true)
	require.NotContains(t, idToken, "roles")
	require.NotContains(t, idToken, "department")

	userinfo := claims.Userinfo(user, grant)
	require.Equal(t, []string{"admin"}, userinfo["roles"])
	require.Equal(t, "engineering", userinfo["department"])
}

func TestVerifiedClaimsMinimisation(t *testing.T) {
	t.Parallel()

	raw := `{"id_token":{"verified_claims":{"verification":{"trust_framework":null},"claims":{"given_name":null,"family_name":null,"address":{"locality":null}}}}}`
	req, err := claims.ParseRequest(raw)
	require.NoError(t, err)

	granted := claims.GrantIDTokenClaims(domain.ServerConfig{}, []string{"openid"}, domain.ResponseTypeCode, req)
	require.Contains(t, granted, claims.ClaimVerifiedClaims)

	out := claims.IDToken(testUser(), domain.AuthorizationGrant{
		IDTokenClaims: granted,
		ClaimsRequest: raw,
	}, true)

	require.Equal(t, map[string]any{
		"verification": map[string]any{"trust_framework": "eidas"},
		"claims": map[string]any{
			"given_name": "Ada",
			"address":    map[string]any{"locality": "London"},
		},
	}, out[claims.ClaimVerifiedClaims])
}

func TestVerifiedNoMatch(t *testing.T) {
	t.Parallel()

	req, err := claims.ParseRequest(`{"id_token":{"verified_claims":{"claims":{"nationality":null}}}}`)
	require.NoError(t, err)

	_, ok := claims.Verified(req.IDTokenVerifiedClaims(), testUser().VerifiedClaims)
	require.False(t, ok)
}
