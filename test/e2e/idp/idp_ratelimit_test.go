package idp_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idp/pkg/authsdk"
)

// TestRateLimitInteractionEndpoint verifies the strict limit on credential
// interactions (10 requests per minute).
func TestRateLimitInteractionEndpoint(t *testing.T) {
	baseURL, cleanup := setupIDPContainerWithDefaultRateLimits(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	params := url.Values{"username": {userName}, "password": {"wrong"}}

	for i := range 10 {
		_, err := client.Interact(t.Context(), tenantID, "unknown-request", "password-authentication", params)
		require.Error(t, err)
		var oerr *authsdk.OAuth2Error
		require.ErrorAs(t, err, &oerr)
		require.NotEqual(t, http.StatusTooManyRequests, oerr.StatusCode, "request %d should not be limited", i+1)
	}

	_, err := client.Interact(t.Context(), tenantID, "unknown-request", "password-authentication", params)
	assertOAuthError(t, err, http.StatusTooManyRequests, "rate_limit_exceeded")
}

// TestRateLimitJWKSEndpoint verifies the public limit lets clients poll
// keys frequently.
func TestRateLimitJWKSEndpoint(t *testing.T) {
	baseURL, cleanup := setupIDPContainerWithDefaultRateLimits(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	for range 50 {
		_, err := client.GetJWKS(t.Context(), tenantID)
		require.NoError(t, err)
	}
}
