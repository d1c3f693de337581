package idp_test

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/idp/pkg/authsdk"
)

/*
 * Common constants and helper functions for identity provider end-to-end
 * tests. The container runs with the development catalogue baked into the
 * image (deploy/tenants.yaml).
 */

const (
	testImageName = "aussiebroadwan-idp-test:latest"

	tenantID     = "demo"
	webClient    = "demo-web"
	webSecret    = "demo-web-secret-change-me-please"
	webRedirect  = "http://localhost:3000/callback"
	cibaClient   = "demo-ciba"
	cibaSecret   = "demo-ciba-secret-change-me-please"
	userSub      = "demo-user"
	userName     = "demo"
	userPassword = "demo-password"
	userCode     = "2468"
)

// TestMain manages the test lifecycle, builds the Docker image once before
// all tests and cleans it up after all tests complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building identity provider Docker image...")

	// Build the Docker image once before all tests
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up identity provider Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

// buildDockerImage builds the test Docker image.
func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/idp/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

// cleanupDockerImage removes the test Docker image.
func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

// relaxedLimits raises every rate limit profile so that tests issuing many
// rapid requests are not throttled.
var relaxedLimits = map[string]string{
	"RATELIMIT_STRICT_REQUESTS":   "1000",
	"RATELIMIT_STRICT_BURST":      "1000",
	"RATELIMIT_MODERATE_REQUESTS": "1000",
	"RATELIMIT_MODERATE_BURST":    "1000",
	"RATELIMIT_LENIENT_REQUESTS":  "1000",
	"RATELIMIT_LENIENT_BURST":     "1000",
}

// setupIDPContainer starts the identity provider with relaxed rate limits
// and returns the base URL.
func setupIDPContainer(t *testing.T) (string, func()) {
	t.Helper()
	return startContainer(t, relaxedLimits)
}

// setupIDPContainerWithDefaultRateLimits starts the identity provider with
// the production rate limits.
func setupIDPContainerWithDefaultRateLimits(t *testing.T) (string, func()) {
	t.Helper()
	return startContainer(t, nil)
}

func startContainer(t *testing.T, extraEnv map[string]string) (string, func()) {
	t.Helper()
	ctx := context.Background()

	env := map[string]string{
		"IDP_ALGORITHM":     "ES256",
		"IDP_NUM_KEYS":      "2",
		"IDP_COOKIE_SECURE": "false",
		"ENV":               "test",
		"LOG_LEVEL":         "info",
		"LOG_FORMAT":        "json",
	}
	for k, v := range extraEnv {
		env[k] = v
	}

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          env,
		WaitingFor:   wait.ForHTTP("/readyz").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return baseURL, cleanup
}

func webAuth() authsdk.ClientAuth {
	return authsdk.ClientAuth{ClientID: webClient, ClientSecret: webSecret, Basic: true}
}

func cibaAuth() authsdk.ClientAuth {
	return authsdk.ClientAuth{ClientID: cibaClient, ClientSecret: cibaSecret, Basic: true}
}

func authorizeParams(state string) url.Values {
	return url.Values{
		"client_id":     {webClient},
		"response_type": {"code"},
		"scope":         {"openid profile email"},
		"redirect_uri":  {webRedirect},
		"state":         {state},
		"nonce":         {"nonce-" + state},
	}
}

// startAuthorization sends an authorization request that needs user
// interaction and returns the request id.
func startAuthorization(t *testing.T, client *authsdk.SDKClient, params url.Values) string {
	t.Helper()
	outcome, err := client.Authorize(t.Context(), tenantID, params)
	require.NoError(t, err)
	require.NotNil(t, outcome.Interaction, "expected an interaction, got redirect %q", outcome.Location)
	require.NotEmpty(t, outcome.Interaction.RequestID)
	return outcome.Interaction.RequestID
}

// loginWithPassword completes the password interaction and returns the
// client redirect.
func loginWithPassword(t *testing.T, client *authsdk.SDKClient, requestID string) string {
	t.Helper()
	res, err := client.Interact(t.Context(), tenantID, requestID, "password-authentication",
		url.Values{"username": {userName}, "password": {userPassword}})
	require.NoError(t, err, "password interaction should succeed")
	require.Equal(t, "SUCCESS", res.Outcome)
	require.NotEmpty(t, res.Location)
	return res.Location
}

// redirectQuery parses the client redirect and checks it targets the
// registered redirect uri.
func redirectQuery(t *testing.T, location string) url.Values {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	require.Equal(t, webRedirect, u.Scheme+"://"+u.Host+u.Path)
	return u.Query()
}

// assertOAuthError verifies err is an OAuth error with status and code.
func assertOAuthError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	var oerr *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, status, oerr.StatusCode)
	require.Equal(t, code, oerr.Code)
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
