package authsdk

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// PKCEChallenge holds the PKCE verifier and challenge pair.
// The verifier is kept secret by the client, and the challenge is sent to the authorization endpoint.
type PKCEChallenge struct {
	// Verifier is the high-entropy cryptographic random string (kept secret)
	Verifier string

	// Challenge is the base64url-encoded SHA256 hash of the verifier (sent to server)
	Challenge string

	// Method is always "S256" for SHA256
	Method string
}

// GeneratePKCEChallenge creates a new PKCE code verifier and challenge pair.
// Uses cryptox.TokenSize256 (256 bits of entropy) and SHA256 hashing per RFC 7636.
func GeneratePKCEChallenge() (*PKCEChallenge, error) {
	verifier, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	hash := sha256.Sum256([]byte(verifier))
	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(hash[:]),
		Method:    "S256",
	}, nil
}

// Apply adds the challenge parameters to an authorization request.
func (p *PKCEChallenge) Apply(params url.Values) {
	params.Set("code_challenge", p.Challenge)
	params.Set("code_challenge_method", p.Method)
}

// BuildAuthorizeURL constructs the tenant's authorization URL for params.
func (c *SDKClient) BuildAuthorizeURL(tenantID string, params url.Values) string {
	return c.url(tenantPath(tenantID, AuthorizationPath)) + "?" + params.Encode()
}

// AuthorizeOutcome is either an interaction the user must complete or a
// redirect addressed to the client.
type AuthorizeOutcome struct {
	Interaction *AuthorizationResponse
	// Location is set when the server answered with a redirect, e.g. for
	// prompt=none or a redirectable error.
	Location string
}

// Authorize sends an authorization request as the user agent would.
func (c *SDKClient) Authorize(ctx context.Context, tenantID string, params url.Values) (*AuthorizeOutcome, error) {
	path := tenantPath(tenantID, AuthorizationPath) + "?" + params.Encode()
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusSeeOther {
		_ = resp.Body.Close()
		return &AuthorizeOutcome{Location: resp.Header.Get("Location")}, nil
	}

	var interaction AuthorizationResponse
	if err := decodeJSON(resp, &interaction, http.StatusOK); err != nil {
		return nil, err
	}
	return &AuthorizeOutcome{Interaction: &interaction}, nil
}

// PushAuthorizationRequest stores params at the PAR endpoint. Pass the
// returned request_uri with client_id to Authorize.
func (c *SDKClient) PushAuthorizationRequest(
	ctx context.Context,
	tenantID string,
	auth ClientAuth,
	params url.Values,
) (*PushedAuthorizationResponse, error) {
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	resp, err := c.postForm(ctx, tenantPath(tenantID, PushedPath), form, &auth)
	if err != nil {
		return nil, err
	}

	var pushed PushedAuthorizationResponse
	if err := decodeJSON(resp, &pushed, http.StatusCreated); err != nil {
		return nil, err
	}
	return &pushed, nil
}

// GetTransaction loads the authentication transaction of a request.
func (c *SDKClient) GetTransaction(ctx context.Context, tenantID, requestID string) (*TransactionResponse, error) {
	path := tenantPath(tenantID, AuthorizationPath) + "/" + url.PathEscape(requestID)
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var txn TransactionResponse
	if err := decodeJSON(resp, &txn, http.StatusOK); err != nil {
		return nil, err
	}
	return &txn, nil
}

// Interact runs an authentication interaction of an authorization request,
// e.g. "password-authentication" with username and password. A rejected
// interaction returns both the response and an *OAuth2Error.
func (c *SDKClient) Interact(
	ctx context.Context,
	tenantID, requestID, interaction string,
	params url.Values,
) (*InteractionResponse, error) {
	path := tenantPath(tenantID, AuthorizationPath) + "/" + url.PathEscape(requestID) + "/" + interaction
	resp, err := c.postForm(ctx, path, params, nil)
	if err != nil {
		return nil, err
	}
	return decodeInteraction(resp)
}

// AuthorizeWithSession settles a request from the user agent's existing
// session and returns the client redirect.
func (c *SDKClient) AuthorizeWithSession(ctx context.Context, tenantID, requestID string) (string, error) {
	return c.settle(ctx, tenantID, requestID, "authorize-with-session")
}

// Deny refuses a request and returns the client redirect carrying
// access_denied.
func (c *SDKClient) Deny(ctx context.Context, tenantID, requestID string) (string, error) {
	return c.settle(ctx, tenantID, requestID, "deny")
}

func (c *SDKClient) settle(ctx context.Context, tenantID, requestID, action string) (string, error) {
	path := tenantPath(tenantID, AuthorizationPath) + "/" + url.PathEscape(requestID) + "/" + action
	resp, err := c.postForm(ctx, path, nil, nil)
	if err != nil {
		return "", err
	}

	var out AuthorizeResultResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.Location, nil
}

func decodeInteraction(resp *http.Response) (*InteractionResponse, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadRequest:
		var out InteractionResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if resp.StatusCode == http.StatusOK {
			return &out, nil
		}
		return &out, &OAuth2Error{StatusCode: resp.StatusCode, Code: out.Error, Description: out.ErrorDescription}
	default:
		return nil, parseErrorResponse(resp, body)
	}
}
