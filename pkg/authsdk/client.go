package authsdk

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Endpoint paths below the tenant prefix.
const (
	AuthorizationPath = "/authorizations"
	PushedPath        = "/par"
	BackchannelPath   = "/backchannel/authentications"
	TokenPath         = "/tokens"
	JWKSPath          = "/jwks"
)

// SDKClient is a client for the identity provider. It keeps the
// AUTH_SESSION cookie between calls, so one SDKClient plays one user agent.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client that never follows redirects: the
// authorization endpoint answers the client with a 302 the caller inspects.
func NewSDKClient(baseURL string) *SDKClient {
	jar, _ := cookiejar.New(nil)
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// ClientAuth is the client authentication sent with PAR, backchannel and
// token requests.
type ClientAuth struct {
	ClientID     string
	ClientSecret string
	// Basic sends the credentials in the Authorization header instead of
	// the form body.
	Basic bool
	// Assertion is a private_key_jwt or client_secret_jwt assertion.
	Assertion string
}

// addTo writes the form-borne credentials into form.
func (a ClientAuth) addTo(form url.Values) {
	switch {
	case a.Assertion != "":
		form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
		form.Set("client_assertion", a.Assertion)
	case a.Basic:
		// sent in the Authorization header
	default:
		form.Set("client_id", a.ClientID)
		if a.ClientSecret != "" {
			form.Set("client_secret", a.ClientSecret)
		}
	}
}

func tenantPath(tenantID, path string) string {
	return "/" + strings.Trim(tenantID, "/") + path
}
