package domain

import (
	"slices"
	"strings"
)

// Client authentication methods.
const (
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodClientSecretJWT   = "client_secret_jwt"
	AuthMethodPrivateKeyJWT     = "private_key_jwt"
	AuthMethodTLSClientAuth     = "tls_client_auth"
	AuthMethodSelfSignedTLS     = "self_signed_tls_client_auth"
	AuthMethodNone              = "none"
)

// CIBA token delivery modes.
const (
	DeliveryModePoll = "poll"
	DeliveryModePing = "ping"
	DeliveryModePush = "push"
)

// ClientConfig is a registered client's metadata.
type ClientConfig struct {
	ClientID        string
	ClientSecret    string
	ClientName      string
	ApplicationType string

	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scopes                  []string
	TokenEndpointAuthMethod string

	JWKS    string // inline JWK Set document
	JWKSURI string

	RequestObjectSigningAlg           string
	RequestObjectEncryptionAlg        string
	RequestObjectEncryptionEnc        string
	IDTokenSignedResponseAlg          string
	IDTokenEncryptedResponseAlg       string
	IDTokenEncryptedResponseEnc       string
	AuthorizationSignedResponseAlg    string
	AuthorizationEncryptedResponseAlg string
	AuthorizationEncryptedResponseEnc string

	TOSURI    string
	PolicyURI string

	BackchannelTokenDeliveryMode          string
	BackchannelClientNotificationEndpoint string
	BackchannelAuthRequestSigningAlg      string
	BackchannelUserCodeParameter          bool

	TLSClientCertificateBoundAccessTokens bool
	TLSClientAuthSubjectDN                string
}

// IsRegisteredRedirectURI compares byte for byte, as required by FAPI and
// OAuth 2.1.
func (c ClientConfig) IsRegisteredRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

func (c ClientConfig) SupportsGrantType(gt string) bool {
	return slices.Contains(c.GrantTypes, gt)
}

func (c ClientConfig) SupportsResponseType(rt string) bool {
	return slices.Contains(c.ResponseTypes, rt)
}

// FilterScopes keeps the requested scopes the client is registered for.
func (c ClientConfig) FilterScopes(requested []string) []string {
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if slices.Contains(c.Scopes, s) {
			out = append(out, s)
		}
	}
	return out
}

// IsPublic reports whether the client has no credential.
func (c ClientConfig) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

func (c ClientConfig) UsesSecretAuthentication() bool {
	return c.TokenEndpointAuthMethod == AuthMethodClientSecretBasic ||
		c.TokenEndpointAuthMethod == AuthMethodClientSecretPost
}

func (c ClientConfig) DeliveryMode() string {
	if c.BackchannelTokenDeliveryMode == "" {
		return DeliveryModePoll
	}
	return c.BackchannelTokenDeliveryMode
}

// HasConsentDocuments reports whether the client declares ToS or policy
// documents that the user must consent to.
func (c ClientConfig) HasConsentDocuments() bool {
	return strings.TrimSpace(c.TOSURI) != "" || strings.TrimSpace(c.PolicyURI) != ""
}
