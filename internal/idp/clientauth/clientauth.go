// Package clientauth authenticates OAuth clients. The authorization
// endpoint's PAR variant, the token endpoint and the CIBA backchannel
// endpoint all run the same algorithm over their own request contexts.
package clientauth

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

// ClientAssertionTypeJWT is the only supported client_assertion_type.
const ClientAssertionTypeJWT = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

var (
	// ErrInvalidClient covers every authentication failure. The wrapped
	// detail is for logs only.
	ErrInvalidClient = errors.New("invalid client")
	// ErrUnsupportedMethod marks a registered method this server cannot
	// run.
	ErrUnsupportedMethod = errors.New("unsupported client authentication method")
)

// Credentials is the client authentication material found on a request.
type Credentials struct {
	// BasicID and BasicSecret come from the Authorization header.
	BasicID     string
	BasicSecret string
	HasBasic    bool

	// ClientID and ClientSecret come from the request parameters.
	ClientID     string
	ClientSecret string

	ClientAssertion     string
	ClientAssertionType string

	// Certificate is the verified TLS client certificate, if any.
	Certificate *x509.Certificate
}

// FromParams picks the form-carried credentials out of request parameters.
func FromParams(params map[string]string, basicID, basicSecret string, hasBasic bool, cert *x509.Certificate) Credentials {
	return Credentials{
		BasicID:             basicID,
		BasicSecret:         basicSecret,
		HasBasic:            hasBasic,
		ClientID:            params["client_id"],
		ClientSecret:        params["client_secret"],
		ClientAssertion:     params["client_assertion"],
		ClientAssertionType: params["client_assertion_type"],
		Certificate:         cert,
	}
}

// RequestedClientID is the client the caller claims to be, taken from the
// first credential that names one.
func (c Credentials) RequestedClientID() string {
	switch {
	case c.HasBasic:
		return c.BasicID
	case c.ClientID != "":
		return c.ClientID
	case c.ClientAssertion != "":
		if j, err := josex.Peek(c.ClientAssertion); err == nil {
			return j.String("sub")
		}
	}
	return ""
}

// CertificateThumbprint is the x5t#S256 of the presented certificate.
func (c Credentials) CertificateThumbprint() string {
	if c.Certificate == nil {
		return ""
	}
	sum := sha256.Sum256(c.Certificate.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Context is what an endpoint's request context exposes to
// authentication. OAuth and CIBA contexts both implement it.
type Context interface {
	Server() domain.ServerConfig
	Client() domain.ClientConfig
	Credentials() Credentials
	// Endpoint is the URL the request was sent to, accepted as an
	// assertion audience next to the issuer.
	Endpoint() string
}

// KeyResolver returns a client's public keys.
type KeyResolver interface {
	ClientKeys(ctx context.Context, client domain.ClientConfig) (*josex.JWKS, error)
}

// Authenticator runs client authentication.
type Authenticator struct {
	Keys KeyResolver
	Now  func() time.Time
}

func (a *Authenticator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidClient, fmt.Sprintf(format, args...))
}

// Authenticate verifies the credentials of c against the client's
// registered token_endpoint_auth_method.
func (a *Authenticator) Authenticate(ctx context.Context, c Context) error {
	client := c.Client()
	creds := c.Credentials()

	if id := creds.RequestedClientID(); id != "" && id != client.ClientID {
		return invalid("client_id mismatch")
	}

	method := client.TokenEndpointAuthMethod
	if method == "" {
		method = domain.AuthMethodClientSecretBasic
	}

	switch method {
	case domain.AuthMethodClientSecretBasic:
		if !creds.HasBasic {
			return invalid("client_secret_basic requires the Authorization header")
		}
		return checkSecret(client, creds.BasicSecret)
	case domain.AuthMethodClientSecretPost:
		if creds.HasBasic || creds.ClientSecret == "" {
			return invalid("client_secret_post requires client_secret in the body")
		}
		return checkSecret(client, creds.ClientSecret)
	case domain.AuthMethodClientSecretJWT:
		return a.checkAssertion(ctx, c, josex.Credential{
			Secret:     client.ClientSecret,
			Algorithms: []string{"HS256", "HS384", "HS512"},
		})
	case domain.AuthMethodPrivateKeyJWT:
		if a.Keys == nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
		}
		keys, err := a.Keys.ClientKeys(ctx, client)
		if err != nil {
			return invalid("client keys: %v", err)
		}
		return a.checkAssertion(ctx, c, josex.Credential{JWKS: keys, Algorithms: asymmetricAlgs})
	case domain.AuthMethodTLSClientAuth:
		if creds.Certificate == nil {
			return invalid("tls_client_auth requires a client certificate")
		}
		if client.TLSClientAuthSubjectDN == "" || creds.Certificate.Subject.String() != client.TLSClientAuthSubjectDN {
			return invalid("certificate subject mismatch")
		}
		return nil
	case domain.AuthMethodSelfSignedTLS:
		return a.checkSelfSigned(ctx, client, creds)
	case domain.AuthMethodNone:
		if creds.HasBasic || creds.ClientSecret != "" || creds.ClientAssertion != "" {
			return invalid("public client presented credentials")
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
}

var asymmetricAlgs = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}

func checkSecret(client domain.ClientConfig, presented string) error {
	if client.ClientSecret == "" || !cryptox.EqualSecret(client.ClientSecret, presented) {
		return invalid("client secret mismatch")
	}
	return nil
}

func (a *Authenticator) checkAssertion(_ context.Context, c Context, cred josex.Credential) error {
	client := c.Client()
	creds := c.Credentials()
	if creds.ClientAssertionType != ClientAssertionTypeJWT || creds.ClientAssertion == "" {
		return invalid("missing client assertion")
	}

	j, err := josex.Verify(creds.ClientAssertion, cred)
	if err != nil {
		return invalid("client assertion: %v", err)
	}

	audience := []string{c.Server().Issuer}
	if ep := c.Endpoint(); ep != "" {
		audience = append(audience, ep)
	}
	if err := josex.ValidateClaims(j, josex.Expectations{
		Audience: audience,
		Now:      a.now(),
		Leeway:   c.Server().RequestObjectLeeway,
		Required: []string{"iss", "sub", "aud", "exp"},
	}); err != nil {
		return invalid("client assertion claims: %v", err)
	}
	if j.String("iss") != client.ClientID || j.String("sub") != client.ClientID {
		return invalid("client assertion iss/sub must be the client_id")
	}
	return nil
}

func (a *Authenticator) checkSelfSigned(ctx context.Context, client domain.ClientConfig, creds Credentials) error {
	if creds.Certificate == nil {
		return invalid("self_signed_tls_client_auth requires a client certificate")
	}
	if a.Keys == nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, domain.AuthMethodSelfSignedTLS)
	}
	keys, err := a.Keys.ClientKeys(ctx, client)
	if err != nil {
		return invalid("client keys: %v", err)
	}
	presented, err := josex.Thumbprint(creds.Certificate.PublicKey)
	if err != nil {
		return invalid("certificate key: %v", err)
	}
	for _, k := range keys.Keys {
		if tp, err := josex.Thumbprint(k.Public().Key); err == nil && tp == presented {
			return nil
		}
	}
	return invalid("certificate key not registered")
}

// ParseBasic decodes an RFC 6749 2.3.1 Authorization header. Both parts
// are form-url-decoded.
func ParseBasic(header string) (id, secret string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	id, secret, ok = strings.Cut(string(raw), ":")
	if !ok {
		return "", "", false
	}
	return formUnescape(id), formUnescape(secret), true
}

// IsConfidential reports whether method proves possession of a credential.
func IsConfidential(method string) bool {
	return method != "" && method != domain.AuthMethodNone
}

// UsesSharedSecret reports secret based methods, which FAPI advance rejects.
func UsesSharedSecret(method string) bool {
	return slices.Contains([]string{
		"", domain.AuthMethodClientSecretBasic, domain.AuthMethodClientSecretPost, domain.AuthMethodClientSecretJWT,
	}, method)
}

func formUnescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}
