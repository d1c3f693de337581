package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/idp/internal/idp/ciba"
	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/internal/idp/store"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/josex"
)

// catalogFile is the YAML document behind IDP_TENANTS_FILE.
type catalogFile struct {
	Tenants []tenantFile `yaml:"tenants"`
}

type tenantFile struct {
	ID       string                        `yaml:"id"`
	Name     string                        `yaml:"name"`
	Server   serverFile                    `yaml:"server"`
	Clients  []clientFile                  `yaml:"clients"`
	Policies []domain.AuthenticationPolicy `yaml:"policies"`
	Users    []userFile                    `yaml:"users"`
}

type serverFile struct {
	Issuer                                string        `yaml:"issuer"`
	ScopesSupported                       []string      `yaml:"scopes_supported"`
	ClaimsSupported                       []string      `yaml:"claims_supported"`
	ResponseTypesSupported                []string      `yaml:"response_types_supported"`
	ResponseModesSupported                []string      `yaml:"response_modes_supported"`
	GrantTypesSupported                   []string      `yaml:"grant_types_supported"`
	ACRValuesSupported                    []string      `yaml:"acr_values_supported"`
	TokenEndpointAuthMethods              []string      `yaml:"token_endpoint_auth_methods_supported"`
	BackchannelDeliveryModes              []string      `yaml:"backchannel_token_delivery_modes_supported"`
	BackchannelUserCodeSupported          bool          `yaml:"backchannel_user_code_parameter_supported"`
	RequestObjectSigningAlgs              []string      `yaml:"request_object_signing_alg_values_supported"`
	IDTokenSigningAlgs                    []string      `yaml:"id_token_signing_alg_values_supported"`
	AuthorizationSigningAlgs              []string      `yaml:"authorization_signing_alg_values_supported"`
	FAPIBaselineScopes                    []string      `yaml:"fapi_baseline_scopes"`
	FAPIAdvanceScopes                     []string      `yaml:"fapi_advance_scopes"`
	ClaimsParameterSupported              bool          `yaml:"claims_parameter_supported"`
	IDTokenStrictMode                     bool          `yaml:"id_token_strict_mode"`
	RequireSignedRequestObject            bool          `yaml:"require_signed_request_object"`
	PushedAuthorizationRequired           bool          `yaml:"require_pushed_authorization_requests"`
	TLSClientCertificateBoundAccessTokens bool          `yaml:"tls_client_certificate_bound_access_tokens"`
	JWKS                                  string        `yaml:"jwks"`
	DefaultSigningAlg                     string        `yaml:"default_signing_alg"`
	AuthorizationCodeTTL                  time.Duration `yaml:"authorization_code_ttl"`
	AccessTokenTTL                        time.Duration `yaml:"access_token_ttl"`
	IDTokenTTL                            time.Duration `yaml:"id_token_ttl"`
	RefreshTokenTTL                       time.Duration `yaml:"refresh_token_ttl"`
	AuthorizationRequestTTL               time.Duration `yaml:"authorization_request_ttl"`
	AuthorizationResponseTTL              time.Duration `yaml:"authorization_response_ttl"`
	PushedRequestTTL                      time.Duration `yaml:"pushed_request_ttl"`
	SessionTTL                            time.Duration `yaml:"session_ttl"`
	BackchannelExpiresIn                  time.Duration `yaml:"backchannel_expires_in"`
	BackchannelInterval                   time.Duration `yaml:"backchannel_interval"`
	RequestObjectLeeway                   time.Duration `yaml:"request_object_leeway"`
	PARPath                               string        `yaml:"par_path"`
}

type clientFile struct {
	ClientID                              string   `yaml:"client_id"`
	ClientSecret                          string   `yaml:"client_secret"`
	ClientName                            string   `yaml:"client_name"`
	ApplicationType                       string   `yaml:"application_type"`
	RedirectURIs                          []string `yaml:"redirect_uris"`
	GrantTypes                            []string `yaml:"grant_types"`
	ResponseTypes                         []string `yaml:"response_types"`
	Scopes                                []string `yaml:"scopes"`
	TokenEndpointAuthMethod               string   `yaml:"token_endpoint_auth_method"`
	JWKS                                  string   `yaml:"jwks"`
	JWKSURI                               string   `yaml:"jwks_uri"`
	RequestObjectSigningAlg               string   `yaml:"request_object_signing_alg"`
	RequestObjectEncryptionAlg            string   `yaml:"request_object_encryption_alg"`
	RequestObjectEncryptionEnc            string   `yaml:"request_object_encryption_enc"`
	IDTokenSignedResponseAlg              string   `yaml:"id_token_signed_response_alg"`
	IDTokenEncryptedResponseAlg           string   `yaml:"id_token_encrypted_response_alg"`
	IDTokenEncryptedResponseEnc           string   `yaml:"id_token_encrypted_response_enc"`
	AuthorizationSignedResponseAlg        string   `yaml:"authorization_signed_response_alg"`
	AuthorizationEncryptedResponseAlg     string   `yaml:"authorization_encrypted_response_alg"`
	AuthorizationEncryptedResponseEnc     string   `yaml:"authorization_encrypted_response_enc"`
	TOSURI                                string   `yaml:"tos_uri"`
	PolicyURI                             string   `yaml:"policy_uri"`
	BackchannelTokenDeliveryMode          string   `yaml:"backchannel_token_delivery_mode"`
	BackchannelClientNotificationEndpoint string   `yaml:"backchannel_client_notification_endpoint"`
	BackchannelAuthRequestSigningAlg      string   `yaml:"backchannel_authentication_request_signing_alg"`
	BackchannelUserCodeParameter          bool     `yaml:"backchannel_user_code_parameter"`
	TLSClientCertificateBoundAccessTokens bool     `yaml:"tls_client_certificate_bound_access_tokens"`
	TLSClientAuthSubjectDN                string   `yaml:"tls_client_auth_subject_dn"`
}

// userFile seeds a user. Password is hashed with the pepper on load.
type userFile struct {
	Sub                 string                        `yaml:"sub"`
	Status              domain.UserStatus             `yaml:"status"`
	Password            string                        `yaml:"password"`
	TOTPSecret          string                        `yaml:"totp_secret"`
	Name                string                        `yaml:"name"`
	GivenName           string                        `yaml:"given_name"`
	FamilyName          string                        `yaml:"family_name"`
	PreferredUsername   string                        `yaml:"preferred_username"`
	Email               string                        `yaml:"email"`
	EmailVerified       *bool                         `yaml:"email_verified"`
	PhoneNumber         string                        `yaml:"phone_number"`
	PhoneNumberVerified *bool                         `yaml:"phone_number_verified"`
	Locale              string                        `yaml:"locale"`
	Birthdate           string                        `yaml:"birthdate"`
	Address             *domain.Address               `yaml:"address"`
	Roles               []string                      `yaml:"roles"`
	Permissions         []string                      `yaml:"permissions"`
	CustomProperties    map[string]any                `yaml:"custom_properties"`
	VerifiedClaims      map[string]any                `yaml:"verified_claims"`
	Devices             []domain.AuthenticationDevice `yaml:"devices"`
}

// Catalogue is the parsed tenants file: the read-only catalogue plus the
// users to seed into the store.
type Catalogue struct {
	Catalog *domain.Catalog
	Users   []domain.User
	// Generated lists tenants whose keys were generated at startup.
	Generated []string
}

// LoadCatalogue reads the tenants file. Tenants without a jwks get fresh
// signing keys, so their tokens do not survive a restart.
func LoadCatalogue(cfg Config, hasher cryptox.PasswordHasher) (*Catalogue, error) {
	raw, err := os.ReadFile(cfg.TenantsFile)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	return ParseCatalogue(raw, cfg, hasher)
}

// ParseCatalogue decodes a tenants document.
func ParseCatalogue(raw []byte, cfg Config, hasher cryptox.PasswordHasher) (*Catalogue, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}
	if len(doc.Tenants) == 0 {
		return nil, fmt.Errorf("tenants file defines no tenant")
	}

	out := &Catalogue{}
	tenants := make([]domain.TenantConfig, 0, len(doc.Tenants))
	seen := make(map[string]bool, len(doc.Tenants))
	for _, tf := range doc.Tenants {
		if tf.ID == "" {
			return nil, fmt.Errorf("tenant without id")
		}
		if seen[tf.ID] {
			return nil, fmt.Errorf("duplicate tenant %q", tf.ID)
		}
		seen[tf.ID] = true

		server := tf.Server.toDomain(cfg, tf.ID)
		if server.JWKS == "" {
			jwks, err := generateKeys(cfg)
			if err != nil {
				return nil, fmt.Errorf("tenant %q: %w", tf.ID, err)
			}
			server.JWKS = jwks
			out.Generated = append(out.Generated, tf.ID)
		} else if _, err := josex.ParseJWKS(server.JWKS); err != nil {
			return nil, fmt.Errorf("tenant %q: %w", tf.ID, err)
		}

		clients := make(map[string]domain.ClientConfig, len(tf.Clients))
		for _, cf := range tf.Clients {
			if cf.ClientID == "" {
				return nil, fmt.Errorf("tenant %q: client without client_id", tf.ID)
			}
			clients[cf.ClientID] = cf.toDomain()
		}

		for _, uf := range tf.Users {
			user, err := uf.toDomain(tf.ID, hasher)
			if err != nil {
				return nil, fmt.Errorf("tenant %q: user %q: %w", tf.ID, uf.Sub, err)
			}
			out.Users = append(out.Users, user)
		}

		tenants = append(tenants, domain.TenantConfig{
			Tenant:   domain.Tenant{ID: tf.ID, Name: tf.Name, Server: server},
			Clients:  clients,
			Policies: tf.Policies,
		})
	}

	out.Catalog = domain.NewCatalog(tenants...)
	return out, nil
}

// Seed upserts the catalogue's users. A user already in the store keeps
// its lifecycle status.
func (c *Catalogue) Seed(ctx context.Context, st store.Store, logger *slog.Logger) error {
	for _, u := range c.Users {
		existing, err := st.Users().Get(ctx, u.TenantID, u.Sub)
		switch {
		case err == nil:
			u.Status = existing.Status
			u.CreatedAt = existing.CreatedAt
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("seed user %q: %w", u.Sub, err)
		}
		if err := st.Users().Upsert(ctx, u); err != nil {
			return fmt.Errorf("seed user %q: %w", u.Sub, err)
		}
	}
	if len(c.Users) > 0 {
		logger.Info("seeded users", "count", len(c.Users))
	}
	return nil
}

func generateKeys(cfg Config) (string, error) {
	specs := make([]josex.KeySpec, cfg.NumKeys)
	for i := range specs {
		specs[i] = josex.KeySpec{Alg: cfg.Algorithm, Use: "sig", RSABits: cfg.RSABits}
	}
	set, err := josex.GenerateJWKS(specs...)
	if err != nil {
		return "", err
	}
	return josex.MarshalJWKS(set)
}

func orDefault[T comparable](value, def T) T {
	var zero T
	if value == zero {
		return def
	}
	return value
}

func orDefaults(values, def []string) []string {
	if len(values) == 0 {
		return def
	}
	return values
}

func (s serverFile) toDomain(cfg Config, tenantID string) domain.ServerConfig {
	return domain.ServerConfig{
		Issuer:                                orDefault(s.Issuer, cfg.IssuerBase+"/"+tenantID),
		ScopesSupported:                       s.ScopesSupported,
		ClaimsSupported:                       s.ClaimsSupported,
		ResponseTypesSupported:                orDefaults(s.ResponseTypesSupported, []string{"code"}),
		ResponseModesSupported:                s.ResponseModesSupported,
		GrantTypesSupported:                   orDefaults(s.GrantTypesSupported, []string{"authorization_code", ciba.GrantType}),
		ACRValuesSupported:                    s.ACRValuesSupported,
		TokenEndpointAuthMethods:              s.TokenEndpointAuthMethods,
		BackchannelDeliveryModes:              orDefaults(s.BackchannelDeliveryModes, []string{domain.DeliveryModePoll, domain.DeliveryModePing, domain.DeliveryModePush}),
		BackchannelUserCodeSupported:          s.BackchannelUserCodeSupported,
		RequestObjectSigningAlgs:              s.RequestObjectSigningAlgs,
		IDTokenSigningAlgs:                    s.IDTokenSigningAlgs,
		AuthorizationSigningAlgs:              s.AuthorizationSigningAlgs,
		FAPIBaselineScopes:                    s.FAPIBaselineScopes,
		FAPIAdvanceScopes:                     s.FAPIAdvanceScopes,
		ClaimsParameterSupported:              s.ClaimsParameterSupported,
		IDTokenStrictMode:                     s.IDTokenStrictMode,
		RequireSignedRequestObject:            s.RequireSignedRequestObject,
		PushedAuthorizationRequired:           s.PushedAuthorizationRequired,
		TLSClientCertificateBoundAccessTokens: s.TLSClientCertificateBoundAccessTokens,
		JWKS:                                  s.JWKS,
		DefaultSigningAlg:                     orDefault(s.DefaultSigningAlg, cfg.Algorithm),
		AuthorizationCodeTTL:                  orDefault(s.AuthorizationCodeTTL, 10*time.Minute),
		AccessTokenTTL:                        orDefault(s.AccessTokenTTL, time.Hour),
		IDTokenTTL:                            orDefault(s.IDTokenTTL, time.Hour),
		RefreshTokenTTL:                       orDefault(s.RefreshTokenTTL, 30*24*time.Hour),
		AuthorizationRequestTTL:               orDefault(s.AuthorizationRequestTTL, 30*time.Minute),
		AuthorizationResponseTTL:              orDefault(s.AuthorizationResponseTTL, 10*time.Minute),
		PushedRequestTTL:                      orDefault(s.PushedRequestTTL, 90*time.Second),
		SessionTTL:                            orDefault(s.SessionTTL, 24*time.Hour),
		BackchannelExpiresIn:                  orDefault(s.BackchannelExpiresIn, 300*time.Second),
		BackchannelInterval:                   orDefault(s.BackchannelInterval, 5*time.Second),
		RequestObjectLeeway:                   orDefault(s.RequestObjectLeeway, 30*time.Second),
		PARPath:                               orDefault(s.PARPath, "/par"),
	}
}

func (c clientFile) toDomain() domain.ClientConfig {
	return domain.ClientConfig{
		ClientID:                              c.ClientID,
		ClientSecret:                          c.ClientSecret,
		ClientName:                            c.ClientName,
		ApplicationType:                       orDefault(c.ApplicationType, "web"),
		RedirectURIs:                          c.RedirectURIs,
		GrantTypes:                            c.GrantTypes,
		ResponseTypes:                         c.ResponseTypes,
		Scopes:                                c.Scopes,
		TokenEndpointAuthMethod:               orDefault(c.TokenEndpointAuthMethod, domain.AuthMethodClientSecretBasic),
		JWKS:                                  c.JWKS,
		JWKSURI:                               c.JWKSURI,
		RequestObjectSigningAlg:               c.RequestObjectSigningAlg,
		RequestObjectEncryptionAlg:            c.RequestObjectEncryptionAlg,
		RequestObjectEncryptionEnc:            c.RequestObjectEncryptionEnc,
		IDTokenSignedResponseAlg:              c.IDTokenSignedResponseAlg,
		IDTokenEncryptedResponseAlg:           c.IDTokenEncryptedResponseAlg,
		IDTokenEncryptedResponseEnc:           c.IDTokenEncryptedResponseEnc,
		AuthorizationSignedResponseAlg:        c.AuthorizationSignedResponseAlg,
		AuthorizationEncryptedResponseAlg:     c.AuthorizationEncryptedResponseAlg,
		AuthorizationEncryptedResponseEnc:     c.AuthorizationEncryptedResponseEnc,
		TOSURI:                                c.TOSURI,
		PolicyURI:                             c.PolicyURI,
		BackchannelTokenDeliveryMode:          c.BackchannelTokenDeliveryMode,
		BackchannelClientNotificationEndpoint: c.BackchannelClientNotificationEndpoint,
		BackchannelAuthRequestSigningAlg:      c.BackchannelAuthRequestSigningAlg,
		BackchannelUserCodeParameter:          c.BackchannelUserCodeParameter,
		TLSClientCertificateBoundAccessTokens: c.TLSClientCertificateBoundAccessTokens,
		TLSClientAuthSubjectDN:                c.TLSClientAuthSubjectDN,
	}
}

func (u userFile) toDomain(tenantID string, hasher cryptox.PasswordHasher) (domain.User, error) {
	if u.Sub == "" {
		return domain.User{}, fmt.Errorf("missing sub")
	}
	user := domain.User{
		Sub:                 u.Sub,
		TenantID:            tenantID,
		Status:              orDefault(u.Status, domain.UserRegistered),
		TOTPSecret:          u.TOTPSecret,
		Name:                u.Name,
		GivenName:           u.GivenName,
		FamilyName:          u.FamilyName,
		PreferredUsername:   u.PreferredUsername,
		Email:               u.Email,
		EmailVerified:       u.EmailVerified,
		PhoneNumber:         u.PhoneNumber,
		PhoneNumberVerified: u.PhoneNumberVerified,
		Locale:              u.Locale,
		Birthdate:           u.Birthdate,
		Address:             u.Address,
		Roles:               u.Roles,
		Permissions:         u.Permissions,
		CustomProperties:    u.CustomProperties,
		VerifiedClaims:      u.VerifiedClaims,
		Devices:             u.Devices,
	}
	if u.Password != "" {
		hash, err := hasher.Hash(u.Password)
		if err != nil {
			return domain.User{}, err
		}
		user.PasswordHash = hash
	}
	return user, nil
}
