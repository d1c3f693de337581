package app

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/pkg/httpx"
)

type Config struct {
	IssuerBase string // Optional: base URL tenant issuers are derived from (default: http://localhost:8080)

	Algorithm    string // Optional: signing algorithm for generated tenant keys (RS256, ES256, EdDSA) (default: ES256)
	RSABits      int    // Optional: RSA key size for RS256 (default: 2048)
	NumKeys      int    // Optional: number of keys generated per tenant without jwks (default: 1, max: 10)
	DatabaseFile string // Optional: path to SQLite database file (default: ./idp.db)
	TenantsFile  string // Optional: path to the tenant catalogue YAML (default: ./tenants.yaml)
	PepperFile   string // Optional: path to file containing pepper for password hashing (default: ./pepper)

	RedisAddr     string // Optional: comma-separated Redis addresses; empty keeps sessions in SQLite
	RedisPassword string
	RedisDB       int

	CookieSecure   bool          // AUTH_SESSION cookie Secure flag (default: true)
	CookieSameSite http.SameSite // AUTH_SESSION cookie SameSite (lax, strict, none) (default: lax)

	RequestURIAllowedHosts []string      // Hosts request_uri may be fetched from (default: none)
	RequestURITimeout      time.Duration // Bound on one request_uri fetch (default: 5s)

	MessageWebhook string // Optional: SMS and email gateway endpoint; empty drops challenge codes
	DeviceWebhook  string // Optional: device push gateway endpoint; empty drops notifications
	FidoWebhook    string // Optional: FIDO server endpoint for fido-uaf and webauthn

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	Limits httpx.Limits // RATELIMIT_<PROFILE>_{REQUESTS,WINDOW_SEC,BURST}
}

func LoadConfig() Config {
	cfg := Config{
		IssuerBase:             strings.TrimSuffix(getEnvOrDefault("IDP_ISSUER_BASE", "http://localhost:8080"), "/"),
		Algorithm:              getEnvOrDefault("IDP_ALGORITHM", "ES256"),
		RSABits:                getEnvIntOrDefault("IDP_RSA_BITS", 2048),
		NumKeys:                getEnvIntOrDefault("IDP_NUM_KEYS", 1),
		DatabaseFile:           getEnvOrDefault("IDP_DATABASE_FILE", "idp.db"),
		TenantsFile:            getEnvOrDefault("IDP_TENANTS_FILE", "tenants.yaml"),
		PepperFile:             getEnvOrDefault("IDP_PEPPER_FILE", "pepper"),
		RedisAddr:              os.Getenv("IDP_REDIS_ADDR"),
		RedisPassword:          os.Getenv("IDP_REDIS_PASSWORD"),
		RedisDB:                getEnvIntOrDefault("IDP_REDIS_DB", 0),
		CookieSecure:           getEnvBoolOrDefault("IDP_COOKIE_SECURE", true),
		CookieSameSite:         parseSameSite(os.Getenv("IDP_COOKIE_SAMESITE")),
		RequestURIAllowedHosts: splitList(os.Getenv("IDP_REQUEST_URI_ALLOWED_HOSTS")),
		RequestURITimeout:      getEnvDurationOrDefault("IDP_REQUEST_URI_TIMEOUT", 5*time.Second),
		MessageWebhook:         os.Getenv("IDP_MESSAGE_WEBHOOK"),
		DeviceWebhook:          os.Getenv("IDP_DEVICE_WEBHOOK"),
		FidoWebhook:            os.Getenv("IDP_FIDO_WEBHOOK"),
		Env:                    getEnvOrDefault("ENV", "dev"),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:              getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                   getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:    getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval:   getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		Limits:                 httpx.LimitsFromEnv(os.Getenv, httpx.DefaultLimits),
	}

	if cfg.NumKeys < 1 {
		cfg.NumKeys = 1
	}
	if cfg.NumKeys > 10 {
		cfg.NumKeys = 10
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
