package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idp/pkg/httpx"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func fromIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	return req
}

func TestIPKeyExtractor(t *testing.T) {
	t.Parallel()

	t.Run("remote addr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(fromIP("192.168.1.1")))
	})

	t.Run("first forwarded hop", func(t *testing.T) {
		req := fromIP("192.168.1.1")
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("real ip", func(t *testing.T) {
		req := fromIP("192.168.1.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	t.Parallel()

	form := url.Values{"client_id": {"c1"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "10.0.0.1:999"
	req.SetPathValue("tenantId", "t1")

	key := httpx.CompositeKeyExtractor(":",
		httpx.PathValueKeyExtractor("tenantId"),
		httpx.FormFieldKeyExtractor("client_id"),
		httpx.FormFieldKeyExtractor("missing"),
		httpx.IPKeyExtractor,
	)
	require.Equal(t, "t1:c1:10.0.0.1", key(req))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("blocks over burst with headers", func(t *testing.T) {
		cfg := httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}
		h := httpx.RateLimitByIP(cfg)(okHandler())

		for i := range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, fromIP("192.168.1.1"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP("192.168.1.1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP("192.168.1.2"))
		require.Equal(t, http.StatusOK, rec.Code, "other keys keep their own bucket")
	})

	t.Run("empty key bypasses", func(t *testing.T) {
		cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		h := httpx.RateLimitMiddleware(cfg, func(*http.Request) string { return "" })(okHandler())

		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, fromIP("192.168.1.1"))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestLimitsFromEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"RATELIMIT_STRICT_REQUESTS":   "2",
		"RATELIMIT_STRICT_WINDOW_SEC": "30",
		"RATELIMIT_PUBLIC_BURST":      "-1",
	}
	got := httpx.LimitsFromEnv(func(k string) string { return env[k] }, httpx.DefaultLimits)

	require.Equal(t, 2, got.Strict.RequestsPerWindow)
	require.Equal(t, 30*time.Second, got.Strict.Window)
	require.Equal(t, httpx.DefaultLimits.Strict.Burst, got.Strict.Burst)
	require.Equal(t, httpx.DefaultLimits.Public, got.Public)

	require.Less(t, httpx.DefaultLimits.Strict.RequestsPerWindow, httpx.DefaultLimits.Moderate.RequestsPerWindow)
	require.Less(t, httpx.DefaultLimits.Moderate.RequestsPerWindow, httpx.DefaultLimits.Lenient.RequestsPerWindow)
	require.Less(t, httpx.DefaultLimits.Lenient.RequestsPerWindow, httpx.DefaultLimits.Public.RequestsPerWindow)
}
