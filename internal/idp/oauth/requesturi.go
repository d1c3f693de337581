package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aussiebroadwan/idp/pkg/slogx"
)

const maxRequestObjectBytes = 64 << 10

var ErrRequestURIRejected = errors.New("request_uri rejected")

// RequestURIFetcher dereferences request_uri values. Only https URIs on an
// allow-listed host are fetched; an empty allow list rejects every URI.
type RequestURIFetcher struct {
	Client       *http.Client
	AllowedHosts []string
	// Timeout bounds the whole fetch, retries included.
	Timeout  time.Duration
	MaxTries uint
}

func (f *RequestURIFetcher) allowed(u *url.URL) bool {
	return u.Scheme == "https" && slices.Contains(f.AllowedHosts, u.Hostname())
}

// client copies the configured client with redirects disabled, since the
// allow list is only checked against uri itself. A redirect surfaces as a
// non-200 status.
func (f *RequestURIFetcher) client() http.Client {
	client := *http.DefaultClient
	if f.Client != nil {
		client = *f.Client
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return client
}

// Fetch returns the request object published at uri. Server errors and
// transport failures are retried with exponential backoff; client errors
// and redirects are not.
func (f *RequestURIFetcher) Fetch(ctx context.Context, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || !f.allowed(u) {
		return "", fmt.Errorf("%w: host not allowed", ErrRequestURIRejected)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tries := f.MaxTries
	if tries == 0 {
		tries = 3
	}
	client := f.client()

	log := slogx.FromContext(ctx)
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond

	return backoff.Retry(ctx, func() (string, error) {
		return fetchOnce(ctx, &client, uri)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Debug("request_uri fetch retry", slog.String("host", u.Hostname()), slog.Duration("after", d), slog.Any("err", err))
		}),
	)
}

func fetchOnce(ctx context.Context, client *http.Client, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/oauth-authz-req+jwt, application/jwt")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("request_uri: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", backoff.Permanent(fmt.Errorf("%w: status %d", ErrRequestURIRejected, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestObjectBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
