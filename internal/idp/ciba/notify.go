package ciba

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aussiebroadwan/idp/pkg/slogx"
)

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks -source=notify.go Gateway

// Notification is a ping or push callback to the client notification
// endpoint (CIBA Core 10.2, 10.3).
type Notification struct {
	Endpoint string
	// Token is the client_notification_token sent as the bearer credential.
	Token string
	Body  map[string]any
}

// Gateway delivers client notifications.
type Gateway interface {
	Notify(ctx context.Context, n Notification) error
}

var ErrNotificationRejected = errors.New("client notification rejected")

// HTTPGateway posts notifications as JSON. 5xx answers and transport
// failures are retried with exponential backoff.
type HTTPGateway struct {
	Client   *http.Client
	MaxTries uint
	// Timeout bounds one delivery, retries included.
	Timeout time.Duration
}

func (g *HTTPGateway) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n.Body)
	if err != nil {
		return err
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tries := g.MaxTries
	if tries == 0 {
		tries = 3
	}
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	log := slogx.FromContext(ctx)
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, post(ctx, client, n, body)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Debug("client notification retry", slog.String("endpoint", n.Endpoint), slog.Duration("after", d), slog.Any("err", err))
		}),
	)
	return err
}

func post(ctx context.Context, client *http.Client, n Notification, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.Token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("client notification: status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return backoff.Permanent(fmt.Errorf("%w: status %d", ErrNotificationRejected, resp.StatusCode))
	}
	return nil
}

// pingNotification tells a ping mode client the result is ready.
func pingNotification(endpoint, token, authReqID string) Notification {
	return Notification{Endpoint: endpoint, Token: token, Body: map[string]any{ParamAuthReqID: authReqID}}
}

// pushNotification delivers the token response itself.
func pushNotification(endpoint, token, authReqID string, tr *TokenResponse) Notification {
	body := map[string]any{
		ParamAuthReqID:  authReqID,
		"access_token":  tr.AccessToken,
		"token_type":    tr.TokenType,
		"expires_in":    tr.ExpiresIn,
		"refresh_token": tr.RefreshToken,
		"id_token":      tr.IDToken,
	}
	return Notification{Endpoint: endpoint, Token: token, Body: body}
}

// pushErrorNotification delivers a denial in push mode (CIBA Core 12).
func pushErrorNotification(endpoint, token, authReqID, code, description string) Notification {
	return Notification{Endpoint: endpoint, Token: token, Body: map[string]any{
		ParamAuthReqID:      authReqID,
		"error":             code,
		"error_description": description,
	}}
}
