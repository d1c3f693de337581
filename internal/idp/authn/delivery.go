package authn

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

	"github.com/aussiebroadwan/idp/internal/idp/domain"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

//go:generate mockgen -destination=mocks/mock_delivery.go -package=mocks -source=delivery.go MessageSender,DeviceNotifier,Delegate

// Message is a one-time code addressed to a phone number or mailbox.
type Message struct {
	Channel string // MethodSMS or MethodEmail
	To      string
	Code    string
	// TransactionID lets the provider correlate deliveries.
	TransactionID string
}

// MessageSender delivers challenge codes.
type MessageSender interface {
	Send(ctx context.Context, msg Message) error
}

// DeviceNotifier tells an authentication device that a transaction waits
// for the user.
type DeviceNotifier interface {
	NotifyDevice(ctx context.Context, device domain.AuthenticationDevice, txn *domain.AuthenticationTransaction) error
}

// Delegate verifies an authenticator assertion on an external FIDO server
// and returns the subject it belongs to.
type Delegate interface {
	Authenticate(ctx context.Context, tenantID string, params map[string]string) (sub string, err error)
}

// ErrDeliveryRejected is returned when a webhook answers with a client
// error.
var ErrDeliveryRejected = errors.New("delivery rejected")

// Webhook posts JSON documents to a fixed endpoint, retrying 5xx answers
// and transport failures.
type Webhook struct {
	Endpoint string
	Client   *http.Client
	MaxTries uint
}

func (w *Webhook) post(ctx context.Context, doc any, out any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	tries := w.MaxTries
	if tries == 0 {
		tries = 3
	}
	log := slogx.FromContext(ctx)

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("webhook: status %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: status %d", ErrDeliveryRejected, resp.StatusCode))
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("webhook: decode response: %w", err))
			}
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Debug("webhook retry", slog.String("endpoint", w.Endpoint), slog.Duration("after", d), slog.Any("err", err))
		}),
	)
	return err
}

// WebhookSender hands challenge codes to an SMS or mail gateway.
type WebhookSender struct{ Webhook }

func (s *WebhookSender) Send(ctx context.Context, m Message) error {
	return s.post(ctx, map[string]string{
		"channel":        m.Channel,
		"to":             m.To,
		"code":           m.Code,
		"transaction_id": m.TransactionID,
	}, nil)
}

// WebhookDeviceNotifier hands device notifications to a push gateway.
type WebhookDeviceNotifier struct{ Webhook }

func (n *WebhookDeviceNotifier) NotifyDevice(ctx context.Context, device domain.AuthenticationDevice, txn *domain.AuthenticationTransaction) error {
	return n.post(ctx, map[string]any{
		"device_id":            device.ID,
		"notification_channel": device.NotificationChannel,
		"notification_token":   device.NotificationToken,
		"transaction_id":       txn.ID,
		"binding_message":      txn.Context.BindingMessage,
		"scopes":               txn.Context.Scopes,
	}, nil)
}

// WebhookDelegate asks a FIDO server to verify an assertion. The server
// answers {"sub": "..."} on success.
type WebhookDelegate struct{ Webhook }

func (d *WebhookDelegate) Authenticate(ctx context.Context, tenantID string, params map[string]string) (string, error) {
	var out struct {
		Sub string `json:"sub"`
	}
	if err := d.post(ctx, map[string]any{"tenant_id": tenantID, "request": params}, &out); err != nil {
		return "", err
	}
	if out.Sub == "" {
		return "", fmt.Errorf("%w: no subject in response", ErrDeliveryRejected)
	}
	return out.Sub, nil
}

// DiscardSender drops messages with a warning. It is used when no gateway
// is configured.
type DiscardSender struct{}

func (DiscardSender) Send(ctx context.Context, m Message) error {
	slogx.FromContext(ctx).Warn("no message gateway configured, challenge dropped",
		slog.String("channel", m.Channel),
		slog.String("transaction_id", m.TransactionID),
	)
	return nil
}

// DiscardDeviceNotifier logs device notifications instead of sending
// them. The device still completes the transaction through the
// interaction endpoints.
type DiscardDeviceNotifier struct{}

func (DiscardDeviceNotifier) NotifyDevice(ctx context.Context, device domain.AuthenticationDevice, txn *domain.AuthenticationTransaction) error {
	slogx.FromContext(ctx).Warn("no device gateway configured, notification dropped",
		slog.String("device_id", device.ID),
		slog.String("transaction_id", txn.ID),
	)
	return nil
}
