package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// HTTPNotifier delivers alert notifications over HTTP. WEBHOOK posts the
// full notification as JSON; SLACK posts the incoming-webhook text format.
// EMAIL is handed off to the operator's mail pipeline via the log stream.
type HTTPNotifier struct {
	client *http.Client
}

// NewHTTPNotifier creates a notifier with a bounded delivery timeout.
func NewHTTPNotifier() *HTTPNotifier {
	return &HTTPNotifier{
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Send delivers one notification. Delivery is best effort; the caller
// records the outcome in the alert log.
func (n *HTTPNotifier) Send(ctx context.Context, notif domain.Notification) error {
	switch notif.Channel {
	case domain.ChannelWebhook:
		return n.post(ctx, notif.Recipient, map[string]any{
			"event":       "alert.fired",
			"message":     notif.Message,
			"triggeredAt": time.Now().UTC(),
		})
	case domain.ChannelSlack:
		return n.post(ctx, notif.Recipient, map[string]any{
			"text": notif.Message,
		})
	case domain.ChannelEmail:
		slog.Info("email notification queued",
			"recipient", notif.Recipient,
			"message", notif.Message,
		)
		return nil
	default:
		return domain.ValidationErrorf("unknown notification channel %q", notif.Channel)
	}
}

func (n *HTTPNotifier) post(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
