package notifier

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookNotifier POSTs domain events to an external automation webhook.
// Delivery is fire-and-forget: failures are logged and never surface to the
// operation that triggered them.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a webhook URL is configured. Callers may pass a nil
// Notifier instead; both mean no delivery.
func (n *WebhookNotifier) Enabled() bool {
	return n != nil && n.url != ""
}

func (n *WebhookNotifier) Notify(eventType string, payload interface{}) {
	if !n.Enabled() {
		return
	}

	go func() {
		body, err := json.Marshal(map[string]interface{}{
			"type":      eventType,
			"payload":   payload,
			"timestamp": time.Now().UTC(),
		})
		if err != nil {
			logrus.WithError(err).WithField("type", eventType).
				Error("failed to encode webhook payload")
			return
		}

		resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
		if err != nil {
			logrus.WithError(err).WithField("type", eventType).
				Warn("webhook delivery failed")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			logrus.WithFields(logrus.Fields{
				"type":   eventType,
				"status": resp.StatusCode,
			}).Warn("webhook rejected notification")
			return
		}
		logrus.WithField("type", eventType).Debug("webhook delivered")
	}()
}
