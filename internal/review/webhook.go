// Package review hands new placement alerts to the people who triage them:
// a Notion review queue and a generic JSON webhook.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placement-monitor/internal/model"
)

// EventNewAlert is the event name carried by every webhook payload.
const EventNewAlert = "placement_alert.created"

// WebhookPayload is the JSON body posted for each new alert.
type WebhookPayload struct {
	Event  string      `json:"event"`
	Alert  model.Alert `json:"alert"`
	SentAt time.Time   `json:"sent_at"`
}

// Webhook posts new alerts to a URL.
type Webhook struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhook creates a Webhook with a 10s request timeout.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Name identifies the notifier in logs and metrics.
func (w *Webhook) Name() string { return "webhook" }

// Notify posts a single alert. Any status of 400 or above is an error.
func (w *Webhook) Notify(ctx context.Context, a model.Alert) error {
	body, err := json.Marshal(WebhookPayload{Event: EventNewAlert, Alert: a, SentAt: w.now().UTC()})
	if err != nil {
		return eris.Wrap(err, "review: marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "review: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "review: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("review: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
