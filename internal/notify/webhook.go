package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
)

// WebhookDispatcher posts events to the configured webhook URL. Dispatch is
// fire-and-forget with a short timeout; failures are logged only.
type WebhookDispatcher struct {
	config *store.ConfigStore
	client *http.Client
	log    waLog.Logger
}

// NewWebhookDispatcher creates a new WebhookDispatcher.
func NewWebhookDispatcher(config *store.ConfigStore, timeout time.Duration, log waLog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		config: config,
		client: &http.Client{Timeout: timeout},
		log:    log.Sub("Webhook"),
	}
}

type webhookPayload struct {
	Event     string      `json:"event"`
	SessionID string      `json:"sessionId"`
	Data      interface{} `json:"data"`
}

// Dispatch sends the event to the configured URL in a detached goroutine.
// Nothing happens when no URL is configured or the event is not subscribed.
func (d *WebhookDispatcher) Dispatch(event, sessionID string, data interface{}) {
	go func() {
		if err := d.send(event, sessionID, data); err != nil {
			d.log.Errorf("Webhook %s for %s failed: %v", event, sessionID, err)
		}
	}()
}

func (d *WebhookDispatcher) send(event, sessionID string, data interface{}) error {
	cfg, err := d.config.Get()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.WebhookURL == "" || !subscribed(cfg.WebhookEvents, event) {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Event: event, SessionID: sessionID, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	resp, err := d.client.Post(cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	d.log.Debugf("Webhook %s delivered to %s", event, cfg.WebhookURL)
	return nil
}

func subscribed(events []string, event string) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}
