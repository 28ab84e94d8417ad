// Package notify provides the delivery channels the monitor fans alerts out
// to. Email and SMS are log-backed until the messaging integrations land;
// Slack and the generic webhook post over HTTP.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"erasure/internal/monitor"
)

const sendTimeout = 10 * time.Second

// EmailChannel records the alert on the mail queue log.
// TODO: wire to the transactional mail sender once compliance approves the
// alert template.
type EmailChannel struct {
	logger *slog.Logger
}

func NewEmailChannel(logger *slog.Logger) *EmailChannel {
	return &EmailChannel{logger: logger}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, alert *monitor.Alert) error {
	c.logger.InfoContext(ctx, "email alert queued",
		"alert_id", alert.ID, "severity", alert.Severity, "title", alert.Title)
	return nil
}

// SMSChannel records the alert on the SMS queue log.
type SMSChannel struct {
	logger *slog.Logger
}

func NewSMSChannel(logger *slog.Logger) *SMSChannel {
	return &SMSChannel{logger: logger}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Send(ctx context.Context, alert *monitor.Alert) error {
	c.logger.InfoContext(ctx, "sms alert queued",
		"alert_id", alert.ID, "severity", alert.Severity, "title", alert.Title)
	return nil
}

// SlackChannel posts alerts to an incoming webhook.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, alert *monitor.Alert) error {
	payload := map[string]string{
		"text": fmt.Sprintf("[%s] %s\n%s", alert.Severity, alert.Title, alert.Description),
	}
	return post(ctx, c.client, c.webhookURL, payload)
}

// WebhookChannel posts the full alert to a configured endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: sendTimeout},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, alert *monitor.Alert) error {
	return post(ctx, c.client, c.url, alert)
}

func post(ctx context.Context, client *http.Client, url string, payload any) error {
	if url == "" {
		return fmt.Errorf("no endpoint configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
