package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	sendGridURL        = "https://api.sendgrid.com/v3/mail/send"
	maxSendGridRetries = 3
)

// EmailConfig configures EmailDispatcher
type EmailConfig struct {
	APIKey        string
	FromEmail     string
	FromName      string
	ShadowAddress string // when set every message goes here instead
	Endpoint      string // defaults to the SendGrid v3 endpoint
	HTTPClient    *http.Client
	RetryBackoff  time.Duration
}

// EmailDispatcher renders catalog templates and sends them through SendGrid.
// Without an API key messages are only logged, which keeps development and
// pilot installs free of real mail.
type EmailDispatcher struct {
	catalog *Catalog
	cfg     EmailConfig
	client  *http.Client
}

// NewEmailDispatcher creates an e-mail dispatcher
func NewEmailDispatcher(catalog *Catalog, cfg EmailConfig) *EmailDispatcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = sendGridURL
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &EmailDispatcher{catalog: catalog, cfg: cfg, client: client}
}

// Send renders template and delivers it to one recipient
func (d *EmailDispatcher) Send(ctx context.Context, to, template string, data map[string]interface{}) (Outcome, error) {
	recipient := strings.TrimSpace(to)
	if d.cfg.ShadowAddress != "" {
		recipient = d.cfg.ShadowAddress
	}
	if recipient == "" || !strings.Contains(recipient, "@") {
		return Outcome{}, ErrInvalidRecipient
	}

	msg, err := d.catalog.Render(template, data)
	if err != nil {
		return Outcome{}, err
	}

	if d.cfg.APIKey == "" {
		log.Printf("EmailDispatcher: dry run, %s to %s: %s", template, recipient, msg.Subject)
		return Outcome{Recipient: recipient, Provider: "log", Delivered: true}, nil
	}

	if err := d.sendViaSendGrid(ctx, recipient, msg); err != nil {
		return Outcome{Recipient: recipient, Provider: "sendgrid"}, err
	}
	return Outcome{Recipient: recipient, Provider: "sendgrid", Delivered: true}, nil
}

func (d *EmailDispatcher) sendViaSendGrid(ctx context.Context, to string, msg Rendered) error {
	body := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]interface{}{{"email": to}}},
		},
		"from":    map[string]string{"email": d.cfg.FromEmail, "name": d.cfg.FromName},
		"subject": msg.Subject,
		"content": []map[string]string{{"type": "text/plain", "value": msg.Body}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	backoff := retry.WithMaxRetries(maxSendGridRetries-1, retry.NewExponential(d.cfg.RetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		statusErr := fmt.Errorf("sendgrid status %d", resp.StatusCode)
		// 4xx other than rate limiting will not get better on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return statusErr
		}
		return retry.RetryableError(statusErr)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &Error{Message: "sendgrid delivery failed", Err: err}
}
