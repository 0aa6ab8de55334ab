package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"accessgate/cmd/access"
)

const defaultWebhookTimeout = 5 * time.Second

// Config configures webhook delivery.
type Config struct {
	// URLs maps a channel to its webhook. Missing or blank entries use Fallback.
	URLs map[access.Channel]string

	// BearerToken, when set, is sent as "Authorization: Bearer <token>".
	BearerToken string

	// Timeout bounds one webhook call.
	Timeout time.Duration
}

// StatusError is returned when a webhook answers outside 2xx.
type StatusError struct {
	Channel    access.Channel
	StatusCode int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("delivery: %s webhook returned status %d", e.Channel, e.StatusCode)
}

// WebhookSender POSTs codes to the configured per-channel webhook.
type WebhookSender struct {
	urls     map[access.Channel]string
	bearer   string
	timeout  time.Duration
	client   *http.Client
	fallback Sender
}

type webhookPayload struct {
	Channel     string    `json:"channel"`
	PhoneNumber string    `json:"phoneNumber"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewWebhookSender returns a sender for cfg. A nil client uses a fresh http.Client;
// a nil fallback uses LogSender with the default logger.
func NewWebhookSender(cfg Config, client *http.Client, fallback Sender) *WebhookSender {
	urls := make(map[access.Channel]string, len(cfg.URLs))
	for ch, u := range cfg.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls[ch] = u
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	if fallback == nil {
		fallback = LogSender{}
	}

	return &WebhookSender{
		urls:     urls,
		bearer:   strings.TrimSpace(cfg.BearerToken),
		timeout:  timeout,
		client:   client,
		fallback: fallback,
	}
}

// Configured reports whether ch has a webhook.
func (s *WebhookSender) Configured(ch access.Channel) bool {
	_, ok := s.urls[ch]
	return ok
}

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	target, ok := s.urls[msg.Channel]
	if !ok {
		return s.fallback.Send(ctx, msg)
	}

	body, err := json.Marshal(webhookPayload{
		Channel:     string(msg.Channel),
		PhoneNumber: msg.PhoneNumber,
		Code:        msg.Code,
		CreatedAt:   msg.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("delivery: encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("delivery: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+s.bearer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: %s webhook: %w", msg.Channel, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusError{Channel: msg.Channel, StatusCode: resp.StatusCode}
	}
	return nil
}
