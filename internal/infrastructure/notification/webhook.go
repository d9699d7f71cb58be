package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// WebhookSender posts confirmations to the notification channel's inbound
// webhook. The circuit breaker keeps a flapping downstream from tying up
// bus handler goroutines; a tripped breaker fails fast and the failure is
// absorbed by the worker like any other send error.
type WebhookSender struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookSender{
		url:    url,
		client: client,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    "notification-webhook",
			Timeout: 30 * time.Second,
		}),
	}
}

func (s *WebhookSender) Send(ctx context.Context, c Confirmation) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("notification: marshal confirmation: %w", err)
	}

	_, err = s.breaker.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= http.StatusMultipleChoices {
			return struct{}{}, fmt.Errorf("notification: webhook returned %d", resp.StatusCode)
		}
		return struct{}{}, nil
	})
	return err
}
