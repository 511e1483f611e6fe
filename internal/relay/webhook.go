package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"hookrelay/internal/constants"
	"hookrelay/pkg/metrics"
)

// Sink delivers one payload downstream.
type Sink interface {
	Send(ctx context.Context, payload OutboundPayload) (SinkResponse, error)
}

type SinkResponse struct {
	StatusCode int
	Body       string
}

func (r SinkResponse) OK() bool {
	return r.StatusCode >= constants.HTTPStatusOKMin && r.StatusCode < constants.HTTPStatusOKMax
}

// WebhookSink posts the payload as JSON to a fixed URL.
type WebhookSink struct {
	client *http.Client
	url    string
}

func NewWebhookSink(webhookURL string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &WebhookSink{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		url: webhookURL,
	}
}

// Configured reports whether a webhook URL is set.
func (s *WebhookSink) Configured() bool {
	return s.url != ""
}

// Name implements health.Checker.
func (s *WebhookSink) Name() string {
	return "webhook"
}

// Check implements health.Checker. It never calls the webhook.
func (s *WebhookSink) Check(_ context.Context) error {
	if !s.Configured() {
		return fmt.Errorf("webhook url not configured")
	}
	return nil
}

func (s *WebhookSink) Send(ctx context.Context, payload OutboundPayload) (SinkResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SinkResponse{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SinkResponse{}, fmt.Errorf("failed to create request: %w", withoutURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ObserveWebhookRequest(0, time.Since(start))
		return SinkResponse{}, fmt.Errorf("webhook request failed: %w", withoutURL(err))
	}
	defer resp.Body.Close()
	metrics.ObserveWebhookRequest(resp.StatusCode, time.Since(start))

	// The status decides the outcome; a body that fails to read is dropped.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxUpstreamBodyRead))

	return SinkResponse{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
	}, nil
}

// withoutURL strips the *url.Error wrapper, whose message carries the
// webhook URL and with it the webhook token.
func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
