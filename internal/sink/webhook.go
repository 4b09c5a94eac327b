// ABOUTME: Webhook sink posting artifacts as JSON to an external endpoint
// ABOUTME: Retries transient failures with bounded backoff

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bellhop-chat/bellhop/internal/flow"
)

// WebhookSink POSTs artifacts to a CRM/calendar/ticketing endpoint. The
// receiving side is responsible for idempotent ingestion.
type WebhookSink struct {
	url     string
	client  *http.Client
	logger  *slog.Logger
	retries []time.Duration
}

// NewWebhookSink creates a webhook sink for the given URL.
func NewWebhookSink(url string, logger *slog.Logger) *WebhookSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With("component", "sink", "sink", "webhook"),
		retries: []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 800 * time.Millisecond},
	}
}

// Accept posts the artifact, retrying transient failures. 4xx responses are
// treated as permanent and not retried.
func (s *WebhookSink) Accept(ctx context.Context, artifact *flow.Artifact) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(s.retries); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retries[attempt-1]):
			}
		}

		lastErr = s.post(ctx, payload)
		if lastErr == nil {
			return nil
		}
		if permanent, ok := lastErr.(*permanentError); ok {
			return fmt.Errorf("webhook rejected artifact: %w", permanent)
		}
		s.logger.Warn("artifact delivery failed, will retry",
			"attempt", attempt+1,
			"conversation_id", artifact.ConversationID,
			"error", lastErr,
		)
	}
	return fmt.Errorf("webhook delivery exhausted retries: %w", lastErr)
}

func (s *WebhookSink) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &permanentError{status: resp.StatusCode}
	default:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
}

type permanentError struct {
	status int
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("status %d", e.status)
}
