// Package notify posts order lifecycle events to webhook URLs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jonathan/print-estimator/internal/observability"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one webhook delivery
const DefaultTimeout = 5 * time.Second

// DefaultUserAgent is sent with every delivery
const DefaultUserAgent = "PrintEstimator-Webhook/1.0"

// Events emitted over an order's lifecycle
const (
	EventEstimateCreated    = "estimate_created"
	EventEstimateUploaded   = "estimate_uploaded"
	EventOrderStatusUpdated = "order_status_updated"
	EventOrderReestimated   = "order_reestimated"
)

// Payload is the JSON body of a delivery
type Payload struct {
	Event  string `json:"event"`
	Data   any    `json:"data"`
	SentAt string `json:"sent_at"` // RFC3339 format
}

// Error represents a failed delivery.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("webhook error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("webhook error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Webhook delivers events over HTTP
type Webhook struct {
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Webhook whose deliveries time out after timeout (DefaultTimeout if zero)
func New(timeout time.Duration, logger *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Webhook{
		client: &http.Client{Timeout: timeout},
		logger: observability.OrNop(logger),
		now:    time.Now,
	}
}

// Notify posts event and data to target. Any non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, event string, data any, target string) error {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &Error{URL: target, Message: "invalid URL", Cause: err}
	}

	body, err := json.Marshal(Payload{
		Event:  event,
		Data:   data,
		SentAt: w.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return &Error{URL: target, Message: "failed to encode payload", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return &Error{URL: target, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return &Error{URL: target, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{URL: target, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	w.logger.Debug("webhook delivered",
		zap.String("op", "notify.Notify"),
		zap.String("event", event),
		zap.Int("status", resp.StatusCode))
	return nil
}

// Dispatch delivers in the background. It does not inherit ctx cancellation,
// so a finished request does not abort the delivery. Failures are only logged.
// The returned channel is closed once the delivery attempt finishes.
func (w *Webhook) Dispatch(ctx context.Context, event string, data any, target string) <-chan struct{} {
	done := make(chan struct{})
	if target == "" {
		close(done)
		return done
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		if err := w.Notify(detached, event, data, target); err != nil {
			w.logger.Warn("webhook delivery failed",
				zap.String("op", "notify.Dispatch"),
				zap.String("event", event),
				zap.Error(err))
		}
	}()
	return done
}
