package lowstock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const (
	defaultWebhookTimeout       = 5 * time.Second
	responseBodyReadLimit int64 = 512
	breakerName                 = "low-stock-webhook"
)

var errWebhookURLRequired = errors.New("low stock webhook url is required")

// Forwarder delivers alerts to an external sink without blocking the caller.
type Forwarder interface {
	Forward(ctx context.Context, payload AlertPayload)
}

// AlertPayload is the JSON body posted to the webhook.
type AlertPayload struct {
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Slug      *string    `json:"slug,omitempty"`
	Stock     int        `json:"stock"`
	Threshold int        `json:"threshold"`
	At        time.Time  `json:"at"`
}

// WebhookForwarder posts alerts through a circuit breaker so a dead sink stops
// costing a request per alert.
type WebhookForwarder struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
	logg       *logger.Logger
	metrics    *metrics.DomainMetrics
	inflight   sync.WaitGroup
}

// WebhookOption configures optional forwarder behavior.
type WebhookOption func(*WebhookForwarder)

func WithHTTPClient(client *http.Client) WebhookOption {
	return func(f *WebhookForwarder) {
		if client != nil {
			f.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) WebhookOption {
	return func(f *WebhookForwarder) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

func WithLogger(logg *logger.Logger) WebhookOption {
	return func(f *WebhookForwarder) {
		if logg != nil {
			f.logg = logg
		}
	}
}

func WithMetrics(m *metrics.DomainMetrics) WebhookOption {
	return func(f *WebhookForwarder) {
		f.metrics = m
	}
}

// NewWebhookForwarder builds a forwarder for the given sink URL.
func NewWebhookForwarder(url string, opts ...WebhookOption) (*WebhookForwarder, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, errWebhookURLRequired
	}

	f := &WebhookForwarder{
		url:        trimmed,
		httpClient: &http.Client{},
		timeout:    defaultWebhookTimeout,
		logg:       logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := f.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			f.logg.Warn(ctx, "circuit breaker state changed")
		},
	})
	return f, nil
}

// Forward posts the payload in the background. The request outlives ctx
// cancellation but is bounded by the forwarder timeout.
func (f *WebhookForwarder) Forward(ctx context.Context, payload AlertPayload) {
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()

		if err := f.Send(sendCtx, payload); err != nil {
			f.metrics.WebhookFailure()
			f.logg.Error(f.logg.WithField(ctx, "webhook_url", f.url), "low stock alert forward failed", err)
		}
	}()
}

// Send posts the payload synchronously through the breaker.
func (f *WebhookForwarder) Send(ctx context.Context, payload AlertPayload) error {
	_, err := f.breaker.Execute(func() (interface{}, error) {
		return nil, f.post(ctx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", breakerName, err)
	}
	return err
}

// Wait blocks until every in-flight delivery finished.
func (f *WebhookForwarder) Wait() {
	f.inflight.Wait()
}

func (f *WebhookForwarder) post(ctx context.Context, payload AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode alert payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return fmt.Errorf("webhook responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
