// Package upstream implements the resilient dispatcher for the
// OpenAI-compatible model provider behind the gateway.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Correlation headers forwarded to the upstream provider so gateway requests
// can be traced in its logs.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderClientID  = "X-Client-Id"
)

// transientStatus lists the upstream status codes worth retrying. Anything
// else, success or error, is returned to the caller unmodified.
var transientStatus = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// Config configures the dispatcher.
type Config struct {
	// BaseURL of the OpenAI-compatible provider, e.g. "https://api.openai.com".
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey is sent as a bearer token when set.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout bounds each individual attempt.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// MaxAttempts is the total attempt budget, first try included.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// BackoffBase scales the wait between attempts: after attempt n fails
	// the dispatcher waits BackoffBase * n.
	BackoffBase time.Duration `yaml:"backoff_base" json:"backoff_base"`
}

// DefaultConfig returns production-safe dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com",
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 400 * time.Millisecond,
	}
}

// Response is the raw upstream response, passed through to the caller
// without reinterpretation.
type Response struct {
	StatusCode int
	Body       []byte
}

// Dispatcher posts sanitized payloads to the upstream provider with bounded
// retries on transient failures. It holds one long-lived HTTP client whose
// connection pool is shared read-only across concurrent dispatches.
//
// There is deliberately no circuit breaker, no jitter, and no
// per-destination concurrency cap here: retries are local to a single call
// and bounded by MaxAttempts.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	// OnRetry, when set, is invoked before each backoff wait.
	OnRetry func(attempt int, reason string)
}

// NewDispatcher creates a dispatcher with the shared outbound client.
func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger.With(zap.String("component", "upstream")),
	}
}

// Close releases the outbound connection pool. Called once at shutdown.
func (d *Dispatcher) Close() {
	d.client.CloseIdleConnections()
}

// PostChatCompletions sends the payload to {base}/v1/chat/completions.
//
// The retry loop is an explicit counter so the attempt bound is trivially
// verifiable: up to MaxAttempts POSTs, retrying transient statuses and
// network failures, waiting BackoffBase*n after the n-th failed attempt and
// never before the first. A transient status on the final attempt is
// returned as-is; a network failure on the final attempt is propagated as
// an error rather than synthesized into an HTTP response.
func (d *Dispatcher) PostChatCompletions(ctx context.Context, payload any, requestID, clientID string) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream payload: %w", err)
	}

	endpoint := d.endpoint("/v1/chat/completions")

	// An aborted inbound caller must not cancel an in-flight upstream
	// attempt; only the per-attempt timeout applies.
	ctx = context.WithoutCancel(ctx)

	var lastErr error
	var lastReason string
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := d.cfg.BackoffBase * time.Duration(attempt-1)
			if d.OnRetry != nil {
				d.OnRetry(attempt, lastReason)
			}
			d.logger.Debug("retrying upstream request",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			time.Sleep(delay)
		}

		resp, err := d.post(ctx, endpoint, body, requestID, clientID)
		if err != nil {
			lastErr = err
			lastReason = "network_error"
			if attempt < d.cfg.MaxAttempts {
				continue
			}
			d.logger.Warn("upstream unreachable after final attempt",
				zap.String("request_id", requestID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return nil, fmt.Errorf("upstream request failed after %d attempts: %w", attempt, err)
		}

		if transientStatus[resp.StatusCode] && attempt < d.cfg.MaxAttempts {
			lastReason = "transient_status"
			continue
		}
		return resp, nil
	}

	// Unreachable: the loop always returns. Kept for the compiler.
	return nil, lastErr
}

// post performs one attempt with its own timeout.
func (d *Dispatcher) post(ctx context.Context, endpoint string, body []byte, requestID, clientID string) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set(HeaderClientID, clientID)
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// CheckModels probes {base}/v1/models. Used only by the health endpoint;
// any status below 500 counts as reachable.
func (d *Dispatcher) CheckModels(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint("/v1/models"), nil)
	if err != nil {
		return 0, err
	}
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (d *Dispatcher) endpoint(path string) string {
	return strings.TrimRight(d.cfg.BaseURL, "/") + path
}
