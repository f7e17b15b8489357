package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DelegatedConfig configures the external analyze-and-redact service.
type DelegatedConfig struct {
	// BaseURL of the redaction service, e.g. "http://presidio:8080".
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey is sent as a bearer token when set.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout bounds each redaction call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DelegatedRedactor calls an external entity-recognition service to analyze
// and redact text. Any failure on this path is recovered by the engine's
// pattern fallback, so errors here are reported, never swallowed.
type DelegatedRedactor struct {
	cfg    DelegatedConfig
	client *http.Client
}

// NewDelegatedRedactor validates the configuration and builds the client.
func NewDelegatedRedactor(cfg DelegatedConfig) (*DelegatedRedactor, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("delegated redactor base_url is not configured")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &DelegatedRedactor{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (r *DelegatedRedactor) Name() string { return "delegated" }

type delegatedRequest struct {
	Text string `json:"text"`
}

type delegatedResponse struct {
	RedactedText string `json:"redacted_text"`
	WasRedacted  bool   `json:"was_redacted"`
}

// Redact posts the text to the service's redact endpoint.
func (r *DelegatedRedactor) Redact(ctx context.Context, text string) (string, bool, error) {
	payload, err := json.Marshal(delegatedRequest{Text: text})
	if err != nil {
		return "", false, fmt.Errorf("marshal redaction request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/redact", strings.TrimRight(r.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("build redaction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", false, fmt.Errorf("redaction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", false, fmt.Errorf("redaction service error: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	var out delegatedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode redaction response: %w", err)
	}
	return out.RedactedText, out.WasRedacted, nil
}
