package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/aegisgate/aegisgate/guardrails"
	"github.com/aegisgate/aegisgate/internal/metrics"
	"github.com/aegisgate/aegisgate/tokenizer"
	"github.com/aegisgate/aegisgate/types"
	"github.com/aegisgate/aegisgate/upstream"
)

// Pipeline terminal outcomes, recorded per execution.
const (
	OutcomeCompleted               = "completed"
	OutcomeBlocked                 = "blocked"
	OutcomeUpstreamUnreachable     = "upstream_unreachable"
	OutcomeInvalidUpstreamResponse = "invalid_upstream_response"
)

// Config holds the pipeline's policy knobs.
type Config struct {
	// BlockOnInjection rejects requests when an injection signature matches.
	// When false, detections are observed but the request proceeds.
	BlockOnInjection bool `yaml:"block_on_injection" json:"block_on_injection"`

	// DefaultModel is substituted when the payload carries no model.
	DefaultModel string `yaml:"default_model" json:"default_model"`
}

// Pipeline runs the per-request processing sequence. It holds no mutable
// state; concurrent executions are fully independent.
type Pipeline struct {
	cfg        Config
	engine     *guardrails.Engine
	dispatcher *upstream.Dispatcher
	estimator  tokenizer.Estimator
	observer   Observer
	collector  *metrics.Collector
	logger     *zap.Logger
}

// NewPipeline wires the pipeline. observer and collector may be nil.
func NewPipeline(
	cfg Config,
	engine *guardrails.Engine,
	dispatcher *upstream.Dispatcher,
	estimator tokenizer.Estimator,
	observer Observer,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		engine:     engine,
		dispatcher: dispatcher,
		estimator:  estimator,
		observer:   observer,
		collector:  collector,
		logger:     logger.With(zap.String("component", "pipeline")),
	}
	if collector != nil {
		dispatcher.OnRetry = func(_ int, reason string) {
			collector.RecordUpstreamRetry(reason)
		}
	}
	return p
}

// Process runs one validated request through the pipeline and returns the
// response status and JSON body to hand back to the caller. The caller's
// request value is never mutated. Every failure path yields a structured
// error body with a stable code; Process never panics outward.
func (p *Pipeline) Process(ctx context.Context, req *types.ChatCompletionsRequest, requestID, clientID string) (int, []byte) {
	// Scan the normalized text of all message fragments.
	joined := guardrails.NormalizeText(guardrails.ExtractMessageTexts(req))
	scan := p.engine.Run(ctx, joined)

	if p.collector != nil && scan.InjectionDetected {
		p.collector.RecordInjectionSignatures(scan.InjectionSignatures)
	}

	if scan.InjectionDetected && p.cfg.BlockOnInjection {
		p.logger.Warn("request blocked by injection policy",
			zap.String("request_id", requestID),
			zap.String("client_id", clientID),
			zap.Strings("signatures", scan.InjectionSignatures),
		)
		p.recordOutcome(OutcomeBlocked)

		payload := types.NewErrorPayload(
			types.CodePromptInjectionDetected,
			types.ErrorTypeInvalidRequest,
			"Prompt injection detected. Request blocked by security policy.",
		).WithParam("messages").WithRequestID(requestID)
		payload.Error.Signatures = scan.InjectionSignatures
		return http.StatusBadRequest, marshalPayload(payload)
	}

	// Redact PII on a copy; the original stays available to the caller.
	redacted := guardrails.RedactRequest(ctx, p.engine, req)
	if p.collector != nil && scan.WasRedacted {
		p.collector.RecordRedaction()
	}

	// Validation guarantees a model, but keep a safe default regardless.
	model := redacted.Model
	if model == "" {
		model = p.cfg.DefaultModel
		redacted.Model = model
	}

	// Billing simulation on the redacted prompt. Best-effort: the observer
	// never fails the pipeline.
	promptText := guardrails.NormalizeText(guardrails.ExtractMessageTexts(redacted))
	promptTokens := p.estimator.Estimate(model, promptText)
	if p.observer != nil {
		p.observer.BillingSimulation(BillingEvent{
			RequestID:    requestID,
			ClientID:     clientID,
			Model:        model,
			PromptTokens: promptTokens,
		})
	}

	resp, err := p.dispatcher.PostChatCompletions(ctx, redacted, requestID, clientID)
	if err != nil {
		p.recordOutcome(OutcomeUpstreamUnreachable)
		payload := types.NewErrorPayload(
			types.CodeUpstreamUnreachable,
			types.ErrorTypeUpstream,
			"Upstream provider request failed.",
		).WithRequestID(requestID)
		payload.Error.Details = err.Error()
		return http.StatusBadGateway, marshalPayload(payload)
	}

	if !json.Valid(resp.Body) {
		p.recordOutcome(OutcomeInvalidUpstreamResponse)
		payload := types.NewErrorPayload(
			types.CodeInvalidUpstreamResponse,
			types.ErrorTypeUpstream,
			"Upstream returned non-JSON response.",
		).WithRequestID(requestID)
		payload.Error.StatusCode = resp.StatusCode
		return http.StatusBadGateway, marshalPayload(payload)
	}

	// Second billing observation when the body carries assistant text.
	if completion := extractCompletionText(resp.Body); completion != "" {
		completionTokens := p.estimator.Estimate(model, completion)
		if p.observer != nil {
			p.observer.BillingSimulation(BillingEvent{
				RequestID:        requestID,
				ClientID:         clientID,
				Model:            model,
				PromptTokens:     promptTokens,
				CompletionTokens: &completionTokens,
			})
		}
	}

	p.recordOutcome(OutcomeCompleted)
	return resp.StatusCode, resp.Body
}

func (p *Pipeline) recordOutcome(outcome string) {
	if p.collector != nil {
		p.collector.RecordOutcome(outcome)
	}
}

// extractCompletionText pulls choices[0].message.content when it is a
// string. Bodies with any other shape yield "".
func extractCompletionText(body []byte) string {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return ""
	}
	if s, ok := parsed.Choices[0].Message.Content.(string); ok {
		return s
	}
	return ""
}

func marshalPayload(p types.ErrorPayload) []byte {
	data, err := json.Marshal(p)
	if err != nil {
		// Cannot happen for this shape; keep a valid body regardless.
		return []byte(`{"error":{"message":"internal error","type":"internal_error","param":null,"code":"internal_error"}}`)
	}
	return data
}
