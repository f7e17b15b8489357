// Package gateway sequences the request-processing pipeline: guardrail
// scanning, redaction, token estimation, and upstream dispatch.
package gateway

import (
	"time"

	"go.uber.org/zap"

	"github.com/aegisgate/aegisgate/internal/metrics"
)

// BillingEvent is one billing-simulation observation. CompletionTokens is
// nil for the pre-dispatch estimate.
type BillingEvent struct {
	RequestID        string
	ClientID         string
	Model            string
	PromptTokens     int
	CompletionTokens *int
}

// Observer is the observation sink: side-effecting, best-effort,
// non-blocking writes. A failure to emit never aborts the pipeline.
type Observer interface {
	BillingSimulation(ev BillingEvent)
}

// ZapObserver emits billing events as structured log lines and feeds the
// prometheus counters.
type ZapObserver struct {
	logger    *zap.Logger
	collector *metrics.Collector
}

// NewZapObserver creates the default observer. collector may be nil.
func NewZapObserver(logger *zap.Logger, collector *metrics.Collector) *ZapObserver {
	return &ZapObserver{
		logger:    logger.With(zap.String("component", "billing")),
		collector: collector,
	}
}

// BillingSimulation implements Observer.
func (o *ZapObserver) BillingSimulation(ev BillingEvent) {
	fields := []zap.Field{
		zap.String("event", "billing_simulation"),
		zap.String("request_id", ev.RequestID),
		zap.String("client_id", ev.ClientID),
		zap.String("model", ev.Model),
		zap.Int("prompt_tokens_estimated", ev.PromptTokens),
		zap.Int64("timestamp_unix", time.Now().Unix()),
	}
	if ev.CompletionTokens != nil {
		fields = append(fields, zap.Int("completion_tokens_estimated", *ev.CompletionTokens))
	}
	o.logger.Info("billing_simulation", fields...)

	if o.collector != nil {
		if ev.CompletionTokens != nil {
			o.collector.RecordEstimatedTokens("completion", *ev.CompletionTokens)
		} else {
			o.collector.RecordEstimatedTokens("prompt", ev.PromptTokens)
		}
	}
}
