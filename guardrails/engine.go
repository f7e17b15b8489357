package guardrails

import (
	"context"

	"go.uber.org/zap"
)

// Result is the outcome of running the guardrails over one text fragment.
// A fresh value is produced per fragment; it is never persisted.
type Result struct {
	RedactedText        string   `json:"redacted_text"`
	WasRedacted         bool     `json:"was_redacted"`
	InjectionDetected   bool     `json:"injection_detected"`
	InjectionSignatures []string `json:"injection_signatures"`
}

// Redactor is the PII redaction strategy. Exactly two implementations
// exist: the built-in pattern redactor and the delegated external engine.
type Redactor interface {
	Name() string

	// Redact returns the redacted text and whether anything was replaced.
	Redact(ctx context.Context, text string) (string, bool, error)
}

// PatternRedactor is the built-in regex + Luhn redaction path. It cannot
// fail, which is what makes it a safe fallback.
type PatternRedactor struct{}

func (PatternRedactor) Name() string { return "patterns" }

func (PatternRedactor) Redact(_ context.Context, text string) (string, bool, error) {
	redacted, was := RedactPatterns(text)
	return redacted, was, nil
}

// Config selects the redaction strategy.
type Config struct {
	// EnableDelegatedRedactor switches redaction to the external
	// analyze-and-redact service, with fail-safe fallback to patterns.
	EnableDelegatedRedactor bool `yaml:"enable_delegated_redactor" json:"enable_delegated_redactor"`

	// Delegated configures the external redaction service.
	Delegated DelegatedConfig `yaml:"delegated" json:"delegated"`
}

// Engine composes PII redaction and injection detection behind a single
// entry point. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	redactor Redactor
	fallback PatternRedactor
	logger   *zap.Logger
}

// NewEngine builds the guardrail engine. If the delegated redactor is
// enabled but cannot be constructed, the engine fails closed into the
// pattern-based path rather than refusing to start.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	e := &Engine{logger: logger.With(zap.String("component", "guardrails"))}

	if cfg.EnableDelegatedRedactor {
		delegated, err := NewDelegatedRedactor(cfg.Delegated)
		if err != nil {
			e.logger.Warn("delegated redactor unavailable, using pattern redaction",
				zap.Error(err))
			e.redactor = PatternRedactor{}
		} else {
			e.redactor = delegated
		}
	} else {
		e.redactor = PatternRedactor{}
	}
	return e
}

// NewEngineWithRedactor builds an engine around an explicit redactor.
// Used by tests to inject failing delegates.
func NewEngineWithRedactor(r Redactor, logger *zap.Logger) *Engine {
	return &Engine{
		redactor: r,
		logger:   logger.With(zap.String("component", "guardrails")),
	}
}

// Run applies injection detection and redaction to a text fragment. Any
// failure of the preferred redactor falls back to pattern redaction:
// redaction is never skipped because the preferred engine errored.
func (e *Engine) Run(ctx context.Context, text string) Result {
	hits := DetectInjection(text)

	redacted, wasRedacted, err := e.redactor.Redact(ctx, text)
	if err != nil {
		e.logger.Debug("redactor failed, falling back to patterns",
			zap.String("redactor", e.redactor.Name()),
			zap.Error(err))
		redacted, wasRedacted, _ = e.fallback.Redact(ctx, text)
	}

	return Result{
		RedactedText:        redacted,
		WasRedacted:         wasRedacted,
		InjectionDetected:   len(hits) > 0,
		InjectionSignatures: hits,
	}
}
