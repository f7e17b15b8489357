package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used for models with no known encoding.
const fallbackEncoding = "cl100k_base"

// modelEncodings maps model names to their tiktoken encoding. Prefix
// matching handles dated variants (e.g. "gpt-4o-2024-11-20").
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// TiktokenEstimator counts tokens with tiktoken encodings, caching each
// encoding after first use. When an encoding cannot be initialized (e.g.
// BPE data unavailable), it degrades to the heuristic estimator instead of
// surfacing an error.
type TiktokenEstimator struct {
	mu        sync.Mutex
	encoders  map[string]*tiktoken.Tiktoken
	heuristic HeuristicEstimator
}

// NewTiktokenEstimator creates the estimator.
func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{encoders: make(map[string]*tiktoken.Tiktoken)}
}

// Estimate implements Estimator.
func (e *TiktokenEstimator) Estimate(model, text string) int {
	if text == "" {
		return 0
	}
	enc := e.encodingFor(model)
	if enc == nil {
		return e.heuristic.Estimate(model, text)
	}
	return len(enc.Encode(text, nil, nil))
}

// encodingFor resolves and caches the tiktoken encoding for a model.
func (e *TiktokenEstimator) encodingFor(model string) *tiktoken.Tiktoken {
	name := resolveEncodingName(model)

	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encoders[name]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		// Cache the miss so every request does not retry initialization.
		e.encoders[name] = nil
		return nil
	}
	e.encoders[name] = enc
	return enc
}

// resolveEncodingName maps a model name to its encoding, trying exact then
// longest-prefix match, falling back to cl100k_base.
func resolveEncodingName(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	best := ""
	bestLen := 0
	for prefix, enc := range modelEncodings {
		if len(model) > len(prefix) && model[:len(prefix)] == prefix && len(prefix) > bestLen {
			best = enc
			bestLen = len(prefix)
		}
	}
	if best != "" {
		return best
	}
	return fallbackEncoding
}
