// Package tokenizer provides token-count estimation for billing
// simulation. Estimation is best-effort observability, so the API never
// returns an error to the pipeline.
package tokenizer

// Estimator estimates the token count of text for a given model.
type Estimator interface {
	// Estimate returns the estimated token count. Unrecognized models fall
	// back to a default encoding strategy rather than failing.
	Estimate(model, text string) int
}
