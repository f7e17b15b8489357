package guardrails

import "regexp"

// Signature is a named pattern detecting one prompt-injection technique.
type Signature struct {
	ID      string
	Pattern *regexp.Regexp
}

// injectionSignatures is the process-wide signature table, read-only after
// initialization. New techniques are added here; call sites never change.
var injectionSignatures = []Signature{
	{ID: "ignore_previous_instructions", Pattern: regexp.MustCompile(`(?i)\bignore\b.*\bprevious\b.*\binstructions\b`)},
	{ID: "system_override", Pattern: regexp.MustCompile(`(?i)\bsystem\b.*\boverride\b`)},
	{ID: "dan", Pattern: regexp.MustCompile(`(?i)\bDAN\b`)},
	{ID: "jailbreak", Pattern: regexp.MustCompile(`(?i)\bjailbreak\b|\bdo anything now\b`)},
}

// DetectInjection evaluates every signature against the text and returns
// the IDs of all matches in table order. Signatures are independent; one
// match never short-circuits the rest. An empty slice means no detection.
func DetectInjection(text string) []string {
	var hits []string
	for _, sig := range injectionSignatures {
		if sig.Pattern.MatchString(text) {
			hits = append(hits, sig.ID)
		}
	}
	return hits
}
