// Package guardrails implements the gateway's text security controls:
// PII redaction (pattern-based with an optional delegated engine) and
// signature-based prompt injection detection.
//
// All regular expressions here are RE2, which runs in linear time over the
// input, so the scanners are safe on arbitrary hostile UTF-8 of any length.
package guardrails

import (
	"regexp"
	"strings"
)

// Replacement sentinels. These deliberately contain no characters matched by
// the detection patterns themselves, so a second redaction pass is a no-op.
const (
	RedactedEmail      = "[REDACTED_EMAIL]"
	RedactedIP         = "[REDACTED_IP]"
	RedactedCreditCard = "[REDACTED_CREDIT_CARD]"
)

// Detection patterns. Intentionally pragmatic rather than perfect.
var (
	emailRE = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)

	ipv4RE = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\b`)

	// Card candidates are greedy longest-match runs of 13-19 digits with at
	// most one space or hyphen between consecutive digits. Each candidate is
	// Luhn-validated before replacement, so order numbers and other long
	// digit runs survive untouched.
	creditCardRE = regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`)
)

// RedactPatterns replaces email addresses, IPv4 addresses, and Luhn-valid
// payment card numbers with fixed sentinel tokens. It returns the
// transformed text and whether any substitution occurred.
//
// Application order is email, IP, card; the sentinels inserted by earlier
// patterns are never re-matched by later ones.
func RedactPatterns(text string) (string, bool) {
	original := text

	text = emailRE.ReplaceAllString(text, RedactedEmail)
	text = ipv4RE.ReplaceAllString(text, RedactedIP)
	text = creditCardRE.ReplaceAllStringFunc(text, func(candidate string) string {
		if luhnValid(digitsOf(candidate)) {
			return RedactedCreditCard
		}
		return candidate
	})

	return text, text != original
}

// digitsOf strips separators from a card candidate.
func digitsOf(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// luhnValid runs the Luhn checksum over a digit string: every digit at an
// alternating position counted from the end of the sequence is doubled,
// doubled digits above 9 have 9 subtracted, and the sum must be divisible
// by 10. Sequences outside 13-19 digits fail outright.
func luhnValid(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	parity := len(digits) % 2
	for i, r := range digits {
		d := int(r - '0')
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}
