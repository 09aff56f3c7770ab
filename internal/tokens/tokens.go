// Package tokens provides the character-ratio token estimator used to
// budget review payloads. Estimates are deliberately cheap and
// deterministic; nothing here calls a tokenizer.
package tokens

import "unicode/utf8"

// charsPerToken is the fixed byte-to-token ratio. Coarse, but the same
// ratio is applied on both sides of every budget comparison, which is
// what keeps curation and truncation decisions consistent.
const charsPerToken = 4

// Marker is appended to truncated text so readers can tell content was
// dropped.
const Marker = "\n\n[... truncated for length ...]"

// Verbosity modes accepted by BudgetFor.
const (
	VerbositySummary  = "summary"
	VerbosityDetailed = "detailed"
	VerbosityFull     = "full"
)

// Estimate returns the token estimate for text. Zero for empty text,
// monotonic in text length.
func Estimate(text string) int {
	return len(text) / charsPerToken
}

// Truncate fits text into max tokens. Text already within budget is
// returned unchanged. Otherwise the head of the text is kept and Marker
// appended, sized so the result estimates within max. When max cannot
// even fit Marker, Marker alone is returned. Truncation never splits a
// UTF-8 sequence and is idempotent.
func Truncate(text string, max int) (string, bool) {
	if max < 0 {
		max = 0
	}
	if Estimate(text) <= max {
		return text, false
	}

	avail := max - Estimate(Marker)
	if avail <= 0 {
		return Marker, true
	}

	cut := avail * charsPerToken
	if cut > len(text) {
		cut = len(text)
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + Marker, true
}

// BudgetFor maps a verbosity mode to its response token budget.
// Unknown modes get the detailed budget.
func BudgetFor(verbosity string) int {
	switch verbosity {
	case VerbositySummary:
		return 5000
	case VerbosityFull:
		return 50000
	default:
		return 15000
	}
}
