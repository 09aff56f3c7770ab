package consensus

import (
	"strings"

	"github.com/hansonkim/consensus-code-review/internal/models"
)

// Keyword lists for the per-round feedback heuristic. Matching is
// case-insensitive substring search, so "disagree" trips both lists;
// each feedback still contributes at most one count per list.
var (
	positiveKeywords = []string{
		"approve", "approved", "accept", "accepted", "good", "agree",
		"agreed", "looks good", "lgtm", "excellent", "well done",
		"comprehensive", "thorough", "accurate", "correct",
	}
	negativeKeywords = []string{
		"critical", "must fix", "serious issue", "concern", "problem",
		"incorrect", "missing", "overlooked", "disagree", "reject",
		"not enough", "insufficient", "incomplete",
	}
)

// Signal scores one round of peer feedback. Consensus is reached when
// positive counts strictly outnumber negative ones and at least half of
// all feedback is positive. No feedback never reaches consensus.
func Signal(feedback map[string]string) models.ConsensusSignal {
	sig := models.ConsensusSignal{Total: len(feedback)}

	for _, text := range feedback {
		lower := strings.ToLower(text)
		if containsAnyKeyword(lower, positiveKeywords) {
			sig.Positive++
		}
		if containsAnyKeyword(lower, negativeKeywords) {
			sig.Negative++
		}
	}

	if sig.Total > 0 {
		sig.Confidence = float64(sig.Positive) / float64(sig.Total)
		sig.Reached = sig.Positive > sig.Negative &&
			float64(sig.Positive) >= 0.5*float64(sig.Total)
	}
	return sig
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
