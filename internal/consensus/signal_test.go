package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignal_Reached(t *testing.T) {
	sig := Signal(map[string]string{
		"codex":  "LGTM, the fixes address everything from last round",
		"gemini": "I agree, this revision is thorough",
	})

	assert.True(t, sig.Reached)
	assert.Equal(t, 2, sig.Positive)
	assert.Equal(t, 2, sig.Total)
	assert.InDelta(t, 1.0, sig.Confidence, 0.001)
}

func TestSignal_NegativeBlocks(t *testing.T) {
	sig := Signal(map[string]string{
		"codex":  "Approved, good work",
		"gemini": "There is still a serious issue with the error handling",
	})

	// One positive, one negative: positives do not strictly outnumber.
	assert.False(t, sig.Reached)
	assert.Equal(t, 1, sig.Positive)
	assert.Equal(t, 1, sig.Negative)
}

func TestSignal_RequiresHalfPositive(t *testing.T) {
	sig := Signal(map[string]string{
		"codex":  "Excellent revision",
		"gemini": "No strong opinion either way",
		"grok":   "Neutral on this one",
	})

	// 1 positive of 3 is under the half threshold even with zero negatives.
	assert.False(t, sig.Reached)
	assert.Equal(t, 1, sig.Positive)
	assert.Equal(t, 0, sig.Negative)
}

func TestSignal_EmptyFeedback(t *testing.T) {
	sig := Signal(nil)
	assert.False(t, sig.Reached)
	assert.Zero(t, sig.Confidence)
	assert.Zero(t, sig.Total)
}

func TestSignal_DisagreeCountsBothWays(t *testing.T) {
	// Substring matching: "disagree" contains "agree", so a bare
	// disagreement trips both lists but never reaches consensus.
	sig := Signal(map[string]string{"codex": "I disagree with this"})

	assert.Equal(t, 1, sig.Positive)
	assert.Equal(t, 1, sig.Negative)
	assert.False(t, sig.Reached)
}

func TestSignal_OnePerFeedbackPerList(t *testing.T) {
	sig := Signal(map[string]string{
		"codex": "approve approve approve, excellent and thorough and accurate",
	})
	assert.Equal(t, 1, sig.Positive)
}
