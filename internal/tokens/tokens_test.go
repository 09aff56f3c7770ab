package tokens

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("abcd"))
	assert.Equal(t, 25, Estimate(strings.Repeat("x", 100)))

	// Monotonic in length.
	short := Estimate(strings.Repeat("a", 40))
	long := Estimate(strings.Repeat("a", 400))
	assert.Less(t, short, long)
}

func TestTruncate_WithinBudget(t *testing.T) {
	text := "short review text"
	out, truncated := Truncate(text, 1000)
	assert.False(t, truncated)
	assert.Equal(t, text, out)
}

func TestTruncate_OverBudget(t *testing.T) {
	text := strings.Repeat("review content ", 1000)
	out, truncated := Truncate(text, 100)

	require.True(t, truncated)
	assert.LessOrEqual(t, Estimate(out), 100)
	assert.True(t, strings.HasSuffix(out, Marker))
	assert.True(t, strings.HasPrefix(text, strings.TrimSuffix(out, Marker)),
		"kept portion should be a prefix of the original")
}

func TestTruncate_Idempotent(t *testing.T) {
	text := strings.Repeat("abcdef ", 500)
	once, truncated := Truncate(text, 50)
	require.True(t, truncated)

	twice, truncated := Truncate(once, 50)
	assert.False(t, truncated)
	assert.Equal(t, once, twice)
}

func TestTruncate_BudgetSmallerThanMarker(t *testing.T) {
	text := strings.Repeat("z", 400)
	out, truncated := Truncate(text, Estimate(Marker)-1)

	require.True(t, truncated)
	assert.Equal(t, Marker, out)
}

func TestTruncate_NegativeBudget(t *testing.T) {
	out, truncated := Truncate("anything", -5)
	require.True(t, truncated)
	assert.Equal(t, Marker, out)
}

func TestTruncate_RuneSafe(t *testing.T) {
	text := strings.Repeat("코드리뷰", 500) // 3-byte runes
	out, truncated := Truncate(text, 100)

	require.True(t, truncated)
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, Estimate(out), 100)
}

func TestTruncate_Deterministic(t *testing.T) {
	text := strings.Repeat("deterministic input ", 200)
	a, _ := Truncate(text, 77)
	b, _ := Truncate(text, 77)
	assert.Equal(t, a, b)
}

func TestBudgetFor(t *testing.T) {
	assert.Equal(t, 5000, BudgetFor(VerbositySummary))
	assert.Equal(t, 15000, BudgetFor(VerbosityDetailed))
	assert.Equal(t, 50000, BudgetFor(VerbosityFull))
	assert.Equal(t, 15000, BudgetFor("bogus"))
}
