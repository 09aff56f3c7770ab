package curate

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansonkim/consensus-code-review/internal/git"
)

// mockGit implements git.Client with canned data and error injection.
type mockGit struct {
	stats   []git.FileStat
	diffs   map[string]string
	fetched []string

	statsErr error
	diffErr  error
}

func (m *mockGit) RepoRoot(dir string) (string, error) { return dir, nil }

func (m *mockGit) ChangedFiles(dir, base, target string) ([]string, error) {
	var files []string
	for _, st := range m.stats {
		files = append(files, st.Path)
	}
	return files, m.statsErr
}

func (m *mockGit) DiffStats(dir, base, target string) ([]git.FileStat, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

func (m *mockGit) FileDiff(dir, base, target, path string) (string, error) {
	if m.diffErr != nil {
		return "", m.diffErr
	}
	m.fetched = append(m.fetched, path)
	return m.diffs[path], nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path     string
		total    int
		priority int
		reason   string
	}{
		{"src/auth/login.go", 10, 1, "security-sensitive"},
		{"internal/store/migration_001.sql", 10, 1, "database-related"},
		{"api/routes.go", 10, 1, "API surface"},
		{"internal/core/engine.go", 10, 2, "core logic"},
		{"pkg/misc/huge.go", 250, 2, "large change"},
		{"app/config.yaml", 10, 3, "configuration"},
		{"pkg/foo/foo_test.go", 10, 4, "test file"},
		{"CHANGELOG", 10, 5, "documentation"},
		{"guide.md", 10, 5, "documentation"},
		{"pkg/widget/widget.go", 10, 3, "standard file"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			priority, reason := Classify(tt.path, tt.total)
			assert.Equal(t, tt.priority, priority)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Keyword tiers outrank the later rules they overlap with.
	priority, reason := Classify("docs/database.md", 5)
	assert.Equal(t, 1, priority)
	assert.Equal(t, "database-related", reason)

	priority, reason = Classify("tests/password_test.go", 5)
	assert.Equal(t, 1, priority)
	assert.Equal(t, "security-sensitive", reason)
}

func TestCurate_SelectsByPriorityThenSize(t *testing.T) {
	g := &mockGit{
		stats: []git.FileStat{
			{Path: "notes.md", Insertions: 5, Deletions: 0},
			{Path: "auth.go", Insertions: 10, Deletions: 2},
			{Path: "widget.go", Insertions: 50, Deletions: 10},
			{Path: "gadget.go", Insertions: 3, Deletions: 1},
		},
		diffs: map[string]string{
			"notes.md":  "docs diff",
			"auth.go":   "auth diff",
			"widget.go": "widget diff",
			"gadget.go": "gadget diff",
		},
	}

	c := New(g, ".", 100000)
	result, err := c.Curate("main", "feature")
	require.NoError(t, err)

	var order []string
	for _, fc := range result.Selected {
		order = append(order, fc.Path)
	}
	assert.Equal(t, []string{"auth.go", "widget.go", "gadget.go", "notes.md"}, order)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, 4, result.TotalFiles)
}

func TestCurate_BudgetSelectsExactlyThree(t *testing.T) {
	// Five files at ~300 tokens each under a 1000-token budget: exactly
	// three fit.
	diff := strings.Repeat("x", 1200)
	g := &mockGit{diffs: map[string]string{}}
	for i := 1; i <= 5; i++ {
		path := fmt.Sprintf("pkg/file%d.go", i)
		g.stats = append(g.stats, git.FileStat{Path: path, Insertions: 10})
		g.diffs[path] = diff
	}

	c := New(g, ".", 1000)
	result, err := c.Curate("main", "feature")
	require.NoError(t, err)

	assert.Len(t, result.Selected, 3)
	assert.Len(t, result.Skipped, 2)
	assert.Equal(t, 900, result.UsedTokens)
	assert.LessOrEqual(t, result.UsedTokens, result.Budget)
}

func TestCurate_ExhaustionIsMonotonic(t *testing.T) {
	// Once a file fails to fit, later smaller files are not reconsidered
	// and their diffs are never fetched.
	g := &mockGit{
		stats: []git.FileStat{
			{Path: "big.go", Insertions: 500},
			{Path: "medium.go", Insertions: 200},
			{Path: "tiny.go", Insertions: 1},
		},
		diffs: map[string]string{
			"big.go":    strings.Repeat("a", 2000), // 500 tokens
			"medium.go": strings.Repeat("b", 4000), // 1000 tokens, over
			"tiny.go":   "c",
		},
	}

	c := New(g, ".", 800)
	result, err := c.Curate("main", "feature")
	require.NoError(t, err)

	require.Len(t, result.Selected, 1)
	assert.Equal(t, "big.go", result.Selected[0].Path)
	assert.Len(t, result.Skipped, 2)
	assert.Equal(t, []string{"big.go", "medium.go"}, g.fetched,
		"diffs after exhaustion should not be fetched")
}

func TestCurate_FlagsDroppedPriorityFiles(t *testing.T) {
	g := &mockGit{
		stats: []git.FileStat{
			{Path: "auth/session.go", Insertions: 300},
			{Path: "auth/crypto.go", Insertions: 200},
		},
		diffs: map[string]string{
			"auth/session.go": strings.Repeat("a", 2000),
			"auth/crypto.go":  strings.Repeat("b", 2000),
		},
	}

	c := New(g, ".", 600)
	result, err := c.Curate("main", "feature")
	require.NoError(t, err)

	require.Len(t, result.Selected, 1)
	assert.Equal(t, []string{"auth/crypto.go"}, result.PriorityDropped)
	assert.Contains(t, result.Document, "Warning")
	assert.Contains(t, result.Document, "auth/crypto.go")
}

func TestCurate_EmptyRange(t *testing.T) {
	c := New(&mockGit{}, ".", 1000)
	result, err := c.Curate("main", "feature")
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalFiles)
	assert.Empty(t, result.Selected)
	assert.Contains(t, result.Document, "No files changed")
}

func TestCurate_SourceErrors(t *testing.T) {
	srcErr := &git.SourceError{Op: "diff", Err: errors.New("bad ref")}

	c := New(&mockGit{statsErr: srcErr}, ".", 1000)
	_, err := c.Curate("main", "nope")
	require.Error(t, err)
	var asSrc *git.SourceError
	assert.True(t, errors.As(err, &asSrc))

	g := &mockGit{
		stats:   []git.FileStat{{Path: "a.go", Insertions: 1}},
		diffErr: srcErr,
	}
	_, err = New(g, ".", 1000).Curate("main", "feature")
	assert.Error(t, err)
}

func TestFormatDocument_SkippedListCapped(t *testing.T) {
	g := &mockGit{
		stats: []git.FileStat{{Path: "first.go", Insertions: 1}},
		diffs: map[string]string{"first.go": strings.Repeat("x", 400)},
	}
	for i := 0; i < 30; i++ {
		path := fmt.Sprintf("later%02d.go", i)
		g.stats = append(g.stats, git.FileStat{Path: path, Insertions: 1})
		g.diffs[path] = strings.Repeat("y", 4000)
	}

	c := New(g, ".", 150)
	result, err := c.Curate("main", "feature")
	require.NoError(t, err)

	require.Len(t, result.Skipped, 30)
	assert.Contains(t, result.Document, "...and 10 more")
	assert.Equal(t, skippedListCap, strings.Count(result.Document, "- later"),
		"skipped listing should stop at the cap")
}

func TestFormatDocument_SelectedSections(t *testing.T) {
	g := &mockGit{
		stats: []git.FileStat{{Path: "auth/login.go", Insertions: 7, Deletions: 2}},
		diffs: map[string]string{"auth/login.go": "+new line\n-old line"},
	}

	result, err := New(g, ".", 1000).Curate("main", "feature")
	require.NoError(t, err)

	doc := result.Document
	assert.Contains(t, doc, "# Code Changes for Review")
	assert.Contains(t, doc, "**Range**: main...feature")
	assert.Contains(t, doc, "## auth/login.go (+7/-2)")
	assert.Contains(t, doc, "Priority 1: security-sensitive")
	assert.Contains(t, doc, "```diff\n+new line\n-old line\n```")
}
