// Package curate selects which changed files fit into a review's token
// budget and formats them into the change document reviewer agents read.
package curate

import (
	"sort"
	"strings"

	"github.com/hansonkim/consensus-code-review/internal/git"
	"github.com/hansonkim/consensus-code-review/internal/models"
	"github.com/hansonkim/consensus-code-review/internal/tokens"
)

// Priority rule keyword sets, checked in order. First match wins, so a
// path like "docs/database.md" lands in tier 1, not the docs tier.
var (
	securityKeywords = []string{"auth", "password", "token", "secret", "crypto", "security", "permission"}
	storageKeywords  = []string{"database", "db", "migration", "schema", "sql"}
	apiKeywords      = []string{"api", "endpoint", "route", "controller"}
	coreKeywords     = []string{"core", "main", "processor", "service", "business"}
	configKeywords   = []string{"config", "setting", ".env", ".yaml", ".json"}
	docSuffixes      = []string{".md", ".txt", ".rst"}
	docKeywords      = []string{"readme", "changelog", "license"}
)

// largeChangeLines is the total line count above which an otherwise
// unclassified file is promoted to tier 2.
const largeChangeLines = 100

// Classify assigns a review priority (1 highest, 5 lowest) and a reason
// to a changed path.
func Classify(path string, totalLines int) (int, string) {
	lower := strings.ToLower(path)

	switch {
	case containsAny(lower, securityKeywords):
		return 1, "security-sensitive"
	case containsAny(lower, storageKeywords):
		return 1, "database-related"
	case containsAny(lower, apiKeywords):
		return 1, "API surface"
	case containsAny(lower, coreKeywords):
		return 2, "core logic"
	case totalLines > largeChangeLines:
		return 2, "large change"
	case containsAny(lower, configKeywords):
		return 3, "configuration"
	case strings.Contains(lower, "test"):
		return 4, "test file"
	case hasAnySuffix(lower, docSuffixes) || containsAny(lower, docKeywords):
		return 5, "documentation"
	default:
		return 3, "standard file"
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// Curator fits a git change range into a token budget.
type Curator struct {
	git    git.Client
	dir    string
	budget int
}

// New returns a Curator reading changes from the given repo directory.
func New(gitClient git.Client, dir string, budget int) *Curator {
	return &Curator{git: gitClient, dir: dir, budget: budget}
}

// Curate enumerates the change range, prioritizes every file, and
// greedily selects files in priority order until one no longer fits the
// budget. Selection stops at the first file that does not fit; that file
// and everything after it are skipped. Skipped tier-1 paths are reported
// in PriorityDropped so callers can see the review input was degraded.
func (c *Curator) Curate(base, target string) (*models.CurationResult, error) {
	stats, err := c.git.DiffStats(c.dir, base, target)
	if err != nil {
		return nil, err
	}

	changes := make([]models.FileChange, 0, len(stats))
	for _, st := range stats {
		priority, reason := Classify(st.Path, st.Insertions+st.Deletions)
		changes = append(changes, models.FileChange{
			Path:       st.Path,
			Insertions: st.Insertions,
			Deletions:  st.Deletions,
			Priority:   priority,
			Reason:     reason,
		})
	}

	// Priority first, then size. Stable keeps git's path order on ties.
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].Priority != changes[j].Priority {
			return changes[i].Priority < changes[j].Priority
		}
		return changes[i].Total() > changes[j].Total()
	})

	result := &models.CurationResult{
		BaseRef:    base,
		TargetRef:  target,
		TotalFiles: len(changes),
		Budget:     c.budget,
	}

	budgetExhausted := false
	for _, fc := range changes {
		if budgetExhausted {
			result.Skipped = append(result.Skipped, fc)
			if fc.Priority == 1 {
				result.PriorityDropped = append(result.PriorityDropped, fc.Path)
			}
			continue
		}

		diff, err := c.git.FileDiff(c.dir, base, target, fc.Path)
		if err != nil {
			return nil, err
		}
		cost := tokens.Estimate(diff)

		if result.UsedTokens+cost > c.budget {
			// Budget exhaustion is monotonic: no later file is
			// reconsidered, even a smaller one.
			budgetExhausted = true
			fc.EstimatedTokens = cost
			result.Skipped = append(result.Skipped, fc)
			if fc.Priority == 1 {
				result.PriorityDropped = append(result.PriorityDropped, fc.Path)
			}
			continue
		}

		fc.Diff = diff
		fc.EstimatedTokens = cost
		result.UsedTokens += cost
		result.Selected = append(result.Selected, fc)
	}

	result.Document = FormatDocument(result)
	return result, nil
}
