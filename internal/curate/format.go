package curate

import (
	"fmt"
	"strings"

	"github.com/hansonkim/consensus-code-review/internal/models"
)

// skippedListCap bounds the skipped-file listing in the document.
const skippedListCap = 20

// FormatDocument renders a curation result as the markdown change
// document handed to reviewer agents.
func FormatDocument(r *models.CurationResult) string {
	var sb strings.Builder

	sb.WriteString("# Code Changes for Review\n\n")
	fmt.Fprintf(&sb, "**Range**: %s...%s\n", r.BaseRef, r.TargetRef)
	fmt.Fprintf(&sb, "**Files**: %d of %d selected (budget %d tokens, used %d)\n\n",
		len(r.Selected), r.TotalFiles, r.Budget, r.UsedTokens)

	if len(r.PriorityDropped) > 0 {
		fmt.Fprintf(&sb, "> Warning: %d high-priority file(s) did not fit the budget: %s\n\n",
			len(r.PriorityDropped), strings.Join(r.PriorityDropped, ", "))
	}

	if r.TotalFiles == 0 {
		sb.WriteString("No files changed in this range.\n")
		return sb.String()
	}

	for _, fc := range r.Selected {
		fmt.Fprintf(&sb, "## %s (+%d/-%d)\n", fc.Path, fc.Insertions, fc.Deletions)
		fmt.Fprintf(&sb, "Priority %d: %s\n\n", fc.Priority, fc.Reason)
		sb.WriteString("```diff\n")
		sb.WriteString(fc.Diff)
		if !strings.HasSuffix(fc.Diff, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```\n\n")
	}

	if len(r.Skipped) > 0 {
		fmt.Fprintf(&sb, "## Skipped (%d files over budget)\n\n", len(r.Skipped))
		for i, fc := range r.Skipped {
			if i == skippedListCap {
				fmt.Fprintf(&sb, "- ...and %d more\n", len(r.Skipped)-skippedListCap)
				break
			}
			fmt.Fprintf(&sb, "- %s (+%d/-%d, priority %d)\n",
				fc.Path, fc.Insertions, fc.Deletions, fc.Priority)
		}
	}

	return sb.String()
}
