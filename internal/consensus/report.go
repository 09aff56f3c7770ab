package consensus

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hansonkim/consensus-code-review/internal/models"
)

// descriptionCap bounds per-issue descriptions in the formatted report.
const descriptionCap = 200

// FormatReport renders a classified report as markdown.
func FormatReport(r *models.ConsensusReport, totalAgents int) string {
	var sb strings.Builder

	sb.WriteString("# Consensus Review Report\n\n")
	fmt.Fprintf(&sb, "**Participants**: %s\n", strings.Join(r.Participating, ", "))
	fmt.Fprintf(&sb, "**Total issues**: %d\n\n", r.TotalIssues)

	writeTier(&sb, "Critical (unanimous)", r.Critical, totalAgents)
	writeTier(&sb, "Major (strong agreement)", r.Major, totalAgents)
	writeTier(&sb, "Minor (partial agreement)", r.Minor, totalAgents)
	writeTier(&sb, "Disputed", r.Disputed, totalAgents)

	if r.TotalIssues == 0 {
		sb.WriteString("No issues were raised.\n")
	}
	return sb.String()
}

func writeTier(sb *strings.Builder, heading string, issues []models.Issue, totalAgents int) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s\n\n", heading)
	for _, iss := range issues {
		writeIssue(sb, iss, totalAgents)
	}
}

func writeIssue(sb *strings.Builder, iss models.Issue, totalAgents int) {
	fmt.Fprintf(sb, "### [%s] %s\n", iss.Severity, iss.Title)
	fmt.Fprintf(sb, "**Location**: `%s`\n", iss.Location)

	pct := 0
	if totalAgents > 0 {
		pct = len(iss.AgreedBy) * 100 / totalAgents
	}
	fmt.Fprintf(sb, "**Consensus**: %d/%d agents agree (%d%%)\n", len(iss.AgreedBy), totalAgents, pct)

	if len(iss.DisagreedBy) > 0 {
		fmt.Fprintf(sb, "**Disputed by**: %s\n", strings.Join(iss.DisagreedBy, ", "))
	}

	if desc := iss.Description; desc != "" {
		if len(desc) > descriptionCap {
			cut := descriptionCap
			for cut > 0 && !utf8.RuneStart(desc[cut]) {
				cut--
			}
			desc = desc[:cut] + "..."
		}
		sb.WriteString(desc)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}
