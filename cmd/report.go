package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hansonkim/consensus-code-review/internal/models"
	"github.com/hansonkim/consensus-code-review/internal/output"
)

var reportFormat string

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Print the consensus report for a session",
	Long: `Aggregate every agent's submissions into a consensus report: issues
grouped into agreement tiers by how much of the panel endorsed them.

Use --format markdown to print the full report document.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun(cmd.Context(), args[0])
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "table", "Output format: table, markdown")
	rootCmd.AddCommand(reportCmd)
}

func reportRun(ctx context.Context, sessionID string) error {
	orch, err := getOrchestrator(nil)
	if err != nil {
		return err
	}

	report, err := orch.ConsensusReport(ctx, sessionID)
	if err != nil {
		return err
	}

	switch reportFormat {
	case "markdown":
		fmt.Fprint(ui.Out, report.Document)
		return nil
	case "table":
		return reportTable(report)
	default:
		return fmt.Errorf("unknown format: %s (use: table, markdown)", reportFormat)
	}
}

func reportTable(report *models.ConsensusReport) error {
	if report.TotalIssues == 0 {
		ui.Info("No issues were raised across %d participating agents.", len(report.Participating))
		return nil
	}

	table := ui.Table([]string{"Severity", "Issue", "Location", "Agreed", "Disagreed"})
	appendTier := func(severity string, issues []models.Issue) {
		for _, issue := range issues {
			table.Append([]string{
				output.SeverityColor(severity),
				issue.Title,
				issue.Location,
				fmt.Sprintf("%d", len(issue.AgreedBy)),
				fmt.Sprintf("%d", len(issue.DisagreedBy)),
			})
		}
	}
	appendTier("CRITICAL", report.Critical)
	appendTier("MAJOR", report.Major)
	appendTier("MINOR", report.Minor)
	appendTier("DISPUTED", report.Disputed)
	table.Render()

	ui.Info("%d issues from %d agents: %d critical, %d major, %d minor, %d disputed",
		report.TotalIssues, len(report.Participating),
		len(report.Critical), len(report.Major), len(report.Minor), len(report.Disputed))
	return nil
}
