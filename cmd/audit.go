package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hansonkim/consensus-code-review/internal/orchestrator"
)

var (
	auditBase   string
	auditTarget string
	auditAgents []string
)

var auditCmd = &cobra.Command{
	Use:   "audit <review-file>",
	Short: "Have the peer panel audit an existing review",
	Long: `Fan an existing review report out to the peer panel for a one-shot
critique. The panel does not revise the report; it scores agreement
and records its critiques in the artifacts.

Example:
  ccr audit review.md --base main`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return auditRun(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditBase, "base", "", "Base git ref to diff from (required)")
	auditCmd.Flags().StringVar(&auditTarget, "target", "HEAD", "Target git ref to diff to")
	auditCmd.Flags().StringSliceVar(&auditAgents, "agents", nil, "Peer agents to fan out to (default: all available)")
	_ = auditCmd.MarkFlagRequired("base")
}

func auditRun(ctx context.Context, path string) error {
	review, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read review file: %w", err)
	}

	orch, err := getOrchestrator(nil)
	if err != nil {
		return err
	}

	res, err := orch.AuditReview(ctx, orchestrator.AuditRequest{
		Base:         auditBase,
		Target:       auditTarget,
		Review:       string(review),
		TargetAgents: auditAgents,
	})
	if err != nil {
		return err
	}

	for _, pr := range res.PeerResults {
		if pr.Status == "success" {
			ui.VerboseLog("Peer %s critiqued (%d bytes)", pr.Agent, pr.Length)
		} else {
			ui.Warning("Peer %s failed: %s", pr.Agent, pr.Error)
		}
	}

	if sig := res.Signal; sig != nil {
		if sig.Reached {
			ui.Success("Panel endorses the review: %s", sig.Reason)
		} else {
			ui.Warning("Panel does not endorse the review: %s", sig.Reason)
		}
	}

	return printArtifacts(res.Artifacts)
}
