package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hansonkim/consensus-code-review/internal/agents"
	"github.com/hansonkim/consensus-code-review/internal/artifacts"
	"github.com/hansonkim/consensus-code-review/internal/orchestrator"
)

var (
	reviewBase      string
	reviewTarget    string
	reviewAgents    []string
	reviewMaxRounds int
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run a multi-agent review of a git change range",
	Long: `Run a complete review session from the command line: curate the
change range, have the lead agent draft the review report, fan peer
critiques out, and loop lead revisions until the panel agrees or the
round ceiling is hit. Artifacts are written when the session ends.

Example:
  ccr review --base main --target HEAD --agents codex,gemini`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().StringVar(&reviewBase, "base", "", "Base git ref to diff from (required)")
	reviewCmd.Flags().StringVar(&reviewTarget, "target", "HEAD", "Target git ref to diff to")
	reviewCmd.Flags().StringSliceVar(&reviewAgents, "agents", nil, "Peer agents to fan out to (default: all available)")
	reviewCmd.Flags().IntVar(&reviewMaxRounds, "max-rounds", 0, "Round ceiling (default from config)")
	_ = reviewCmd.MarkFlagRequired("base")
}

func reviewRun(ctx context.Context) error {
	orch, err := getOrchestrator(nil)
	if err != nil {
		return err
	}

	if dryRun {
		result, err := orch.CurateChanges(reviewBase, reviewTarget)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would review %d of %d changed files (%d of %d budget tokens)",
			len(result.Selected), result.TotalFiles, result.UsedTokens, result.Budget)
		return nil
	}

	start, err := orch.StartReview(ctx, orchestrator.StartRequest{
		Base:         reviewBase,
		Target:       reviewTarget,
		MaxRounds:    reviewMaxRounds,
		TargetAgents: reviewAgents,
	})
	if err != nil {
		return err
	}
	ui.Info("Session %s: %s..%s, lead %s, peers: %s",
		start.SessionID, reviewBase, reviewTarget, start.LeadAgent,
		strings.Join(start.TargetAgents, ", "))

	reg, err := getRegistry()
	if err != nil {
		return err
	}
	lead, err := reg.Get(start.LeadAgent)
	if err != nil {
		return err
	}

	inv := newInvoker()
	timeout := viper.GetDuration("agent.timeout")
	retries := viper.GetInt("agent.retries")

	round := start.CurrentRound
	prompt := start.Instruction

	for {
		ui.Info("Round %d: %s drafting review...", round, lead.Name)
		draft, err := agents.InvokeWithRetry(ctx, inv, lead, prompt, retries, timeout)
		if err != nil {
			return fmt.Errorf("lead agent %s: %w", lead.Name, err)
		}

		res, err := orch.SubmitReview(ctx, start.SessionID, lead.Name, draft)
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

		switch res.Status {
		case orchestrator.StatusConsensusReached:
			ui.Success("Consensus reached in round %d", res.Round)
			return printArtifacts(res.Artifacts)
		case orchestrator.StatusMaxRoundsReached:
			ui.Warning("Round ceiling of %d reached without consensus", start.MaxRounds)
			return printArtifacts(res.Artifacts)
		case orchestrator.StatusAwaitingImprovement:
			ui.Info("Round %d: %d critiques collected, revising", res.Round, res.FeedbackCount)
			round = res.CurrentRound
			prompt = res.ImprovementPrompt
		default:
			return fmt.Errorf("unexpected submission status %q", res.Status)
		}
	}
}

func printArtifacts(p *artifacts.Paths) error {
	if p == nil {
		return nil
	}
	ui.Info("Artifacts written to %s", p.Dir)
	ui.Info("Summary: %s", p.SummaryFile)
	return nil
}
