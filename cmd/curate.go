package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hansonkim/consensus-code-review/internal/curate"
	"github.com/hansonkim/consensus-code-review/internal/git"
	"github.com/hansonkim/consensus-code-review/internal/output"
)

var (
	curateBase     string
	curateTarget   string
	curateDocument bool
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Show which changed files fit the review token budget",
	Long: `Curate a git change range into a review document: prioritize the
changed files, select them in priority order until the token budget is
spent, and show what made the cut. Use --document to print the markdown
handed to reviewer agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return curateRun()
	},
}

func init() {
	rootCmd.AddCommand(curateCmd)

	curateCmd.Flags().StringVar(&curateBase, "base", "", "Base git ref to diff from (required)")
	curateCmd.Flags().StringVar(&curateTarget, "target", "HEAD", "Target git ref to diff to")
	curateCmd.Flags().BoolVar(&curateDocument, "document", false, "Print the full review document instead of the file table")
	_ = curateCmd.MarkFlagRequired("base")
}

func curateRun() error {
	curator := curate.New(git.NewClient(), viper.GetString("repo_dir"), viper.GetInt("review.token_budget"))

	result, err := curator.Curate(curateBase, curateTarget)
	if err != nil {
		return err
	}

	if curateDocument {
		fmt.Fprint(ui.Out, result.Document)
		return nil
	}

	if len(result.Selected) == 0 {
		ui.Warning("No changes found in %s..%s", result.BaseRef, result.TargetRef)
		return nil
	}

	table := ui.Table([]string{"File", "Changes", "Priority", "Reason", "Tokens"})
	for _, fc := range result.Selected {
		table.Append([]string{
			output.Cyan(fc.Path),
			fmt.Sprintf("+%d/-%d", fc.Insertions, fc.Deletions),
			fmt.Sprintf("%d", fc.Priority),
			fc.Reason,
			fmt.Sprintf("%d", fc.EstimatedTokens),
		})
	}
	table.Render()

	ui.Info("%d of %d files selected, %d of %d budget tokens used",
		len(result.Selected), result.TotalFiles, result.UsedTokens, result.Budget)
	for _, skipped := range result.Skipped {
		ui.VerboseLog("Skipped %s (+%d/-%d)", skipped.Path, skipped.Insertions, skipped.Deletions)
	}
	for _, path := range result.PriorityDropped {
		ui.Warning("High-priority file dropped over budget: %s", path)
	}
	return nil
}
