package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hansonkim/consensus-code-review/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets a lead agent drive review sessions natively: start a review,
submit revisions, collect peer critiques, and read the consensus
report. Configure in Claude Code with:

  {
    "mcpServers": {
      "ccr": { "command": "ccr", "args": ["mcp"] }
    }
  }

Available tools: review_start, review_audit, review_submit_review,
review_get_other_reviews, review_check_consensus, review_advance_round,
review_finalize, review_report_progress, review_get_progress,
review_session_info, review_consensus_report, review_curate_changes,
review_list_agents`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Stdout carries the protocol, so all logging goes to stderr.
		orch, err := getOrchestrator(os.Stderr)
		if err != nil {
			return err
		}

		pruneExpiredSessions()

		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		fmt.Fprintln(os.Stderr, "ccr MCP server listening on stdio")
		return mcp.NewServer(orch).ServeStdio(ctx)
	},
}

// pruneExpiredSessions sweeps sessions idle past store.session_ttl.
// Runs once at server start; failures only warn.
func pruneExpiredSessions() {
	ttl := viper.GetDuration("store.session_ttl")
	if ttl <= 0 {
		return
	}

	s, err := getStore()
	if err != nil {
		return
	}

	n, err := s.PruneSessions(rootCmd.Context(), time.Now().UTC().Add(-ttl))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ccr: prune sessions: %v\n", err)
		return
	}
	if n > 0 {
		fmt.Fprintf(os.Stderr, "ccr: pruned %d expired sessions\n", n)
	}
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
