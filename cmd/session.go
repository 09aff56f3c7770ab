package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hansonkim/consensus-code-review/internal/output"
)

var (
	sessionLimit     int
	sessionOlderThan time.Duration
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage review sessions",
	Long:  "List past review sessions, show one in detail, and prune expired ones.",
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List review sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one review session in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionShowRun(args[0])
	},
}

var sessionPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete sessions idle longer than the session TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionPruneRun()
	},
}

func init() {
	sessionListCmd.Flags().IntVar(&sessionLimit, "limit", 20, "Maximum sessions to list (0 for all)")
	sessionPruneCmd.Flags().DurationVar(&sessionOlderThan, "older-than", 0, "Prune sessions idle longer than this (default store.session_ttl)")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionPruneCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sessions, err := s.ListSessions(context.Background(), sessionLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.Info("No review sessions recorded.")
		return nil
	}

	table := ui.Table([]string{"ID", "Range", "Type", "Status", "Round", "Updated"})
	for _, sess := range sessions {
		table.Append([]string{
			output.Cyan(sess.ID),
			fmt.Sprintf("%s..%s", sess.BaseRef, sess.TargetRef),
			string(sess.ReviewType),
			output.StatusColor(string(sess.Status())),
			fmt.Sprintf("%d/%d", sess.CurrentRound, sess.MaxRounds),
			timeAgo(sess.UpdatedAt),
		})
	}
	table.Render()
	return nil
}

func sessionShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sess, err := s.GetSession(context.Background(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(sess.ID), output.StatusColor(string(sess.Status())))
	fmt.Fprintf(ui.Out, "  Range:      %s..%s\n", sess.BaseRef, sess.TargetRef)
	fmt.Fprintf(ui.Out, "  Type:       %s\n", sess.ReviewType)
	fmt.Fprintf(ui.Out, "  Lead:       %s\n", sess.LeadAgent)
	fmt.Fprintf(ui.Out, "  Peers:      %s\n", strings.Join(sess.TargetAgents, ", "))
	if len(sess.FailedAgents) > 0 {
		fmt.Fprintf(ui.Out, "  Failed:     %s\n", output.Red(strings.Join(sess.FailedAgents, ", ")))
	}
	fmt.Fprintf(ui.Out, "  Round:      %d of %d\n", sess.CurrentRound, sess.MaxRounds)
	fmt.Fprintf(ui.Out, "  Consensus:  %v\n", sess.ConsensusReached)
	fmt.Fprintf(ui.Out, "  Created:    %s\n", timeAgo(sess.CreatedAt))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", timeAgo(sess.UpdatedAt))

	if len(sess.Agents) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"Agent", "Submitted Rounds"})
		for _, name := range sess.Agents {
			var rounds []string
			for round := 1; round <= sess.CurrentRound; round++ {
				if _, ok := sess.Submissions[name][round]; ok {
					rounds = append(rounds, fmt.Sprintf("%d", round))
				}
			}
			table.Append([]string{name, strings.Join(rounds, ", ")})
		}
		table.Render()
	}

	if n := len(sess.Progress); n > 0 {
		fmt.Fprintln(ui.Out)
		ui.Info("Recent progress:")
		start := 0
		if n > 10 {
			start = n - 10
		}
		for _, e := range sess.Progress[start:] {
			fmt.Fprintf(ui.Out, "  [%s] %s: %s\n", e.ReportedAt.Local().Format("15:04:05"), e.Agent, e.Message)
		}
	}
	return nil
}

func sessionPruneRun() error {
	ttl := viper.GetDuration("store.session_ttl")
	if sessionOlderThan > 0 {
		ttl = sessionOlderThan
	}
	if ttl <= 0 {
		return fmt.Errorf("no session TTL configured; pass --older-than")
	}

	cutoff := time.Now().UTC().Add(-ttl)
	if dryRun {
		ui.DryRunMsg("Would prune sessions idle since %s", cutoff.Format(time.RFC3339))
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	n, err := s.PruneSessions(context.Background(), cutoff)
	if err != nil {
		return err
	}
	ui.Success("Pruned %d sessions idle longer than %s", n, ttl)
	return nil
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
