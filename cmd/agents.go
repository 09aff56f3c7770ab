package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hansonkim/consensus-code-review/internal/agents"
	"github.com/hansonkim/consensus-code-review/internal/output"
)

var agentsRefresh bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List reviewer agents and their availability",
	Long: `List the reviewer agents this installation knows about, probing
each CLI agent's binary and each API agent's key. Probe results are
cached; use --refresh to force a new probe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentsRun()
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)

	agentsCmd.Flags().BoolVar(&agentsRefresh, "refresh", false, "Ignore the probe cache and re-detect")
}

func agentsRun() error {
	reg, err := getRegistry()
	if err != nil {
		return err
	}

	avail := newDetector().Available(reg.List(), agentsRefresh)
	lead := viper.GetString("review.lead")

	table := ui.Table([]string{"Agent", "Kind", "Backend", "Available", "Role"})
	for _, a := range reg.List() {
		backend := a.Model
		if a.Kind == agents.KindCLI {
			backend = strings.Join(a.Command, " ")
		}

		availStr := output.Red("no")
		if avail[a.Name] {
			availStr = output.Green("yes")
		}

		role := "peer"
		if a.Name == lead {
			role = output.Cyan("lead")
		}

		table.Append([]string{a.Name, string(a.Kind), backend, availStr, role})
	}
	table.Render()
	return nil
}
