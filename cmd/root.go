package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hansonkim/consensus-code-review/internal/agents"
	"github.com/hansonkim/consensus-code-review/internal/artifacts"
	"github.com/hansonkim/consensus-code-review/internal/curate"
	"github.com/hansonkim/consensus-code-review/internal/git"
	"github.com/hansonkim/consensus-code-review/internal/orchestrator"
	"github.com/hansonkim/consensus-code-review/internal/output"
	"github.com/hansonkim/consensus-code-review/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "ccr",
	Short: "Consensus code review across multiple AI agents",
	Long: `ccr runs multi-agent code reviews: a lead agent writes a review
report, peer agents critique it, and the lead revises round by round
until the panel agrees or the round ceiling is hit.

Run reviews directly from the command line, or start "ccr mcp" to
expose the engine as MCP tools for agent-driven sessions.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/ccr/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "ccr")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CCR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "ccr")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "ccr.db"))
	viper.SetDefault("reviews_dir", filepath.Join(home, "reviews"))
	viper.SetDefault("repo_dir", ".")
	viper.SetDefault("agents_file", filepath.Join(defaultConfigDir, "agents.yaml"))
	viper.SetDefault("review.token_budget", 20000)
	viper.SetDefault("review.max_rounds", 3)
	viper.SetDefault("review.lead", "claude")
	viper.SetDefault("review.verbosity", "detailed")
	viper.SetDefault("review.min_reviewers", agents.MinReviewers)
	viper.SetDefault("agent.timeout", "600s")
	viper.SetDefault("agent.retries", 3)
	viper.SetDefault("agent.cache_ttl", "24h")
	viper.SetDefault("store.session_ttl", "720h")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store and orchestrator are initialized lazily, only when
	// commands actually need them. This allows config/version/agents
	// commands to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getRegistry returns the builtin agents plus any overrides from the
// optional agents_file. Explicit model config keys win over agents_file
// entries.
func getRegistry() (*agents.Registry, error) {
	reg := agents.NewRegistry()

	if path := viper.GetString("agents_file"); path != "" {
		if err := reg.LoadFile(path); err != nil {
			return nil, fmt.Errorf("load agents file: %w", err)
		}
	}

	reg.SetModel("anthropic-api", viper.GetString("anthropic.model"))
	reg.SetModel("openai-api", viper.GetString("openai.model"))
	return reg, nil
}

// newInvoker routes cli agents to their binaries and api agents to the
// vendor SDKs.
func newInvoker() agents.Invoker {
	return agents.NewRouter(
		agents.CLIInvoker{},
		agents.NewAnthropicInvoker(viper.GetString("anthropic.api_key")),
		agents.NewOpenAIInvoker(viper.GetString("openai.api_key")),
	)
}

func newDetector() *agents.Detector {
	home, _ := os.UserHomeDir()
	return &agents.Detector{
		CachePath:       filepath.Join(home, ".config", "ccr", "agent-cache.json"),
		MaxAge:          viper.GetDuration("agent.cache_ttl"),
		ProbeTimeout:    5 * time.Second,
		HasAnthropicKey: viper.GetString("anthropic.api_key") != "" || os.Getenv("ANTHROPIC_API_KEY") != "",
		HasOpenAIKey:    viper.GetString("openai.api_key") != "" || os.Getenv("OPENAI_API_KEY") != "",
	}
}

// getOrchestrator wires the full engine from config. Logs go to logTo;
// pass nil to discard them (the CLI commands print their own progress).
func getOrchestrator(logTo io.Writer) (*orchestrator.Orchestrator, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	reg, err := getRegistry()
	if err != nil {
		return nil, err
	}

	cfg := orchestrator.DefaultConfig()

	var logger *log.Logger
	if logTo != nil {
		logger = log.New(logTo, "ccr: ", log.LstdFlags)
	}

	return orchestrator.New(orchestrator.Options{
		Store:    s,
		Curator:  curate.New(git.NewClient(), viper.GetString("repo_dir"), cfg.TokenBudget),
		Registry: reg,
		Invoker:  newInvoker(),
		Detector: newDetector(),
		Writer:   artifacts.Writer{BaseDir: viper.GetString("reviews_dir")},
		Config:   cfg,
		Logger:   logger,
	}), nil
}
