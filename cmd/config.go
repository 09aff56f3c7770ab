package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ccr"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage ccr configuration.

Running bare 'ccr config' is the same as 'ccr config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# ccr configuration
# See: ccr config show (for effective values and sources)

# SQLite database path (default: ~/.config/ccr/ccr.db)
# db_path: {{ .DBPath }}

# Directory review artifacts are written to (default: ~/reviews)
# reviews_dir: {{ .ReviewsDir }}

# Repository the reviews run against (default: current directory)
# repo_dir: {{ .RepoDir }}

# Custom agent definitions, merged over the builtins (optional)
# agents_file: {{ .AgentsFile }}

# Review settings
review:
  # Lead agent that drafts and revises the report
  lead: "{{ .Lead }}"

  # Round ceiling per session
  max_rounds: {{ .MaxRounds }}

  # Token budget for the curated change document
  token_budget: {{ .TokenBudget }}

  # Response verbosity: summary, detailed, or full
  verbosity: "{{ .Verbosity }}"

  # Smallest acceptable panel, lead included
  min_reviewers: {{ .MinReviewers }}

# Agent invocation settings
agent:
  # Per-invocation timeout
  timeout: "{{ .AgentTimeout }}"

  # Total attempts per invocation
  retries: {{ .AgentRetries }}

  # Availability probe cache lifetime
  cache_ttl: "{{ .AgentCacheTTL }}"

# Store settings
store:
  # Sessions idle longer than this are pruned at server start
  session_ttl: "{{ .SessionTTL }}"

# API-backed reviewer agents. Keys may also come from the standard
# ANTHROPIC_API_KEY / OPENAI_API_KEY environment variables.
anthropic:
  # api_key: ""
  # model: "claude-sonnet-4-5"

openai:
  # api_key: ""
  # model: "gpt-4.1"
`

type configTemplateData struct {
	DBPath        string
	ReviewsDir    string
	RepoDir       string
	AgentsFile    string
	Lead          string
	MaxRounds     int
	TokenBudget   int
	Verbosity     string
	MinReviewers  int
	AgentTimeout  string
	AgentRetries  int
	AgentCacheTTL string
	SessionTTL    string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBPath:        viper.GetString("db_path"),
		ReviewsDir:    viper.GetString("reviews_dir"),
		RepoDir:       viper.GetString("repo_dir"),
		AgentsFile:    viper.GetString("agents_file"),
		Lead:          viper.GetString("review.lead"),
		MaxRounds:     viper.GetInt("review.max_rounds"),
		TokenBudget:   viper.GetInt("review.token_budget"),
		Verbosity:     viper.GetString("review.verbosity"),
		MinReviewers:  viper.GetInt("review.min_reviewers"),
		AgentTimeout:  viper.GetString("agent.timeout"),
		AgentRetries:  viper.GetInt("agent.retries"),
		AgentCacheTTL: viper.GetString("agent.cache_ttl"),
		SessionTTL:    viper.GetString("store.session_ttl"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

// configKeys lists the displayable keys. The api_key keys are left out
// so 'config show' never prints secrets.
var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "CCR_DB_PATH"},
	{Key: "reviews_dir", EnvVar: "CCR_REVIEWS_DIR"},
	{Key: "repo_dir", EnvVar: "CCR_REPO_DIR"},
	{Key: "agents_file", EnvVar: "CCR_AGENTS_FILE"},
	{Key: "review.lead", EnvVar: "CCR_REVIEW_LEAD"},
	{Key: "review.max_rounds", EnvVar: "CCR_REVIEW_MAX_ROUNDS"},
	{Key: "review.token_budget", EnvVar: "CCR_REVIEW_TOKEN_BUDGET"},
	{Key: "review.verbosity", EnvVar: "CCR_REVIEW_VERBOSITY"},
	{Key: "review.min_reviewers", EnvVar: "CCR_REVIEW_MIN_REVIEWERS"},
	{Key: "agent.timeout", EnvVar: "CCR_AGENT_TIMEOUT"},
	{Key: "agent.retries", EnvVar: "CCR_AGENT_RETRIES"},
	{Key: "agent.cache_ttl", EnvVar: "CCR_AGENT_CACHE_TTL"},
	{Key: "store.session_ttl", EnvVar: "CCR_STORE_SESSION_TTL"},
	{Key: "anthropic.model", EnvVar: "CCR_ANTHROPIC_MODEL"},
	{Key: "openai.model", EnvVar: "CCR_OPENAI_MODEL"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set (set it to your preferred editor, e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'ccr config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
