package orchestrator

import (
	"time"

	"github.com/spf13/viper"

	"github.com/hansonkim/consensus-code-review/internal/agents"
	"github.com/hansonkim/consensus-code-review/internal/tokens"
)

// Config holds the orchestration knobs for a review session.
type Config struct {
	// LeadAgent writes and revises the report; everyone else critiques.
	LeadAgent string

	// MaxRounds caps the revision loop. The round counter never passes it.
	MaxRounds int

	// MinReviewers is the smallest acceptable panel, lead included.
	MinReviewers int

	// Verbosity sizes responses that embed review text: summary,
	// detailed, or full.
	Verbosity string

	// TokenBudget bounds the curated change document.
	TokenBudget int

	// CallTimeout bounds a single peer invocation attempt.
	CallTimeout time.Duration

	// Retries is the attempt count per peer invocation.
	Retries int
}

// DefaultConfig returns orchestration settings from viper, falling back
// to built-in defaults when unset.
func DefaultConfig() Config {
	lead := viper.GetString("review.lead")
	if lead == "" {
		lead = "claude"
	}

	maxRounds := viper.GetInt("review.max_rounds")
	if maxRounds <= 0 {
		maxRounds = 3
	}

	minReviewers := viper.GetInt("review.min_reviewers")
	if minReviewers <= 0 {
		minReviewers = agents.MinReviewers
	}

	verbosity := viper.GetString("review.verbosity")
	if verbosity == "" {
		verbosity = tokens.VerbosityDetailed
	}

	budget := viper.GetInt("review.token_budget")
	if budget <= 0 {
		budget = 20000
	}

	timeout := viper.GetDuration("agent.timeout")
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	retries := viper.GetInt("agent.retries")
	if retries <= 0 {
		retries = 3
	}

	return Config{
		LeadAgent:    lead,
		MaxRounds:    maxRounds,
		MinReviewers: minReviewers,
		Verbosity:    verbosity,
		TokenBudget:  budget,
		CallTimeout:  timeout,
		Retries:      retries,
	}
}
