package models

import "time"

// SessionStatus summarizes where a review session is in its lifecycle.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusAgreed    SessionStatus = "agreed"    // terminated with consensus
	SessionStatusExhausted SessionStatus = "exhausted" // terminated at the round ceiling
)

// ReviewType distinguishes how a session was started.
type ReviewType string

const (
	ReviewTypeRun   ReviewType = "run"   // lead agent writes the initial review
	ReviewTypeAudit ReviewType = "audit" // caller supplies an existing review
)

// Submission is one agent's review text for one round.
type Submission struct {
	Content     string
	SubmittedAt time.Time
}

// ProgressEntry is a free-form status message reported by an agent
// while a session is in flight.
type ProgressEntry struct {
	Agent      string
	Message    string
	ReportedAt time.Time
}

// ReviewSession tracks one multi-agent review of a git change range.
// The lead agent submits revisions; peer agents submit critiques.
// Submissions are keyed by agent name, then round number.
type ReviewSession struct {
	ID         string
	BaseRef    string
	TargetRef  string
	ReviewType ReviewType
	LeadAgent  string

	CurrentRound int
	MaxRounds    int

	ConsensusReached bool
	Terminated       bool
	FinalReview      string

	// CuratedData is the markdown change document peers review against.
	CuratedData string

	// TargetAgents are the peer agents this session fans out to.
	TargetAgents []string
	// FailedAgents are peers whose invocation failed; they are excluded
	// from later rounds but stay annotated in the artifacts.
	FailedAgents []string

	// PeersTriggered guards the round-1 fan-out so it runs at most once.
	PeersTriggered bool

	Submissions map[string]map[int]Submission
	// Agents preserves first-submission order for stable reporting.
	Agents []string

	Progress []ProgressEntry

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status derives the lifecycle status from the termination flags.
func (s *ReviewSession) Status() SessionStatus {
	switch {
	case !s.Terminated:
		return SessionStatusActive
	case s.ConsensusReached:
		return SessionStatusAgreed
	default:
		return SessionStatusExhausted
	}
}

// Record stores a submission for (agent, round), replacing any earlier
// submission for the same pair.
func (s *ReviewSession) Record(agent string, round int, content string, at time.Time) {
	if s.Submissions == nil {
		s.Submissions = make(map[string]map[int]Submission)
	}
	if s.Submissions[agent] == nil {
		s.Submissions[agent] = make(map[int]Submission)
		s.Agents = append(s.Agents, agent)
	}
	s.Submissions[agent][round] = Submission{Content: content, SubmittedAt: at}
}

// Submission returns the submission for (agent, round) if one exists.
func (s *ReviewSession) Submission(agent string, round int) (Submission, bool) {
	sub, ok := s.Submissions[agent][round]
	return sub, ok
}

// RoundSubmissions returns all submissions recorded for a round,
// keyed by agent name.
func (s *ReviewSession) RoundSubmissions(round int) map[string]Submission {
	out := make(map[string]Submission)
	for agent, rounds := range s.Submissions {
		if sub, ok := rounds[round]; ok {
			out[agent] = sub
		}
	}
	return out
}

// OtherReviews returns the review text every agent except the given one
// submitted in a round.
func (s *ReviewSession) OtherReviews(agent string, round int) map[string]string {
	out := make(map[string]string)
	for name, rounds := range s.Submissions {
		if name == agent {
			continue
		}
		if sub, ok := rounds[round]; ok {
			out[name] = sub.Content
		}
	}
	return out
}

// MarkFailed records a peer invocation failure exactly once per agent.
func (s *ReviewSession) MarkFailed(agent string) {
	for _, a := range s.FailedAgents {
		if a == agent {
			return
		}
	}
	s.FailedAgents = append(s.FailedAgents, agent)
}

// ActivePeers returns the target agents that have not failed.
func (s *ReviewSession) ActivePeers() []string {
	failed := make(map[string]bool, len(s.FailedAgents))
	for _, a := range s.FailedAgents {
		failed[a] = true
	}
	var out []string
	for _, a := range s.TargetAgents {
		if !failed[a] {
			out = append(out, a)
		}
	}
	return out
}
