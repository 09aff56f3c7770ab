// Package orchestrator drives multi-agent review sessions. The lead
// agent writes and revises a report while peer agents critique it;
// rounds repeat until the peers' feedback reads as agreement or the
// round ceiling is hit, at which point the session is finalized and an
// artifact bundle is written.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hansonkim/consensus-code-review/internal/agents"
	"github.com/hansonkim/consensus-code-review/internal/artifacts"
	"github.com/hansonkim/consensus-code-review/internal/consensus"
	"github.com/hansonkim/consensus-code-review/internal/curate"
	"github.com/hansonkim/consensus-code-review/internal/models"
	"github.com/hansonkim/consensus-code-review/internal/store"
	"github.com/hansonkim/consensus-code-review/internal/tokens"
)

// Submission statuses returned by SubmitReview.
const (
	StatusAccepted            = "accepted"
	StatusAwaitingImprovement = "awaiting_improvement"
	StatusConsensusReached    = "consensus_reached"
	StatusMaxRoundsReached    = "max_rounds_reached"
)

// PeerFeedback is one peer's critique text for a round.
type PeerFeedback struct {
	Agent       string    `json:"agent"`
	Review      string    `json:"review"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// PeerResult reports one peer invocation from a fan-out.
type PeerResult struct {
	Agent  string `json:"agent"`
	Status string `json:"status"`
	Length int    `json:"review_length,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SignalSummary is the wire form of a per-round consensus signal.
type SignalSummary struct {
	Reached    bool    `json:"consensus_reached"`
	Positive   int     `json:"positive_count"`
	Negative   int     `json:"negative_count"`
	Total      int     `json:"total_feedbacks"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

func summarize(sig models.ConsensusSignal) *SignalSummary {
	return &SignalSummary{
		Reached:    sig.Reached,
		Positive:   sig.Positive,
		Negative:   sig.Negative,
		Total:      sig.Total,
		Confidence: sig.Confidence,
		Reason: fmt.Sprintf("%d of %d feedbacks positive, %d negative",
			sig.Positive, sig.Total, sig.Negative),
	}
}

// SubmitResult describes what a submission set in motion.
type SubmitResult struct {
	Status       string `json:"status"`
	Agent        string `json:"agent"`
	Round        int    `json:"round"`
	TotalAgents  int    `json:"total_agents"`
	CurrentRound int    `json:"current_round"`

	PeerResults       []PeerResult     `json:"peer_results,omitempty"`
	FeedbackCount     int              `json:"feedback_count,omitempty"`
	ImprovementPrompt string           `json:"improvement_prompt,omitempty"`
	Signal            *SignalSummary   `json:"consensus,omitempty"`
	Artifacts         *artifacts.Paths `json:"artifacts,omitempty"`
	Message           string           `json:"message,omitempty"`
}

// StartRequest configures a new lead-driven review session.
type StartRequest struct {
	Base         string
	Target       string
	MaxRounds    int
	TargetAgents []string
}

// StartResult seeds the lead agent with its round-1 instruction.
type StartResult struct {
	SessionID    string   `json:"session_id"`
	CurrentRound int      `json:"current_round"`
	MaxRounds    int      `json:"max_rounds"`
	LeadAgent    string   `json:"lead_agent"`
	TargetAgents []string `json:"target_agents"`
	Instruction  string   `json:"instruction"`
}

// AuditRequest configures a one-shot audit of an existing review.
type AuditRequest struct {
	Base         string
	Target       string
	Review       string
	TargetAgents []string
}

// AuditResult is the outcome of a one-shot audit.
type AuditResult struct {
	SessionID   string           `json:"session_id"`
	Status      string           `json:"status"`
	PeerResults []PeerResult     `json:"peer_results"`
	Feedback    []PeerFeedback   `json:"feedback"`
	Signal      *SignalSummary   `json:"consensus"`
	Artifacts   *artifacts.Paths `json:"artifacts,omitempty"`
}

// ConsensusCheck is the non-mutating view of the current round.
type ConsensusCheck struct {
	Round            int  `json:"round"`
	Submitted        int  `json:"submitted"`
	TotalAgents      int  `json:"total_agents"`
	AllSubmitted     bool `json:"all_submitted"`
	ConsensusReached bool `json:"consensus_reached"`
}

// RoundStatus is returned by AdvanceRound.
type RoundStatus struct {
	Status       string `json:"status"`
	CurrentRound int    `json:"current_round"`
}

// FinalizeResult is returned by Finalize.
type FinalizeResult struct {
	Status          string           `json:"status"`
	RoundsCompleted int              `json:"rounds_completed"`
	TotalReviews    int              `json:"total_reviews"`
	Artifacts       *artifacts.Paths `json:"artifacts,omitempty"`
}

// ProgressUpdate mirrors one progress entry on the wire.
type ProgressUpdate struct {
	Agent      string    `json:"agent"`
	Message    string    `json:"message"`
	ReportedAt time.Time `json:"reported_at"`
}

// SessionDetails is the full status view of a session.
type SessionDetails struct {
	SessionID        string         `json:"session_id"`
	BaseRef          string         `json:"base_ref"`
	TargetRef        string         `json:"target_ref"`
	ReviewType       string         `json:"review_type"`
	Status           string         `json:"status"`
	CurrentRound     int            `json:"current_round"`
	MaxRounds        int            `json:"max_rounds"`
	ConsensusReached bool           `json:"consensus_reached"`
	Participants     []string       `json:"participating_agents"`
	FailedAgents     []string       `json:"failed_agents,omitempty"`
	RoundCounts      map[int]int    `json:"round_submissions"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// AgentStatus describes one registered agent and its availability.
type AgentStatus struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Kind        string `json:"kind"`
	Available   bool   `json:"available"`
	Lead        bool   `json:"lead,omitempty"`
}

// Options bundles the orchestrator's collaborators.
type Options struct {
	Store    store.Store
	Curator  *curate.Curator
	Registry *agents.Registry
	Invoker  agents.Invoker
	Detector *agents.Detector
	Writer   artifacts.Writer
	Config   Config
	Logger   *log.Logger
}

// Orchestrator coordinates sessions across the store, the curator, and
// the agent invokers. Read-modify-write cycles are serialized per
// session id; different sessions run concurrently.
type Orchestrator struct {
	store    store.Store
	curator  *curate.Curator
	registry *agents.Registry
	invoker  agents.Invoker
	detector *agents.Detector
	writer   artifacts.Writer
	cfg      Config
	logger   *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires an orchestrator from its collaborators. A nil Logger
// discards log output.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Orchestrator{
		store:    opts.Store,
		curator:  opts.Curator,
		registry: opts.Registry,
		invoker:  opts.Invoker,
		detector: opts.Detector,
		writer:   opts.Writer,
		cfg:      opts.Config,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) lockSession(id string) func() {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// resolveTargets picks the peer set: the explicit list when given,
// otherwise every available registered agent except the lead.
func (o *Orchestrator) resolveTargets(requested []string) ([]string, error) {
	if len(requested) > 0 {
		var out []string
		for _, name := range requested {
			if name == o.cfg.LeadAgent {
				continue
			}
			if _, err := o.registry.Get(name); err != nil {
				return nil, err
			}
			out = append(out, name)
		}
		return out, nil
	}

	list := o.registry.List()
	var avail map[string]bool
	if o.detector != nil {
		avail = o.detector.Available(list, false)
	}
	var out []string
	for _, a := range list {
		if a.Name == o.cfg.LeadAgent {
			continue
		}
		if avail != nil && !avail[a.Name] {
			continue
		}
		out = append(out, a.Name)
	}
	return out, nil
}

// StartReview curates the change range, creates a session, and returns
// the lead agent's round-1 instruction.
func (o *Orchestrator) StartReview(ctx context.Context, req StartRequest) (*StartResult, error) {
	if req.Base == "" {
		return nil, fmt.Errorf("base ref is required")
	}
	target := req.Target
	if target == "" {
		target = "HEAD"
	}

	curation, err := o.curator.Curate(req.Base, target)
	if err != nil {
		return nil, fmt.Errorf("curate changes: %w", err)
	}

	peers, err := o.resolveTargets(req.TargetAgents)
	if err != nil {
		return nil, err
	}
	if 1+len(peers) < o.cfg.MinReviewers {
		return nil, fmt.Errorf("need at least %d reviewers, have %d (lead %s plus %d peers)",
			o.cfg.MinReviewers, 1+len(peers), o.cfg.LeadAgent, len(peers))
	}

	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = o.cfg.MaxRounds
	}

	sess := &models.ReviewSession{
		BaseRef:      req.Base,
		TargetRef:    target,
		ReviewType:   models.ReviewTypeRun,
		LeadAgent:    o.cfg.LeadAgent,
		CurrentRound: 1,
		MaxRounds:    maxRounds,
		CuratedData:  curation.Document,
		TargetAgents: peers,
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	o.logger.Printf("session %s: started %s..%s with peers %s",
		sess.ID, req.Base, target, strings.Join(peers, ", "))

	return &StartResult{
		SessionID:    sess.ID,
		CurrentRound: sess.CurrentRound,
		MaxRounds:    sess.MaxRounds,
		LeadAgent:    sess.LeadAgent,
		TargetAgents: peers,
		Instruction:  InitialReviewPrompt(sess.ID, curation.Document),
	}, nil
}

// AuditReview runs a one-shot audit: the supplied review is recorded
// under the lead agent, every peer critiques it once, and the session
// terminates immediately with the round's signal.
func (o *Orchestrator) AuditReview(ctx context.Context, req AuditRequest) (*AuditResult, error) {
	if strings.TrimSpace(req.Review) == "" {
		return nil, fmt.Errorf("review text is required")
	}
	if req.Base == "" {
		return nil, fmt.Errorf("base ref is required")
	}
	target := req.Target
	if target == "" {
		target = "HEAD"
	}

	curation, err := o.curator.Curate(req.Base, target)
	if err != nil {
		return nil, fmt.Errorf("curate changes: %w", err)
	}
	peers, err := o.resolveTargets(req.TargetAgents)
	if err != nil {
		return nil, err
	}
	if 1+len(peers) < o.cfg.MinReviewers {
		return nil, fmt.Errorf("need at least %d reviewers, have %d (lead %s plus %d peers)",
			o.cfg.MinReviewers, 1+len(peers), o.cfg.LeadAgent, len(peers))
	}

	sess := &models.ReviewSession{
		BaseRef:      req.Base,
		TargetRef:    target,
		ReviewType:   models.ReviewTypeAudit,
		LeadAgent:    o.cfg.LeadAgent,
		CurrentRound: 1,
		MaxRounds:    1,
		CuratedData:  curation.Document,
		TargetAgents: peers,
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	o.logger.Printf("session %s: auditing existing review of %s..%s", sess.ID, req.Base, target)

	now := time.Now().UTC()
	sess.Record(sess.LeadAgent, 1, req.Review, now)
	if err := o.store.PutSubmission(ctx, sess.ID, sess.LeadAgent, 1, req.Review); err != nil {
		return nil, err
	}
	sess.PeersTriggered = true

	peerResults := o.fanOutPeers(ctx, sess, 1, req.Review)
	feedback := otherFeedback(sess, sess.LeadAgent, 1)
	sig := consensus.Signal(sess.OtherReviews(sess.LeadAgent, 1))

	status := "no_consensus"
	if sig.Reached {
		status = StatusConsensusReached
	}
	paths := o.terminate(ctx, sess, sig.Reached, req.Review)

	budget := tokens.BudgetFor(o.cfg.Verbosity)
	for i := range feedback {
		feedback[i].Review, _ = tokens.Truncate(feedback[i].Review, budget)
	}

	return &AuditResult{
		SessionID:   sess.ID,
		Status:      status,
		PeerResults: peerResults,
		Feedback:    feedback,
		Signal:      summarize(sig),
		Artifacts:   paths,
	}, nil
}

// SubmitReview records a submission for the current round and runs the
// state machine. Non-lead submissions are passive. A lead submission
// triggers the round-1 fan-out the first time, and on later rounds it
// first evaluates the previous round's critiques: agreement terminates
// the session, the round ceiling forces a stop, and anything else fans
// the revision out for another critique round.
func (o *Orchestrator) SubmitReview(ctx context.Context, sessionID, agent, content string) (*SubmitResult, error) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sess.Record(agent, sess.CurrentRound, content, time.Now().UTC())
	if err := o.store.PutSubmission(ctx, sessionID, agent, sess.CurrentRound, content); err != nil {
		return nil, err
	}

	res := &SubmitResult{
		Status:       StatusAccepted,
		Agent:        agent,
		Round:        sess.CurrentRound,
		TotalAgents:  len(sess.Agents),
		CurrentRound: sess.CurrentRound,
	}

	if sess.Terminated {
		res.Message = "session is finalized; submission recorded, no rounds triggered"
		return res, nil
	}
	if agent != sess.LeadAgent {
		return res, nil
	}

	if sess.CurrentRound == 1 {
		if sess.PeersTriggered {
			// Lead resubmitted before the round moved; the fan-out
			// runs at most once per round.
			return res, nil
		}
		return o.leadInitial(ctx, sess, content, res)
	}
	return o.leadRevision(ctx, sess, content, res)
}

// leadInitial handles the lead's first report: trigger the peers, then
// hand the collected critiques back as an improvement prompt.
func (o *Orchestrator) leadInitial(ctx context.Context, sess *models.ReviewSession, report string, res *SubmitResult) (*SubmitResult, error) {
	sess.PeersTriggered = true
	res.PeerResults = o.fanOutPeers(ctx, sess, sess.CurrentRound, report)

	if sess.CurrentRound >= sess.MaxRounds {
		// Single-round session: the first critique pass is also the last.
		sig := consensus.Signal(sess.OtherReviews(sess.LeadAgent, sess.CurrentRound))
		res.Signal = summarize(sig)
		return o.finishTerminated(ctx, sess, sig.Reached, report, res)
	}

	return o.advanceWithFeedback(ctx, sess, report, res)
}

// leadRevision handles a lead submission in round 2 or later.
func (o *Orchestrator) leadRevision(ctx context.Context, sess *models.ReviewSession, revision string, res *SubmitResult) (*SubmitResult, error) {
	// The critiques that prompted this revision live in the previous
	// round; score those, not the round the revision just landed in.
	sig := consensus.Signal(sess.OtherReviews(sess.LeadAgent, sess.CurrentRound-1))
	res.Signal = summarize(sig)

	if sig.Reached {
		return o.finishTerminated(ctx, sess, true, revision, res)
	}
	if sess.CurrentRound >= sess.MaxRounds {
		return o.finishTerminated(ctx, sess, false, revision, res)
	}

	res.PeerResults = o.fanOutPeers(ctx, sess, sess.CurrentRound, revision)
	return o.advanceWithFeedback(ctx, sess, revision, res)
}

// advanceWithFeedback moves the session to the next round and builds
// the lead's improvement prompt from the critiques just collected.
func (o *Orchestrator) advanceWithFeedback(ctx context.Context, sess *models.ReviewSession, report string, res *SubmitResult) (*SubmitResult, error) {
	feedback := otherFeedback(sess, sess.LeadAgent, sess.CurrentRound)
	sess.CurrentRound++
	if err := o.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	prompt := ImprovementPrompt(sess.ID, sess.CurrentRound, report, feedback)
	res.Status = StatusAwaitingImprovement
	res.CurrentRound = sess.CurrentRound
	res.TotalAgents = len(sess.Agents)
	res.FeedbackCount = len(feedback)
	res.ImprovementPrompt, _ = tokens.Truncate(prompt, tokens.BudgetFor(o.cfg.Verbosity))
	if len(feedback) == 0 {
		res.Message = "no peer feedback was collected; the session will run to its round ceiling"
	}
	return res, nil
}

// finishTerminated terminates the session off a lead submission and
// fills the terminal fields of the result.
func (o *Orchestrator) finishTerminated(ctx context.Context, sess *models.ReviewSession, reached bool, finalReview string, res *SubmitResult) (*SubmitResult, error) {
	res.Artifacts = o.terminate(ctx, sess, reached, finalReview)
	res.TotalAgents = len(sess.Agents)
	if reached {
		res.Status = StatusConsensusReached
		res.Message = fmt.Sprintf("consensus reached in round %d", sess.CurrentRound)
	} else {
		res.Status = StatusMaxRoundsReached
		res.Message = fmt.Sprintf("round ceiling of %d reached without consensus", sess.MaxRounds)
	}
	return res, nil
}

// terminate finalizes the session and writes the artifact bundle.
// Artifact failures are logged to the progress trail; they never undo
// the termination itself.
func (o *Orchestrator) terminate(ctx context.Context, sess *models.ReviewSession, reached bool, finalReview string) *artifacts.Paths {
	sess.Terminated = true
	sess.ConsensusReached = reached
	sess.FinalReview = finalReview
	if err := o.store.UpdateSession(ctx, sess); err != nil {
		o.logger.Printf("session %s: persist termination: %v", sess.ID, err)
	}

	paths, err := o.writer.Write(sess)
	if err != nil {
		o.logger.Printf("session %s: write artifacts: %v", sess.ID, err)
		o.logProgress(ctx, sess.ID, "orchestrator", "artifact write failed: "+err.Error())
		return nil
	}
	o.logger.Printf("session %s: terminated (%s), artifacts at %s", sess.ID, sess.Status(), paths.Dir)
	return &paths
}

type peerOutcome struct {
	result PeerResult
	text   string
}

// fanOutPeers invokes every active peer concurrently with a critique
// prompt for the given report, then records the critiques into the
// round in agent-name order. A failed peer is marked failed, noted in
// the progress trail, and excluded from later rounds; the session
// continues with whoever responded.
func (o *Orchestrator) fanOutPeers(ctx context.Context, sess *models.ReviewSession, round int, report string) []PeerResult {
	peers := sess.ActivePeers()
	outcomes := make([]peerOutcome, len(peers))

	var wg sync.WaitGroup
	for i, name := range peers {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcomes[i] = o.invokePeer(ctx, sess, name, report)
		}(i, name)
	}
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].result.Agent < outcomes[j].result.Agent
	})

	now := time.Now().UTC()
	results := make([]PeerResult, 0, len(outcomes))
	for _, oc := range outcomes {
		results = append(results, oc.result)
		if oc.result.Status == "success" {
			sess.Record(oc.result.Agent, round, oc.text, now)
			if err := o.store.PutSubmission(ctx, sess.ID, oc.result.Agent, round, oc.text); err != nil {
				o.logger.Printf("session %s: store critique from %s: %v", sess.ID, oc.result.Agent, err)
			}
			continue
		}
		sess.MarkFailed(oc.result.Agent)
		o.logProgress(ctx, sess.ID, oc.result.Agent, "peer review failed: "+oc.result.Error)
		o.logger.Printf("session %s: peer %s failed: %s", sess.ID, oc.result.Agent, oc.result.Error)
	}
	return results
}

func (o *Orchestrator) invokePeer(ctx context.Context, sess *models.ReviewSession, name, report string) peerOutcome {
	agent, err := o.registry.Get(name)
	if err != nil {
		return peerOutcome{result: PeerResult{Agent: name, Status: "error", Error: err.Error()}}
	}
	prompt := CritiquePrompt(sess.ID, agent.DisplayName, report, sess.CuratedData)
	out, err := agents.InvokeWithRetry(ctx, o.invoker, agent, prompt, o.cfg.Retries, o.cfg.CallTimeout)
	if err != nil {
		return peerOutcome{result: PeerResult{Agent: name, Status: "error", Error: err.Error()}}
	}
	return peerOutcome{
		result: PeerResult{Agent: name, Status: "success", Length: len(out)},
		text:   out,
	}
}

// logProgress best-effort appends an orchestrator note to the session's
// progress trail.
func (o *Orchestrator) logProgress(ctx context.Context, sessionID, agent, message string) {
	if err := o.store.AppendProgress(ctx, sessionID, agent, message); err != nil {
		o.logger.Printf("session %s: append progress: %v", sessionID, err)
	}
}

// otherFeedback lists every submission in a round except the given
// agent's, sorted by agent name for deterministic output.
func otherFeedback(sess *models.ReviewSession, agent string, round int) []PeerFeedback {
	subs := sess.RoundSubmissions(round)
	names := make([]string, 0, len(subs))
	for name := range subs {
		if name != agent {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]PeerFeedback, 0, len(names))
	for _, name := range names {
		sub := subs[name]
		out = append(out, PeerFeedback{Agent: name, Review: sub.Content, SubmittedAt: sub.SubmittedAt})
	}
	return out
}

// CheckConsensus reports how far the current round has progressed
// without mutating anything.
func (o *Orchestrator) CheckConsensus(ctx context.Context, sessionID string) (*ConsensusCheck, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	subs := sess.RoundSubmissions(sess.CurrentRound)
	return &ConsensusCheck{
		Round:            sess.CurrentRound,
		Submitted:        len(subs),
		TotalAgents:      len(sess.Agents),
		AllSubmitted:     len(subs) == len(sess.Agents),
		ConsensusReached: sess.ConsensusReached,
	}, nil
}

// AdvanceRound bumps the round counter, refusing to pass the ceiling.
func (o *Orchestrator) AdvanceRound(ctx context.Context, sessionID string) (*RoundStatus, error) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CurrentRound >= sess.MaxRounds {
		return &RoundStatus{Status: StatusMaxRoundsReached, CurrentRound: sess.CurrentRound}, nil
	}
	sess.CurrentRound++
	if err := o.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return &RoundStatus{Status: "advanced", CurrentRound: sess.CurrentRound}, nil
}

// GetOtherReviews returns everyone else's current-round submissions,
// sized to the configured verbosity.
func (o *Orchestrator) GetOtherReviews(ctx context.Context, sessionID, agent string) ([]PeerFeedback, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	feedback := otherFeedback(sess, agent, sess.CurrentRound)
	budget := tokens.BudgetFor(o.cfg.Verbosity)
	for i := range feedback {
		feedback[i].Review, _ = tokens.Truncate(feedback[i].Review, budget)
	}
	return feedback, nil
}

// Finalize force-terminates a session with the given review as final,
// marking it agreed regardless of the round signals. The artifact
// bundle is rewritten to match.
func (o *Orchestrator) Finalize(ctx context.Context, sessionID, finalReview string) (*FinalizeResult, error) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	paths := o.terminate(ctx, sess, true, finalReview)

	total := 0
	for _, rounds := range sess.Submissions {
		total += len(rounds)
	}
	return &FinalizeResult{
		Status:          "finalized",
		RoundsCompleted: sess.CurrentRound,
		TotalReviews:    total,
		Artifacts:       paths,
	}, nil
}

// ReportProgress appends a live status message from an agent.
func (o *Orchestrator) ReportProgress(ctx context.Context, sessionID, agent, message string) error {
	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return err
	}
	return o.store.AppendProgress(ctx, sessionID, agent, message)
}

// GetProgress lists progress updates in chronological order. A zero
// since returns everything; otherwise only entries after it.
func (o *Orchestrator) GetProgress(ctx context.Context, sessionID string, since time.Time) ([]ProgressUpdate, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]ProgressUpdate, 0, len(sess.Progress))
	for _, e := range sess.Progress {
		if !since.IsZero() && !e.ReportedAt.After(since) {
			continue
		}
		out = append(out, ProgressUpdate{Agent: e.Agent, Message: e.Message, ReportedAt: e.ReportedAt})
	}
	return out, nil
}

// SessionInfo returns the status view of a session.
func (o *Orchestrator) SessionInfo(ctx context.Context, sessionID string) (*SessionDetails, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	counts := make(map[int]int)
	for round := 1; round <= sess.CurrentRound; round++ {
		counts[round] = len(sess.RoundSubmissions(round))
	}
	return &SessionDetails{
		SessionID:        sess.ID,
		BaseRef:          sess.BaseRef,
		TargetRef:        sess.TargetRef,
		ReviewType:       string(sess.ReviewType),
		Status:           string(sess.Status()),
		CurrentRound:     sess.CurrentRound,
		MaxRounds:        sess.MaxRounds,
		ConsensusReached: sess.ConsensusReached,
		Participants:     append([]string(nil), sess.Agents...),
		FailedAgents:     append([]string(nil), sess.FailedAgents...),
		RoundCounts:      counts,
		CreatedAt:        sess.CreatedAt,
		UpdatedAt:        sess.UpdatedAt,
	}, nil
}

// ConsensusReport runs the issue calculator over a whole session: the
// lead's round-1 report seeds the issue registry, every peer text is
// applied as a critique, and issues are tiered by agreement.
func (o *Orchestrator) ConsensusReport(ctx context.Context, sessionID string) (*models.ConsensusReport, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	calc := consensus.NewCalculator()
	if lead, ok := sess.Submission(sess.LeadAgent, 1); ok {
		calc.AddReview(lead.Content, sess.LeadAgent)
	}
	for round := 1; round <= sess.CurrentRound; round++ {
		for _, fb := range otherFeedback(sess, sess.LeadAgent, round) {
			calc.ApplyCritique(fb.Review, fb.Agent)
		}
	}

	total := len(calc.Participating())
	report := calc.Classify(total)
	report.Document = consensus.FormatReport(report, total)
	return report, nil
}

// CurateChanges runs curation standalone, without creating a session.
func (o *Orchestrator) CurateChanges(base, target string) (*models.CurationResult, error) {
	if base == "" {
		return nil, fmt.Errorf("base ref is required")
	}
	if target == "" {
		target = "HEAD"
	}
	return o.curator.Curate(base, target)
}

// ListAgents reports every registered agent with its availability.
func (o *Orchestrator) ListAgents(refresh bool) []AgentStatus {
	list := o.registry.List()
	var avail map[string]bool
	if o.detector != nil {
		avail = o.detector.Available(list, refresh)
	}

	out := make([]AgentStatus, 0, len(list))
	for _, a := range list {
		available := true
		if avail != nil {
			available = avail[a.Name]
		}
		out = append(out, AgentStatus{
			Name:        a.Name,
			DisplayName: a.DisplayName,
			Kind:        string(a.Kind),
			Available:   available,
			Lead:        a.Name == o.cfg.LeadAgent,
		})
	}
	return out
}
