package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansonkim/consensus-code-review/internal/agents"
	"github.com/hansonkim/consensus-code-review/internal/artifacts"
	"github.com/hansonkim/consensus-code-review/internal/curate"
	"github.com/hansonkim/consensus-code-review/internal/git"
	"github.com/hansonkim/consensus-code-review/internal/orchestrator"
	"github.com/hansonkim/consensus-code-review/internal/store"
)

const (
	positiveCritique = "I agree with this report. The analysis looks good and is accurate. Approve."
	negativeCritique = "The report is missing the race condition in server.go. Must fix before merge."
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// scriptedInvoker returns canned critiques per agent name.
type scriptedInvoker struct {
	mu        sync.Mutex
	responses map[string]string
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{responses: make(map[string]string)}
}

func (m *scriptedInvoker) Invoke(_ context.Context, agent agents.Agent, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resp, ok := m.responses[agent.Name]; ok {
		return resp, nil
	}
	return positiveCritique, nil
}

func (m *scriptedInvoker) respond(agent, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[agent] = text
}

// stubGit serves a fixed one-file change range.
type stubGit struct{}

var _ git.Client = (*stubGit)(nil)

func (stubGit) RepoRoot(dir string) (string, error) { return dir, nil }

func (stubGit) ChangedFiles(_, _, _ string) ([]string, error) {
	return []string{"server.go"}, nil
}

func (stubGit) DiffStats(_, _, _ string) ([]git.FileStat, error) {
	return []git.FileStat{{Path: "server.go", Insertions: 40, Deletions: 5}}, nil
}

func (stubGit) FileDiff(_, _, _, _ string) (string, error) {
	return "diff --git a/server.go b/server.go\n+func main() {}\n", nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestServer wires a Server over a real sqlite store in a temp dir.
func newTestServer(t *testing.T) (*Server, *scriptedInvoker) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "ccr.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	inv := newScriptedInvoker()
	orch := orchestrator.New(orchestrator.Options{
		Store:    st,
		Curator:  curate.New(stubGit{}, t.TempDir(), 20000),
		Registry: agents.NewRegistry(),
		Invoker:  inv,
		Writer:   artifacts.Writer{BaseDir: t.TempDir()},
		Config: orchestrator.Config{
			LeadAgent:    "claude",
			MaxRounds:    3,
			MinReviewers: 2,
			Verbosity:    "detailed",
			TokenBudget:  20000,
			CallTimeout:  5 * time.Second,
			Retries:      1,
		},
	})

	srv := NewServer(orch)
	require.NotNil(t, srv)
	return srv, inv
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

type startOut struct {
	SessionID    string   `json:"session_id"`
	CurrentRound int      `json:"current_round"`
	MaxRounds    int      `json:"max_rounds"`
	LeadAgent    string   `json:"lead_agent"`
	TargetAgents []string `json:"target_agents"`
	Instruction  string   `json:"instruction"`
}

type submitOut struct {
	Status       string `json:"status"`
	Agent        string `json:"agent"`
	Round        int    `json:"round"`
	CurrentRound int    `json:"current_round"`
	PeerResults  []struct {
		Agent  string `json:"agent"`
		Status string `json:"status"`
	} `json:"peer_results"`
	FeedbackCount     int    `json:"feedback_count"`
	ImprovementPrompt string `json:"improvement_prompt"`
	Consensus         *struct {
		Reached  bool `json:"consensus_reached"`
		Positive int  `json:"positive_count"`
	} `json:"consensus"`
	Artifacts *struct {
		Dir         string `json:"dir"`
		SummaryFile string `json:"summary_file"`
	} `json:"artifacts"`
}

// startSession drives review_start and returns its parsed result.
func startSession(t *testing.T, srv *Server) startOut {
	t.Helper()
	result, err := srv.handleStartReview(context.Background(), callToolReq("review_start", map[string]any{
		"base":   "main",
		"agents": []any{"codex", "gemini"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out startOut
	resultJSON(t, result, &out)
	return out
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMCPServer_Builds(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.NotNil(t, srv.MCPServer())
}

func TestStartReviewTool(t *testing.T) {
	srv, _ := newTestServer(t)

	out := startSession(t, srv)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, 1, out.CurrentRound)
	assert.Equal(t, 3, out.MaxRounds)
	assert.Equal(t, "claude", out.LeadAgent)
	assert.Equal(t, []string{"codex", "gemini"}, out.TargetAgents)
	assert.Contains(t, out.Instruction, "# Code Changes for Review")
	assert.Contains(t, out.Instruction, out.SessionID)
}

func TestStartReviewTool_MissingBase(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleStartReview(context.Background(), callToolReq("review_start", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "missing required parameter: base")
}

func TestSubmitReviewTool_FullSessionFlow(t *testing.T) {
	srv, inv := newTestServer(t)
	out := startSession(t, srv)

	// Round 1: the lead report goes out, peers push back.
	inv.respond("codex", negativeCritique)
	inv.respond("gemini", negativeCritique)
	result, err := srv.handleSubmitReview(context.Background(), callToolReq("review_submit_review", map[string]any{
		"session_id": out.SessionID,
		"agent":      "claude",
		"review":     "# Review v1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var first submitOut
	resultJSON(t, result, &first)
	assert.Equal(t, "awaiting_improvement", first.Status)
	assert.Equal(t, 2, first.CurrentRound)
	require.Len(t, first.PeerResults, 2)
	assert.Contains(t, first.ImprovementPrompt, negativeCritique)

	// Round 2: peers come around.
	inv.respond("codex", positiveCritique)
	inv.respond("gemini", positiveCritique)
	result, err = srv.handleSubmitReview(context.Background(), callToolReq("review_submit_review", map[string]any{
		"session_id": out.SessionID,
		"agent":      "claude",
		"review":     "# Review v2",
	}))
	require.NoError(t, err)

	var second submitOut
	resultJSON(t, result, &second)
	assert.Equal(t, "awaiting_improvement", second.Status)
	require.NotNil(t, second.Consensus)
	assert.False(t, second.Consensus.Reached, "round-1 pushback keeps the session going")
	assert.Equal(t, 3, second.CurrentRound)

	// Round 3: the round-2 critiques were positive, so this submission
	// terminates the session.
	result, err = srv.handleSubmitReview(context.Background(), callToolReq("review_submit_review", map[string]any{
		"session_id": out.SessionID,
		"agent":      "claude",
		"review":     "# Review v3",
	}))
	require.NoError(t, err)

	var last submitOut
	resultJSON(t, result, &last)
	assert.Equal(t, "consensus_reached", last.Status)
	require.NotNil(t, last.Consensus)
	assert.True(t, last.Consensus.Reached)
	require.NotNil(t, last.Artifacts)

	data, err := os.ReadFile(last.Artifacts.SummaryFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Review v3")
}

func TestSubmitReviewTool_MissingParams(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleSubmitReview(context.Background(), callToolReq("review_submit_review", map[string]any{
		"session_id": "S01",
		"agent":      "claude",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "missing required parameter: review")
}

func TestSubmitReviewTool_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleSubmitReview(context.Background(), callToolReq("review_submit_review", map[string]any{
		"session_id": "missing",
		"agent":      "claude",
		"review":     "text",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "session not found")
}

func TestGetOtherReviewsTool(t *testing.T) {
	srv, _ := newTestServer(t)
	out := startSession(t, srv)

	_, err := srv.handleSubmitReview(context.Background(), callToolReq("review_submit_review", map[string]any{
		"session_id": out.SessionID,
		"agent":      "codex",
		"review":     "codex early note",
	}))
	require.NoError(t, err)

	result, err := srv.handleGetOtherReviews(context.Background(), callToolReq("review_get_other_reviews", map[string]any{
		"session_id": out.SessionID,
		"agent":      "claude",
	}))
	require.NoError(t, err)

	var parsed struct {
		Reviews []struct {
			Agent  string `json:"agent"`
			Review string `json:"review"`
		} `json:"reviews"`
		Count int `json:"count"`
	}
	resultJSON(t, result, &parsed)
	assert.Equal(t, 1, parsed.Count)
	assert.Equal(t, "codex", parsed.Reviews[0].Agent)
	assert.Equal(t, "codex early note", parsed.Reviews[0].Review)
}

func TestCheckConsensusTool(t *testing.T) {
	srv, _ := newTestServer(t)
	out := startSession(t, srv)

	result, err := srv.handleCheckConsensus(context.Background(), callToolReq("review_check_consensus", map[string]any{
		"session_id": out.SessionID,
	}))
	require.NoError(t, err)

	var check struct {
		Round            int  `json:"round"`
		Submitted        int  `json:"submitted"`
		AllSubmitted     bool `json:"all_submitted"`
		ConsensusReached bool `json:"consensus_reached"`
	}
	resultJSON(t, result, &check)
	assert.Equal(t, 1, check.Round)
	assert.Equal(t, 0, check.Submitted)
	assert.False(t, check.ConsensusReached)
}

func TestAdvanceRoundTool(t *testing.T) {
	srv, _ := newTestServer(t)
	out := startSession(t, srv)

	result, err := srv.handleAdvanceRound(context.Background(), callToolReq("review_advance_round", map[string]any{
		"session_id": out.SessionID,
	}))
	require.NoError(t, err)

	var status struct {
		Status       string `json:"status"`
		CurrentRound int    `json:"current_round"`
	}
	resultJSON(t, result, &status)
	assert.Equal(t, "advanced", status.Status)
	assert.Equal(t, 2, status.CurrentRound)
}

func TestFinalizeTool(t *testing.T) {
	srv, _ := newTestServer(t)
	out := startSession(t, srv)

	result, err := srv.handleFinalize(context.Background(), callToolReq("review_finalize", map[string]any{
		"session_id":   out.SessionID,
		"final_review": "# Final",
	}))
	require.NoError(t, err)

	var parsed struct {
		Status    string `json:"status"`
		Artifacts *struct {
			SummaryFile string `json:"summary_file"`
		} `json:"artifacts"`
	}
	resultJSON(t, result, &parsed)
	assert.Equal(t, "finalized", parsed.Status)
	require.NotNil(t, parsed.Artifacts)
	assert.FileExists(t, parsed.Artifacts.SummaryFile)
}

func TestProgressTools(t *testing.T) {
	srv, _ := newTestServer(t)
	out := startSession(t, srv)

	result, err := srv.handleReportProgress(context.Background(), callToolReq("review_report_progress", map[string]any{
		"session_id": out.SessionID,
		"agent":      "codex",
		"message":    "reading the diff",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var rec struct {
		Status string `json:"status"`
	}
	resultJSON(t, result, &rec)
	assert.Equal(t, "progress_recorded", rec.Status)

	result, err = srv.handleGetProgress(context.Background(), callToolReq("review_get_progress", map[string]any{
		"session_id": out.SessionID,
	}))
	require.NoError(t, err)

	var got struct {
		Updates []struct {
			Agent   string `json:"agent"`
			Message string `json:"message"`
		} `json:"updates"`
		Count int `json:"count"`
	}
	resultJSON(t, result, &got)
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "codex", got.Updates[0].Agent)
	assert.Equal(t, "reading the diff", got.Updates[0].Message)
}

func TestGetProgressTool_InvalidSince(t *testing.T) {
	srv, _ := newTestServer(t)
	out := startSession(t, srv)

	result, err := srv.handleGetProgress(context.Background(), callToolReq("review_get_progress", map[string]any{
		"session_id": out.SessionID,
		"since":      "yesterday-ish",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid since timestamp")
}

func TestSessionInfoTool(t *testing.T) {
	srv, _ := newTestServer(t)
	out := startSession(t, srv)

	result, err := srv.handleSessionInfo(context.Background(), callToolReq("review_session_info", map[string]any{
		"session_id": out.SessionID,
	}))
	require.NoError(t, err)

	var info struct {
		SessionID  string `json:"session_id"`
		BaseRef    string `json:"base_ref"`
		TargetRef  string `json:"target_ref"`
		ReviewType string `json:"review_type"`
		Status     string `json:"status"`
		MaxRounds  int    `json:"max_rounds"`
	}
	resultJSON(t, result, &info)
	assert.Equal(t, out.SessionID, info.SessionID)
	assert.Equal(t, "main", info.BaseRef)
	assert.Equal(t, "HEAD", info.TargetRef)
	assert.Equal(t, "run", info.ReviewType)
	assert.Equal(t, "active", info.Status)
	assert.Equal(t, 3, info.MaxRounds)
}

func TestConsensusReportTool(t *testing.T) {
	srv, inv := newTestServer(t)
	out := startSession(t, srv)

	leadReport := "# Review\n\n" +
		"### [CRITICAL] SQL injection in login handler\n" +
		"**Location**: `auth/login.go:42`\n" +
		"**Problem**: user input concatenated into the query.\n"
	agreeCritique := "## Issues I Agree With\n" +
		"- ✅ \"SQL injection in login handler\": confirmed\n"
	inv.respond("codex", agreeCritique)
	inv.respond("gemini", agreeCritique)

	_, err := srv.handleSubmitReview(context.Background(), callToolReq("review_submit_review", map[string]any{
		"session_id": out.SessionID,
		"agent":      "claude",
		"review":     leadReport,
	}))
	require.NoError(t, err)

	result, err := srv.handleConsensusReport(context.Background(), callToolReq("review_consensus_report", map[string]any{
		"session_id": out.SessionID,
	}))
	require.NoError(t, err)

	var report struct {
		TotalIssues   int      `json:"total_issues"`
		Participating []string `json:"participating_agents"`
		Critical      []struct {
			Title    string   `json:"title"`
			AgreedBy []string `json:"agreed_by"`
		} `json:"critical"`
		Document string `json:"document"`
	}
	resultJSON(t, result, &report)
	assert.Equal(t, 1, report.TotalIssues)
	assert.Len(t, report.Participating, 3)
	require.Len(t, report.Critical, 1)
	assert.Equal(t, "SQL injection in login handler", report.Critical[0].Title)
	assert.Contains(t, report.Document, "SQL injection in login handler")
}

func TestCurateChangesTool(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleCurateChanges(context.Background(), callToolReq("review_curate_changes", map[string]any{
		"base": "main",
	}))
	require.NoError(t, err)

	var parsed struct {
		BaseRef   string `json:"base_ref"`
		TargetRef string `json:"target_ref"`
		Selected  []struct {
			Path string `json:"path"`
		} `json:"selected"`
		Document string `json:"document"`
	}
	resultJSON(t, result, &parsed)
	assert.Equal(t, "main", parsed.BaseRef)
	assert.Equal(t, "HEAD", parsed.TargetRef)
	require.Len(t, parsed.Selected, 1)
	assert.Equal(t, "server.go", parsed.Selected[0].Path)
	assert.Contains(t, parsed.Document, "server.go")
}

func TestListAgentsTool(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleListAgents(context.Background(), callToolReq("review_list_agents", map[string]any{}))
	require.NoError(t, err)

	var statuses []struct {
		Name      string `json:"name"`
		Kind      string `json:"kind"`
		Available bool   `json:"available"`
		Lead      bool   `json:"lead"`
	}
	resultJSON(t, result, &statuses)
	require.NotEmpty(t, statuses)

	var foundLead bool
	for _, st := range statuses {
		if st.Name == "claude" {
			foundLead = true
			assert.True(t, st.Lead)
		}
	}
	assert.True(t, foundLead)
}

func TestAuditReviewTool(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleAuditReview(context.Background(), callToolReq("review_audit", map[string]any{
		"base":   "main",
		"review": "# Existing Review\nAll good.",
		"agents": []any{"codex", "gemini"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var parsed struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
		Feedback  []struct {
			Agent string `json:"agent"`
		} `json:"feedback"`
		Consensus *struct {
			Reached bool `json:"consensus_reached"`
		} `json:"consensus"`
		Artifacts *struct {
			ConsensusLog string `json:"consensus_log"`
		} `json:"artifacts"`
	}
	resultJSON(t, result, &parsed)
	assert.Equal(t, "consensus_reached", parsed.Status)
	require.Len(t, parsed.Feedback, 2)
	require.NotNil(t, parsed.Consensus)
	assert.True(t, parsed.Consensus.Reached)
	require.NotNil(t, parsed.Artifacts)
	assert.FileExists(t, parsed.Artifacts.ConsensusLog)
}
