// Package mcp exposes the review engine as MCP tools over stdio. Every
// tool returns JSON text content; domain failures are reported as tool
// errors, not protocol errors, so agent callers can read them.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hansonkim/consensus-code-review/internal/models"
	"github.com/hansonkim/consensus-code-review/internal/orchestrator"
)

// Server wraps the orchestrator and exposes it as MCP tools.
type Server struct {
	orch *orchestrator.Orchestrator
}

// NewServer creates the MCP server wrapper.
func NewServer(orch *orchestrator.Orchestrator) *Server {
	return &Server{orch: orch}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("ccr", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.startReviewTool())
	srv.AddTool(s.auditReviewTool())
	srv.AddTool(s.submitReviewTool())
	srv.AddTool(s.getOtherReviewsTool())
	srv.AddTool(s.checkConsensusTool())
	srv.AddTool(s.advanceRoundTool())
	srv.AddTool(s.finalizeTool())
	srv.AddTool(s.reportProgressTool())
	srv.AddTool(s.getProgressTool())
	srv.AddTool(s.sessionInfoTool())
	srv.AddTool(s.consensusReportTool())
	srv.AddTool(s.curateChangesTool())
	srv.AddTool(s.listAgentsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// marshalResult renders a tool result as JSON text content.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// review_start
func (s *Server) startReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_start",
		mcp.WithDescription("Start a multi-agent review session over a git change range. Curates the changes into a token-budgeted document, picks the peer panel, and returns the lead agent's round-1 instruction. The lead submits its report with review_submit_review; peer critiques and round advancement happen automatically from there."),
		mcp.WithString("base", mcp.Required(), mcp.Description("Base git ref the changes are compared against, e.g. main")),
		mcp.WithString("target", mcp.Description("Target git ref under review (default HEAD)")),
		mcp.WithNumber("max_rounds", mcp.Description("Round ceiling for this session (default from config)")),
		mcp.WithArray("agents", mcp.Description("Peer agent names; defaults to every available agent except the lead"),
			mcp.Items(map[string]any{"type": "string"})),
	)
	return tool, s.handleStartReview
}

func (s *Server) handleStartReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	base, err := request.RequireString("base")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: base"), nil
	}

	res, err := s.orch.StartReview(ctx, orchestrator.StartRequest{
		Base:         base,
		Target:       request.GetString("target", ""),
		MaxRounds:    request.GetInt("max_rounds", 0),
		TargetAgents: request.GetStringSlice("agents", nil),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start review: %v", err)), nil
	}
	return marshalResult(res)
}

// review_audit
func (s *Server) auditReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_audit",
		mcp.WithDescription("Audit an existing review in one shot: every peer critiques the supplied review once, the critiques are scored, and the session terminates immediately with its artifact bundle."),
		mcp.WithString("base", mcp.Required(), mcp.Description("Base git ref the changes are compared against")),
		mcp.WithString("review", mcp.Required(), mcp.Description("The existing review text to audit")),
		mcp.WithString("target", mcp.Description("Target git ref under review (default HEAD)")),
		mcp.WithArray("agents", mcp.Description("Peer agent names; defaults to every available agent except the lead"),
			mcp.Items(map[string]any{"type": "string"})),
	)
	return tool, s.handleAuditReview
}

func (s *Server) handleAuditReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	base, err := request.RequireString("base")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: base"), nil
	}
	review, err := request.RequireString("review")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review"), nil
	}

	res, err := s.orch.AuditReview(ctx, orchestrator.AuditRequest{
		Base:         base,
		Target:       request.GetString("target", ""),
		Review:       review,
		TargetAgents: request.GetStringSlice("agents", nil),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to audit review: %v", err)), nil
	}
	return marshalResult(res)
}

// review_submit_review
func (s *Server) submitReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_submit_review",
		mcp.WithDescription("Submit a review for the current round. A lead submission drives the session forward: the first one triggers the peer critiques, later ones are scored against the previous round's critiques and either terminate the session or start another round. The result carries the improvement prompt for the next revision when one is expected."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Review session ID")),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Submitting agent name")),
		mcp.WithString("review", mcp.Required(), mcp.Description("Full review text in markdown")),
	)
	return tool, s.handleSubmitReview
}

func (s *Server) handleSubmitReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	agent, err := request.RequireString("agent")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: agent"), nil
	}
	review, err := request.RequireString("review")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review"), nil
	}

	res, err := s.orch.SubmitReview(ctx, sessionID, agent, review)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to submit review: %v", err)), nil
	}
	return marshalResult(res)
}

// review_get_other_reviews
func (s *Server) getOtherReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_get_other_reviews",
		mcp.WithDescription("Get every other agent's submission for the current round, sized to the configured verbosity."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Review session ID")),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Requesting agent name, excluded from the result")),
	)
	return tool, s.handleGetOtherReviews
}

func (s *Server) handleGetOtherReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	agent, err := request.RequireString("agent")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: agent"), nil
	}

	feedback, err := s.orch.GetOtherReviews(ctx, sessionID, agent)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get reviews: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"reviews": feedback,
		"count":   len(feedback),
	})
}

// review_check_consensus
func (s *Server) checkConsensusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_check_consensus",
		mcp.WithDescription("Check how far the current round has progressed: who has submitted and whether the session already reached consensus. Read-only."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Review session ID")),
	)
	return tool, s.handleCheckConsensus
}

func (s *Server) handleCheckConsensus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	check, err := s.orch.CheckConsensus(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to check consensus: %v", err)), nil
	}
	return marshalResult(check)
}

// review_advance_round
func (s *Server) advanceRoundTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_advance_round",
		mcp.WithDescription("Manually advance the session to the next round. Refuses to pass the round ceiling. Normally unnecessary: lead submissions advance rounds automatically."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Review session ID")),
	)
	return tool, s.handleAdvanceRound
}

func (s *Server) handleAdvanceRound(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	status, err := s.orch.AdvanceRound(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to advance round: %v", err)), nil
	}
	return marshalResult(status)
}

// review_finalize
func (s *Server) finalizeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_finalize",
		mcp.WithDescription("Force-terminate a session with the given review as final, marking it agreed regardless of the round signals, and write the artifact bundle."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Review session ID")),
		mcp.WithString("final_review", mcp.Required(), mcp.Description("The final consolidated review text")),
	)
	return tool, s.handleFinalize
}

func (s *Server) handleFinalize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	finalReview, err := request.RequireString("final_review")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: final_review"), nil
	}

	res, err := s.orch.Finalize(ctx, sessionID, finalReview)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to finalize: %v", err)), nil
	}
	return marshalResult(res)
}

// review_report_progress
func (s *Server) reportProgressTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_report_progress",
		mcp.WithDescription("Report a live progress message while working on a review, so other agents and observers can follow along."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Review session ID")),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Reporting agent name")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Progress message")),
	)
	return tool, s.handleReportProgress
}

func (s *Server) handleReportProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	agent, err := request.RequireString("agent")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: agent"), nil
	}
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: message"), nil
	}

	if err := s.orch.ReportProgress(ctx, sessionID, agent, message); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to report progress: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"status":  "progress_recorded",
		"agent":   agent,
		"message": message,
	})
}

// review_get_progress
func (s *Server) getProgressTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_get_progress",
		mcp.WithDescription("Get progress updates for a session in chronological order, optionally only those after a given time."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Review session ID")),
		mcp.WithString("since", mcp.Description("RFC3339 timestamp; only updates after this are returned")),
	)
	return tool, s.handleGetProgress
}

func (s *Server) handleGetProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	var since time.Time
	if raw := request.GetString("since", ""); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since timestamp: %v", err)), nil
		}
	}

	updates, err := s.orch.GetProgress(ctx, sessionID, since)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get progress: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"session_id": sessionID,
		"updates":    updates,
		"count":      len(updates),
	})
}

// review_session_info
func (s *Server) sessionInfoTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_session_info",
		mcp.WithDescription("Get the full status of a review session: refs, round position, participants, failures, and per-round submission counts."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Review session ID")),
	)
	return tool, s.handleSessionInfo
}

func (s *Server) handleSessionInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	info, err := s.orch.SessionInfo(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get session info: %v", err)), nil
	}
	return marshalResult(info)
}

// review_consensus_report
func (s *Server) consensusReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_consensus_report",
		mcp.WithDescription("Build the cross-agent issue report for a session: issues extracted from the lead report, matched against every critique, and tiered by how much of the panel agrees."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Review session ID")),
	)
	return tool, s.handleConsensusReport
}

type issueOut struct {
	Title       string   `json:"title"`
	Location    string   `json:"location,omitempty"`
	Severity    string   `json:"severity"`
	Description string   `json:"description,omitempty"`
	FoundBy     string   `json:"found_by"`
	AgreedBy    []string `json:"agreed_by"`
	DisagreedBy []string `json:"disagreed_by,omitempty"`
}

func issuesOut(issues []models.Issue) []issueOut {
	out := make([]issueOut, len(issues))
	for i, iss := range issues {
		out[i] = issueOut{
			Title:       iss.Title,
			Location:    iss.Location,
			Severity:    string(iss.Severity),
			Description: iss.Description,
			FoundBy:     iss.FoundBy,
			AgreedBy:    iss.AgreedBy,
			DisagreedBy: iss.DisagreedBy,
		}
	}
	return out
}

func (s *Server) handleConsensusReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	report, err := s.orch.ConsensusReport(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build consensus report: %v", err)), nil
	}

	out := map[string]any{
		"total_issues":         report.TotalIssues,
		"participating_agents": report.Participating,
		"critical":             issuesOut(report.Critical),
		"major":                issuesOut(report.Major),
		"minor":                issuesOut(report.Minor),
		"disputed":             issuesOut(report.Disputed),
		"document":             report.Document,
	}
	return marshalResult(out)
}

// review_curate_changes
func (s *Server) curateChangesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_curate_changes",
		mcp.WithDescription("Curate a change range into a token-budgeted review document without starting a session. Returns the selection, what was skipped, and the formatted document."),
		mcp.WithString("base", mcp.Required(), mcp.Description("Base git ref the changes are compared against")),
		mcp.WithString("target", mcp.Description("Target git ref under review (default HEAD)")),
	)
	return tool, s.handleCurateChanges
}

type curatedFileOut struct {
	Path            string `json:"path"`
	Insertions      int    `json:"insertions"`
	Deletions       int    `json:"deletions"`
	Priority        int    `json:"priority"`
	Reason          string `json:"reason"`
	EstimatedTokens int    `json:"estimated_tokens,omitempty"`
}

func curatedFilesOut(changes []models.FileChange) []curatedFileOut {
	out := make([]curatedFileOut, len(changes))
	for i, fc := range changes {
		out[i] = curatedFileOut{
			Path:            fc.Path,
			Insertions:      fc.Insertions,
			Deletions:       fc.Deletions,
			Priority:        fc.Priority,
			Reason:          fc.Reason,
			EstimatedTokens: fc.EstimatedTokens,
		}
	}
	return out
}

func (s *Server) handleCurateChanges(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	base, err := request.RequireString("base")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: base"), nil
	}

	result, err := s.orch.CurateChanges(base, request.GetString("target", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to curate changes: %v", err)), nil
	}

	out := map[string]any{
		"base_ref":         result.BaseRef,
		"target_ref":       result.TargetRef,
		"total_files":      result.TotalFiles,
		"used_tokens":      result.UsedTokens,
		"budget":           result.Budget,
		"selected":         curatedFilesOut(result.Selected),
		"skipped":          curatedFilesOut(result.Skipped),
		"priority_dropped": result.PriorityDropped,
		"document":         result.Document,
	}
	return marshalResult(out)
}

// review_list_agents
func (s *Server) listAgentsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_list_agents",
		mcp.WithDescription("List every registered reviewer agent with its availability and which one leads."),
		mcp.WithBoolean("refresh", mcp.Description("Re-probe availability instead of using the cache")),
	)
	return tool, s.handleListAgents
}

func (s *Server) handleListAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	statuses := s.orch.ListAgents(request.GetBool("refresh", false))
	return marshalResult(statuses)
}
