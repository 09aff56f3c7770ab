package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hansonkim/consensus-code-review/internal/models"
)

// Paths lists the files written for one session bundle.
type Paths struct {
	Dir            string `json:"dir"`
	SummaryFile    string `json:"summary_file"`
	FullTranscript string `json:"full_transcript"`
	RoundsDir      string `json:"rounds_dir"`
	ConsensusLog   string `json:"consensus_log"`
	StatisticsFile string `json:"statistics_file"`
}

type consensusLog struct {
	Result           string   `json:"result"`
	Confidence       float64  `json:"confidence"`
	ParticipatingAIs []string `json:"participating_ais"`
	FailedAIs        []string `json:"failed_ais"`
	RoundsCompleted  int      `json:"rounds_completed"`
}

type agentStats struct {
	Submissions     int     `json:"submissions"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type statistics struct {
	SessionID       string                `json:"session_id"`
	ReviewType      string                `json:"review_type"`
	RoundsCompleted int                   `json:"rounds_completed"`
	DurationSeconds float64               `json:"duration_seconds"`
	ProgressEntries int                   `json:"progress_entries"`
	Agents          map[string]agentStats `json:"agents"`
}

// Writer persists review bundles beneath a base directory. Each session
// gets its own directory named <target>-<sessionID>.
type Writer struct {
	BaseDir string
}

// BundleName returns the directory name for a session bundle. Ref
// separators are flattened so branch names never create nested paths.
func BundleName(sess *models.ReviewSession) string {
	target := strings.ReplaceAll(sess.TargetRef, "/", "-")
	if target == "" {
		target = "review"
	}
	return target + "-" + sess.ID
}

// Write renders the full bundle for a session: summary, transcript,
// consensus and statistics logs, the review type marker, and one file
// per (round, agent) submission. Partial writes leave whatever
// succeeded on disk; the caller decides whether that matters.
func (w Writer) Write(sess *models.ReviewSession) (Paths, error) {
	dir := filepath.Join(w.BaseDir, BundleName(sess))
	roundsDir := filepath.Join(dir, "rounds")
	if err := os.MkdirAll(roundsDir, 0755); err != nil {
		return Paths{}, fmt.Errorf("create artifact dir: %w", err)
	}

	p := Paths{
		Dir:            dir,
		SummaryFile:    filepath.Join(dir, "summary.md"),
		FullTranscript: filepath.Join(dir, "full-transcript.md"),
		RoundsDir:      roundsDir,
		ConsensusLog:   filepath.Join(dir, "consensus.json"),
		StatisticsFile: filepath.Join(dir, "statistics.json"),
	}

	if err := os.WriteFile(p.SummaryFile, []byte(summaryMarkdown(sess)), 0644); err != nil {
		return p, fmt.Errorf("write summary: %w", err)
	}
	if err := os.WriteFile(p.FullTranscript, []byte(transcriptMarkdown(sess)), 0644); err != nil {
		return p, fmt.Errorf("write transcript: %w", err)
	}
	if err := writeJSON(p.ConsensusLog, consensusFrom(sess)); err != nil {
		return p, err
	}
	if err := writeJSON(p.StatisticsFile, statisticsFrom(sess)); err != nil {
		return p, err
	}
	typeFile := filepath.Join(dir, "review-type.txt")
	if err := os.WriteFile(typeFile, []byte(string(sess.ReviewType)+"\n"), 0644); err != nil {
		return p, fmt.Errorf("write review type: %w", err)
	}

	for round := 1; round <= sess.CurrentRound; round++ {
		subs := sess.RoundSubmissions(round)
		for _, agent := range sortedAgents(subs) {
			name := fmt.Sprintf("round-%d-%s.md", round, agent)
			if err := os.WriteFile(filepath.Join(roundsDir, name), []byte(subs[agent].Content+"\n"), 0644); err != nil {
				return p, fmt.Errorf("write round file %s: %w", name, err)
			}
		}
	}

	return p, nil
}

func summaryMarkdown(sess *models.ReviewSession) string {
	var b strings.Builder
	b.WriteString("# Code Review Summary\n\n")
	fmt.Fprintf(&b, "**Session**: %s\n", sess.ID)
	fmt.Fprintf(&b, "**Branch**: %s...%s\n", sess.BaseRef, sess.TargetRef)
	fmt.Fprintf(&b, "**Type**: %s_code_review\n\n", sess.ReviewType)
	b.WriteString("## Final Review\n\n")
	if sess.FinalReview != "" {
		b.WriteString(sess.FinalReview)
	} else {
		b.WriteString("No final review yet")
	}
	b.WriteString("\n")
	return b.String()
}

// transcriptMarkdown renders every round in ascending order with agents
// alphabetical within a round, so transcripts diff cleanly across runs.
func transcriptMarkdown(sess *models.ReviewSession) string {
	var b strings.Builder
	b.WriteString("# Full Review Transcript\n\n")
	fmt.Fprintf(&b, "**Session**: %s\n", sess.ID)
	fmt.Fprintf(&b, "**Branch**: %s...%s\n\n", sess.BaseRef, sess.TargetRef)

	for round := 1; round <= sess.CurrentRound; round++ {
		fmt.Fprintf(&b, "## Round %d\n\n", round)
		subs := sess.RoundSubmissions(round)
		for _, agent := range sortedAgents(subs) {
			fmt.Fprintf(&b, "### %s\n\n", agent)
			b.WriteString(subs[agent].Content)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func consensusFrom(sess *models.ReviewSession) consensusLog {
	result := "NO_CONSENSUS"
	confidence := 0.0
	if sess.ConsensusReached {
		result = "APPROVED"
		confidence = 0.95
	}

	participants := append([]string{}, sess.Agents...)
	sort.Strings(participants)
	failed := append([]string{}, sess.FailedAgents...)
	sort.Strings(failed)

	return consensusLog{
		Result:           result,
		Confidence:       confidence,
		ParticipatingAIs: participants,
		FailedAIs:        failed,
		RoundsCompleted:  sess.CurrentRound,
	}
}

func statisticsFrom(sess *models.ReviewSession) statistics {
	agents := make(map[string]agentStats, len(sess.Submissions))
	for name, rounds := range sess.Submissions {
		var first, last time.Time
		for _, sub := range rounds {
			if first.IsZero() || sub.SubmittedAt.Before(first) {
				first = sub.SubmittedAt
			}
			if sub.SubmittedAt.After(last) {
				last = sub.SubmittedAt
			}
		}
		agents[name] = agentStats{
			Submissions:     len(rounds),
			DurationSeconds: last.Sub(first).Seconds(),
		}
	}

	return statistics{
		SessionID:       sess.ID,
		ReviewType:      string(sess.ReviewType),
		RoundsCompleted: sess.CurrentRound,
		DurationSeconds: sess.UpdatedAt.Sub(sess.CreatedAt).Seconds(),
		ProgressEntries: len(sess.Progress),
		Agents:          agents,
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func sortedAgents(subs map[string]models.Submission) []string {
	agents := make([]string, 0, len(subs))
	for a := range subs {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	return agents
}
