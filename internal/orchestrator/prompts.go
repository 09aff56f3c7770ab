package orchestrator

import (
	"fmt"
	"strings"
)

// Prompt templates for the lead/peer exchange. The block and section
// formats are load-bearing: the consensus calculator parses issue
// headers, locations, and critique stances back out of agent output,
// so these instructions and the parsers must stay in sync.

// InitialReviewPrompt asks the lead agent for the round-1 report over
// the curated change document.
func InitialReviewPrompt(sessionID, document string) string {
	return fmt.Sprintf(`# Code Review - Round 1: Initial Report

You are the lead reviewer for session `+"`%s`"+`. Write the initial
review report. Peer reviewers will critique it over the next rounds,
and you will revise it until the panel agrees.

## Code Changes

All git work is already done. Review only the changes below; do not run
git commands or explore beyond them.

%s

## Report Format

Write markdown. Give every issue its own block:

### [CRITICAL] Short issue title
**Location**: `+"`path/to/file.go:42`"+`
**Problem**: What is wrong and why it matters.
**Solution**: Concrete fix, with code where useful.

Severity is [CRITICAL], [MAJOR], or [MINOR]. Be specific: exact files
and lines, evidence for every claim, actionable fixes. Cover security
first, then correctness, then performance and style.

End with an overall assessment: APPROVE, APPROVE WITH CHANGES, or
REJECT.

Report progress with review_report_progress as you work, then submit
the finished report with review_submit_review.
`, sessionID, document)
}

// CritiquePrompt asks one peer to critique the lead's report. The
// agree/disagree sections and quoted titles are what ApplyCritique
// matches stances with.
func CritiquePrompt(sessionID, agent, leadReview, document string) string {
	return fmt.Sprintf(`# Code Review - Peer Critique

You are %s, a peer reviewer for session `+"`%s`"+`. The lead
reviewer's report is below. Critique it against the actual changes.

## Lead Report

%s

## Code Changes

%s

## Critique Format

Respond in markdown with exactly these sections, quoting each issue
title so your stance can be matched to it:

## Issues I Agree With
- ✅ "Issue title": why the analysis holds

## Issues I Disagree With
- ❌ "Issue title": why it is wrong or overstated

## Missing Issues

New problems the report overlooked, each as its own block:

### [MAJOR] Short issue title
**Location**: `+"`path/to/file.go:10`"+`
**Problem**: What is wrong and why it matters.

Finish with your overall judgement of the report. Be direct; accuracy
matters more than politeness.
`, agent, sessionID, leadReview, document)
}

// ImprovementPrompt asks the lead to revise the report for the given
// round using the peer feedback collected in the previous one.
func ImprovementPrompt(sessionID string, round int, currentReport string, feedback []PeerFeedback) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `# Code Review - Round %d: Revise Your Report

You are the lead reviewer for session `+"`%s`"+`. Peer reviewers
critiqued your report. Weigh their feedback and submit a revision.

## Your Current Report

%s

## Peer Feedback
`, round, sessionID, currentReport)

	if len(feedback) == 0 {
		sb.WriteString("\nNo peer feedback was received this round.\n")
	}
	for _, fb := range feedback {
		fmt.Fprintf(&sb, "\n### Feedback from %s\n\n%s\n", fb.Agent, fb.Review)
	}

	sb.WriteString(`
## Revision Rules

For each piece of feedback decide: accept and fold it in, partially
accept, or reject with a stated reason. Do not accept blindly and do
not defend reflexively; the goal is the most accurate report, not
winning the argument.

Submit the complete revised report with review_submit_review. If
nothing warrants a change, resubmit unchanged and say why.
`)
	return sb.String()
}
