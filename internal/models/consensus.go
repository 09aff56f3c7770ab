package models

// ConsensusReport buckets registered issues into agreement tiers.
// An issue with any disagreement always appears in Disputed and may
// additionally appear in one severity tier.
type ConsensusReport struct {
	Critical []Issue
	Major    []Issue
	Minor    []Issue
	Disputed []Issue

	TotalIssues   int
	Participating []string

	// Document is the formatted markdown report.
	Document string
}

// ConsensusSignal is the per-round keyword heuristic over peer feedback.
type ConsensusSignal struct {
	Reached    bool
	Positive   int
	Negative   int
	Total      int
	Confidence float64
}
