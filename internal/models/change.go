package models

// FileChange describes one changed file in the reviewed range, annotated
// with the curation priority it was assigned.
type FileChange struct {
	Path       string
	Insertions int
	Deletions  int

	// Priority runs 1 (highest) to 5 (lowest); Reason explains the rule
	// that assigned it.
	Priority int
	Reason   string

	// Diff is populated only for files selected within the token budget.
	Diff            string
	EstimatedTokens int
}

// Total is the combined changed line count.
func (c FileChange) Total() int {
	return c.Insertions + c.Deletions
}

// CurationResult is the outcome of fitting a change range into a token
// budget.
type CurationResult struct {
	BaseRef   string
	TargetRef string

	Selected []FileChange
	Skipped  []FileChange

	// PriorityDropped lists tier-1 paths that did not fit the budget.
	// Callers must treat a non-empty list as a degraded review input.
	PriorityDropped []string

	TotalFiles int
	UsedTokens int
	Budget     int

	// Document is the formatted markdown handed to reviewer agents.
	Document string
}
