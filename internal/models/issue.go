package models

// Severity is the reviewer-assigned severity tag on an extracted issue.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
)

// Issue is a single finding extracted from a review, tracked with the
// set of agents that agree and disagree with it. An agent may appear in
// both sets when its critique is self-contradictory; both memberships
// are preserved.
type Issue struct {
	Title       string
	Location    string
	Severity    Severity
	Description string
	FoundBy     string
	AgreedBy    []string
	DisagreedBy []string
}

// Agrees returns true if the agent is already in the agreement set.
func (i *Issue) Agrees(agent string) bool {
	return containsAgent(i.AgreedBy, agent)
}

// Disagrees returns true if the agent is already in the disagreement set.
func (i *Issue) Disagrees(agent string) bool {
	return containsAgent(i.DisagreedBy, agent)
}

// AddAgreement adds the agent to the agreement set (set semantics).
func (i *Issue) AddAgreement(agent string) {
	if !i.Agrees(agent) {
		i.AgreedBy = append(i.AgreedBy, agent)
	}
}

// AddDisagreement adds the agent to the disagreement set (set semantics).
func (i *Issue) AddDisagreement(agent string) {
	if !i.Disagrees(agent) {
		i.DisagreedBy = append(i.DisagreedBy, agent)
	}
}

func containsAgent(list []string, agent string) bool {
	for _, a := range list {
		if a == agent {
			return true
		}
	}
	return false
}
