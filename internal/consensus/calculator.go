// Package consensus merges per-agent review findings into agreement
// tiers and scores per-round peer feedback. Everything here is pure
// string processing; no agent is ever invoked from this package.
package consensus

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hansonkim/consensus-code-review/internal/models"
)

var (
	issueHeaderRe      = regexp.MustCompile(`(?m)^###\s*\[([A-Z]+)\]\s*(.+)$`)
	locationBacktickRe = regexp.MustCompile("\\*\\*Location\\*\\*:\\s*`([^`]+)`")
	locationPlainRe    = regexp.MustCompile(`Location:\s*([^\n]+)`)
	descFieldRe        = regexp.MustCompile(`\*\*(Problem|Description)\*\*:`)
	fileLineRe         = regexp.MustCompile(`(?i)([^/\\]+\.[a-z]+):?(\d+)?`)
	nearbyRe           = regexp.MustCompile(`^([^:]+):(\d+)$`)
	quotedRefRe        = regexp.MustCompile(`["']([^"']+)["']`)
)

// titleStopWords are dropped before computing title similarity.
var titleStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "with": true,
}

// nearbyLineDistance is the max line gap for two findings in the same
// file to count as the same issue.
const nearbyLineDistance = 5

// ExtractIssues parses a review into issues. Blocks look like:
//
//	### [CRITICAL] SQL injection in login handler
//	**Location**: `auth/login.go:42`
//	**Problem**: user input is concatenated into the query
//
// Blocks missing a location fall back to a bare "Location:" line, then
// to "unknown". Malformed blocks are skipped rather than failing the
// whole review.
func ExtractIssues(text, agent string) []models.Issue {
	headers := issueHeaderRe.FindAllStringSubmatchIndex(text, -1)

	var issues []models.Issue
	for i, h := range headers {
		severity := text[h[2]:h[3]]
		title := strings.TrimSpace(text[h[4]:h[5]])
		if title == "" {
			continue
		}

		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		block := text[h[1]:end]

		issues = append(issues, models.Issue{
			Title:       title,
			Location:    extractLocation(block),
			Severity:    models.Severity(severity),
			Description: extractDescription(block),
			FoundBy:     agent,
			AgreedBy:    []string{agent},
		})
	}
	return issues
}

func extractLocation(block string) string {
	if m := locationBacktickRe.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := locationPlainRe.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	return "unknown"
}

func extractDescription(block string) string {
	loc := descFieldRe.FindStringIndex(block)
	if loc == nil {
		return ""
	}
	desc := block[loc[1]:]
	for _, stop := range []string{"\n**", "\n###"} {
		if i := strings.Index(desc, stop); i >= 0 {
			desc = desc[:i]
		}
	}
	return strings.TrimSpace(desc)
}

// normalizeLocation reduces a location string to "file.ext:line" (or
// just "file.ext") so paths written differently by different agents
// still compare equal.
func normalizeLocation(location string) string {
	location = strings.TrimSpace(strings.ReplaceAll(location, "`", ""))
	m := fileLineRe.FindStringSubmatch(location)
	if m == nil {
		return location
	}
	if m[2] != "" {
		return m[1] + ":" + m[2]
	}
	return m[1]
}

// sameIssue reports whether two findings refer to the same underlying
// problem: identical normalized location, same file within a few lines,
// or strongly overlapping titles.
func sameIssue(a, b *models.Issue) bool {
	locA := normalizeLocation(a.Location)
	locB := normalizeLocation(b.Location)

	if locA == locB && locA != "unknown" && locA != "" {
		return true
	}
	if nearbyLocations(locA, locB) {
		return true
	}
	return titleSimilarity(a.Title, b.Title) > 0.5
}

func nearbyLocations(locA, locB string) bool {
	ma := nearbyRe.FindStringSubmatch(locA)
	mb := nearbyRe.FindStringSubmatch(locB)
	if ma == nil || mb == nil || ma[1] != mb[1] {
		return false
	}
	lineA, _ := strconv.Atoi(ma[2])
	lineB, _ := strconv.Atoi(mb[2])
	diff := lineA - lineB
	if diff < 0 {
		diff = -diff
	}
	return diff <= nearbyLineDistance
}

func titleWords(title string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if !titleStopWords[w] {
			words[w] = true
		}
	}
	return words
}

// titleSimilarity is the Jaccard index over title words minus stop words.
func titleSimilarity(a, b string) float64 {
	wa, wb := titleWords(a), titleWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

// Calculator accumulates issues across agents and resolves agreement
// tiers. Not safe for concurrent use; callers hold the session lock.
type Calculator struct {
	issues []*models.Issue
	agents []string
}

// NewCalculator returns an empty Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Participating returns every agent that contributed a review or
// critique, in first-seen order.
func (c *Calculator) Participating() []string {
	return c.agents
}

// Issues returns the current registry contents.
func (c *Calculator) Issues() []models.Issue {
	out := make([]models.Issue, 0, len(c.issues))
	for _, iss := range c.issues {
		out = append(out, *iss)
	}
	return out
}

// AddReview extracts issues from a review and merges them into the
// registry. A finding matching an existing issue adds its agent to that
// issue's agreement set instead of creating a duplicate. Returns the
// number of findings processed.
func (c *Calculator) AddReview(text, agent string) int {
	c.noteAgent(agent)
	found := ExtractIssues(text, agent)
	for i := range found {
		c.register(found[i])
	}
	return len(found)
}

func (c *Calculator) register(issue models.Issue) {
	for _, existing := range c.issues {
		if sameIssue(existing, &issue) {
			existing.AddAgreement(issue.FoundBy)
			return
		}
	}
	copied := issue
	c.issues = append(c.issues, &copied)
}

func (c *Calculator) noteAgent(agent string) {
	for _, a := range c.agents {
		if a == agent {
			return
		}
	}
	c.agents = append(c.agents, agent)
}

// ApplyCritique parses a critique and records the agent's agreements and
// disagreements against registered issues. Critiques reference issues by
// quoting part of the title or location:
//
//	## Issues I Agree With
//	- "SQL injection" is real: user input reaches the query builder
//
//	## Issues I Disagree With
//	- "missing null check": the value is validated upstream
//
// The same agent may land in both sets of one issue if its critique
// contradicts itself; both votes are kept.
func (c *Calculator) ApplyCritique(text, agent string) (agrees, disagrees int) {
	c.noteAgent(agent)

	for _, ref := range critiqueRefs(text, "## Issues I Agree With", "✅", "agree") {
		for _, iss := range c.issues {
			if refersTo(iss, ref) {
				iss.AddAgreement(agent)
				agrees++
			}
		}
	}
	for _, ref := range critiqueRefs(text, "## Issues I Disagree With", "❌", "disagree") {
		for _, iss := range c.issues {
			if refersTo(iss, ref) {
				iss.AddDisagreement(agent)
				disagrees++
			}
		}
	}
	return agrees, disagrees
}

// critiqueRefs collects quoted references from the lines of a critique
// section that carry the expected marker.
func critiqueRefs(text, header, marker, keyword string) []string {
	idx := strings.Index(text, header)
	if idx < 0 {
		return nil
	}
	section := text[idx+len(header):]
	if next := strings.Index(section, "##"); next >= 0 {
		section = section[:next]
	}

	var refs []string
	for _, line := range strings.Split(section, "\n") {
		if !strings.Contains(line, marker) && !strings.Contains(strings.ToLower(line), keyword) {
			continue
		}
		for _, m := range quotedRefRe.FindAllStringSubmatch(line, -1) {
			if ref := strings.TrimSpace(m[1]); ref != "" {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

func refersTo(issue *models.Issue, ref string) bool {
	if strings.Contains(strings.ToLower(issue.Title), strings.ToLower(ref)) {
		return true
	}
	return strings.Contains(issue.Location, ref)
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 0
	case models.SeverityMajor:
		return 1
	case models.SeverityMinor:
		return 2
	default:
		return 3
	}
}

// Classify buckets registered issues by agreement fraction across
// totalAgents. Disputed issues (any disagreement) always appear in the
// Disputed tier and additionally in the severity tier their agreement
// fraction earns, except that a dispute bars the critical tier. Issues
// below one-third agreement appear in no severity tier.
func (c *Calculator) Classify(totalAgents int) *models.ConsensusReport {
	if totalAgents < 1 {
		totalAgents = 1
	}

	report := &models.ConsensusReport{
		TotalIssues:   len(c.issues),
		Participating: append([]string(nil), c.agents...),
	}

	for _, iss := range c.issues {
		disputed := len(iss.DisagreedBy) > 0
		if disputed {
			report.Disputed = append(report.Disputed, *iss)
		}

		fraction := float64(len(iss.AgreedBy)) / float64(totalAgents)
		switch {
		case fraction == 1.0 && !disputed:
			report.Critical = append(report.Critical, *iss)
		case fraction >= 0.66:
			report.Major = append(report.Major, *iss)
		case fraction >= 0.33:
			report.Minor = append(report.Minor, *iss)
		}
	}

	for _, tier := range [][]models.Issue{report.Critical, report.Major, report.Minor, report.Disputed} {
		sortTier(tier)
	}
	return report
}

// sortTier orders issues by severity rank, then by agreement count
// descending. Stable so repeated runs produce identical reports.
func sortTier(tier []models.Issue) {
	sort.SliceStable(tier, func(i, j int) bool {
		ri, rj := severityRank(tier[i].Severity), severityRank(tier[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return len(tier[i].AgreedBy) > len(tier[j].AgreedBy)
	})
}
