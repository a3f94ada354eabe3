package classify

import "github.com/joescharf/digest/internal/models"

// Group is a named family of phrases that mark a message as describing an issue.
type Group struct {
	Name    string
	Phrases []string
}

// Tier maps phrases to a priority. Tiers are evaluated in slice order and the
// first tier with a matching phrase wins.
type Tier struct {
	Priority models.IssuePriority
	Phrases  []string
}

// Catalog is the complete, declarative description of what the classifier
// looks for. Plural and inflected forms are listed explicitly.
type Catalog struct {
	Groups []Group
	Tiers  []Tier
	// Fallback is the priority used when no tier matches.
	Fallback models.IssuePriority
}

// DefaultCatalog returns the built-in issue vocabulary.
func DefaultCatalog() Catalog {
	return Catalog{
		Groups: []Group{
			{Name: "bug", Phrases: []string{"bug", "bugs", "buggy", "defect", "defects", "error", "errors", "broken"}},
			{Name: "failure", Phrases: []string{"failure", "failures", "failed", "failing", "fails", "crash", "crashes", "crashed", "crashing"}},
			{Name: "problem", Phrases: []string{"problem", "problems", "issue", "issues", "trouble", "wrong"}},
			{Name: "malfunction", Phrases: []string{"malfunction", "malfunctioning", "not working", "doesn't work", "does not work", "stopped working"}},
			{Name: "performance", Phrases: []string{"slow", "performance", "lag", "laggy", "timeout", "timeouts", "timed out", "bottleneck"}},
			{Name: "critical", Phrases: []string{"critical", "urgent", "emergency", "blocker", "show-stopper", "showstopper"}},
			{Name: "regression", Phrases: []string{"regression", "regressed", "broke", "used to work", "was working"}},
			{Name: "hardware", Phrases: []string{"hardware issue", "pcb", "component failure", "short circuit", "thermal", "overheating"}},
			{Name: "firmware", Phrases: []string{"firmware bug", "firmware issue", "software issue", "code problem", "logic error"}},
		},
		Tiers: []Tier{
			{Priority: models.IssuePriorityCritical, Phrases: []string{"critical", "urgent", "emergency", "blocker", "show-stopper", "showstopper", "outage", "production down", "p0"}},
			{Priority: models.IssuePriorityHigh, Phrases: []string{"high", "high priority", "important", "asap", "major", "severe", "p1"}},
			{Priority: models.IssuePriorityLow, Phrases: []string{"low", "low priority", "minor", "cosmetic", "trivial", "nice to have"}},
		},
		Fallback: models.IssuePriorityMedium,
	}
}
