// Package classify detects technical issues in free text using a keyword catalog.
package classify

import (
	"regexp"
	"slices"
	"strings"

	"github.com/joescharf/digest/internal/models"
)

// Classification is the result of a successful classification.
type Classification struct {
	Title       string
	Description string
	Priority    models.IssuePriority
	// Groups are the matched catalog groups in catalog order.
	Groups []string
	// Tags are the matched groups plus the source channel, sorted.
	Tags []string
}

type compiledGroup struct {
	name     string
	patterns []*regexp.Regexp
}

type compiledTier struct {
	priority models.IssuePriority
	patterns []*regexp.Regexp
}

// Classifier matches text against a compiled Catalog. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	groups   []compiledGroup
	tiers    []compiledTier
	fallback models.IssuePriority
}

// New compiles the catalog into a Classifier.
func New(c Catalog) *Classifier {
	cl := &Classifier{fallback: c.Fallback}
	if cl.fallback == "" {
		cl.fallback = models.IssuePriorityMedium
	}
	for _, g := range c.Groups {
		cl.groups = append(cl.groups, compiledGroup{name: g.Name, patterns: compilePhrases(g.Phrases)})
	}
	for _, t := range c.Tiers {
		cl.tiers = append(cl.tiers, compiledTier{priority: t.Priority, patterns: compilePhrases(t.Phrases)})
	}
	return cl
}

// Default returns a Classifier built from DefaultCatalog.
func Default() *Classifier {
	return New(DefaultCatalog())
}

// compilePhrases turns each phrase into a case-insensitive, word-bounded
// pattern. Inner whitespace matches any run of whitespace.
func compilePhrases(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(strings.ToLower(p))
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		out = append(out, regexp.MustCompile(`(?i)\b`+strings.Join(words, `\s+`)+`\b`))
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Classify reports whether text describes an issue and, if so, derives its
// title, description, priority and tags. A miss returns false and is not an error.
func (c *Classifier) Classify(text, channel string) (Classification, bool) {
	normalized := normalizeQuotes(text)

	var groups []string
	for _, g := range c.groups {
		if anyMatch(g.patterns, normalized) {
			groups = append(groups, g.name)
		}
	}
	if len(groups) == 0 {
		return Classification{}, false
	}

	tags := slices.Clone(groups)
	if channel != "" && !slices.Contains(tags, channel) {
		tags = append(tags, channel)
	}
	slices.Sort(tags)

	return Classification{
		Title:       Title(text, groups[0]),
		Description: Describe(text),
		Priority:    c.Priority(normalized),
		Groups:      groups,
		Tags:        tags,
	}, true
}

// Priority returns the first tier whose phrases match, or the fallback.
func (c *Classifier) Priority(text string) models.IssuePriority {
	text = normalizeQuotes(text)
	for _, t := range c.tiers {
		if anyMatch(t.patterns, text) {
			return t.priority
		}
	}
	return c.fallback
}

// Detect returns the names of every group that matches text.
func (c *Classifier) Detect(text string) []string {
	text = normalizeQuotes(text)
	var groups []string
	for _, g := range c.groups {
		if anyMatch(g.patterns, text) {
			groups = append(groups, g.name)
		}
	}
	return groups
}

var quoteReplacer = strings.NewReplacer("’", "'", "‘", "'")

func normalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}
