package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleWords = 12
	maxTitleLen   = 80
	ellipsis      = "..."
)

var (
	markupRe = regexp.MustCompile(`<[@#!][^>]+>`)
	urlRe    = regexp.MustCompile(`https?://\S+`)
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "was": true, "are": true, "were": true,
	"i": true, "we": true, "you": true, "they": true, "it": true, "this": true, "that": true,
}

// stripMarkup removes chat mentions, channel links and URLs.
func stripMarkup(text string) string {
	text = markupRe.ReplaceAllString(text, "")
	return urlRe.ReplaceAllString(text, "")
}

// Title builds a short title from the first meaningful words of text. Stop
// words and words of two characters or fewer are dropped. When nothing is
// left the title falls back to "<Group> issue".
func Title(text, group string) string {
	var kept []string
	for _, w := range strings.Fields(stripMarkup(text)) {
		if utf8.RuneCountInString(w) <= 2 || stopWords[strings.ToLower(w)] {
			continue
		}
		kept = append(kept, w)
		if len(kept) == maxTitleWords {
			break
		}
	}

	title := strings.Join(kept, " ")
	if title == "" {
		if group == "" {
			group = "unclassified"
		}
		return strings.ToUpper(group[:1]) + group[1:] + " issue"
	}
	return truncate(title, maxTitleLen)
}

// Describe returns text with markup removed and whitespace collapsed.
func Describe(text string) string {
	return strings.Join(strings.Fields(markupRe.ReplaceAllString(text, "")), " ")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-len(ellipsis)])) + ellipsis
}
