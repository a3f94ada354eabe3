// Package digest filters channel history by keyword and hands the result to
// a summarizer.
package digest

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/joescharf/digest/internal/models"
)

// ChannelDigest is the filtered view of one channel.
type ChannelDigest struct {
	Channel      string           `json:"channel"`
	MatchedCount int              `json:"matched_count"`
	TotalCount   int              `json:"total_count"`
	Excerpts     []models.Message `json:"excerpts"`
}

// Payload is the structured input for a summarizer.
type Payload struct {
	// Channels are sorted by channel name.
	Channels []ChannelDigest `json:"channels"`
	// Combined holds every excerpt, channel by channel, each in original order.
	Combined []models.Message `json:"combined_excerpts"`
	Keywords []string         `json:"keywords"`
}

// MatchedCount is the total number of excerpts across channels.
func (p *Payload) MatchedCount() int { return len(p.Combined) }

// TotalCount is the number of messages considered across channels.
func (p *Payload) TotalCount() int {
	n := 0
	for _, c := range p.Channels {
		n += c.TotalCount
	}
	return n
}

// Lines formats the combined excerpts as "[author] text".
func (p *Payload) Lines() []string {
	lines := make([]string, len(p.Combined))
	for i, m := range p.Combined {
		lines[i] = fmt.Sprintf("[%s] %s", m.Author, m.Text)
	}
	return lines
}

// Matches reports whether text contains any keyword, case-insensitively.
// An empty keyword set matches everything.
func Matches(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func lowerKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// Aggregate filters each channel's messages by keyword. It does not
// summarize.
func Aggregate(channelMessages map[string][]models.Message, keywords []string) *Payload {
	kw := lowerKeywords(keywords)
	p := &Payload{
		Channels: make([]ChannelDigest, 0, len(channelMessages)),
		Combined: []models.Message{},
		Keywords: kw,
	}

	for _, ch := range slices.Sorted(maps.Keys(channelMessages)) {
		msgs := channelMessages[ch]
		cd := ChannelDigest{Channel: ch, TotalCount: len(msgs), Excerpts: []models.Message{}}
		for _, m := range msgs {
			if Matches(m.Text, kw) {
				cd.Excerpts = append(cd.Excerpts, m)
			}
		}
		cd.MatchedCount = len(cd.Excerpts)
		p.Channels = append(p.Channels, cd)
		p.Combined = append(p.Combined, cd.Excerpts...)
	}
	return p
}
