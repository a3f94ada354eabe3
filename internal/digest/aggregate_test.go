package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/digest/internal/models"
)

func msgs(channel string, texts ...string) []models.Message {
	out := make([]models.Message, len(texts))
	for i, t := range texts {
		out[i] = models.Message{Text: t, Channel: channel, Author: "U1"}
	}
	return out
}

func TestAggregate_KeywordFilter(t *testing.T) {
	in := map[string][]models.Message{
		"hw": msgs("hw",
			"lunch at noon",
			"Firmware 2.1 flashed on rev B",
			"motor controller arrived",
			"new FIRMWARE build hangs on boot",
			"standup moved",
		),
	}

	p := Aggregate(in, []string{"firmware"})

	require.Len(t, p.Channels, 1)
	assert.Equal(t, 2, p.Channels[0].MatchedCount)
	assert.Equal(t, 5, p.Channels[0].TotalCount)
	require.Len(t, p.Combined, 2)
	assert.Equal(t, "Firmware 2.1 flashed on rev B", p.Combined[0].Text)
	assert.Equal(t, "new FIRMWARE build hangs on boot", p.Combined[1].Text)
}

func TestAggregate_EmptyKeywordsPassEverything(t *testing.T) {
	in := map[string][]models.Message{"general": msgs("general", "a", "b", "c")}

	for _, kw := range [][]string{nil, {}, {"  ", ""}} {
		p := Aggregate(in, kw)
		assert.Equal(t, 3, p.MatchedCount())
		assert.Empty(t, p.Keywords)
	}
}

func TestAggregate_AnyKeywordMatches(t *testing.T) {
	in := map[string][]models.Message{"eng": msgs("eng", "PCB rev C", "motor stall", "docs")}
	p := Aggregate(in, []string{"pcb", "Motor"})
	assert.Equal(t, 2, p.MatchedCount())
}

func TestAggregate_ChannelsSortedAndCombined(t *testing.T) {
	in := map[string][]models.Message{
		"zeta":  msgs("zeta", "z1 bug"),
		"alpha": msgs("alpha", "a1 bug", "a2"),
	}
	p := Aggregate(in, []string{"bug"})

	require.Len(t, p.Channels, 2)
	assert.Equal(t, "alpha", p.Channels[0].Channel)
	assert.Equal(t, "zeta", p.Channels[1].Channel)
	assert.Equal(t, 3, p.TotalCount())
	require.Len(t, p.Combined, 2)
	assert.Equal(t, "a1 bug", p.Combined[0].Text)
	assert.Equal(t, "z1 bug", p.Combined[1].Text)
}

func TestAggregate_EmptyChannel(t *testing.T) {
	p := Aggregate(map[string][]models.Message{"quiet": nil}, []string{"x"})
	require.Len(t, p.Channels, 1)
	assert.Zero(t, p.Channels[0].TotalCount)
	assert.NotNil(t, p.Channels[0].Excerpts)
	assert.NotNil(t, p.Combined)
}

func TestPayloadLines(t *testing.T) {
	p := &Payload{Combined: []models.Message{{Author: "ana", Text: "hi"}}}
	assert.Equal(t, []string{"[ana] hi"}, p.Lines())
}
