package classify

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/digest/internal/models"
)

func TestClassify_Priority(t *testing.T) {
	c := Default()

	tests := []struct {
		text     string
		expected models.IssuePriority
	}{
		// Single tier
		{"urgent: the motor controller is broken", models.IssuePriorityCritical},
		{"Blocker: build fails on main", models.IssuePriorityCritical},
		{"this is a show-stopper bug", models.IssuePriorityCritical},
		{"important: login error on staging", models.IssuePriorityHigh},
		{"need a fix asap, the exporter crashed", models.IssuePriorityHigh},
		{"minor error in the footer", models.IssuePriorityLow},
		{"cosmetic bug in the settings page", models.IssuePriorityLow},

		// Precedence: critical > high > low
		{"critical but minor looking bug", models.IssuePriorityCritical},
		{"urgent and important: firmware bug", models.IssuePriorityCritical},
		{"important yet cosmetic error", models.IssuePriorityHigh},
		{"low priority, but the sensor is broken", models.IssuePriorityLow},

		// Default
		{"the uploader fails on large files", models.IssuePriorityMedium},
		{"the highway sign has a bug", models.IssuePriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := c.Classify(tt.text, "")
			require.True(t, ok)
			assert.Equal(t, tt.expected, got.Priority)
		})
	}
}

func TestClassify_NoMatch(t *testing.T) {
	c := Default()

	tests := []string{
		"",
		"hello team, lunch at noon",
		"debugging session moved to 3pm",
		"the errorless run completed",
		"shipping the release candidate today",
	}

	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			got, ok := c.Classify(text, "general")
			assert.False(t, ok)
			assert.Empty(t, got.Tags)
		})
	}
}

func TestClassify_Groups(t *testing.T) {
	c := Default()

	tests := []struct {
		text     string
		expected []string
	}{
		{"Critical PCB thermal failure blocking ship date", []string{"failure", "critical", "hardware"}},
		{"The pump is not working since yesterday", []string{"malfunction"}},
		{"The pump is   not\tworking", []string{"malfunction"}},
		{"Export doesn’t work anymore", []string{"malfunction"}},
		{"Dashboard is slow and laggy", []string{"performance"}},
		{"Search used to work before the upgrade", []string{"regression"}},
		{"found a firmware bug in the bootloader", []string{"bug", "firmware"}},
		{"two issues with the exporter", []string{"problem"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := c.Classify(tt.text, "")
			require.True(t, ok)
			assert.Equal(t, tt.expected, got.Groups)
		})
	}
}

func TestClassify_ScenarioThermalFailure(t *testing.T) {
	text := "Critical PCB thermal failure blocking ship date"
	got, ok := Default().Classify(text, "hardware-team")
	require.True(t, ok)

	assert.Equal(t, models.IssuePriorityCritical, got.Priority)
	assert.Contains(t, got.Tags, "hardware")
	assert.Contains(t, got.Tags, "hardware-team")
	assert.NotEmpty(t, got.Title)
	assert.NotEmpty(t, got.Description)
}

func TestClassify_TagsSortedAndDeduplicated(t *testing.T) {
	got, ok := Default().Classify("firmware bug in the updater", "firmware")
	require.True(t, ok)
	assert.Equal(t, []string{"bug", "firmware"}, got.Tags)
}

func TestClassify_CustomCatalog(t *testing.T) {
	c := New(Catalog{
		Groups: []Group{{Name: "outage", Phrases: []string{"down", "unreachable"}}},
		Tiers:  []Tier{{Priority: models.IssuePriorityHigh, Phrases: []string{"prod"}}},
	})

	got, ok := c.Classify("prod api is down", "ops")
	require.True(t, ok)
	assert.Equal(t, []string{"outage"}, got.Groups)
	assert.Equal(t, models.IssuePriorityHigh, got.Priority)

	got, ok = c.Classify("staging api is unreachable", "ops")
	require.True(t, ok)
	assert.Equal(t, models.IssuePriorityMedium, got.Priority)

	_, ok = c.Classify("the build is broken", "ops")
	assert.False(t, ok)
}

func TestDetect(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"bug", "critical"}, c.Detect("urgent: broken build"))
	assert.Nil(t, c.Detect("all good here"))
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		group    string
		expected string
	}{
		{"drops stop words and short words", "The pump on line 2 is broken", "bug", "pump line broken"},
		{"strips markup and urls", "<@U123> the pump <#C1|general> is broken https://example.com/x", "bug", "pump broken"},
		{"fallback when nothing remains", "<@U123> it is", "bug", "Bug issue"},
		{"keeps twelve words", "one two three four five six seven eight nine ten eleven twelve thirteen", "bug", "one two three four five six seven eight nine ten eleven twelve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Title(tt.text, tt.group))
		})
	}
}

func TestTitle_Truncates(t *testing.T) {
	text := strings.Repeat("extraordinarily ", 12)
	title := Title(text, "bug")
	assert.LessOrEqual(t, utf8.RuneCountInString(title), maxTitleLen)
	assert.True(t, strings.HasSuffix(title, "..."))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "pump is broken see https://x.y", Describe("<@U1>  pump is\nbroken   see https://x.y"))
}
