package models

import "slices"

const (
	// DefaultHours is the digest lookback window used when none is configured.
	DefaultHours = 24
	// MinHours and MaxHours bound every digest window.
	MinHours = 1
	MaxHours = 168
)

// Settings holds a user's digest preferences.
type Settings struct {
	Prompt       string   `json:"custom_prompt"`
	Keywords     []string `json:"keywords"`
	DefaultHours int      `json:"default_hours"`
}

// DefaultSettings returns the settings a new or reset user starts with.
func DefaultSettings() Settings {
	return Settings{
		Keywords:     []string{},
		DefaultHours: DefaultHours,
	}
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	s.Keywords = slices.Clone(s.Keywords)
	return s
}

// ValidHours reports whether h is an allowed digest window.
func ValidHours(h int) bool {
	return h >= MinHours && h <= MaxHours
}
