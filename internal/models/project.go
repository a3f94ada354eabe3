package models

import (
	"slices"
	"time"
)

// Project is a named group of channels with an optional keyword filter.
// Name is unique within a user's partition and never changes.
type Project struct {
	Name      string    `json:"name"`
	Channels  []string  `json:"channels"`
	Keywords  []string  `json:"keywords"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	c := *p
	c.Channels = slices.Clone(p.Channels)
	c.Keywords = slices.Clone(p.Keywords)
	return &c
}
