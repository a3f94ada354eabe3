// Package settings reads and edits a user's digest preferences.
package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/store"
)

// Manager implements settings operations on top of a Store.
type Manager struct {
	store store.Store
}

// NewManager creates a settings manager.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Get returns the user's settings, or defaults for a new user.
func (m *Manager) Get(ctx context.Context, user string) (models.Settings, error) {
	p, err := m.store.View(ctx, user)
	if err != nil {
		return models.Settings{}, err
	}
	return p.Settings, nil
}

func (m *Manager) update(ctx context.Context, user string, fn func(*models.Settings)) (models.Settings, error) {
	var out models.Settings
	err := m.store.Update(ctx, user, func(p *models.Partition) error {
		fn(&p.Settings)
		out = p.Settings.Clone()
		return nil
	})
	if err != nil {
		return models.Settings{}, fmt.Errorf("update settings: %w", err)
	}
	return out, nil
}

// SetPrompt stores a custom analysis instruction. An empty prompt clears it.
func (m *Manager) SetPrompt(ctx context.Context, user, prompt string) (models.Settings, error) {
	prompt = strings.TrimSpace(prompt)
	return m.update(ctx, user, func(s *models.Settings) { s.Prompt = prompt })
}

// SetKeywords replaces the default keyword filter.
func (m *Manager) SetKeywords(ctx context.Context, user string, keywords []string) (models.Settings, error) {
	keywords = projects.NormalizeKeywords(keywords)
	return m.update(ctx, user, func(s *models.Settings) { s.Keywords = keywords })
}

// SetHours sets the default digest window, which must lie in [1,168].
func (m *Manager) SetHours(ctx context.Context, user string, hours int) (models.Settings, error) {
	if !models.ValidHours(hours) {
		return models.Settings{}, fmt.Errorf("hours must be between %d and %d, got %d: %w",
			models.MinHours, models.MaxHours, hours, models.ErrValidation)
	}
	return m.update(ctx, user, func(s *models.Settings) { s.DefaultHours = hours })
}

// Reset restores default settings. Projects and issues are untouched.
func (m *Manager) Reset(ctx context.Context, user string) (models.Settings, error) {
	return m.update(ctx, user, func(s *models.Settings) { *s = models.DefaultSettings() })
}
