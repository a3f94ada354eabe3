// Package projects manages named channel groups within a user's partition.
package projects

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/store"
)

// Manager implements project operations on top of a Store.
type Manager struct {
	store store.Store
	now   func() time.Time
}

// NewManager creates a project manager.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// NormalizeChannels trims whitespace and a leading '#', drops empties and
// removes duplicates while keeping first-seen order.
func NormalizeChannels(channels []string) []string {
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		ch = strings.TrimPrefix(strings.TrimSpace(ch), "#")
		if ch == "" || slices.Contains(out, ch) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// NormalizeKeywords trims whitespace, drops empties and removes duplicates.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || slices.Contains(out, kw) {
			continue
		}
		out = append(out, kw)
	}
	return out
}

func lookup(p *models.Partition, name string) (*models.Project, error) {
	proj, ok := p.Projects[name]
	if !ok {
		return nil, fmt.Errorf("project %q: %w", name, models.ErrNotFound)
	}
	return proj, nil
}

// Create adds an active project. Names are unique per user.
func (m *Manager) Create(ctx context.Context, user, name string, channels, keywords []string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name is required: %w", models.ErrValidation)
	}
	channels = NormalizeChannels(channels)
	if len(channels) == 0 {
		return nil, fmt.Errorf("project %q needs at least one channel: %w", name, models.ErrValidation)
	}

	proj := &models.Project{
		Name:      name,
		Channels:  channels,
		Keywords:  NormalizeKeywords(keywords),
		CreatedAt: m.now(),
		Active:    true,
	}

	err := m.store.Update(ctx, user, func(p *models.Partition) error {
		if _, exists := p.Projects[name]; exists {
			return fmt.Errorf("project %q: %w", name, models.ErrAlreadyExists)
		}
		p.Projects[name] = proj.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return proj, nil
}

// Get returns one project by name.
func (m *Manager) Get(ctx context.Context, user, name string) (*models.Project, error) {
	p, err := m.store.View(ctx, user)
	if err != nil {
		return nil, err
	}
	return lookup(p, name)
}

// List returns every project, active or not, sorted by name.
func (m *Manager) List(ctx context.Context, user string) ([]*models.Project, error) {
	p, err := m.store.View(ctx, user)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Project, 0, len(p.Projects))
	for _, name := range slices.Sorted(maps.Keys(p.Projects)) {
		out = append(out, p.Projects[name])
	}
	return out, nil
}

// modify applies fn to an existing project and returns the updated copy.
func (m *Manager) modify(ctx context.Context, user, name string, fn func(*models.Project) error) (*models.Project, error) {
	var updated *models.Project
	err := m.store.Update(ctx, user, func(p *models.Partition) error {
		proj, err := lookup(p, name)
		if err != nil {
			return err
		}
		if err := fn(proj); err != nil {
			return err
		}
		updated = proj.Clone()
		return nil
	})
	return updated, err
}

// Deactivate marks a project inactive. Deactivating an inactive project is a no-op.
func (m *Manager) Deactivate(ctx context.Context, user, name string) (*models.Project, error) {
	proj, err := m.modify(ctx, user, name, func(p *models.Project) error {
		p.Active = false
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deactivate project: %w", err)
	}
	return proj, nil
}

// Activate marks a project active again.
func (m *Manager) Activate(ctx context.Context, user, name string) (*models.Project, error) {
	proj, err := m.modify(ctx, user, name, func(p *models.Project) error {
		p.Active = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("activate project: %w", err)
	}
	return proj, nil
}

// SetChannels replaces a project's channel list. The list must stay non-empty.
func (m *Manager) SetChannels(ctx context.Context, user, name string, channels []string) (*models.Project, error) {
	channels = NormalizeChannels(channels)
	if len(channels) == 0 {
		return nil, fmt.Errorf("project %q needs at least one channel: %w", name, models.ErrValidation)
	}
	proj, err := m.modify(ctx, user, name, func(p *models.Project) error {
		p.Channels = channels
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update project channels: %w", err)
	}
	return proj, nil
}

// SetKeywords replaces a project's keyword filter. An empty list disables filtering.
func (m *Manager) SetKeywords(ctx context.Context, user, name string, keywords []string) (*models.Project, error) {
	keywords = NormalizeKeywords(keywords)
	proj, err := m.modify(ctx, user, name, func(p *models.Project) error {
		p.Keywords = keywords
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update project keywords: %w", err)
	}
	return proj, nil
}

// Delete removes a project record entirely.
func (m *Manager) Delete(ctx context.Context, user, name string) error {
	err := m.store.Update(ctx, user, func(p *models.Partition) error {
		if _, err := lookup(p, name); err != nil {
			return err
		}
		delete(p.Projects, name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}
