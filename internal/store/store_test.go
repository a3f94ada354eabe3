package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/digest/internal/models"
)

// backends returns a constructor per Store implementation so contract tests
// run against each of them.
func backends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"json": func(t *testing.T) Store {
			s, err := NewJSONStore(filepath.Join(t.TempDir(), "state.json"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			return newTestSQLiteStore(t)
		},
	}
}

// seedPartition writes one project, one issue with a two-entry history and
// custom settings for user, and returns what was written.
func seedPartition(t *testing.T, s Store, user string) *models.Partition {
	t.Helper()
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	updated := created.Add(90 * time.Minute)

	err := s.Update(context.Background(), user, func(p *models.Partition) error {
		p.Settings = models.Settings{Prompt: "focus on hardware", Keywords: []string{"pcb"}, DefaultHours: 48}
		p.Projects["rover"] = &models.Project{
			Name:      "rover",
			Channels:  []string{"hardware", "firmware"},
			Keywords:  []string{"motor"},
			CreatedAt: created,
			Active:    true,
		}
		p.Issues["01ISSUE"] = &models.Issue{
			ID:           "01ISSUE",
			Title:        "Thermal runaway on PCB rev B",
			Description:  "Thermal runaway on PCB rev B",
			OriginalText: "Thermal runaway on PCB rev B",
			Channel:      "hardware",
			Reporter:     "U2",
			Timestamp:    created,
			Status:       models.IssueStatusInvestigating,
			Priority:     models.IssuePriorityHigh,
			Tags:         []string{"hardware"},
			StatusHistory: []models.StatusChange{
				{Status: models.IssueStatusOpen, Timestamp: created, Actor: "U2"},
				{Status: models.IssueStatusInvestigating, Timestamp: updated, Actor: user, PreviousStatus: models.IssueStatusOpen},
			},
			RelatedMessages: []models.RelatedMessage{},
			CreatedAt:       created,
			UpdatedAt:       updated,
		}
		return nil
	})
	require.NoError(t, err)

	p, err := s.View(context.Background(), user)
	require.NoError(t, err)
	return p
}

func assertPartitionsEqual(t *testing.T, want, got *models.Partition) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("partition mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ViewUnknownUser(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			p, err := s.View(context.Background(), "nobody")
			require.NoError(t, err)
			assert.Empty(t, p.Projects)
			assert.Empty(t, p.Issues)
			assert.Equal(t, models.DefaultSettings(), p.Settings)
		})
	}
}

func TestStore_EmptyUserRejected(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			_, err := s.View(context.Background(), "")
			assert.ErrorIs(t, err, models.ErrValidation)

			err = s.Update(context.Background(), "", func(*models.Partition) error { return nil })
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestStore_ViewReturnsCopy(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			seedPartition(t, s, "U1")

			p, err := s.View(context.Background(), "U1")
			require.NoError(t, err)
			p.Issues["01ISSUE"].Status = models.IssueStatusClosed
			delete(p.Projects, "rover")

			again, err := s.View(context.Background(), "U1")
			require.NoError(t, err)
			assert.Equal(t, models.IssueStatusInvestigating, again.Issues["01ISSUE"].Status)
			assert.Contains(t, again.Projects, "rover")
		})
	}
}

func TestStore_UpdateErrorLeavesStateUnchanged(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			want := seedPartition(t, s, "U1")

			boom := errors.New("boom")
			err := s.Update(context.Background(), "U1", func(p *models.Partition) error {
				delete(p.Issues, "01ISSUE")
				p.Settings.DefaultHours = 1
				return boom
			})
			assert.ErrorIs(t, err, boom)

			got, err := s.View(context.Background(), "U1")
			require.NoError(t, err)
			assertPartitionsEqual(t, want, got)
		})
	}
}

func TestStore_PartitionsAreIsolated(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			seedPartition(t, s, "U1")

			other, err := s.View(context.Background(), "U2")
			require.NoError(t, err)
			assert.Empty(t, other.Projects)
			assert.Empty(t, other.Issues)

			users, err := s.Users(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"U1"}, users)
		})
	}
}

func TestStore_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	const perUser = 25
	users := []string{"U1", "U2", "U3"}

	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			var wg sync.WaitGroup
			for _, user := range users {
				for i := range perUser {
					wg.Add(1)
					go func() {
						defer wg.Done()
						id := fmt.Sprintf("%s-%02d", user, i)
						err := s.Update(ctx, user, func(p *models.Partition) error {
							p.Issues[id] = &models.Issue{ID: id, Status: models.IssueStatusOpen}
							return nil
						})
						assert.NoError(t, err)
					}()
				}
			}
			wg.Wait()

			for _, user := range users {
				p, err := s.View(ctx, user)
				require.NoError(t, err)
				assert.Len(t, p.Issues, perUser, user)
			}
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "redis", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, models.ErrValidation)
}
