// Package tracker turns classified chat messages into tracked issues and
// manages their status lifecycle.
package tracker

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/joescharf/digest/internal/classify"
	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/store"
)

// RecentWindow is how far back Stats looks when counting recent activity.
const RecentWindow = 24 * time.Hour

// Tracker implements issue operations on top of a Store.
type Tracker struct {
	store      store.Store
	classifier *classify.Classifier
	validate   *validator.Validate
	ids        *idSource
	now        func() time.Time
}

// New creates a Tracker. A nil classifier uses the default catalog.
func New(s store.Store, c *classify.Classifier) *Tracker {
	if c == nil {
		c = classify.Default()
	}
	return &Tracker{
		store:      s,
		classifier: c,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		ids:        newIDSource(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Classifier returns the classifier used by Scan.
func (t *Tracker) Classifier() *classify.Classifier { return t.classifier }

// MessageError reports why one message in a batch could not be processed.
type MessageError struct {
	Index int
	Err   error
}

func (e MessageError) Error() string {
	return fmt.Sprintf("message %d: %v", e.Index, e.Err)
}

func (e MessageError) Unwrap() error { return e.Err }

// ScanResult is the outcome of a Scan.
type ScanResult struct {
	// Created holds new issues in input order.
	Created []*models.Issue
	// Errors holds malformed messages; they do not abort the batch.
	Errors []MessageError
	// Skipped counts well-formed messages that did not classify as issues.
	Skipped int
}

func (t *Tracker) validateMessage(m models.Message) error {
	if err := t.validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return nil
}

// newIssue builds an open issue with a single-entry history.
func (t *Tracker) newIssue(m models.Message, c classify.Classification, now time.Time) *models.Issue {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return &models.Issue{
		ID:              t.ids.next(now),
		Title:           c.Title,
		Description:     c.Description,
		OriginalText:    m.Text,
		Channel:         m.Channel,
		Reporter:        m.Author,
		Timestamp:       ts,
		MessageTS:       m.MessageTS,
		Status:          models.IssueStatusOpen,
		Priority:        c.Priority,
		Tags:            c.Tags,
		RelatedMessages: []models.RelatedMessage{},
		StatusHistory: []models.StatusChange{
			{Status: models.IssueStatusOpen, Timestamp: now, Actor: m.Author},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Scan classifies each message and creates one open issue per match. All
// new issues are written in a single atomic update. Only a storage failure
// returns an error; per-message problems land in ScanResult.Errors.
func (t *Tracker) Scan(ctx context.Context, user string, msgs []models.Message) (*ScanResult, error) {
	res := &ScanResult{}
	now := t.now()

	for i, m := range msgs {
		if err := t.validateMessage(m); err != nil {
			res.Errors = append(res.Errors, MessageError{Index: i, Err: err})
			continue
		}
		c, ok := t.classifier.Classify(m.Text, m.Channel)
		if !ok {
			res.Skipped++
			continue
		}
		res.Created = append(res.Created, t.newIssue(m, c, now))
	}

	if len(res.Created) == 0 {
		return res, nil
	}

	err := t.store.Update(ctx, user, func(p *models.Partition) error {
		for _, issue := range res.Created {
			p.Issues[issue.ID] = issue.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return res, nil
}

// Create records a single message as an issue even when it does not
// classify. An empty priority is derived from the text.
func (t *Tracker) Create(ctx context.Context, user string, m models.Message, priority models.IssuePriority) (*models.Issue, error) {
	if err := t.validateMessage(m); err != nil {
		return nil, err
	}
	if priority != "" && !priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q: %w", priority, models.ErrValidation)
	}

	c, ok := t.classifier.Classify(m.Text, m.Channel)
	if !ok {
		c = classify.Classification{
			Title:       classify.Title(m.Text, "reported"),
			Description: classify.Describe(m.Text),
			Priority:    t.classifier.Priority(m.Text),
			Tags:        []string{m.Channel},
		}
	}
	if priority != "" {
		c.Priority = priority
	}

	issue := t.newIssue(m, c, t.now())
	err := t.store.Update(ctx, user, func(p *models.Partition) error {
		p.Issues[issue.ID] = issue.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return issue, nil
}

// lookup returns the issue stored under exactly id.
func lookup(p *models.Partition, id string) (*models.Issue, error) {
	if id == "" {
		return nil, fmt.Errorf("empty issue id: %w", models.ErrValidation)
	}
	issue, ok := p.Issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %s: %w", id, models.ErrNotFound)
	}
	return issue, nil
}

// resolveID finds an issue by exact id or unique id prefix.
func resolveID(p *models.Partition, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty issue id: %w", models.ErrValidation)
	}
	if _, ok := p.Issues[id]; ok {
		return id, nil
	}

	var matches []string
	upper := strings.ToUpper(id)
	for key := range p.Issues {
		if strings.HasPrefix(key, upper) {
			matches = append(matches, key)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("issue %s: %w", id, models.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("issue prefix %s matches %d issues: %w", id, len(matches), models.ErrValidation)
	}
}

// Get returns one issue by id or unique id prefix.
func (t *Tracker) Get(ctx context.Context, user, id string) (*models.Issue, error) {
	p, err := t.store.View(ctx, user)
	if err != nil {
		return nil, err
	}
	key, err := resolveID(p, id)
	if err != nil {
		return nil, err
	}
	return p.Issues[key], nil
}

// after returns now, or last if the clock has gone backwards, so timestamps
// on one issue never decrease.
func after(now, last time.Time) time.Time {
	if now.Before(last) {
		return last
	}
	return now
}

// Transition moves the issue with exactly id to status and records the change. Every status
// is reachable from every other; repeating the current status still appends
// a history entry. An empty actor defaults to user.
func (t *Tracker) Transition(ctx context.Context, user, id string, status models.IssueStatus, actor string) (*models.Issue, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q: %w", status, models.ErrValidation)
	}
	if actor == "" {
		actor = user
	}

	var updated *models.Issue
	err := t.store.Update(ctx, user, func(p *models.Partition) error {
		issue, err := lookup(p, id)
		if err != nil {
			return err
		}

		ts := after(t.now(), issue.UpdatedAt)
		if n := len(issue.StatusHistory); n > 0 {
			ts = after(ts, issue.StatusHistory[n-1].Timestamp)
		}

		issue.StatusHistory = append(issue.StatusHistory, models.StatusChange{
			Status:         status,
			Timestamp:      ts,
			Actor:          actor,
			PreviousStatus: issue.Status,
		})
		issue.Status = status
		issue.UpdatedAt = ts
		updated = issue.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transition issue: %w", err)
	}
	return updated, nil
}

// LinkMessage appends a follow-up message to the related messages of the issue
// with exactly id.
func (t *Tracker) LinkMessage(ctx context.Context, user, id string, m models.Message) (*models.Issue, error) {
	if err := t.validateMessage(m); err != nil {
		return nil, err
	}

	var updated *models.Issue
	err := t.store.Update(ctx, user, func(p *models.Partition) error {
		issue, err := lookup(p, id)
		if err != nil {
			return err
		}
		now := after(t.now(), issue.UpdatedAt)

		ts := m.Timestamp
		if ts.IsZero() {
			ts = now
		}
		issue.RelatedMessages = append(issue.RelatedMessages, models.RelatedMessage{
			Text:      m.Text,
			Author:    m.Author,
			Channel:   m.Channel,
			Timestamp: ts,
			MessageTS: m.MessageTS,
			AddedAt:   now,
		})
		issue.UpdatedAt = now
		updated = issue.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("link message: %w", err)
	}
	return updated, nil
}

// Delete removes the issue with exactly id. Prefixes are only resolved by Get.
func (t *Tracker) Delete(ctx context.Context, user, id string) error {
	err := t.store.Update(ctx, user, func(p *models.Partition) error {
		if _, err := lookup(p, id); err != nil {
			return err
		}
		delete(p.Issues, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	return nil
}

// Search returns issues whose title, description or tags contain query,
// case-insensitively, most recently updated first.
func (t *Tracker) Search(ctx context.Context, user, query string) ([]*models.Issue, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, fmt.Errorf("empty search query: %w", models.ErrValidation)
	}

	p, err := t.store.View(ctx, user)
	if err != nil {
		return nil, err
	}

	var out []*models.Issue
	for _, issue := range p.Issues {
		if matchesQuery(issue, q) {
			out = append(out, issue)
		}
	}
	slices.SortFunc(out, func(a, b *models.Issue) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func matchesQuery(issue *models.Issue, q string) bool {
	if strings.Contains(strings.ToLower(issue.Title), q) ||
		strings.Contains(strings.ToLower(issue.Description), q) {
		return true
	}
	for _, tag := range issue.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// List returns issues passing the filter, ordered by status, then priority,
// then newest first.
func (t *Tracker) List(ctx context.Context, user string, f models.IssueFilter) ([]*models.Issue, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q: %w", f.Status, models.ErrValidation)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q: %w", f.Priority, models.ErrValidation)
	}

	p, err := t.store.View(ctx, user)
	if err != nil {
		return nil, err
	}

	var out []*models.Issue
	for _, issue := range p.Issues {
		if f.Matches(issue) {
			out = append(out, issue)
		}
	}
	slices.SortFunc(out, func(a, b *models.Issue) int {
		return cmp.Or(
			cmp.Compare(slices.Index(models.IssueStatuses, a.Status), slices.Index(models.IssueStatuses, b.Status)),
			cmp.Compare(a.Priority.Rank(), b.Priority.Rank()),
			b.CreatedAt.Compare(a.CreatedAt),
			strings.Compare(b.ID, a.ID),
		)
	})
	return out, nil
}

// Stats counts issues per status and priority, plus those updated within
// RecentWindow.
func (t *Tracker) Stats(ctx context.Context, user string) (*models.IssueStats, error) {
	p, err := t.store.View(ctx, user)
	if err != nil {
		return nil, err
	}

	stats := &models.IssueStats{
		ByStatus:   make(map[models.IssueStatus]int, len(models.IssueStatuses)),
		ByPriority: make(map[models.IssuePriority]int, len(models.IssuePriorities)),
	}
	for _, s := range models.IssueStatuses {
		stats.ByStatus[s] = 0
	}
	for _, pr := range models.IssuePriorities {
		stats.ByPriority[pr] = 0
	}

	cutoff := t.now().Add(-RecentWindow)
	for _, issue := range p.Issues {
		stats.Total++
		stats.ByStatus[issue.Status]++
		stats.ByPriority[issue.Priority]++
		if issue.UpdatedAt.After(cutoff) {
			stats.RecentActivity++
		}
	}
	return stats, nil
}
