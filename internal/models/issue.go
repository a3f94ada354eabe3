package models

import (
	"slices"
	"time"
)

// IssueStatus represents the state of an issue.
type IssueStatus string

const (
	IssueStatusOpen          IssueStatus = "open"
	IssueStatusInvestigating IssueStatus = "investigating"
	IssueStatusResolved      IssueStatus = "resolved"
	IssueStatusClosed        IssueStatus = "closed"
)

// IssueStatuses lists every valid status in display order.
var IssueStatuses = []IssueStatus{
	IssueStatusOpen,
	IssueStatusInvestigating,
	IssueStatusResolved,
	IssueStatusClosed,
}

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	return slices.Contains(IssueStatuses, s)
}

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityCritical IssuePriority = "critical"
	IssuePriorityHigh     IssuePriority = "high"
	IssuePriorityMedium   IssuePriority = "medium"
	IssuePriorityLow      IssuePriority = "low"
)

// IssuePriorities lists every valid priority from most to least urgent.
var IssuePriorities = []IssuePriority{
	IssuePriorityCritical,
	IssuePriorityHigh,
	IssuePriorityMedium,
	IssuePriorityLow,
}

// Valid reports whether p is a known priority.
func (p IssuePriority) Valid() bool {
	return slices.Contains(IssuePriorities, p)
}

// Rank orders priorities for sorting; lower is more urgent.
func (p IssuePriority) Rank() int {
	if i := slices.Index(IssuePriorities, p); i >= 0 {
		return i
	}
	return len(IssuePriorities)
}

// StatusChange is one entry in an issue's audit trail.
type StatusChange struct {
	Status         IssueStatus `json:"status"`
	Timestamp      time.Time   `json:"timestamp"`
	Actor          string      `json:"user"`
	PreviousStatus IssueStatus `json:"previous_status,omitempty"`
}

// RelatedMessage is a chat message linked to an existing issue after creation.
type RelatedMessage struct {
	Text      string    `json:"text"`
	Author    string    `json:"user"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	MessageTS string    `json:"message_ts,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// Issue is a tracked technical problem extracted from a chat message.
type Issue struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	OriginalText    string           `json:"original_text"`
	Channel         string           `json:"channel"`
	Reporter        string           `json:"reporter"`
	Timestamp       time.Time        `json:"timestamp"`
	MessageTS       string           `json:"message_ts,omitempty"`
	Status          IssueStatus      `json:"status"`
	Priority        IssuePriority    `json:"priority"`
	Tags            []string         `json:"tags"`
	RelatedMessages []RelatedMessage `json:"related_messages"`
	StatusHistory   []StatusChange   `json:"status_history"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	c := *i
	c.Tags = slices.Clone(i.Tags)
	c.RelatedMessages = slices.Clone(i.RelatedMessages)
	c.StatusHistory = slices.Clone(i.StatusHistory)
	return &c
}

// HasTag reports whether the issue carries the given tag.
func (i *Issue) HasTag(tag string) bool {
	return slices.Contains(i.Tags, tag)
}

// IssueFilter specifies filters for listing issues. Zero fields match everything.
type IssueFilter struct {
	Status   IssueStatus
	Priority IssuePriority
	Tag      string
	Channel  string
}

// Matches reports whether the issue passes every set filter field.
func (f IssueFilter) Matches(i *Issue) bool {
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	if f.Priority != "" && i.Priority != f.Priority {
		return false
	}
	if f.Tag != "" && !i.HasTag(f.Tag) {
		return false
	}
	if f.Channel != "" && i.Channel != f.Channel {
		return false
	}
	return true
}

// IssueStats aggregates issue counts for one user.
type IssueStats struct {
	Total          int                   `json:"total"`
	ByStatus       map[IssueStatus]int   `json:"by_status"`
	ByPriority     map[IssuePriority]int `json:"by_priority"`
	RecentActivity int                   `json:"recent_activity"`
}
