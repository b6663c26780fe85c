package domain

import (
	"fmt"
	"strings"
)

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	StatusOpen       IssueStatus = "open"
	StatusInProgress IssueStatus = "in_progress"
	StatusResolved   IssueStatus = "resolved"
	StatusRejected   IssueStatus = "rejected"
)

// ParseIssueStatus validates s against the closed set of statuses. Surrounding
// whitespace is ignored; matching is case-sensitive.
func ParseIssueStatus(s string) (IssueStatus, error) {
	switch st := IssueStatus(strings.TrimSpace(s)); st {
	case StatusOpen, StatusInProgress, StatusResolved, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown issue status %q", s)
	}
}

// Priority is the urgency label assigned by the AI collaborator.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps a collaborator label onto the closed priority set.
// Labels are compared case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, true
	default:
		return "", false
	}
}

// NormalizeCategory trims a collaborator category label and substitutes
// DefaultCategory for blank labels.
func NormalizeCategory(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return DefaultCategory
	}
	return s
}

// EventType identifies a gamification event sent to the user service.
type EventType string

const (
	EventNewReport      EventType = "new_report"
	EventConfirmIssue   EventType = "confirm_issue"
	EventReportResolved EventType = "report_resolved"
)

// Event is a reward-worthy action attributed to a user.
type Event struct {
	UserID int64     `json:"user_id"`
	Type   EventType `json:"event_type"`
}

// Role is the caller role carried in the bearer token.
type Role string

const (
	RoleEmployee     Role = "Employee"
	RoleAdmin        Role = "Admin"
	RoleCityEmployee Role = "City Employee"
)

// IsElevated reports whether r may manage issue lifecycles.
func (r Role) IsElevated() bool {
	switch r {
	case RoleEmployee, RoleAdmin, RoleCityEmployee:
		return true
	default:
		return false
	}
}
