package models

import "time"

// IssueStatus represents the state of an issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in-progress"
	IssueStatusClosed     IssueStatus = "closed"
)

// IssueStatuses lists every valid status in workflow order.
var IssueStatuses = []IssueStatus{IssueStatusOpen, IssueStatusInProgress, IssueStatusClosed}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	for _, v := range IssueStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "low"
	IssuePriorityMedium IssuePriority = "medium"
	IssuePriorityHigh   IssuePriority = "high"
)

// IssuePriorities lists every valid priority from lowest to highest.
var IssuePriorities = []IssuePriority{IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh}

// Valid reports whether p is one of the known priorities.
func (p IssuePriority) Valid() bool {
	for _, v := range IssuePriorities {
		if p == v {
			return true
		}
	}
	return false
}

// Issue represents a tracked issue.
type Issue struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    IssueStatus   `json:"status"`
	Priority  IssuePriority `json:"priority"`
	Assignee  *string       `json:"assignee"` // nil = unassigned
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// IssueInput is the payload for creating an issue. Empty Status and
// Priority select the defaults.
type IssueInput struct {
	Title    string        `json:"title"`
	Status   IssueStatus   `json:"status"`
	Priority IssuePriority `json:"priority"`
	Assignee *string       `json:"assignee"`
}

// IssuePatch is a partial update. Only fields whose Optional is Set are
// applied; a Null assignee clears it.
type IssuePatch struct {
	Title    Optional[string]        `json:"title"`
	Status   Optional[IssueStatus]   `json:"status"`
	Priority Optional[IssuePriority] `json:"priority"`
	Assignee Optional[string]        `json:"assignee"`
}

// Empty reports whether the patch carries no fields at all.
func (p IssuePatch) Empty() bool {
	return !p.Title.Set && !p.Status.Set && !p.Priority.Set && !p.Assignee.Set
}

// Apply copies every present field of the patch onto issue.
func (p IssuePatch) Apply(issue *Issue) {
	if p.Title.Set {
		issue.Title = p.Title.Value
	}
	if p.Status.Set {
		issue.Status = p.Status.Value
	}
	if p.Priority.Set {
		issue.Priority = p.Priority.Value
	}
	if p.Assignee.Set {
		if p.Assignee.Null {
			issue.Assignee = nil
		} else {
			v := p.Assignee.Value
			issue.Assignee = &v
		}
	}
}
