package models

import (
	"encoding/json"
	"time"
)

// Field limits enforced before anything reaches the store layer.
const (
	TitleMaxLen       = 120
	DescriptionMaxLen = 5000
	MaxAssignees      = 20
)

// Task is the shared work item. Version starts at 1 and increments by
// exactly 1 on every successful mutation of the row's content; soft-deleted
// rows are invisible to every read path except internal bookkeeping.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Assignees   []string  `json:"assignees"`
	Version     int64     `json:"version"`
	IsDeleted   bool      `json:"-"`

	// IsStarred is viewer-relative and populated on reads only.
	IsStarred bool `json:"isStarred"`
}

// TaskPatch carries a partial update; nil fields are left untouched.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Assignees   *[]string `json:"assignees,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Assignees == nil
}

// TaskStar marks a personal star. At most one row per (TaskID, UserID).
type TaskStar struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditAction enumerates the mutating operations recorded per task.
type AuditAction string

const (
	AuditCreate    AuditAction = "create"
	AuditUpdate    AuditAction = "update"
	AuditDelete    AuditAction = "delete"
	AuditDuplicate AuditAction = "duplicate"
)

// TaskAudit is an append-only record of one mutating operation.
type TaskAudit struct {
	ID       string          `json:"id"`
	TaskID   string          `json:"taskId"`
	At       time.Time       `json:"at"`
	By       string          `json:"by"`
	Action   AuditAction     `json:"action"`
	Diff     json.RawMessage `json:"diff"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// ListContext selects which slice of the task space a query covers.
type ListContext string

const (
	ContextAll     ListContext = "all"
	ContextMine    ListContext = "mine"
	ContextStarred ListContext = "starred"
)

// TaskListQuery is a normalized, validated list request.
type TaskListQuery struct {
	Search    string      `json:"search"`
	Page      int         `json:"page"`
	Limit     int         `json:"limit"`
	SortBy    string      `json:"sortBy"`
	SortOrder string      `json:"sortOrder"`
	Context   ListContext `json:"context"`
}

// TaskPage is one page of list results.
type TaskPage struct {
	Items   []Task `json:"items"`
	Page    int    `json:"page"`
	Total   int    `json:"total"`
	HasMore bool   `json:"hasMore"`
}
