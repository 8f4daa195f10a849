package model

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusInReview   TaskStatus = "IN_REVIEW"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusBlocked    TaskStatus = "BLOCKED"
	StatusCancelled  TaskStatus = "CANCELLED"
)

// AllTaskStatuses lists every valid status value. Code that branches on
// status must cover all of these or declare an explicit default.
var AllTaskStatuses = []TaskStatus{
	StatusTodo,
	StatusInProgress,
	StatusInReview,
	StatusCompleted,
	StatusBlocked,
	StatusCancelled,
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusCompleted, StatusBlocked, StatusCancelled:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow      TaskPriority = "LOW"
	PriorityMedium   TaskPriority = "MEDIUM"
	PriorityHigh     TaskPriority = "HIGH"
	PriorityCritical TaskPriority = "CRITICAL"
)

// priorityRank is the single definition of the priority order
// (CRITICAL > HIGH > MEDIUM > LOW). Every sort-by-priority goes
// through Rank so there is exactly one tie-break rule.
var priorityRank = map[TaskPriority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Rank returns the sortable weight of the priority; higher means more urgent.
// Unknown values rank below LOW.
func (p TaskPriority) Rank() int {
	return priorityRank[p]
}

func (p TaskPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// ChecklistItem is a single checklist row on a task. Order within
// Task.Checklist is significant and preserved.
type ChecklistItem struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type Task struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name           string          `gorm:"not null" json:"name"`
	Description    string          `json:"description"`
	Status         TaskStatus      `gorm:"type:varchar(20);not null;default:'TODO';index" json:"status"`
	Priority       TaskPriority    `gorm:"type:varchar(20);not null;default:'MEDIUM';index" json:"priority"`
	AssignedTo     *uuid.UUID      `gorm:"type:uuid;index" json:"assigned_to,omitempty"`
	CreatedBy      uuid.UUID       `gorm:"type:uuid;not null" json:"created_by"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	Tags           []string        `gorm:"serializer:json" json:"tags,omitempty"`
	EstimatedHours float64         `json:"estimated_hours"`
	Checklist      []ChecklistItem `gorm:"serializer:json" json:"checklist,omitempty"`
	Version        int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// Correlation carries the client-generated provisional identity of an
	// optimistically inserted task until the server confirms it. It is
	// never persisted or serialized; replace-on-settle matches by it.
	Correlation string `gorm:"-" json:"-"`
}

// Pending reports whether the task is a provisional optimistic entry
// not yet confirmed by the server.
func (t *Task) Pending() bool {
	return t.Correlation != ""
}

// Key returns the identity the cache de-duplicates by: the correlation id
// while the task is pending, the server id once confirmed.
func (t *Task) Key() string {
	if t.Correlation != "" {
		return t.Correlation
	}
	return t.ID.String()
}
