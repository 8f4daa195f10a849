package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTaskAssigned        NotificationType = "TASK_ASSIGNED"
	NotificationTaskUpdated         NotificationType = "TASK_UPDATED"
	NotificationTaskCompleted       NotificationType = "TASK_COMPLETED"
	NotificationDeadlineApproaching NotificationType = "DEADLINE_APPROACHING"
	NotificationDeadlinePassed      NotificationType = "DEADLINE_PASSED"
)

type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "UNREAD"
	NotificationRead   NotificationStatus = "READ"
)

// Notification is an alert surfaced to a user about activity on a task.
// Status only ever moves UNREAD -> READ, via an explicit mark-as-read.
type Notification struct {
	ID        uuid.UUID          `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	Type      NotificationType   `gorm:"type:varchar(30);not null" json:"type"`
	Status    NotificationStatus `gorm:"type:varchar(10);not null;default:'UNREAD';index" json:"status"`
	TaskID    *uuid.UUID         `gorm:"type:uuid;index" json:"task_id,omitempty"`
	Title     string             `gorm:"not null" json:"title"`
	Message   string             `json:"message"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
}
