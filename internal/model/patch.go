package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskPatch is a partial task update. Nil fields are untouched;
// Unassign clears the assignee regardless of AssignedTo.
type TaskPatch struct {
	Name           *string
	Description    *string
	Status         *TaskStatus
	Priority       *TaskPriority
	AssignedTo     *uuid.UUID
	Unassign       bool
	StartDate      *time.Time
	EndDate        *time.Time
	Tags           *[]string
	EstimatedHours *float64
	Checklist      *[]ChecklistItem
}

// Apply merges the patch into the task in place.
func (p TaskPatch) Apply(t *Task) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Unassign {
		t.AssignedTo = nil
	} else if p.AssignedTo != nil {
		id := *p.AssignedTo
		t.AssignedTo = &id
	}
	if p.StartDate != nil {
		v := *p.StartDate
		t.StartDate = &v
	}
	if p.EndDate != nil {
		v := *p.EndDate
		t.EndDate = &v
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.EstimatedHours != nil {
		t.EstimatedHours = *p.EstimatedHours
	}
	if p.Checklist != nil {
		t.Checklist = append([]ChecklistItem(nil), (*p.Checklist)...)
	}
}
