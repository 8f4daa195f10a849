package model

import (
	"time"

	"github.com/google/uuid"
)

// Clone returns a deep copy of the task. The cache layer relies on this:
// snapshots taken for rollback must not share slices or pointers with
// the live entry.
func (t Task) Clone() Task {
	c := t
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		c.AssignedTo = &id
	}
	c.StartDate = cloneTime(t.StartDate)
	c.EndDate = cloneTime(t.EndDate)
	if t.Tags != nil {
		c.Tags = make([]string, len(t.Tags))
		copy(c.Tags, t.Tags)
	}
	if t.Checklist != nil {
		c.Checklist = make([]ChecklistItem, len(t.Checklist))
		copy(c.Checklist, t.Checklist)
	}
	return c
}

// CloneTasks deep-copies a task list preserving order.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// UUIDPtr is a convenience for building optional id fields.
func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
