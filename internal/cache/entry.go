package cache

import "taskflow/internal/model"

// List mutation helpers used inside Patch/PatchEvery updaters. They keep
// the entry's two invariants: the list stays de-duplicated by task
// identity, and pagination.Total moves with insertions and removals.

// Insert prepends a task to the entry's list. If a task with the same
// identity is already present it is replaced in place instead, so the
// list never holds duplicates.
func (e *Entry) Insert(task model.Task) {
	key := task.Key()
	for i := range e.Tasks {
		if e.Tasks[i].Key() == key {
			e.Tasks[i] = task
			return
		}
	}
	e.Tasks = append([]model.Task{task}, e.Tasks...)
	e.Pagination.Total++
	e.Pagination.TotalPages = model.Pages(e.Pagination.Total, e.Pagination.Limit)
}

// Remove deletes the task with the given identity key, decrementing the
// pagination total. Reports whether anything was removed.
func (e *Entry) Remove(key string) bool {
	for i := range e.Tasks {
		if e.Tasks[i].Key() == key {
			e.Tasks = append(e.Tasks[:i], e.Tasks[i+1:]...)
			e.Pagination.Total--
			e.Pagination.TotalPages = model.Pages(e.Pagination.Total, e.Pagination.Limit)
			return true
		}
	}
	return false
}

// Merge applies fn to the cached copy of the task with the given
// identity key, if present.
func (e *Entry) Merge(key string, fn func(*model.Task)) bool {
	for i := range e.Tasks {
		if e.Tasks[i].Key() == key {
			fn(&e.Tasks[i])
			return true
		}
	}
	return false
}

// ReplaceByCorrelation swaps the provisional task carrying the given
// correlation id for its server-confirmed counterpart. The confirmed
// task takes the provisional entry's position, so settlement never
// yields a duplicate row.
func (e *Entry) ReplaceByCorrelation(correlation string, confirmed model.Task) bool {
	for i := range e.Tasks {
		if e.Tasks[i].Correlation == correlation {
			e.Tasks[i] = confirmed
			return true
		}
	}
	return false
}
