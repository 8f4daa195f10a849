package sync

import (
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"taskflow/internal/model"
)

// FilterSetPrefix is the common prefix of every task list cache key.
// Invalidating a scope with this prefix marks all of its list views stale.
const FilterSetPrefix = "tasks"

// ListQuery is the filter-set a task list view is fetched with.
type ListQuery struct {
	Page     int
	Limit    int
	Search   string
	Status   model.TaskStatus
	Priority model.TaskPriority
	Assignee *uuid.UUID
	// Viewer restricts the result to tasks the viewer is assigned to or
	// created. Set for the user scope, absent for the admin scope.
	Viewer *uuid.UUID
}

// Normalize fills in pagination defaults.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	return q
}

// FilterSet renders the query as the canonical cache key. url.Values
// encodes keys in sorted order, so equal queries always map to the
// same key.
func (q ListQuery) FilterSet() string {
	q = q.Normalize()
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Priority != "" {
		v.Set("priority", string(q.Priority))
	}
	if q.Assignee != nil {
		v.Set("assignee", q.Assignee.String())
	}
	if q.Viewer != nil {
		v.Set("viewer", q.Viewer.String())
	}
	return FilterSetPrefix + "?" + v.Encode()
}
