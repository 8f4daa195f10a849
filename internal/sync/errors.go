package sync

import "errors"

// Failure classes surfaced to callers. The service layer wraps its
// errors with one of these so the coordinator and handlers can map
// them without inspecting transport details.
var (
	// ErrNetwork marks a request that never completed.
	ErrNetwork = errors.New("network failure")

	// ErrValidation marks input the server rejected.
	ErrValidation = errors.New("validation failure")

	// ErrNotFound marks a mutation against an entity that no longer exists.
	ErrNotFound = errors.New("task not found")
)

// A superseded settlement is not an error at all: when an older in-flight
// request settles after a newer optimistic mutation has bumped the
// entity's version, its outcome is logged and dropped, never surfaced.
