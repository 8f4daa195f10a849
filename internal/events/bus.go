package events

import (
	"sync"

	"github.com/google/uuid"

	"taskflow/internal/cache"
	"taskflow/internal/model"
)

type Type string

const (
	TaskCreated       Type = "task_created"
	TaskUpdated       Type = "task_updated"
	TaskDeleted       Type = "task_deleted"
	TaskStatusChanged Type = "task_status_changed"
)

// Event is the payload carried between the two cache scopes and into the
// notification deriver. Consumers must treat it as a hint, not as the
// sole source of truth: Task may be partial, so every handler both
// merges it optimistically and invalidates its own scope.
type Event struct {
	Type       Type
	TaskID     uuid.UUID
	TaskName   string
	AssignedTo *uuid.UUID
	CreatedBy  uuid.UUID
	// ActorID is the user whose mutation produced the event. The
	// deriver needs it to suppress self-notifications.
	ActorID uuid.UUID
	// Task is the full task for TaskCreated, the merged patch for
	// TaskUpdated, nil otherwise.
	Task      *model.Task
	NewStatus model.TaskStatus
	// Origin is the scope whose mutation produced the event. A handler
	// must never re-publish an event whose origin is its own scope.
	Origin cache.Scope
}

type Handler func(Event)

type subscriber struct {
	types   map[Type]bool
	handler Handler
}

// Subscription is the handle returned by Subscribe; consumers hold it
// for their lifetime and release it with Unsubscribe.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.sub)
}

// Bus is a process-wide synchronous publish/subscribe channel. Delivery
// is best-effort, at-most-once per publish, with no persistence or
// replay: a subscriber registered after a publish never sees it.
type Bus struct {
	mu   sync.Mutex
	subs []*subscriber
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for the given event types (all types if
// none are given) and returns the handle that releases it.
func (b *Bus) Subscribe(handler Handler, types ...Type) *Subscription {
	sub := &subscriber{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return &Subscription{bus: b, sub: sub}
}

// Publish delivers the event to every current subscriber before
// returning. Handlers run on the publishing goroutine; a handler that
// needs to publish in turn must do so for a different origin scope
// only, or the dispatch would loop.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	current := make([]*subscriber, len(b.subs))
	copy(current, b.subs)
	b.mu.Unlock()

	for _, sub := range current {
		if sub.types == nil || sub.types[event.Type] {
			sub.handler(event)
		}
	}
}

func (b *Bus) remove(target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
