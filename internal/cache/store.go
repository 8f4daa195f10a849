package cache

import (
	"strings"
	"sync"
	"time"

	"taskflow/internal/model"
)

// Scope is an independently cached view of task data. The admin-facing
// and user-facing sides of the application each own one scope; the two
// share no subscription channel and are reconciled through the event bus.
type Scope string

const (
	ScopeAdmin Scope = "admin"
	ScopeUser  Scope = "user"
)

// Entry is one cached query result: an ordered, de-duplicated task list
// plus the pagination metadata it was fetched with.
type Entry struct {
	Tasks      []model.Task
	Pagination model.Pagination
	WrittenAt  time.Time
	Stale      bool
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Tasks = model.CloneTasks(e.Tasks)
	return &c
}

// RefetchFunc is invoked (outside the store lock) whenever an entry
// becomes eligible for a background refetch: either it was explicitly
// invalidated or a read found it older than the staleness window.
type RefetchFunc func(scope Scope, filterSet string)

// Store is a keyed store of task query results. All mutation goes
// through Write, Patch and Invalidate; callers never hold references
// into the stored state (reads return deep copies).
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Scope]map[string]*Entry
	refetch RefetchFunc
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl: ttl,
		entries: map[Scope]map[string]*Entry{
			ScopeAdmin: {},
			ScopeUser:  {},
		},
	}
}

// OnRefetch registers the background refetch hook. Must be called
// before the store is shared; there is exactly one consumer.
func (s *Store) OnRefetch(fn RefetchFunc) {
	s.refetch = fn
}

// Read returns a deep copy of the entry for (scope, filterSet), or
// nil if none exists. A read never blocks on the network: an entry
// past the staleness window is still returned, but is flagged stale
// and a background refetch is scheduled for it.
func (s *Store) Read(scope Scope, filterSet string) *Entry {
	s.mu.Lock()
	entry, ok := s.entries[scope][filterSet]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	expired := !entry.Stale && time.Since(entry.WrittenAt) > s.ttl
	if expired {
		entry.Stale = true
	}
	out := entry.Clone()
	s.mu.Unlock()

	if expired {
		s.scheduleRefetch(scope, filterSet)
	}
	return out
}

// Write replaces or creates the entry for (scope, filterSet). The task
// list is de-duplicated by task identity, first occurrence wins, order
// otherwise preserved. Writing clears the stale flag.
func (s *Store) Write(scope Scope, filterSet string, tasks []model.Task, pagination model.Pagination, now time.Time) {
	deduped := dedupe(tasks)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[scope][filterSet] = &Entry{
		Tasks:      model.CloneTasks(deduped),
		Pagination: pagination,
		WrittenAt:  now,
		Stale:      false,
	}
}

// Patch applies updater to every entry in scope whose task list contains
// a task matching predicate. The same task may appear in several filtered
// views at once; this is how an optimistic update reaches all of them.
// The updater runs under the store lock and must not block.
func (s *Store) Patch(scope Scope, predicate func(*model.Task) bool, updater func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries[scope] {
		if containsMatch(entry.Tasks, predicate) {
			updater(entry)
		}
	}
}

// PatchEvery applies updater to every entry in scope regardless of
// content. Used for insertions, where the target lists do not yet
// contain the task being added.
func (s *Store) PatchEvery(scope Scope, updater func(filterSet string, entry *Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fs, entry := range s.entries[scope] {
		updater(fs, entry)
	}
}

// Invalidate marks every entry in scope whose filter-set key starts with
// prefix as stale and schedules a background refetch for each. The
// last-known content is kept and keeps being served until the refetch
// lands (stale-while-revalidate). An empty prefix invalidates the scope.
func (s *Store) Invalidate(scope Scope, prefix string) {
	var hit []string
	s.mu.Lock()
	for fs, entry := range s.entries[scope] {
		if strings.HasPrefix(fs, prefix) {
			entry.Stale = true
			hit = append(hit, fs)
		}
	}
	s.mu.Unlock()

	for _, fs := range hit {
		s.scheduleRefetch(scope, fs)
	}
}

// Find returns a deep copy of any cached occurrence of the task with
// the given identity key in scope, or nil if no entry holds it.
func (s *Store) Find(scope Scope, key string) *model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries[scope] {
		for i := range entry.Tasks {
			if entry.Tasks[i].Key() == key {
				t := entry.Tasks[i].Clone()
				return &t
			}
		}
	}
	return nil
}

// SnapshotWhere deep-copies every entry in scope whose task list
// contains a match. This is the pre-mutation snapshot an update or
// delete takes: exactly the entries its optimistic patch will touch.
func (s *Store) SnapshotWhere(scope Scope, predicate func(*model.Task) bool) map[string]*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string]*Entry)
	for fs, entry := range s.entries[scope] {
		if containsMatch(entry.Tasks, predicate) {
			snap[fs] = entry.Clone()
		}
	}
	return snap
}

// RestoreEntries puts back the entries captured by SnapshotWhere,
// overwriting whatever state they hold now. Entries outside the
// snapshot are left alone, so a rollback never clobbers concurrent
// mutations to unrelated entities.
func (s *Store) RestoreEntries(scope Scope, snap map[string]*Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fs, entry := range snap {
		s.entries[scope][fs] = entry.Clone()
	}
}

// Snapshot deep-copies the full state of one scope, for exact rollback.
func (s *Store) Snapshot(scope Scope) map[string]*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string]*Entry, len(s.entries[scope]))
	for fs, entry := range s.entries[scope] {
		snap[fs] = entry.Clone()
	}
	return snap
}

// Restore replaces the full state of one scope with a snapshot taken
// earlier, discarding anything written in between.
func (s *Store) Restore(scope Scope, snap map[string]*Entry) {
	restored := make(map[string]*Entry, len(snap))
	for fs, entry := range snap {
		restored[fs] = entry.Clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[scope] = restored
}

func (s *Store) scheduleRefetch(scope Scope, filterSet string) {
	if s.refetch != nil {
		s.refetch(scope, filterSet)
	}
}

func dedupe(tasks []model.Task) []model.Task {
	seen := make(map[string]bool, len(tasks))
	out := tasks[:0:0]
	for _, t := range tasks {
		key := t.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func containsMatch(tasks []model.Task, predicate func(*model.Task) bool) bool {
	for i := range tasks {
		if predicate(&tasks[i]) {
			return true
		}
	}
	return false
}
