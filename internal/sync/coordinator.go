package sync

import (
	"context"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"taskflow/internal/cache"
	"taskflow/internal/events"
	"taskflow/internal/model"
)

// TaskService is the server-truth side the coordinator settles against.
// Implementations classify their failures with ErrNetwork, ErrValidation
// or ErrNotFound so callers can map them without transport knowledge.
type TaskService interface {
	List(ctx context.Context, q ListQuery) ([]model.Task, model.Pagination, error)
	Create(ctx context.Context, draft *model.Task) (*model.Task, error)
	Update(ctx context.Context, id uuid.UUID, patch model.TaskPatch) (*model.Task, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, status model.TaskStatus) (*model.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
	BulkAssign(ctx context.Context, templates []model.Task, userIDs []uuid.UUID) (*BulkResult, error)
}

// BulkUserCount is how many tasks one selected user received.
type BulkUserCount struct {
	UserID uuid.UUID `json:"user_id"`
	Count  int       `json:"count"`
}

// BulkResult reports a bulk assignment. Per-item failures are aggregated
// in Err; tasks that were created successfully are kept, never rolled
// back, because each bulk item is an independent creation.
type BulkResult struct {
	Created []model.Task    `json:"created"`
	PerUser []BulkUserCount `json:"assigned_per_user"`
	Err     error           `json:"-"`
}

// pendingSeq feeds the client-generated correlation identifiers for
// optimistically created tasks.
var pendingSeq atomic.Int64

func nextCorrelation() string {
	return fmt.Sprintf("pending:%d", pendingSeq.Inc())
}

type settleOutcome struct {
	task *model.Task
	err  error
}

// Settlement is the handle for an in-flight mutation. The optimistic
// patch is already applied when a Settlement is returned; Wait blocks
// until the service call resolves and reconciliation is done.
type Settlement struct {
	ch chan settleOutcome
}

func newSettlement() *Settlement {
	return &Settlement{ch: make(chan settleOutcome, 1)}
}

func (s *Settlement) deliver(task *model.Task, err error) {
	s.ch <- settleOutcome{task: task, err: err}
}

// Wait returns the settled entity (nil for delete) or the mutation's
// error. The cache has already been reconciled by the time Wait returns.
func (s *Settlement) Wait(ctx context.Context) (*model.Task, error) {
	select {
	case out := <-s.ch:
		return out.task, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Coordinator owns every mutation to the cache store. It applies an
// optimistic patch synchronously, issues the service call, and on
// settlement confirms the patch or restores the exact pre-mutation
// snapshot. Successful settlements are broadcast on the event bus so the
// opposite scope can reconcile; the coordinator is also the bus handler
// that performs that reconciliation.
type Coordinator struct {
	store    *cache.Store
	svc      TaskService
	bus      *events.Bus
	debounce *Debouncer

	mu       stdsync.Mutex
	versions map[string]int64
	inflight map[string]context.CancelFunc
	queries  map[cache.Scope]map[string]ListQuery

	sub *events.Subscription
}

func NewCoordinator(store *cache.Store, svc TaskService, bus *events.Bus, debounce *Debouncer) *Coordinator {
	c := &Coordinator{
		store:    store,
		svc:      svc,
		bus:      bus,
		debounce: debounce,
		versions: make(map[string]int64),
		inflight: make(map[string]context.CancelFunc),
		queries: map[cache.Scope]map[string]ListQuery{
			cache.ScopeAdmin: {},
			cache.ScopeUser:  {},
		},
	}
	store.OnRefetch(c.scheduleRefetch)
	c.sub = bus.Subscribe(c.reconcile,
		events.TaskCreated, events.TaskUpdated, events.TaskDeleted, events.TaskStatusChanged)
	return c
}

// Close releases the bus subscription and pending refetch timers.
func (c *Coordinator) Close() {
	c.sub.Unsubscribe()
	c.debounce.Stop()
}

// List serves a task list view through the cache: a cached entry (fresh
// or stale) is returned immediately, a miss is fetched synchronously.
// Stale entries have a background refetch scheduled by the store.
func (c *Coordinator) List(ctx context.Context, scope cache.Scope, q ListQuery) (*cache.Entry, error) {
	q = q.Normalize()
	fs := q.FilterSet()
	c.registerQuery(scope, fs, q)

	if entry := c.store.Read(scope, fs); entry != nil {
		return entry, nil
	}
	tasks, pagination, err := c.svc.List(ctx, q)
	if err != nil {
		return nil, err
	}
	c.store.Write(scope, fs, tasks, pagination, time.Now())
	return c.store.Read(scope, fs), nil
}

// Create inserts a provisional task carrying a fresh correlation id into
// every list view of the origin scope, then settles against the service.
// On success the provisional entry is replaced (never duplicated) by the
// confirmed one; on failure the pre-mutation snapshot is restored.
func (c *Coordinator) Create(ctx context.Context, scope cache.Scope, actor uuid.UUID, draft model.Task) *Settlement {
	if draft.Status == "" {
		draft.Status = model.StatusTodo
	}
	if draft.Priority == "" {
		draft.Priority = model.PriorityMedium
	}

	correlation := nextCorrelation()
	provisional := draft.Clone()
	provisional.ID = uuid.Nil
	provisional.Correlation = correlation
	provisional.CreatedAt = time.Now()
	provisional.UpdatedAt = provisional.CreatedAt

	snapshot := c.store.Snapshot(scope)
	c.store.PatchEvery(scope, func(_ string, entry *cache.Entry) {
		entry.Insert(provisional.Clone())
	})

	version, callCtx := c.supersede(ctx, correlation)
	settlement := newSettlement()
	go c.settleCreate(callCtx, scope, actor, correlation, version, draft, snapshot, settlement)
	return settlement
}

func (c *Coordinator) settleCreate(ctx context.Context, scope cache.Scope, actor uuid.UUID,
	correlation string, version int64, draft model.Task, snapshot map[string]*cache.Entry, s *Settlement) {

	confirmed, err := c.svc.Create(ctx, &draft)
	c.clearInflight(correlation)

	if !c.settleAllowed(correlation, version) {
		log.Printf("sync: discarding stale settlement for %s (version %d superseded)", correlation, version)
		s.deliver(confirmed, err)
		return
	}
	if err != nil {
		c.store.Restore(scope, snapshot)
		s.deliver(nil, err)
		return
	}

	replacement := confirmed.Clone()
	c.store.PatchEvery(scope, func(_ string, entry *cache.Entry) {
		entry.ReplaceByCorrelation(correlation, replacement.Clone())
	})
	c.adoptKey(correlation, confirmed.ID.String())
	c.store.Invalidate(scope, FilterSetPrefix)

	c.bus.Publish(events.Event{
		Type:       events.TaskCreated,
		TaskID:     confirmed.ID,
		TaskName:   confirmed.Name,
		AssignedTo: confirmed.AssignedTo,
		CreatedBy:  confirmed.CreatedBy,
		ActorID:    actor,
		Task:       &replacement,
		Origin:     scope,
	})
	s.deliver(confirmed, nil)
}

// Update merges the patch into every cached copy of the task in the
// origin scope and settles against the service. The server response
// wins entirely on success; the exact snapshot is restored on failure.
func (c *Coordinator) Update(ctx context.Context, scope cache.Scope, actor, id uuid.UUID, patch model.TaskPatch) *Settlement {
	key := id.String()
	snapshot := c.store.SnapshotWhere(scope, matchKey(key))
	c.store.Patch(scope, matchKey(key), func(entry *cache.Entry) {
		entry.Merge(key, func(t *model.Task) {
			patch.Apply(t)
			t.Version++
		})
	})

	version, callCtx := c.supersede(ctx, key)
	settlement := newSettlement()
	go func() {
		confirmed, err := c.svc.Update(callCtx, id, patch)
		c.settleMutation(scope, actor, key, version, confirmed, err, snapshot, settlement, events.TaskUpdated, "")
	}()
	return settlement
}

// ChangeStatus is the user-facing mutation: only the status field moves.
func (c *Coordinator) ChangeStatus(ctx context.Context, scope cache.Scope, actor, id uuid.UUID, status model.TaskStatus) *Settlement {
	key := id.String()
	snapshot := c.store.SnapshotWhere(scope, matchKey(key))
	c.store.Patch(scope, matchKey(key), func(entry *cache.Entry) {
		entry.Merge(key, func(t *model.Task) {
			t.Status = status
			t.Version++
		})
	})

	version, callCtx := c.supersede(ctx, key)
	settlement := newSettlement()
	go func() {
		confirmed, err := c.svc.ChangeStatus(callCtx, id, status)
		c.settleMutation(scope, actor, key, version, confirmed, err, snapshot, settlement, events.TaskStatusChanged, status)
	}()
	return settlement
}

// settleMutation is the shared settle path for update and status change.
func (c *Coordinator) settleMutation(scope cache.Scope, actor uuid.UUID, key string, version int64,
	confirmed *model.Task, err error, snapshot map[string]*cache.Entry, s *Settlement,
	eventType events.Type, newStatus model.TaskStatus) {

	c.clearInflight(key)
	if !c.settleAllowed(key, version) {
		log.Printf("sync: discarding stale settlement for task %s (version %d superseded)", key, version)
		s.deliver(confirmed, err)
		return
	}
	if err != nil {
		c.store.RestoreEntries(scope, snapshot)
		s.deliver(nil, err)
		return
	}

	replacement := confirmed.Clone()
	c.store.Patch(scope, matchKey(key), func(entry *cache.Entry) {
		entry.Merge(key, func(t *model.Task) {
			*t = replacement.Clone()
		})
	})
	c.store.Invalidate(scope, FilterSetPrefix)

	c.bus.Publish(events.Event{
		Type:       eventType,
		TaskID:     confirmed.ID,
		TaskName:   confirmed.Name,
		AssignedTo: confirmed.AssignedTo,
		CreatedBy:  confirmed.CreatedBy,
		ActorID:    actor,
		Task:       &replacement,
		NewStatus:  newStatus,
		Origin:     scope,
	})
	s.deliver(confirmed, nil)
}

// Delete removes the task from every cached list of the origin scope,
// decrementing pagination totals, then settles against the service.
func (c *Coordinator) Delete(ctx context.Context, scope cache.Scope, actor, id uuid.UUID) *Settlement {
	key := id.String()
	cached := c.store.Find(scope, key)
	snapshot := c.store.SnapshotWhere(scope, matchKey(key))
	c.store.PatchEvery(scope, func(_ string, entry *cache.Entry) {
		entry.Remove(key)
	})

	version, callCtx := c.supersede(ctx, key)
	settlement := newSettlement()
	go c.settleDelete(callCtx, scope, actor, id, key, version, cached, snapshot, settlement)
	return settlement
}

func (c *Coordinator) settleDelete(ctx context.Context, scope cache.Scope, actor, id uuid.UUID,
	key string, version int64, cached *model.Task, snapshot map[string]*cache.Entry, s *Settlement) {

	err := c.svc.Delete(ctx, id)
	c.clearInflight(key)

	if !c.settleAllowed(key, version) {
		log.Printf("sync: discarding stale settlement for task %s (version %d superseded)", key, version)
		s.deliver(nil, err)
		return
	}
	if err != nil {
		c.store.RestoreEntries(scope, snapshot)
		s.deliver(nil, err)
		return
	}

	c.store.Invalidate(scope, FilterSetPrefix)

	event := events.Event{
		Type:    events.TaskDeleted,
		TaskID:  id,
		ActorID: actor,
		Origin:  scope,
	}
	if cached != nil {
		event.TaskName = cached.Name
		event.AssignedTo = cached.AssignedTo
		event.CreatedBy = cached.CreatedBy
	}
	c.bus.Publish(event)
	s.deliver(nil, nil)
}

// BulkAssign distributes task templates over the selected users and
// creates them server-side. Bulk items settle synchronously: successes
// are kept even when siblings fail, the origin scope is invalidated,
// and one TaskCreated event is published per created task.
func (c *Coordinator) BulkAssign(ctx context.Context, scope cache.Scope, actor uuid.UUID,
	templates []model.Task, userIDs []uuid.UUID) (*BulkResult, error) {

	result, err := c.svc.BulkAssign(ctx, templates, userIDs)
	if err != nil {
		return nil, err
	}
	if len(result.Created) > 0 {
		c.store.Invalidate(scope, FilterSetPrefix)
	}
	for i := range result.Created {
		task := result.Created[i].Clone()
		c.bus.Publish(events.Event{
			Type:       events.TaskCreated,
			TaskID:     task.ID,
			TaskName:   task.Name,
			AssignedTo: task.AssignedTo,
			CreatedBy:  task.CreatedBy,
			ActorID:    actor,
			Task:       &task,
			Origin:     scope,
		})
	}
	return result, nil
}

// reconcile is the cross-scope bus handler: it patches the scope that
// did NOT originate the event, using the payload as an optimistic hint,
// and invalidates that scope so a refetch restores full correctness.
// It never publishes, which is what breaks the feedback loop.
func (c *Coordinator) reconcile(event events.Event) {
	target := otherScope(event.Origin)
	key := event.TaskID.String()

	switch event.Type {
	case events.TaskCreated:
		if event.Task != nil {
			task := event.Task.Clone()
			c.store.PatchEvery(target, func(_ string, entry *cache.Entry) {
				entry.Insert(task.Clone())
			})
		}
	case events.TaskUpdated:
		if event.Task != nil {
			replacement := event.Task.Clone()
			c.store.Patch(target, matchKey(key), func(entry *cache.Entry) {
				entry.Merge(key, func(t *model.Task) {
					*t = replacement.Clone()
				})
			})
		}
	case events.TaskDeleted:
		c.store.PatchEvery(target, func(_ string, entry *cache.Entry) {
			entry.Remove(key)
		})
	case events.TaskStatusChanged:
		c.store.Patch(target, matchKey(key), func(entry *cache.Entry) {
			entry.Merge(key, func(t *model.Task) {
				t.Status = event.NewStatus
			})
		})
	default:
		return
	}
	c.store.Invalidate(target, FilterSetPrefix)
}

// supersede bumps the entity's version, cancels any older in-flight
// request for it, and hands back a context tied to the new attempt.
func (c *Coordinator) supersede(ctx context.Context, key string) (int64, context.Context) {
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[key]++
	if old := c.inflight[key]; old != nil {
		old()
	}
	c.inflight[key] = cancel
	return c.versions[key], callCtx
}

// settleAllowed reports whether the captured version is still current.
// A false result means a newer optimistic mutation has authority and
// this settlement must be dropped.
func (c *Coordinator) settleAllowed(key string, version int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key] == version
}

func (c *Coordinator) clearInflight(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

// adoptKey moves version tracking from a correlation id to the
// server-confirmed identity once a create settles.
func (c *Coordinator) adoptKey(correlation, serverKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[correlation] > c.versions[serverKey] {
		c.versions[serverKey] = c.versions[correlation]
	}
	delete(c.versions, correlation)
}

func (c *Coordinator) registerQuery(scope cache.Scope, filterSet string, q ListQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries[scope][filterSet] = q
}

func (c *Coordinator) lookupQuery(scope cache.Scope, filterSet string) (ListQuery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[scope][filterSet]
	return q, ok
}

// scheduleRefetch is the store's stale hook: refetches are debounced per
// (scope, filter-set) so an invalidation storm costs one query.
func (c *Coordinator) scheduleRefetch(scope cache.Scope, filterSet string) {
	c.debounce.Trigger(string(scope)+"|"+filterSet, func() {
		q, ok := c.lookupQuery(scope, filterSet)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		tasks, pagination, err := c.svc.List(ctx, q)
		if err != nil {
			// Last-known value keeps being served; the entry stays stale.
			log.Printf("sync: refetch of %s/%s failed: %v", scope, filterSet, err)
			return
		}
		c.store.Write(scope, filterSet, tasks, pagination, time.Now())
	})
}

func matchKey(key string) func(*model.Task) bool {
	return func(t *model.Task) bool {
		return t.Key() == key
	}
}

func otherScope(scope cache.Scope) cache.Scope {
	if scope == cache.ScopeAdmin {
		return cache.ScopeUser
	}
	return cache.ScopeAdmin
}
