package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"taskflow/internal/events"
	"taskflow/internal/model"
	"taskflow/internal/repository"
)

// Deriver consumes task lifecycle events and turns them into
// notification records. It also owns the read-state lifecycle
// (UNREAD -> READ, never backward) and the periodic deadline sweep.
type Deriver struct {
	notifications repository.NotificationRepositoryInterface
	tasks         repository.TaskRepositoryInterface
	lookahead     time.Duration
	scanInterval  time.Duration

	sub *events.Subscription
	now func() time.Time
}

func NewDeriver(
	notifications repository.NotificationRepositoryInterface,
	tasks repository.TaskRepositoryInterface,
	lookahead time.Duration,
	scanInterval time.Duration,
) *Deriver {
	return &Deriver{
		notifications: notifications,
		tasks:         tasks,
		lookahead:     lookahead,
		scanInterval:  scanInterval,
		now:           time.Now,
	}
}

// Attach subscribes the deriver to the task lifecycle events.
func (d *Deriver) Attach(bus *events.Bus) {
	d.sub = bus.Subscribe(d.handle,
		events.TaskCreated, events.TaskUpdated, events.TaskDeleted, events.TaskStatusChanged)
}

func (d *Deriver) Detach() {
	if d.sub != nil {
		d.sub.Unsubscribe()
	}
}

// handle derives notifications from one lifecycle event. Derivation is
// best-effort: a failed insert is logged, never propagated back to the
// mutation that triggered it.
func (d *Deriver) handle(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch event.Type {
	case events.TaskCreated:
		if event.AssignedTo != nil {
			d.create(ctx, &model.Notification{
				UserID:  *event.AssignedTo,
				Type:    model.NotificationTaskAssigned,
				TaskID:  model.UUIDPtr(event.TaskID),
				Title:   "New task assigned",
				Message: fmt.Sprintf("You have been assigned the task %q", event.TaskName),
			})
		}
	case events.TaskUpdated:
		if event.CreatedBy != uuid.Nil && event.CreatedBy != event.ActorID {
			d.create(ctx, &model.Notification{
				UserID:  event.CreatedBy,
				Type:    model.NotificationTaskUpdated,
				TaskID:  model.UUIDPtr(event.TaskID),
				Title:   "Task updated",
				Message: fmt.Sprintf("The task %q has been updated", event.TaskName),
			})
		}
	case events.TaskStatusChanged:
		if event.CreatedBy != uuid.Nil && event.CreatedBy != event.ActorID {
			d.create(ctx, &model.Notification{
				UserID:  event.CreatedBy,
				Type:    model.NotificationTaskUpdated,
				TaskID:  model.UUIDPtr(event.TaskID),
				Title:   "Task status changed",
				Message: fmt.Sprintf("The task %q moved to %s", event.TaskName, event.NewStatus),
			})
			if event.NewStatus == model.StatusCompleted {
				d.create(ctx, &model.Notification{
					UserID:  event.CreatedBy,
					Type:    model.NotificationTaskCompleted,
					TaskID:  model.UUIDPtr(event.TaskID),
					Title:   "Task completed",
					Message: fmt.Sprintf("The task %q has been completed", event.TaskName),
				})
			}
		}
	case events.TaskDeleted:
		// No notification is derived for deletions; the cache layers
		// reconcile and the task's history keeps its past notifications.
	}
}

func (d *Deriver) create(ctx context.Context, notification *model.Notification) {
	notification.Status = model.NotificationUnread
	if err := d.notifications.Create(ctx, notification); err != nil {
		log.Printf("notification: failed to record %s for user %s: %v",
			notification.Type, notification.UserID, err)
	}
}

// List returns one page of a user's notifications together with the
// unread count, which is always recomputed from storage.
func (d *Deriver) List(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.Notification, model.Pagination, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	notifications, total, err := d.notifications.ListByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, model.Pagination{}, 0, err
	}
	unread, err := d.notifications.UnreadCount(ctx, userID)
	if err != nil {
		return nil, model.Pagination{}, 0, err
	}
	pagination := model.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: model.Pages(total, limit),
	}
	return notifications, pagination, unread, nil
}

// MarkRead transitions the given notifications to READ.
func (d *Deriver) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	return d.notifications.MarkRead(ctx, userID, ids)
}

// MarkAllRead transitions every unread notification of the user to READ.
func (d *Deriver) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return d.notifications.MarkAllRead(ctx, userID)
}

// Run executes the deadline sweep on a fixed interval until ctx ends.
func (d *Deriver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep derives deadline notifications once. A task whose end date falls
// within the lookahead window gets at most one unresolved
// DEADLINE_APPROACHING; a task whose end date has passed gets
// DEADLINE_PASSED, superseding any unread DEADLINE_APPROACHING.
func (d *Deriver) Sweep(ctx context.Context) {
	now := d.now()
	horizon := now.Add(d.lookahead)

	approaching, err := d.tasks.ListExpiring(ctx, repository.DeadlineFilter{After: &now, Until: &horizon})
	if err != nil {
		log.Printf("notification: deadline sweep (approaching) failed: %v", err)
	} else {
		for i := range approaching {
			d.deriveDeadline(ctx, &approaching[i], model.NotificationDeadlineApproaching,
				"Deadline approaching",
				fmt.Sprintf("The task %q is due %s", approaching[i].Name, approaching[i].EndDate.Format("2006-01-02 15:04")))
		}
	}

	passed, err := d.tasks.ListExpiring(ctx, repository.DeadlineFilter{Until: &now})
	if err != nil {
		log.Printf("notification: deadline sweep (passed) failed: %v", err)
		return
	}
	for i := range passed {
		task := &passed[i]
		if err := d.notifications.MarkReadByTask(ctx, task.ID, model.NotificationDeadlineApproaching); err != nil {
			log.Printf("notification: failed to supersede approaching notice for task %s: %v", task.ID, err)
		}
		d.deriveDeadline(ctx, task, model.NotificationDeadlinePassed,
			"Deadline passed",
			fmt.Sprintf("The task %q was due %s", task.Name, task.EndDate.Format("2006-01-02 15:04")))
	}
}

func (d *Deriver) deriveDeadline(ctx context.Context, task *model.Task, kind model.NotificationType, title, message string) {
	if task.AssignedTo == nil {
		return
	}
	exists, err := d.notifications.HasUnread(ctx, task.ID, kind)
	if err != nil {
		log.Printf("notification: idempotence check for task %s failed: %v", task.ID, err)
		return
	}
	if exists {
		return
	}
	d.create(ctx, &model.Notification{
		UserID:  *task.AssignedTo,
		Type:    kind,
		TaskID:  model.UUIDPtr(task.ID),
		Title:   title,
		Message: message,
	})
}
