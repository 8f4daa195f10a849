package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/internal/sync"
)

// TaskService is the server-truth implementation of the coordinator's
// contract, backed by the task and user repositories. Repository errors
// are classified into the sync failure classes here, so nothing above
// this layer inspects storage details.
type TaskService struct {
	tasks repository.TaskRepositoryInterface
	users repository.UserRepositoryInterface
}

var _ sync.TaskService = (*TaskService)(nil)

func NewTaskService(tasks repository.TaskRepositoryInterface, users repository.UserRepositoryInterface) *TaskService {
	return &TaskService{tasks: tasks, users: users}
}

func (s *TaskService) List(ctx context.Context, q sync.ListQuery) ([]model.Task, model.Pagination, error) {
	q = q.Normalize()
	filter := repository.TaskFilter{
		Search:   q.Search,
		Status:   q.Status,
		Priority: q.Priority,
		Assignee: q.Assignee,
		Viewer:   q.Viewer,
		Offset:   (q.Page - 1) * q.Limit,
		Limit:    q.Limit,
	}
	tasks, total, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("%w: list tasks: %v", sync.ErrNetwork, err)
	}
	pagination := model.Pagination{
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: model.Pages(total, q.Limit),
	}
	return tasks, pagination, nil
}

func (s *TaskService) Create(ctx context.Context, draft *model.Task) (*model.Task, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	task := draft.Clone()
	task.ID = uuid.New()
	task.Correlation = ""
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, fmt.Errorf("%w: create task: %v", sync.ErrNetwork, err)
	}
	return &task, nil
}

func (s *TaskService) Update(ctx context.Context, id uuid.UUID, patch model.TaskPatch) (*model.Task, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", sync.ErrValidation, *patch.Status)
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", sync.ErrValidation, *patch.Priority)
	}

	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	patch.Apply(task)
	task.Version++
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, mapLookupErr(err)
	}
	return task, nil
}

func (s *TaskService) ChangeStatus(ctx context.Context, id uuid.UUID, status model.TaskStatus) (*model.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", sync.ErrValidation, status)
	}
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	task.Status = status
	task.Version++
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, mapLookupErr(err)
	}
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		return mapLookupErr(err)
	}
	return nil
}

// BulkAssign distributes the templates over the selected users: each of
// U users receives floor(N/U) tasks, and the N mod U remaining ones go
// to the first that-many users in selection order, so every template is
// assigned. Items fail independently: a failed creation is recorded in
// the result's aggregate error while its siblings are kept.
func (s *TaskService) BulkAssign(ctx context.Context, templates []model.Task, userIDs []uuid.UUID) (*sync.BulkResult, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("%w: no task templates given", sync.ErrValidation)
	}
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no users selected", sync.ErrValidation)
	}

	users, err := s.users.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve users: %v", sync.ErrNetwork, err)
	}
	known := make(map[uuid.UUID]bool, len(users))
	for _, u := range users {
		known[u.ID] = true
	}
	for _, id := range userIDs {
		if !known[id] {
			return nil, fmt.Errorf("%w: unknown user %s", sync.ErrValidation, id)
		}
	}

	base := len(templates) / len(userIDs)
	remainder := len(templates) % len(userIDs)

	result := &sync.BulkResult{}
	var failures *multierror.Error
	next := 0
	for i, userID := range userIDs {
		share := base
		if i < remainder {
			share++
		}
		assigned := 0
		for j := 0; j < share; j++ {
			task := templates[next].Clone()
			next++
			task.ID = uuid.New()
			task.AssignedTo = model.UUIDPtr(userID)
			if task.Status == "" {
				task.Status = model.StatusTodo
			}
			if task.Priority == "" {
				task.Priority = model.PriorityMedium
			}
			if err := validateDraft(&task); err != nil {
				failures = multierror.Append(failures, fmt.Errorf("task %q for user %s: %w", task.Name, userID, err))
				continue
			}
			if err := s.tasks.Create(ctx, &task); err != nil {
				failures = multierror.Append(failures, fmt.Errorf("task %q for user %s: %w", task.Name, userID, err))
				continue
			}
			result.Created = append(result.Created, task)
			assigned++
		}
		result.PerUser = append(result.PerUser, sync.BulkUserCount{UserID: userID, Count: assigned})
	}
	result.Err = failures.ErrorOrNil()
	return result, nil
}

func validateDraft(draft *model.Task) error {
	if draft.Name == "" {
		return fmt.Errorf("%w: task name is required", sync.ErrValidation)
	}
	if draft.Status != "" && !draft.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", sync.ErrValidation, draft.Status)
	}
	if draft.Priority != "" && !draft.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", sync.ErrValidation, draft.Priority)
	}
	if draft.CreatedBy == uuid.Nil {
		return fmt.Errorf("%w: task creator is required", sync.ErrValidation)
	}
	return nil
}

func mapLookupErr(err error) error {
	if err == repository.ErrTaskNotFound {
		return fmt.Errorf("%w: %v", sync.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", sync.ErrNetwork, err)
}
