package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskflow/internal/model"
)

// TaskFilter narrows a task listing. Zero values mean "no restriction";
// Viewer limits the result to tasks the viewer created or is assigned.
type TaskFilter struct {
	Search   string
	Status   model.TaskStatus
	Priority model.TaskPriority
	Assignee *uuid.UUID
	Viewer   *uuid.UUID
	Offset   int
	Limit    int
}

type TaskRepository struct {
	db *gorm.DB
}

type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]model.Task, int64, error)
	Save(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListExpiring(ctx context.Context, filter DeadlineFilter) ([]model.Task, error)
}

var _ TaskRepositoryInterface = (*TaskRepository)(nil)

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create adds a new task to the database
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// GetByID retrieves a task by its ID
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	var task model.Task
	result := r.db.WithContext(ctx).First(&task, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, result.Error
	}
	return &task, nil
}

// List retrieves tasks matching the filter, newest first, plus the
// total count for pagination.
func (r *TaskRepository) List(ctx context.Context, filter TaskFilter) ([]model.Task, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Task{})

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.Assignee != nil {
		query = query.Where("assigned_to = ?", *filter.Assignee)
	}
	if filter.Viewer != nil {
		query = query.Where("assigned_to = ? OR created_by = ?", *filter.Viewer, *filter.Viewer)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tasks []model.Task
	result := query.Order("created_at DESC").Offset(filter.Offset).Limit(filter.Limit).Find(&tasks)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return tasks, total, nil
}

// Save persists the full state of an existing task
func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	result := r.db.WithContext(ctx).Save(task)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Delete removes a task by its ID
func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&model.Task{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DeadlineFilter selects assigned, unfinished tasks whose end date falls
// inside (After, Until]. A nil After bounds only from above.
type DeadlineFilter struct {
	After *time.Time
	Until *time.Time
}

// ListExpiring retrieves tasks eligible for deadline notifications:
// assigned, not completed or cancelled, with an end date in the window.
func (r *TaskRepository) ListExpiring(ctx context.Context, filter DeadlineFilter) ([]model.Task, error) {
	query := r.db.WithContext(ctx).
		Where("assigned_to IS NOT NULL").
		Where("end_date IS NOT NULL").
		Where("status NOT IN ?", []model.TaskStatus{model.StatusCompleted, model.StatusCancelled})

	if filter.After != nil {
		query = query.Where("end_date > ?", *filter.After)
	}
	if filter.Until != nil {
		query = query.Where("end_date <= ?", *filter.Until)
	}

	var tasks []model.Task
	if err := query.Order("end_date").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
