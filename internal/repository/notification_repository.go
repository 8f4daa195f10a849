package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskflow/internal/model"
)

type NotificationRepository struct {
	db *gorm.DB
}

type NotificationRepositoryInterface interface {
	Create(ctx context.Context, notification *model.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.Notification, int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	HasUnread(ctx context.Context, taskID uuid.UUID, kind model.NotificationType) (bool, error)
	MarkReadByTask(ctx context.Context, taskID uuid.UUID, kind model.NotificationType) error
}

var _ NotificationRepositoryInterface = (*NotificationRepository)(nil)

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a derived notification
func (r *NotificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// ListByUser retrieves a user's notifications, newest first, with the
// total count for pagination.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Notification{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []model.Notification
	result := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&notifications)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return notifications, total, nil
}

// UnreadCount recomputes the unread badge from storage. It is never
// cached separately, so it cannot drift from the list.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND status = ?", userID, model.NotificationUnread).
		Count(&count).Error
	return count, err
}

// MarkRead moves the given notifications of one user from UNREAD to
// READ. Already-read rows are left untouched; the transition is
// monotonic and never reverses.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND id IN ? AND status = ?", userID, ids, model.NotificationUnread).
		Update("status", model.NotificationRead)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead moves every unread notification of one user to READ
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND status = ?", userID, model.NotificationUnread).
		Update("status", model.NotificationRead).Error
}

// HasUnread reports whether the task already has an unread notification
// of the given type. The deadline sweep uses this for idempotence.
func (r *NotificationRepository) HasUnread(ctx context.Context, taskID uuid.UUID, kind model.NotificationType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("task_id = ? AND type = ? AND status = ?", taskID, kind, model.NotificationUnread).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkReadByTask retires all unread notifications of one type for a
// task; DEADLINE_PASSED supersedes DEADLINE_APPROACHING this way.
func (r *NotificationRepository) MarkReadByTask(ctx context.Context, taskID uuid.UUID, kind model.NotificationType) error {
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("task_id = ? AND type = ? AND status = ?", taskID, kind, model.NotificationUnread).
		Update("status", model.NotificationRead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
