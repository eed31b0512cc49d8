package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wave-social/wave-api/internal/models"
)

// NotificationRepository handles persistence for notification entities.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) (created bool, err error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uint, userID string) (models.Notification, error)
	FindByID(ctx context.Context, id uint) (models.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create inserts the notification unless a row with the same dedupe key
// already exists, in which case the existing row is loaded back into the
// struct and created is false. Retried events therefore never duplicate.
func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(notification)
	if result.Error != nil {
		return false, result.Error
	}

	if result.RowsAffected > 0 {
		return true, nil
	}

	var existing models.Notification
	if err := r.db.WithContext(ctx).Where("dedupe_key = ?", notification.DedupeKey).First(&existing).Error; err != nil {
		return false, err
	}
	*notification = existing
	return false, nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	var notifications []models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}

	return notifications, nil
}

// MarkRead flips the read flag once. Re-marking an already-read
// notification returns it unchanged.
func (r *notificationRepository) MarkRead(ctx context.Context, id uint, userID string) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	if notification.Read {
		return notification, nil
	}

	notification.Read = true
	if err := r.db.WithContext(ctx).Save(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	return notification, nil
}

func (r *notificationRepository) FindByID(ctx context.Context, id uint) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).First(&notification, id).Error; err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}
