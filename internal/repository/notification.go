package repository

import (
	"context"
	"errors"
	"time"

	"tidepool/internal/models"
	"tidepool/internal/observability"

	"gorm.io/gorm"
)

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	ListForReceiver(ctx context.Context, receiverID uint, offset, limit int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, receiverID uint) (int64, error)
	// MarkRead flips one record belonging to the receiver.
	MarkRead(ctx context.Context, id, receiverID uint) error
	// MarkAllRead flips every unread record for the receiver and returns the
	// number of rows touched. Other receivers' rows are never affected.
	MarkAllRead(ctx context.Context, receiverID uint) (int64, error)
}

type notificationRepository struct {
	db      *gorm.DB
	repoLog *observability.RepoLogger
}

// NewNotificationRepository returns a new NotificationRepository implementation.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{
		db:      db,
		repoLog: observability.NewRepoLogger("notifications"),
	}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	defer observability.TrackQuery("create", "notifications")()
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		r.repoLog.LogError(ctx, err, "create")
		return err
	}
	r.repoLog.LogCreate(ctx, map[string]interface{}{
		"id":          n.ID,
		"type":        n.Type,
		"receiver_id": n.ReceiverID,
	})
	return nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Notification", id)
		}
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) ListForReceiver(
	ctx context.Context,
	receiverID uint,
	offset, limit int,
) ([]*models.Notification, error) {
	defer observability.TrackQuery("list", "notifications")()
	var ns []*models.Notification
	err := r.db.WithContext(ctx).
		Where("receiver_id = ?", receiverID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&ns).Error
	return ns, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, receiverID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Count(&n).Error
	return n, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, receiverID uint) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND receiver_id = ?", id, receiverID).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Notification", id)
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, receiverID uint) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		return 0, res.Error
	}
	r.repoLog.LogUpdate(ctx, map[string]interface{}{
		"receiver_id": receiverID,
		"rows":        res.RowsAffected,
	})
	return res.RowsAffected, nil
}
