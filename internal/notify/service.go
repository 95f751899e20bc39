package notify

import (
	"context"

	"tidepool/internal/models"
	"tidepool/internal/repository"
)

// Service owns the read and mark-read surface of a user's notification inbox.
type Service struct {
	repo repository.NotificationRepository
}

func NewService(repo repository.NotificationRepository) *Service {
	return &Service{repo: repo}
}

// List returns one page of the receiver's notifications, newest first.
func (s *Service) List(ctx context.Context, receiverID uint, pageNo, pageSize int) ([]*models.Notification, error) {
	if pageNo <= 0 {
		pageNo = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.ListForReceiver(ctx, receiverID, (pageNo-1)*pageSize, pageSize)
}

// CountUnread returns how many of the receiver's notifications are unread.
func (s *Service) CountUnread(ctx context.Context, receiverID uint) (int64, error) {
	return s.repo.CountUnread(ctx, receiverID)
}

// MarkRead marks one notification read. The receiver guard means a user can
// only flip their own rows.
func (s *Service) MarkRead(ctx context.Context, id, receiverID uint) error {
	return s.repo.MarkRead(ctx, id, receiverID)
}

// MarkAllRead marks every unread notification for the receiver and returns
// the number touched.
func (s *Service) MarkAllRead(ctx context.Context, receiverID uint) (int64, error) {
	return s.repo.MarkAllRead(ctx, receiverID)
}
