package notification

import (
	"log/slog"
	"time"

	"github.com/procurex/requisition-engine/internal"
)

// Service covers the user-facing notification surface: listing, marking read
// and deleting. Only the owning user may touch a notification; anyone else
// gets the same generic error a missing row would produce.
type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) ListNotifications(userID int64, limit, offset int) ([]*Notification, error) {
	rows, err := s.repo.ListByUser(userID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list notifications", "user_id", userID, "error", err)
		return nil, err
	}
	return FromDataModelSlice(rows), nil
}

func (s *Service) UnreadCount(userID int64) (int64, error) {
	return s.repo.UnreadCount(userID)
}

func (s *Service) MarkRead(userID, notificationID int64) (*Notification, error) {
	row, err := s.repo.GetByID(notificationID)
	if err != nil {
		return nil, internal.ErrResourceNotFound
	}
	if row.UserID != userID {
		return nil, internal.ErrResourceNotFound
	}

	if !row.IsRead {
		now := time.Now()
		if err := s.repo.MarkRead(notificationID, now); err != nil {
			s.logger.Error("failed to mark notification read", "notification_id", notificationID, "error", err)
			return nil, err
		}
		row.IsRead = true
		row.ReadAt = &now
	}
	return FromDataModel(row), nil
}

func (s *Service) Delete(userID, notificationID int64) error {
	row, err := s.repo.GetByID(notificationID)
	if err != nil {
		return internal.ErrResourceNotFound
	}
	if row.UserID != userID {
		return internal.ErrResourceNotFound
	}
	return s.repo.Delete(notificationID)
}
