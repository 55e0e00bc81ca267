package notification

import (
	"context"
	"time"

	"agrirent/internal/domain"
)

type InboxRepository interface {
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id, userID int64, at time.Time) error
}

// Service reads the inbox the InboxSink writes.
type Service struct {
	inbox InboxRepository
}

func NewService(inbox InboxRepository) *Service {
	return &Service{inbox: inbox}
}

func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]domain.Notification, int64, error) {
	list, err := s.inbox.ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.inbox.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return list, unread, nil
}

func (s *Service) MarkRead(ctx context.Context, id, userID int64) error {
	return s.inbox.MarkRead(ctx, id, userID, time.Now().UTC())
}
