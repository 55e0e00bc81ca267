package notification

import (
	"context"
	"errors"

	"agrirent/internal/domain"
	"agrirent/internal/repository"
)

// Sink delivers one event to one user. Delivery is fire-and-forget from the
// point of view of the state change that produced the event.
type Sink interface {
	Notify(ctx context.Context, userID int64, event domain.EventType, payload map[string]any) error
}

// OutboxSink is implemented by sinks that can tell retries of the same outbox
// event apart. The dispatcher prefers Deliver over Notify.
type OutboxSink interface {
	Deliver(ctx context.Context, ev domain.OutboxEvent) error
}

type InboxStore interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// InboxSink stores events as rows of the user's notification inbox.
type InboxSink struct {
	store InboxStore
}

func NewInboxSink(store InboxStore) *InboxSink {
	return &InboxSink{store: store}
}

func (s *InboxSink) Notify(ctx context.Context, userID int64, event domain.EventType, payload map[string]any) error {
	return s.store.Create(ctx, inboxRow(userID, event, payload))
}

// Deliver stores at most one inbox row per outbox event, so a dispatcher
// retry caused by another sink does not duplicate it.
func (s *InboxSink) Deliver(ctx context.Context, ev domain.OutboxEvent) error {
	n := inboxRow(ev.UserID, ev.Event, ev.Payload)
	if ev.ID != 0 {
		n.OutboxID = &ev.ID
	}
	if err := s.store.Create(ctx, n); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	return nil
}

func inboxRow(userID int64, event domain.EventType, payload map[string]any) *domain.Notification {
	title, message := Describe(event, payload)
	return &domain.Notification{
		UserID:  userID,
		Event:   event,
		Title:   title,
		Message: message,
		Data:    payload,
	}
}
