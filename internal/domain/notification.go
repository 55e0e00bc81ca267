package domain

import "time"

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingUpdated   EventType = "booking.updated"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingActive    EventType = "booking.active"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingPaid      EventType = "booking.paid"

	EventGroupParticipantJoined EventType = "group.participant_joined"
	EventGroupParticipantLeft   EventType = "group.participant_left"
	EventGroupFilled            EventType = "group.filled"
	EventGroupPaymentReceived   EventType = "group.payment_received"
	EventGroupReady             EventType = "group.ready_for_confirmation"
	EventGroupShareOutstanding  EventType = "group.share_outstanding"
	EventGroupConfirmed         EventType = "group.confirmed"
	EventGroupActive            EventType = "group.active"
	EventGroupCompleted         EventType = "group.completed"
	EventGroupCancelled         EventType = "group.cancelled"

	EventPaymentFailed EventType = "payment.failed"
)

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxDelivered OutboxStatus = "delivered"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxEvent is written in the same transaction as the state change it
// describes and delivered after commit.
type OutboxEvent struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	Event       EventType      `json:"event"`
	Payload     map[string]any `json:"payload"`
	Status      OutboxStatus   `json:"status"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
}

type Notification struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Event     EventType      `json:"event"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	// OutboxID is the outbox event the row was delivered from, if any.
	OutboxID *int64 `json:"-"`
}
