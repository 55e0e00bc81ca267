package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories over one *gorm.DB handle. Inside Transaction
// the callback receives a Store bound to the transaction, so every repository
// it touches commits or rolls back together.
type Store struct {
	db *gorm.DB

	Equipment     *EquipmentRepository
	Bookings      *BookingRepository
	Groups        *GroupBookingRepository
	Payments      *PaymentRepository
	Outbox        *OutboxRepository
	Notifications *NotificationRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Equipment:     NewEquipmentRepository(db),
		Bookings:      NewBookingRepository(db),
		Groups:        NewGroupBookingRepository(db),
		Payments:      NewPaymentRepository(db),
		Outbox:        NewOutboxRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Models lists every persisted model, in migration order.
func Models() []any {
	return []any{
		&equipmentModel{},
		&bookingModel{},
		&groupBookingModel{},
		&groupParticipantModel{},
		&paymentModel{},
		&outboxModel{},
		&notificationModel{},
	}
}
