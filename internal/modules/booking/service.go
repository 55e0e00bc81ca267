package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"agrirent/internal/domain"
	"agrirent/internal/lock"
	"agrirent/internal/modules/notification"
	"agrirent/internal/modules/schedule"
	"agrirent/internal/pkg/validator"
	"agrirent/internal/repository"
)

// Service owns the single-renter booking lifecycle:
//
//	PENDING -> CONFIRMED -> ACTIVE -> COMPLETED
//	PENDING | CONFIRMED -> CANCELLED
//
// PENDING does not hold the calendar, so the overlap check runs both when a
// request is created and when the owner confirms it.
type Service struct {
	store *repository.Store
	guard *lock.Guard
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewService(store *repository.Store, guard *lock.Guard, log logrus.FieldLogger) *Service {
	return &Service{
		store: store,
		guard: guard,
		log:   log.WithField("module", "booking"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateBooking(ctx context.Context, actor domain.Actor, req CreateBookingRequest) (*domain.Booking, error) {
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	start, end := req.StartDate.UTC(), req.EndDate.UTC()
	if err := schedule.ValidateWindow(start, end, s.now()); err != nil {
		return nil, err
	}

	var created *domain.Booking
	err := s.guard.Run(ctx, req.EquipmentID, func(tx *repository.Store) error {
		eq, err := tx.Equipment.GetForUpdate(ctx, req.EquipmentID)
		if err != nil {
			return err
		}
		if !eq.IsAvailable {
			return domain.FieldError("equipment_id", "equipment is not available for booking")
		}

		held, err := tx.HoldingReservations(ctx, eq.ID)
		if err != nil {
			return err
		}
		if err := schedule.Check(held, start, end, nil); err != nil {
			return err
		}

		days := schedule.BillableDays(start, end)
		b := &domain.Booking{
			EquipmentID:   eq.ID,
			FarmerID:      actor.UserID,
			StartDate:     start,
			EndDate:       end,
			TotalDays:     days,
			PricePerDay:   eq.PricePerDay,
			TotalPrice:    eq.PricePerDay * days,
			Status:        domain.BookingPending,
			PaymentStatus: domain.PaymentPending,
			Notes:         strings.TrimSpace(req.Notes),
		}
		if err := tx.Bookings.Create(ctx, b); err != nil {
			return err
		}

		created = b
		return tx.Outbox.Enqueue(ctx, notification.For(domain.EventBookingCreated, payload(b), eq.OwnerID)...)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id":   created.ID,
		"equipment_id": created.EquipmentID,
		"farmer_id":    created.FarmerID,
	}).Info("booking created")
	return created, nil
}

// SetBookingStatus moves a booking along the lifecycle. CANCELLED is routed to
// CancelBooking.
func (s *Service) SetBookingStatus(ctx context.Context, bookingID int64, actor domain.Actor, target domain.BookingStatus) (*domain.Booking, error) {
	if target == domain.BookingCancelled {
		return s.CancelBooking(ctx, bookingID, actor, "")
	}

	current, err := s.store.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var updated *domain.Booking
	err = s.guard.Run(ctx, current.EquipmentID, func(tx *repository.Store) error {
		b, err := tx.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(target) {
			return &domain.TransitionError{From: string(b.Status), To: string(target)}
		}

		eq, err := tx.Equipment.GetByID(ctx, b.EquipmentID)
		if err != nil {
			return err
		}
		if !actor.Is(eq.OwnerID) {
			return domain.ErrForbidden
		}

		now := s.now()
		var event domain.EventType
		switch target {
		case domain.BookingConfirmed:
			held, err := tx.HoldingReservations(ctx, b.EquipmentID)
			if err != nil {
				return err
			}
			self := domain.ReservationRef{Kind: domain.ReservationBooking, ID: b.ID}
			if err := schedule.Check(held, b.StartDate, b.EndDate, &self); err != nil {
				return err
			}
			b.ConfirmedAt = &now
			event = domain.EventBookingConfirmed
		case domain.BookingActive:
			b.ActivatedAt = &now
			event = domain.EventBookingActive
		case domain.BookingCompleted:
			b.CompletedAt = &now
			event = domain.EventBookingCompleted
		}

		b.Status = target
		if err := tx.Bookings.Save(ctx, b); err != nil {
			return err
		}

		recipients := counterparties(actor, b.FarmerID, eq.OwnerID)
		if target == domain.BookingCompleted {
			recipients = []int64{b.FarmerID, eq.OwnerID}
		}
		updated = b
		return tx.Outbox.Enqueue(ctx, notification.For(event, payload(b), recipients...)...)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": updated.ID,
		"status":     updated.Status,
		"actor_id":   actor.UserID,
	}).Info("booking status changed")
	return updated, nil
}

// CancelBooking is allowed to the renter or an admin while the booking is
// PENDING or CONFIRMED.
func (s *Service) CancelBooking(ctx context.Context, bookingID int64, actor domain.Actor, reason string) (*domain.Booking, error) {
	current, err := s.store.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var cancelled *domain.Booking
	err = s.guard.Run(ctx, current.EquipmentID, func(tx *repository.Store) error {
		b, err := tx.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(domain.BookingCancelled) {
			return &domain.TransitionError{From: string(b.Status), To: string(domain.BookingCancelled)}
		}
		if !actor.Is(b.FarmerID) {
			return domain.ErrForbidden
		}

		eq, err := tx.Equipment.GetByID(ctx, b.EquipmentID)
		if err != nil {
			return err
		}

		now := s.now()
		b.Status = domain.BookingCancelled
		b.CancelledAt = &now
		b.CancellationReason = strings.TrimSpace(reason)
		if err := tx.Bookings.Save(ctx, b); err != nil {
			return err
		}

		cancelled = b
		return tx.Outbox.Enqueue(ctx, notification.For(domain.EventBookingCancelled, payload(b),
			counterparties(actor, b.FarmerID, eq.OwnerID)...)...)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": cancelled.ID,
		"actor_id":   actor.UserID,
	}).Info("booking cancelled")
	return cancelled, nil
}

// UpdateBooking lets the renter move dates or edit notes until the booking is
// paid. New dates are checked against the calendar and repriced at the
// snapshotted daily rate.
func (s *Service) UpdateBooking(ctx context.Context, bookingID int64, actor domain.Actor, req UpdateBookingRequest) (*domain.Booking, error) {
	if err := validator.Struct(req); err != nil {
		return nil, err
	}

	current, err := s.store.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var updated *domain.Booking
	err = s.guard.Run(ctx, current.EquipmentID, func(tx *repository.Store) error {
		b, err := tx.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !actor.Is(b.FarmerID) {
			return domain.ErrForbidden
		}
		if b.PaymentStatus != domain.PaymentPending {
			return ErrAlreadyPaid
		}
		if b.Status != domain.BookingPending && b.Status != domain.BookingConfirmed {
			return ErrNotEditable
		}

		start, end := b.StartDate, b.EndDate
		if req.StartDate != nil {
			start = req.StartDate.UTC()
		}
		if req.EndDate != nil {
			end = req.EndDate.UTC()
		}

		if !start.Equal(b.StartDate) || !end.Equal(b.EndDate) {
			if err := schedule.ValidateWindow(start, end, s.now()); err != nil {
				return err
			}
			held, err := tx.HoldingReservations(ctx, b.EquipmentID)
			if err != nil {
				return err
			}
			self := domain.ReservationRef{Kind: domain.ReservationBooking, ID: b.ID}
			if err := schedule.Check(held, start, end, &self); err != nil {
				return err
			}

			b.StartDate, b.EndDate = start, end
			b.TotalDays = schedule.BillableDays(start, end)
			b.TotalPrice = b.PricePerDay * b.TotalDays
			// a checkout opened for the old price is no longer honoured
			b.PaymentReference = ""
		}
		if req.Notes != nil {
			b.Notes = strings.TrimSpace(*req.Notes)
		}

		if err := tx.Bookings.Save(ctx, b); err != nil {
			return err
		}

		eq, err := tx.Equipment.GetByID(ctx, b.EquipmentID)
		if err != nil {
			return err
		}
		updated = b
		return tx.Outbox.Enqueue(ctx, notification.For(domain.EventBookingUpdated, payload(b), eq.OwnerID)...)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetBooking is visible to the renter, the equipment owner and admins.
func (s *Service) GetBooking(ctx context.Context, bookingID int64, actor domain.Actor) (*domain.Booking, error) {
	b, err := s.store.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Is(b.FarmerID) {
		return b, nil
	}
	eq, err := s.store.Equipment.GetByID(ctx, b.EquipmentID)
	if err != nil {
		return nil, err
	}
	if !actor.Is(eq.OwnerID) {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

func (s *Service) ListMyBookings(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Booking, error) {
	return s.store.Bookings.ListByFarmer(ctx, actor.UserID, limit, offset)
}

func (s *Service) ListEquipmentBookings(ctx context.Context, equipmentID int64, actor domain.Actor, limit, offset int) ([]domain.Booking, error) {
	eq, err := s.store.Equipment.GetByID(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	if !actor.Is(eq.OwnerID) {
		return nil, domain.ErrForbidden
	}
	return s.store.Bookings.ListByEquipment(ctx, equipmentID, limit, offset)
}

// GetSchedule returns the reservations holding the equipment in [from, to).
// Zero bounds are open.
func (s *Service) GetSchedule(ctx context.Context, equipmentID int64, from, to time.Time) ([]domain.ReservedInterval, error) {
	if _, err := s.store.Equipment.GetByID(ctx, equipmentID); err != nil {
		return nil, err
	}
	held, err := s.store.HoldingReservations(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	return schedule.Within(held, from, to), nil
}

// ApplyPayment records a verified gateway result on the booking. It runs inside
// the caller's transaction and reports whether the booking changed.
func (s *Service) ApplyPayment(ctx context.Context, tx *repository.Store, p *domain.Payment, paid bool) (bool, error) {
	if p.BookingID == nil {
		return false, fmt.Errorf("payment %s has no booking", p.Reference)
	}
	b, err := tx.Bookings.GetForUpdate(ctx, *p.BookingID)
	if err != nil {
		return false, err
	}

	entry := s.log.WithFields(logrus.Fields{"booking_id": b.ID, "reference": p.Reference})
	if b.PaymentReference != p.Reference {
		entry.Warn("payment verified for a superseded checkout, booking left unchanged")
		return false, nil
	}
	if b.Status.IsTerminal() {
		entry.WithField("status", b.Status).Warn("payment verified for a closed booking, refund required")
		return false, nil
	}

	eq, err := tx.Equipment.GetByID(ctx, b.EquipmentID)
	if err != nil {
		return false, err
	}

	if !paid {
		return false, tx.Outbox.Enqueue(ctx, notification.For(domain.EventPaymentFailed, payload(b), b.FarmerID)...)
	}
	if b.PaymentStatus == domain.PaymentPaid {
		return false, nil
	}

	b.PaymentStatus = domain.PaymentPaid
	if err := tx.Bookings.Save(ctx, b); err != nil {
		return false, err
	}
	if err := tx.Outbox.Enqueue(ctx, notification.For(domain.EventBookingPaid, payload(b), b.FarmerID, eq.OwnerID)...); err != nil {
		return false, err
	}
	return true, nil
}

// counterparties returns who to tell about an action: the other side of the
// rental, or both sides when an admin acted.
func counterparties(actor domain.Actor, renterID, ownerID int64) []int64 {
	switch {
	case actor.UserID == renterID && !actor.IsAdmin():
		return []int64{ownerID}
	case actor.UserID == ownerID && !actor.IsAdmin():
		return []int64{renterID}
	}
	return []int64{renterID, ownerID}
}

func payload(b *domain.Booking) map[string]any {
	return map[string]any{
		"booking_id":   b.ID,
		"equipment_id": b.EquipmentID,
		"status":       string(b.Status),
		"start_date":   b.StartDate.Format(time.RFC3339),
		"end_date":     b.EndDate.Format(time.RFC3339),
		"total_price":  b.TotalPrice,
	}
}
