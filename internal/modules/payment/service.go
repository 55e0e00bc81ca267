// Package payment opens gateway checkouts for bookings and group shares and
// applies verified outcomes exactly once.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"agrirent/internal/domain"
	"agrirent/internal/lock"
	"agrirent/internal/modules/booking"
	"agrirent/internal/modules/groupbooking"
	"agrirent/internal/repository"
)

// BookingApplier records a verified payment on a booking inside tx.
type BookingApplier interface {
	ApplyPayment(ctx context.Context, tx *repository.Store, p *domain.Payment, paid bool) (bool, error)
}

// ParticipantApplier records a verified payment on a group participant inside tx.
type ParticipantApplier interface {
	ApplyParticipantPayment(ctx context.Context, tx *repository.Store, p *domain.Payment, paid bool) (bool, error)
}

type Service struct {
	store         *repository.Store
	guard         *lock.Guard
	gate          Gate
	bookings      BookingApplier
	groups        ParticipantApplier
	webhookSecret string
	log           logrus.FieldLogger
	now           func() time.Time
	newReference  func(prefix string) string
}

func NewService(store *repository.Store, guard *lock.Guard, gate Gate, bookings BookingApplier, groups ParticipantApplier, webhookSecret string, log logrus.FieldLogger) *Service {
	return &Service{
		store:         store,
		guard:         guard,
		gate:          gate,
		bookings:      bookings,
		groups:        groups,
		webhookSecret: webhookSecret,
		log:           log.WithField("module", "payment"),
		now:           func() time.Time { return time.Now().UTC() },
		newReference:  func(prefix string) string { return prefix + uuid.NewString() },
	}
}

// InitiateBookingPayment opens a checkout for the full price of a booking.
// The gateway is called outside any transaction; nothing is written when it
// fails.
func (s *Service) InitiateBookingPayment(ctx context.Context, bookingID int64, actor domain.Actor) (*CheckoutResponse, error) {
	b, err := s.store.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := bookingPayable(b, actor); err != nil {
		return nil, err
	}

	amount := b.TotalPrice
	reference := s.newReference("bk_")
	init, err := s.gate.Initialize(ctx, amount, reference)
	if err != nil {
		return nil, err
	}

	p := &domain.Payment{
		Reference:       reference,
		Kind:            domain.PaymentForBooking,
		EquipmentID:     b.EquipmentID,
		BookingID:       &b.ID,
		PayerID:         actor.UserID,
		Amount:          amount,
		Status:          domain.PaymentRecordInitialized,
		ProviderOrderID: init.ProviderOrderID,
		RedirectURL:     init.RedirectURL,
	}
	err = s.guard.Run(ctx, b.EquipmentID, func(tx *repository.Store) error {
		current, err := tx.Bookings.GetForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		if err := bookingPayable(current, actor); err != nil {
			return err
		}
		if current.TotalPrice != amount {
			return ErrAmountChanged
		}
		if err := tx.Payments.Create(ctx, p); err != nil {
			return err
		}
		current.PaymentReference = reference
		return tx.Bookings.Save(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"reference":  reference,
		"amount":     amount,
	}).Info("booking checkout opened")
	return &CheckoutResponse{Payment: p, RedirectURL: p.RedirectURL}, nil
}

// InitiateParticipantPayment opens a checkout for what the actor still owes on
// their share of a group booking.
func (s *Service) InitiateParticipantPayment(ctx context.Context, groupID int64, actor domain.Actor) (*CheckoutResponse, error) {
	g, err := s.store.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	participant, err := s.store.Groups.GetParticipant(ctx, groupID, actor.UserID)
	if err != nil {
		return nil, participantErr(err)
	}
	if err := participantPayable(g, participant); err != nil {
		return nil, err
	}

	amount := participant.Outstanding()
	reference := s.newReference("gp_")
	init, err := s.gate.Initialize(ctx, amount, reference)
	if err != nil {
		return nil, err
	}

	p := &domain.Payment{
		Reference:       reference,
		Kind:            domain.PaymentForParticipant,
		EquipmentID:     g.EquipmentID,
		GroupBookingID:  &g.ID,
		ParticipantID:   &participant.ID,
		PayerID:         actor.UserID,
		Amount:          amount,
		Status:          domain.PaymentRecordInitialized,
		ProviderOrderID: init.ProviderOrderID,
		RedirectURL:     init.RedirectURL,
	}
	err = s.guard.Run(ctx, g.EquipmentID, func(tx *repository.Store) error {
		group, err := tx.Groups.GetForUpdate(ctx, g.ID)
		if err != nil {
			return err
		}
		current, err := tx.Groups.GetParticipant(ctx, g.ID, actor.UserID)
		if err != nil {
			return participantErr(err)
		}
		if err := participantPayable(group, current); err != nil {
			return err
		}
		if current.Outstanding() != amount {
			return ErrAmountChanged
		}
		if err := tx.Payments.Create(ctx, p); err != nil {
			return err
		}
		current.PaymentReference = reference
		return tx.Groups.SaveParticipant(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"group_booking_id": g.ID,
		"participant_id":   participant.ID,
		"reference":        reference,
		"amount":           amount,
	}).Info("participant checkout opened")
	return &CheckoutResponse{Payment: p, RedirectURL: p.RedirectURL}, nil
}

// Get returns a payment to its payer or an admin.
func (s *Service) Get(ctx context.Context, reference string, actor domain.Actor) (*domain.Payment, error) {
	p, err := s.store.Payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !actor.Is(p.PayerID) {
		return nil, domain.ErrForbidden
	}
	return p, nil
}

// Verify polls the gateway for a checkout the payer returned from. A settled
// payment is returned as is.
func (s *Service) Verify(ctx context.Context, reference string, actor domain.Actor) (*domain.Payment, error) {
	p, err := s.Get(ctx, reference, actor)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PaymentRecordPaid {
		return p, nil
	}

	v, err := s.gate.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if v.Pending {
		return p, nil
	}
	return s.OnPaymentVerified(ctx, reference, v.Paid, v.Amount)
}

// OnPaymentVerified applies a gateway outcome. Callbacks are at-least-once:
// repeating an outcome already recorded changes nothing. A known amount below
// the expected one counts as a failure. A failed payment may still turn paid
// when the payer retries the same checkout.
func (s *Service) OnPaymentVerified(ctx context.Context, reference string, paid bool, amount int64) (*domain.Payment, error) {
	current, err := s.store.Payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	var result *domain.Payment
	applied := false
	err = s.guard.Run(ctx, current.EquipmentID, func(tx *repository.Store) error {
		p, err := tx.Payments.GetByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		result = p
		if p.Status == domain.PaymentRecordPaid || (p.Status == domain.PaymentRecordFailed && !paid) {
			return nil
		}

		now := s.now()
		p.VerifiedAt = &now
		p.PaidAmount = amount
		p.FailureReason = ""
		switch {
		case paid && amount > 0 && amount < p.Amount:
			paid = false
			p.Status = domain.PaymentRecordFailed
			p.FailureReason = fmt.Sprintf("underpaid: %d of %d", amount, p.Amount)
		case paid:
			p.Status = domain.PaymentRecordPaid
			if p.PaidAmount == 0 {
				p.PaidAmount = p.Amount
			}
		default:
			p.Status = domain.PaymentRecordFailed
			p.FailureReason = "declined by gateway"
		}
		if err := tx.Payments.Save(ctx, p); err != nil {
			return err
		}

		switch p.Kind {
		case domain.PaymentForBooking:
			applied, err = s.bookings.ApplyPayment(ctx, tx, p, paid)
		case domain.PaymentForParticipant:
			applied, err = s.groups.ApplyParticipantPayment(ctx, tx, p, paid)
		default:
			err = fmt.Errorf("unknown payment kind %q", p.Kind)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reference": reference,
		"status":    result.Status,
		"applied":   applied,
	}).Info("payment verified")
	return result, nil
}

// HandleWebhook authenticates and applies a Razorpay webhook. Events for
// unknown orders are acknowledged and dropped.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !VerifySignature(body, signature, s.webhookSecret) {
		return ErrInvalidSignature
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.NewValidationError(fmt.Sprintf("invalid webhook body: %v", err))
	}

	var (
		reference string
		paid      bool
		amount    int64
		err       error
	)
	switch ev.Event {
	case "order.paid":
		if ev.Payload.Order == nil {
			return domain.NewValidationError("order.paid without order entity")
		}
		reference = ev.Payload.Order.Entity.Receipt
		amount = ev.Payload.Order.Entity.AmountPaid
		paid = true
	case "payment.captured", "payment.failed":
		if ev.Payload.Payment == nil {
			return domain.NewValidationError(ev.Event + " without payment entity")
		}
		entity := ev.Payload.Payment.Entity
		reference, err = s.referenceForOrder(ctx, entity.OrderID)
		amount = entity.Amount
		paid = ev.Event == "payment.captured"
	default:
		s.log.WithField("event", ev.Event).Debug("ignoring webhook event")
		return nil
	}

	if err == nil && reference != "" {
		_, err = s.OnPaymentVerified(ctx, reference, paid, amount)
	}
	if errors.Is(err, domain.ErrNotFound) || (err == nil && reference == "") {
		s.log.WithField("event", ev.Event).Warn("webhook for an unknown checkout")
		return nil
	}
	return err
}

func (s *Service) referenceForOrder(ctx context.Context, orderID string) (string, error) {
	if orderID == "" {
		return "", nil
	}
	p, err := s.store.Payments.GetByProviderOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}
	return p.Reference, nil
}

func bookingPayable(b *domain.Booking, actor domain.Actor) error {
	if !actor.Is(b.FarmerID) {
		return domain.ErrForbidden
	}
	if b.PaymentStatus == domain.PaymentPaid {
		return booking.ErrAlreadyPaid
	}
	if b.Status.IsTerminal() {
		return &domain.TransitionError{From: string(b.Status), To: "paid"}
	}
	return nil
}

func participantPayable(g *domain.GroupBooking, p *domain.GroupParticipant) error {
	if p.IsPaid() || p.Outstanding() == 0 {
		return groupbooking.ErrAlreadyPaid
	}
	if !g.Status.AcceptsMembers() {
		return &domain.TransitionError{From: string(g.Status), To: "paid"}
	}
	return nil
}

func participantErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return groupbooking.ErrNotParticipant
	}
	return err
}
