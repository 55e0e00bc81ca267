// Package groupbooking coordinates equipment rentals shared by several
// farmers: joining and leaving, cost sharing, quorum and payment gating of
// confirmation.
package groupbooking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"agrirent/internal/domain"
	"agrirent/internal/lock"
	"agrirent/internal/modules/ledger"
	"agrirent/internal/modules/notification"
	"agrirent/internal/modules/schedule"
	"agrirent/internal/pkg/validator"
	"agrirent/internal/repository"
)

// Coordinator owns the group booking lifecycle:
//
//	OPEN <-> FILLED -> CONFIRMED -> ACTIVE -> COMPLETED
//	OPEN -> CONFIRMED when the quorum is below capacity
//	OPEN | FILLED | CONFIRMED -> CANCELLED
//
// A group holds the calendar from the moment it is created. Every mutation
// runs under the equipment lock and row-locks the group.
type Coordinator struct {
	store *repository.Store
	guard *lock.Guard
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewCoordinator(store *repository.Store, guard *lock.Guard, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		store: store,
		guard: guard,
		log:   log.WithField("module", "groupbooking"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (c *Coordinator) Create(ctx context.Context, actor domain.Actor, req CreateGroupBookingRequest) (*GroupView, error) {
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	now := c.now()
	start, end := req.StartDate.UTC(), req.EndDate.UTC()
	if err := schedule.ValidateWindow(start, end, now); err != nil {
		return nil, err
	}
	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		at := req.ExpiresAt.UTC()
		if !at.After(now) {
			return nil, domain.FieldError("expires_at", "must be in the future")
		}
		if at.After(start) {
			return nil, domain.FieldError("expires_at", "must not be after start_date")
		}
		expiresAt = &at
	}
	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}

	var view *GroupView
	err := c.guard.Run(ctx, req.EquipmentID, func(tx *repository.Store) error {
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
		g := &domain.GroupBooking{
			EquipmentID:     eq.ID,
			InitiatorID:     actor.UserID,
			StartDate:       start,
			EndDate:         end,
			TotalDays:       days,
			PricePerDay:     eq.PricePerDay,
			TotalPrice:      eq.PricePerDay * days,
			MinParticipants: req.MinParticipants,
			MaxParticipants: req.MaxParticipants,
			IsPublic:        public,
			ExpiresAt:       expiresAt,
			Status:          domain.GroupOpen,
			Notes:           strings.TrimSpace(req.Notes),
		}
		if err := tx.Groups.Create(ctx, g); err != nil {
			return err
		}

		initiator := &domain.GroupParticipant{
			GroupBookingID: g.ID,
			FarmerID:       actor.UserID,
			PaymentStatus:  domain.PaymentPending,
			JoinedAt:       now,
		}
		if err := tx.Groups.AddParticipant(ctx, initiator); err != nil {
			return err
		}
		participants, err := ledger.Recompute(ctx, tx.Groups, g.ID, g.TotalPrice)
		if err != nil {
			return err
		}

		view = c.view(g, participants)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"group_booking_id": view.Group.ID,
		"equipment_id":     view.Group.EquipmentID,
		"initiator_id":     actor.UserID,
	}).Info("group booking created")
	return view, nil
}

// Join adds the actor to the group and reallocates the shares. The group
// becomes FILLED when the last slot is taken.
func (c *Coordinator) Join(ctx context.Context, groupID int64, actor domain.Actor, notes string) (*GroupView, error) {
	var view *GroupView
	err := c.withGroup(ctx, groupID, func(tx *repository.Store, g *domain.GroupBooking) error {
		if !g.Status.AcceptsMembers() {
			return &domain.TransitionError{From: string(g.Status), To: "joined"}
		}
		now := c.now()
		if g.Expired(now) {
			return ErrGroupExpired
		}

		if _, err := tx.Groups.GetParticipant(ctx, g.ID, actor.UserID); err == nil {
			return ErrAlreadyJoined
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		count, err := tx.Groups.CountParticipants(ctx, g.ID)
		if err != nil {
			return err
		}
		if count >= g.MaxParticipants {
			return ErrGroupFull
		}

		p := &domain.GroupParticipant{
			GroupBookingID: g.ID,
			FarmerID:       actor.UserID,
			PaymentStatus:  domain.PaymentPending,
			Notes:          strings.TrimSpace(notes),
			JoinedAt:       now,
		}
		if err := tx.Groups.AddParticipant(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyJoined
			}
			return err
		}

		participants, err := ledger.Recompute(ctx, tx.Groups, g.ID, g.TotalPrice)
		if err != nil {
			return err
		}

		events := notification.For(domain.EventGroupParticipantJoined, payload(g, actor.UserID), g.InitiatorID)
		if len(participants) >= g.MaxParticipants && g.Status == domain.GroupOpen {
			g.Status = domain.GroupFilled
			if err := tx.Groups.Save(ctx, g); err != nil {
				return err
			}
			eq, err := tx.Equipment.GetByID(ctx, g.EquipmentID)
			if err != nil {
				return err
			}
			events = append(events, notification.For(domain.EventGroupFilled, payload(g, 0), g.InitiatorID, eq.OwnerID)...)
		}

		view = c.view(g, participants)
		return tx.Outbox.Enqueue(ctx, events...)
	})
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"group_booking_id": groupID,
		"farmer_id":        actor.UserID,
		"status":           view.Group.Status,
	}).Info("participant joined")
	return view, nil
}

// Leave removes a participant who has paid nothing. A FILLED group reopens.
// Members whose payment no longer covers the raised share are asked for the
// difference.
func (c *Coordinator) Leave(ctx context.Context, groupID int64, actor domain.Actor) (*GroupView, error) {
	var view *GroupView
	err := c.withGroup(ctx, groupID, func(tx *repository.Store, g *domain.GroupBooking) error {
		p, err := tx.Groups.GetParticipant(ctx, g.ID, actor.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return ErrNotParticipant
		}
		if err != nil {
			return err
		}
		if p.IsPaid() || p.PaidAmount > 0 {
			return ErrAlreadyPaid
		}
		if !g.Status.AcceptsMembers() {
			return &domain.TransitionError{From: string(g.Status), To: "left"}
		}
		if p.FarmerID == g.InitiatorID {
			return ErrInitiatorCannotLeave
		}

		if err := tx.Groups.DeleteParticipant(ctx, p.ID); err != nil {
			return err
		}
		participants, err := ledger.Recompute(ctx, tx.Groups, g.ID, g.TotalPrice)
		if err != nil {
			return err
		}

		if g.Status == domain.GroupFilled && len(participants) < g.MaxParticipants {
			g.Status = domain.GroupOpen
			if err := tx.Groups.Save(ctx, g); err != nil {
				return err
			}
		}

		events := notification.For(domain.EventGroupParticipantLeft, payload(g, actor.UserID), g.InitiatorID)
		for _, rest := range participants {
			if rest.PaidAmount > 0 && !rest.IsPaid() {
				events = append(events, notification.For(domain.EventGroupShareOutstanding, outstandingPayload(g, &rest), rest.FarmerID)...)
			}
		}

		view = c.view(g, participants)
		return tx.Outbox.Enqueue(ctx, events...)
	})
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"group_booking_id": groupID,
		"farmer_id":        actor.UserID,
	}).Info("participant left")
	return view, nil
}

// Confirm is the owner's acceptance. It requires the quorum and that every
// participant has paid.
func (c *Coordinator) Confirm(ctx context.Context, groupID int64, actor domain.Actor) (*GroupView, error) {
	var view *GroupView
	err := c.withGroup(ctx, groupID, func(tx *repository.Store, g *domain.GroupBooking) error {
		if !g.Status.CanTransitionTo(domain.GroupConfirmed) {
			return &domain.TransitionError{From: string(g.Status), To: string(domain.GroupConfirmed)}
		}
		eq, err := tx.Equipment.GetByID(ctx, g.EquipmentID)
		if err != nil {
			return err
		}
		if !actor.Is(eq.OwnerID) {
			return domain.ErrForbidden
		}

		participants, err := tx.Groups.ListParticipants(ctx, g.ID)
		if err != nil {
			return err
		}
		if len(participants) < g.MinParticipants {
			return ErrQuorumNotMet
		}
		for i := range participants {
			if !participants[i].IsPaid() {
				return ErrNotAllPaid
			}
		}
		if domain.Collected(participants) < g.TotalPrice {
			return ErrNotAllPaid
		}

		now := c.now()
		g.Status = domain.GroupConfirmed
		g.ConfirmedAt = &now
		if err := tx.Groups.Save(ctx, g); err != nil {
			return err
		}

		view = c.view(g, participants)
		return tx.Outbox.Enqueue(ctx, notification.For(domain.EventGroupConfirmed, payload(g, 0),
			append(farmerIDs(participants), g.InitiatorID)...)...)
	})
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"group_booking_id": groupID,
		"actor_id":         actor.UserID,
	}).Info("group booking confirmed")
	return view, nil
}

// Cancel is allowed to the initiator or an admin before the rental starts,
// and to the equipment owner once the group is CONFIRMED.
func (c *Coordinator) Cancel(ctx context.Context, groupID int64, actor domain.Actor, reason string) (*GroupView, error) {
	var view *GroupView
	err := c.withGroup(ctx, groupID, func(tx *repository.Store, g *domain.GroupBooking) error {
		if !g.Status.CanTransitionTo(domain.GroupCancelled) {
			return &domain.TransitionError{From: string(g.Status), To: string(domain.GroupCancelled)}
		}
		eq, err := tx.Equipment.GetByID(ctx, g.EquipmentID)
		if err != nil {
			return err
		}
		ownerMayCancel := g.Status == domain.GroupConfirmed && actor.UserID == eq.OwnerID
		if !actor.Is(g.InitiatorID) && !ownerMayCancel {
			return domain.ErrForbidden
		}

		participants, err := tx.Groups.ListParticipants(ctx, g.ID)
		if err != nil {
			return err
		}

		now := c.now()
		g.Status = domain.GroupCancelled
		g.CancelledAt = &now
		g.CancellationReason = strings.TrimSpace(reason)
		if err := tx.Groups.Save(ctx, g); err != nil {
			return err
		}

		for _, p := range participants {
			if p.PaidAmount > 0 {
				c.log.WithFields(logrus.Fields{
					"group_booking_id": g.ID,
					"farmer_id":        p.FarmerID,
					"paid_amount":      p.PaidAmount,
				}).Warn("group booking cancelled after payment, refund required")
			}
		}

		view = c.view(g, participants)
		return tx.Outbox.Enqueue(ctx, notification.For(domain.EventGroupCancelled, payload(g, 0),
			append(farmerIDs(participants), eq.OwnerID)...)...)
	})
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"group_booking_id": groupID,
		"actor_id":         actor.UserID,
	}).Info("group booking cancelled")
	return view, nil
}

// Advance starts or completes a confirmed rental. Owner or admin only.
func (c *Coordinator) Advance(ctx context.Context, groupID int64, actor domain.Actor, target domain.GroupStatus) (*GroupView, error) {
	if target != domain.GroupActive && target != domain.GroupCompleted {
		return nil, domain.FieldError("status", "must be active or completed")
	}

	var view *GroupView
	err := c.withGroup(ctx, groupID, func(tx *repository.Store, g *domain.GroupBooking) error {
		if !g.Status.CanTransitionTo(target) {
			return &domain.TransitionError{From: string(g.Status), To: string(target)}
		}
		eq, err := tx.Equipment.GetByID(ctx, g.EquipmentID)
		if err != nil {
			return err
		}
		if !actor.Is(eq.OwnerID) {
			return domain.ErrForbidden
		}

		participants, err := tx.Groups.ListParticipants(ctx, g.ID)
		if err != nil {
			return err
		}

		now := c.now()
		event := domain.EventGroupActive
		recipients := farmerIDs(participants)
		if target == domain.GroupActive {
			g.ActivatedAt = &now
		} else {
			g.CompletedAt = &now
			event = domain.EventGroupCompleted
			recipients = append(recipients, eq.OwnerID)
		}
		g.Status = target
		if err := tx.Groups.Save(ctx, g); err != nil {
			return err
		}

		view = c.view(g, participants)
		return tx.Outbox.Enqueue(ctx, notification.For(event, payload(g, 0), recipients...)...)
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Get returns the group with its participants. Private groups are visible to
// their participants, the equipment owner and admins.
func (c *Coordinator) Get(ctx context.Context, groupID int64, actor domain.Actor) (*GroupView, error) {
	g, err := c.store.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	participants, err := c.store.Groups.ListParticipants(ctx, g.ID)
	if err != nil {
		return nil, err
	}

	if !g.IsPublic && !actor.Is(g.InitiatorID) && !containsFarmer(participants, actor.UserID) {
		eq, err := c.store.Equipment.GetByID(ctx, g.EquipmentID)
		if err != nil {
			return nil, err
		}
		if !actor.Is(eq.OwnerID) {
			return nil, domain.ErrForbidden
		}
	}
	return c.view(g, participants), nil
}

// ListOpen returns the public groups of an equipment that can still be joined.
func (c *Coordinator) ListOpen(ctx context.Context, equipmentID int64, limit, offset int) ([]domain.GroupBooking, error) {
	if _, err := c.store.Equipment.GetByID(ctx, equipmentID); err != nil {
		return nil, err
	}
	groups, err := c.store.Groups.ListJoinable(ctx, equipmentID, limit, offset)
	if err != nil {
		return nil, err
	}

	now := c.now()
	out := groups[:0]
	for _, g := range groups {
		if !g.Expired(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (c *Coordinator) ListMine(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.GroupBooking, error) {
	return c.store.Groups.ListByFarmer(ctx, actor.UserID, limit, offset)
}

// ApplyParticipantPayment records a verified gateway result on a participant.
// It runs inside the caller's transaction and reports whether the participant
// changed. Payments accumulate; the participant is PAID only once the total
// covers their current share, which may have risen since the checkout was
// opened. The owner is told once when the group becomes ready for
// confirmation; the status itself is left to the owner.
func (c *Coordinator) ApplyParticipantPayment(ctx context.Context, tx *repository.Store, pay *domain.Payment, paid bool) (bool, error) {
	if pay.ParticipantID == nil || pay.GroupBookingID == nil {
		return false, fmt.Errorf("payment %s has no participant", pay.Reference)
	}
	g, err := tx.Groups.GetForUpdate(ctx, *pay.GroupBookingID)
	if err != nil {
		return false, err
	}

	entry := c.log.WithFields(logrus.Fields{
		"group_booking_id": g.ID,
		"participant_id":   *pay.ParticipantID,
		"reference":        pay.Reference,
	})
	p, err := tx.Groups.GetParticipantByID(ctx, *pay.ParticipantID)
	if errors.Is(err, domain.ErrNotFound) {
		entry.Warn("payment verified for a participant who left, refund required")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if p.PaymentReference != pay.Reference {
		entry.Warn("payment verified for a superseded checkout, participant left unchanged")
		return false, nil
	}
	if !g.Status.AcceptsMembers() {
		entry.WithField("status", g.Status).Warn("payment verified for a closed group booking, refund required")
		return false, nil
	}

	if !paid {
		return false, tx.Outbox.Enqueue(ctx, notification.For(domain.EventPaymentFailed, payload(g, p.FarmerID), p.FarmerID)...)
	}
	if p.IsPaid() {
		return false, nil
	}

	before, err := tx.Groups.ListParticipants(ctx, g.ID)
	if err != nil {
		return false, err
	}
	wasReady := domain.ReadyForConfirmation(g, before)

	credited := pay.PaidAmount
	if credited == 0 {
		credited = pay.Amount
	}
	p.PaidAmount += credited
	if p.PaidAmount < p.ShareAmount {
		p.PaymentStatus = domain.PaymentPending
		if err := tx.Groups.SaveParticipant(ctx, p); err != nil {
			return false, err
		}
		entry.WithFields(logrus.Fields{
			"paid_amount":  p.PaidAmount,
			"share_amount": p.ShareAmount,
		}).Warn("payment short of the current share")
		return true, tx.Outbox.Enqueue(ctx, notification.For(domain.EventGroupShareOutstanding, outstandingPayload(g, p), p.FarmerID)...)
	}

	p.PaymentStatus = domain.PaymentPaid
	if err := tx.Groups.SaveParticipant(ctx, p); err != nil {
		return false, err
	}

	after, err := tx.Groups.ListParticipants(ctx, g.ID)
	if err != nil {
		return false, err
	}
	events := notification.For(domain.EventGroupPaymentReceived, payload(g, p.FarmerID), g.InitiatorID, p.FarmerID)
	if !wasReady && domain.ReadyForConfirmation(g, after) {
		eq, err := tx.Equipment.GetByID(ctx, g.EquipmentID)
		if err != nil {
			return false, err
		}
		events = append(events, notification.For(domain.EventGroupReady, payload(g, 0), eq.OwnerID)...)
	}
	if err := tx.Outbox.Enqueue(ctx, events...); err != nil {
		return false, err
	}
	return true, nil
}

// withGroup runs fn under the group's equipment lock with the group row locked.
func (c *Coordinator) withGroup(ctx context.Context, groupID int64, fn func(tx *repository.Store, g *domain.GroupBooking) error) error {
	current, err := c.store.Groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	return c.guard.Run(ctx, current.EquipmentID, func(tx *repository.Store) error {
		g, err := tx.Groups.GetForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		return fn(tx, g)
	})
}

func (c *Coordinator) view(g *domain.GroupBooking, participants []domain.GroupParticipant) *GroupView {
	spots := g.MaxParticipants - len(participants)
	if spots < 0 {
		spots = 0
	}
	return &GroupView{
		Group:                g,
		Participants:         participants,
		ReadyForConfirmation: domain.ReadyForConfirmation(g, participants),
		Expired:              g.Expired(c.now()),
		SpotsLeft:            spots,
	}
}

func farmerIDs(participants []domain.GroupParticipant) []int64 {
	ids := make([]int64, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.FarmerID)
	}
	return ids
}

func containsFarmer(participants []domain.GroupParticipant, farmerID int64) bool {
	for _, p := range participants {
		if p.FarmerID == farmerID {
			return true
		}
	}
	return false
}

func payload(g *domain.GroupBooking, farmerID int64) map[string]any {
	m := map[string]any{
		"group_booking_id": g.ID,
		"equipment_id":     g.EquipmentID,
		"status":           string(g.Status),
		"start_date":       g.StartDate.Format(time.RFC3339),
		"end_date":         g.EndDate.Format(time.RFC3339),
		"total_price":      g.TotalPrice,
	}
	if farmerID != 0 {
		m["farmer_id"] = farmerID
	}
	return m
}

func outstandingPayload(g *domain.GroupBooking, p *domain.GroupParticipant) map[string]any {
	m := payload(g, p.FarmerID)
	m["share_amount"] = p.ShareAmount
	m["paid_amount"] = p.PaidAmount
	m["outstanding"] = p.Outstanding()
	return m
}
