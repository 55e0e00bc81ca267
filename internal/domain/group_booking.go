package domain

import (
	"fmt"
	"strings"
	"time"
)

type GroupStatus string

const (
	GroupOpen      GroupStatus = "open"
	GroupFilled    GroupStatus = "filled"
	GroupConfirmed GroupStatus = "confirmed"
	GroupActive    GroupStatus = "active"
	GroupCompleted GroupStatus = "completed"
	GroupCancelled GroupStatus = "cancelled"
)

// Confirmation is accepted from OPEN as well as FILLED: a group whose quorum is
// below its capacity never fills.
var groupTransitions = map[GroupStatus][]GroupStatus{
	GroupOpen:      {GroupFilled, GroupConfirmed, GroupCancelled},
	GroupFilled:    {GroupOpen, GroupConfirmed, GroupCancelled},
	GroupConfirmed: {GroupActive, GroupCancelled},
	GroupActive:    {GroupCompleted},
}

func ParseGroupStatus(s string) (GroupStatus, error) {
	status := GroupStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case GroupOpen, GroupFilled, GroupConfirmed, GroupActive, GroupCompleted, GroupCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown group booking status %q", s)
}

func (s GroupStatus) CanTransitionTo(target GroupStatus) bool {
	for _, allowed := range groupTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s GroupStatus) IsTerminal() bool {
	return s == GroupCompleted || s == GroupCancelled
}

// AcceptsMembers reports whether participants may still join or leave.
func (s GroupStatus) AcceptsMembers() bool {
	return s == GroupOpen || s == GroupFilled
}

func (s GroupStatus) HoldsCalendar() bool {
	switch s {
	case GroupOpen, GroupFilled, GroupConfirmed, GroupActive:
		return true
	}
	return false
}

func HoldingGroupStatuses() []GroupStatus {
	return []GroupStatus{GroupOpen, GroupFilled, GroupConfirmed, GroupActive}
}

type GroupBooking struct {
	ID                 int64       `json:"id"`
	EquipmentID        int64       `json:"equipment_id"`
	InitiatorID        int64       `json:"initiator_id"`
	StartDate          time.Time   `json:"start_date"`
	EndDate            time.Time   `json:"end_date"`
	TotalDays          int64       `json:"total_days"`
	PricePerDay        int64       `json:"price_per_day"`
	TotalPrice         int64       `json:"total_price"`
	MinParticipants    int         `json:"min_participants"`
	MaxParticipants    int         `json:"max_participants"`
	IsPublic           bool        `json:"is_public"`
	ExpiresAt          *time.Time  `json:"expires_at,omitempty"`
	Status             GroupStatus `json:"status"`
	Notes              string      `json:"notes,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time  `json:"confirmed_at,omitempty"`
	ActivatedAt        *time.Time  `json:"activated_at,omitempty"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	CancelledAt        *time.Time  `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Expired is evaluated lazily; nothing sweeps expired groups.
func (g *GroupBooking) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

func (g *GroupBooking) Interval() ReservedInterval {
	return ReservedInterval{
		Ref:    ReservationRef{Kind: ReservationGroupBooking, ID: g.ID},
		Start:  g.StartDate,
		End:    g.EndDate,
		Status: string(g.Status),
	}
}

type GroupParticipant struct {
	ID               int64         `json:"id"`
	GroupBookingID   int64         `json:"group_booking_id"`
	FarmerID         int64         `json:"farmer_id"`
	ShareAmount      int64         `json:"share_amount"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	PaidAmount       int64         `json:"paid_amount"`
	Notes            string        `json:"notes,omitempty"`
	JoinedAt         time.Time     `json:"joined_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsPaid holds only while the amount collected covers the current share.
func (p *GroupParticipant) IsPaid() bool {
	return p.PaymentStatus == PaymentPaid && p.PaidAmount >= p.ShareAmount
}

// Outstanding is what the participant still owes on their current share.
func (p *GroupParticipant) Outstanding() int64 {
	return max(p.ShareAmount-p.PaidAmount, 0)
}

// Collected sums what participants have paid.
func Collected(participants []GroupParticipant) int64 {
	var total int64
	for _, p := range participants {
		total += p.PaidAmount
	}
	return total
}

// ReadyForConfirmation is derived, never stored: the quorum is met and every
// participant has paid while the group still accepts members.
func ReadyForConfirmation(g *GroupBooking, participants []GroupParticipant) bool {
	if !g.Status.AcceptsMembers() || len(participants) < g.MinParticipants {
		return false
	}
	for i := range participants {
		if !participants[i].IsPaid() {
			return false
		}
	}
	return true
}
