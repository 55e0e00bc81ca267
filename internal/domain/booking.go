package domain

import (
	"fmt"
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingActive, BookingCancelled},
	BookingActive:    {BookingCompleted},
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case BookingPending, BookingConfirmed, BookingActive, BookingCompleted, BookingCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// HoldsCalendar reports whether a booking in this status blocks the equipment.
func (s BookingStatus) HoldsCalendar() bool {
	return s == BookingConfirmed || s == BookingActive
}

func HoldingBookingStatuses() []BookingStatus {
	return []BookingStatus{BookingConfirmed, BookingActive}
}

type Booking struct {
	ID                 int64         `json:"id"`
	EquipmentID        int64         `json:"equipment_id"`
	FarmerID           int64         `json:"farmer_id"`
	StartDate          time.Time     `json:"start_date"`
	EndDate            time.Time     `json:"end_date"`
	TotalDays          int64         `json:"total_days"`
	PricePerDay        int64         `json:"price_per_day"`
	TotalPrice         int64         `json:"total_price"`
	Status             BookingStatus `json:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	PaymentReference   string        `json:"payment_reference,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time    `json:"confirmed_at,omitempty"`
	ActivatedAt        *time.Time    `json:"activated_at,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func (b *Booking) Interval() ReservedInterval {
	return ReservedInterval{
		Ref:    ReservationRef{Kind: ReservationBooking, ID: b.ID},
		Start:  b.StartDate,
		End:    b.EndDate,
		Status: string(b.Status),
	}
}
