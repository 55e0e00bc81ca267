package domain

import "time"

type PaymentKind string

const (
	PaymentForBooking     PaymentKind = "booking"
	PaymentForParticipant PaymentKind = "group_participant"
)

type PaymentRecordStatus string

const (
	PaymentRecordInitialized PaymentRecordStatus = "initialized"
	PaymentRecordPaid        PaymentRecordStatus = "paid"
	PaymentRecordFailed      PaymentRecordStatus = "failed"
)

// Payment is one gateway checkout. Reference is the idempotency key of every
// verification callback.
type Payment struct {
	ID              int64               `json:"id"`
	Reference       string              `json:"reference"`
	Kind            PaymentKind         `json:"kind"`
	EquipmentID     int64               `json:"equipment_id"`
	BookingID       *int64              `json:"booking_id,omitempty"`
	GroupBookingID  *int64              `json:"group_booking_id,omitempty"`
	ParticipantID   *int64              `json:"participant_id,omitempty"`
	PayerID         int64               `json:"payer_id"`
	Amount          int64               `json:"amount"`
	PaidAmount      int64               `json:"paid_amount"`
	Status          PaymentRecordStatus `json:"status"`
	ProviderOrderID string              `json:"provider_order_id,omitempty"`
	RedirectURL     string              `json:"redirect_url,omitempty"`
	FailureReason   string              `json:"failure_reason,omitempty"`
	VerifiedAt      *time.Time          `json:"verified_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (p *Payment) Settled() bool {
	return p.Status == PaymentRecordPaid || p.Status == PaymentRecordFailed
}
