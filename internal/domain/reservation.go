package domain

import "time"

type ReservationKind string

const (
	ReservationBooking      ReservationKind = "booking"
	ReservationGroupBooking ReservationKind = "group_booking"
)

// ReservationRef identifies a booking or a group booking. Bookings and group
// bookings live in separate tables, so an id alone is ambiguous.
type ReservationRef struct {
	Kind ReservationKind `json:"kind"`
	ID   int64           `json:"id"`
}

// ReservedInterval is a half-open [Start, End) span occupying the calendar.
type ReservedInterval struct {
	Ref    ReservationRef `json:"ref"`
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Status string         `json:"status"`
}
