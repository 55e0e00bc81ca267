package booking

import (
	"time"

	"agrirent/internal/domain"
)

type CreateBookingRequest struct {
	EquipmentID int64     `json:"equipment_id" binding:"required,gt=0"`
	StartDate   time.Time `json:"start_date" binding:"required"`
	EndDate     time.Time `json:"end_date" binding:"required,gtfield=StartDate"`
	Notes       string    `json:"notes" binding:"max=2000"`
}

// UpdateBookingRequest edits dates and notes; nil fields are left unchanged.
type UpdateBookingRequest struct {
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Notes     *string    `json:"notes" binding:"omitempty,max=2000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed active completed cancelled"`
	Reason string `json:"reason" binding:"max=500"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type ScheduleResponse struct {
	EquipmentID  int64                     `json:"equipment_id"`
	Reservations []domain.ReservedInterval `json:"reservations"`
}
