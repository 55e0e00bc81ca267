package groupbooking

import (
	"time"

	"agrirent/internal/domain"
)

type CreateGroupBookingRequest struct {
	EquipmentID     int64      `json:"equipment_id" binding:"required,gt=0"`
	StartDate       time.Time  `json:"start_date" binding:"required"`
	EndDate         time.Time  `json:"end_date" binding:"required,gtfield=StartDate"`
	MinParticipants int        `json:"min_participants" binding:"required,gte=2"`
	MaxParticipants int        `json:"max_participants" binding:"required,gtefield=MinParticipants,lte=50"`
	IsPublic        *bool      `json:"is_public"`
	ExpiresAt       *time.Time `json:"expires_at"`
	Notes           string     `json:"notes" binding:"max=2000"`
}

type JoinRequest struct {
	Notes string `json:"notes" binding:"max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed active completed cancelled"`
	Reason string `json:"reason" binding:"max=500"`
}

// GroupView is a group booking with its participants and derived state.
type GroupView struct {
	Group                *domain.GroupBooking      `json:"group_booking"`
	Participants         []domain.GroupParticipant `json:"participants"`
	ReadyForConfirmation bool                      `json:"ready_for_confirmation"`
	Expired              bool                      `json:"expired"`
	SpotsLeft            int                       `json:"spots_left"`
}
