package domain

import (
	"strconv"
	"time"
)

type Equipment struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Name        string    `json:"name"`
	PricePerDay int64     `json:"price_per_day"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LockKey names the critical section shared by every calendar mutation of one
// piece of equipment.
func LockKey(equipmentID int64) string {
	return "equipment:" + strconv.FormatInt(equipmentID, 10)
}
