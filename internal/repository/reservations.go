package repository

import (
	"context"

	"agrirent/internal/domain"
)

// HoldingReservations returns every booking and group booking of an equipment
// that currently holds its calendar.
func (s *Store) HoldingReservations(ctx context.Context, equipmentID int64) ([]domain.ReservedInterval, error) {
	bookings, err := s.Bookings.Holding(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	groups, err := s.Groups.Holding(ctx, equipmentID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ReservedInterval, 0, len(bookings)+len(groups))
	for i := range bookings {
		out = append(out, bookings[i].Interval())
	}
	for i := range groups {
		out = append(out, groups[i].Interval())
	}
	return out, nil
}
