// Package schedule decides whether a requested rental window collides with the
// reservations already holding a piece of equipment. Every function here is
// pure; callers load the holding set and hold the equipment lock.
package schedule

import (
	"sort"
	"time"

	"agrirent/internal/domain"
)

const day = 24 * time.Hour

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only touch do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// FindConflicts returns the reservations in existing that overlap [start, end),
// skipping exclude and anything that no longer holds the calendar.
func FindConflicts(existing []domain.ReservedInterval, start, end time.Time, exclude *domain.ReservationRef) []domain.ReservedInterval {
	var out []domain.ReservedInterval
	for _, r := range existing {
		if exclude != nil && r.Ref == *exclude {
			continue
		}
		if !holds(r) {
			continue
		}
		if Overlaps(start, end, r.Start, r.End) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// HasConflict reports whether any reservation in existing blocks [start, end).
func HasConflict(existing []domain.ReservedInterval, start, end time.Time, exclude *domain.ReservationRef) bool {
	return len(FindConflicts(existing, start, end, exclude)) > 0
}

// Check wraps FindConflicts into a *domain.ScheduleConflictError.
func Check(existing []domain.ReservedInterval, start, end time.Time, exclude *domain.ReservationRef) error {
	if conflicts := FindConflicts(existing, start, end, exclude); len(conflicts) > 0 {
		return &domain.ScheduleConflictError{Conflicts: conflicts}
	}
	return nil
}

// ValidateWindow rejects empty or inverted windows and windows starting in the past.
func ValidateWindow(start, end, now time.Time) error {
	if start.IsZero() {
		return domain.FieldError("start_date", "is required")
	}
	if end.IsZero() {
		return domain.FieldError("end_date", "is required")
	}
	if !end.After(start) {
		return domain.FieldError("end_date", "must be after start_date")
	}
	if start.Before(now) {
		return domain.FieldError("start_date", "must not be in the past")
	}
	return nil
}

// BillableDays counts the started 24h days in [start, end).
func BillableDays(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	days := int64(d / day)
	if d%day != 0 {
		days++
	}
	return days
}

// Within returns the reservations intersecting [from, to). Zero bounds are open.
func Within(existing []domain.ReservedInterval, from, to time.Time) []domain.ReservedInterval {
	out := make([]domain.ReservedInterval, 0, len(existing))
	for _, r := range existing {
		if !from.IsZero() && !r.End.After(from) {
			continue
		}
		if !to.IsZero() && !r.Start.Before(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func holds(r domain.ReservedInterval) bool {
	switch r.Ref.Kind {
	case domain.ReservationBooking:
		return domain.BookingStatus(r.Status).HoldsCalendar()
	case domain.ReservationGroupBooking:
		return domain.GroupStatus(r.Status).HoldsCalendar()
	}
	return false
}
