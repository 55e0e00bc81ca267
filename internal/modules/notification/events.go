package notification

import (
	"fmt"

	"agrirent/internal/domain"
)

// For builds one outbox event per distinct recipient. Zero user ids are
// skipped.
func For(event domain.EventType, payload map[string]any, userIDs ...int64) []domain.OutboxEvent {
	seen := make(map[int64]bool, len(userIDs))
	out := make([]domain.OutboxEvent, 0, len(userIDs))
	for _, id := range userIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, domain.OutboxEvent{
			UserID:  id,
			Event:   event,
			Payload: payload,
			Status:  domain.OutboxPending,
		})
	}
	return out
}

var titles = map[domain.EventType]string{
	domain.EventBookingCreated:         "New booking request",
	domain.EventBookingUpdated:         "Booking updated",
	domain.EventBookingConfirmed:       "Booking confirmed",
	domain.EventBookingActive:          "Rental started",
	domain.EventBookingCompleted:       "Rental completed",
	domain.EventBookingCancelled:       "Booking cancelled",
	domain.EventBookingPaid:            "Booking paid",
	domain.EventGroupParticipantJoined: "New group member",
	domain.EventGroupParticipantLeft:   "Group member left",
	domain.EventGroupFilled:            "Group booking is full",
	domain.EventGroupPaymentReceived:   "Group payment received",
	domain.EventGroupReady:             "Group booking ready for confirmation",
	domain.EventGroupShareOutstanding:  "Your share has an outstanding balance",
	domain.EventGroupConfirmed:         "Group booking confirmed",
	domain.EventGroupActive:            "Group rental started",
	domain.EventGroupCompleted:         "Group rental completed",
	domain.EventGroupCancelled:         "Group booking cancelled",
	domain.EventPaymentFailed:          "Payment failed",
}

// Describe renders the inbox title and message of an event.
func Describe(event domain.EventType, payload map[string]any) (string, string) {
	title, ok := titles[event]
	if !ok {
		title = string(event)
	}

	switch {
	case payload["group_booking_id"] != nil:
		return title, fmt.Sprintf("%s (group booking #%v)", title, payload["group_booking_id"])
	case payload["booking_id"] != nil:
		return title, fmt.Sprintf("%s (booking #%v)", title, payload["booking_id"])
	}
	return title, title
}
