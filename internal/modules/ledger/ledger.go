// Package ledger keeps participant shares of a group booking summing to the
// group's total price.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"agrirent/internal/domain"
)

// ParticipantStore is the slice of the group booking repository the ledger
// needs. Pass the transaction-bound repository of the join or leave that
// triggered the recompute.
type ParticipantStore interface {
	ListParticipants(ctx context.Context, groupID int64) ([]domain.GroupParticipant, error)
	UpdateShare(ctx context.Context, participantID int64, share int64, status domain.PaymentStatus) error
}

// Allocate gives every participant floor(total/n) and the remainder to the
// earliest joiner (ties broken by lowest id), then settles each payment status
// against the new share. The returned slice is ordered by join time; the input
// is not modified.
func Allocate(total int64, participants []domain.GroupParticipant) []domain.GroupParticipant {
	out := make([]domain.GroupParticipant, len(participants))
	copy(out, participants)
	if len(out) == 0 {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})

	n := int64(len(out))
	share := total / n
	remainder := total - share*n
	for i := range out {
		out[i].ShareAmount = share
	}
	out[0].ShareAmount += remainder
	for i := range out {
		out[i].PaymentStatus = settledStatus(out[i])
	}
	return out
}

// settledStatus is PAID exactly when something was paid and it covers the
// share. A raised share reopens a paid participant for the difference; a
// lowered one can settle a partial payer.
func settledStatus(p domain.GroupParticipant) domain.PaymentStatus {
	switch {
	case p.PaidAmount > 0 && p.PaidAmount >= p.ShareAmount:
		return domain.PaymentPaid
	case p.PaymentStatus == domain.PaymentPaid:
		return domain.PaymentPending
	}
	return p.PaymentStatus
}

// Recompute reallocates the shares of a group and persists the participants
// whose share or payment status changed.
func Recompute(ctx context.Context, store ParticipantStore, groupID int64, total int64) ([]domain.GroupParticipant, error) {
	current, err := store.ListParticipants(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	previous := make(map[int64]domain.GroupParticipant, len(current))
	for _, p := range current {
		previous[p.ID] = p
	}

	allocated := Allocate(total, current)
	for _, p := range allocated {
		before := previous[p.ID]
		if before.ShareAmount == p.ShareAmount && before.PaymentStatus == p.PaymentStatus {
			continue
		}
		if err := store.UpdateShare(ctx, p.ID, p.ShareAmount, p.PaymentStatus); err != nil {
			return nil, fmt.Errorf("update share of participant %d: %w", p.ID, err)
		}
	}
	return allocated, nil
}

// Sum adds up the shares of participants.
func Sum(participants []domain.GroupParticipant) int64 {
	var total int64
	for _, p := range participants {
		total += p.ShareAmount
	}
	return total
}
