package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrirent/internal/domain"
	"agrirent/internal/lock"
	"agrirent/internal/logger"
	"agrirent/internal/repository"
	"agrirent/internal/testutil"
)

var now = time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)

func day(n int) time.Time { return now.AddDate(0, 0, n) }

type fixture struct {
	ctx       context.Context
	store     *repository.Store
	svc       *Service
	equipment *domain.Equipment
	owner     domain.Actor
	renter    domain.Actor
	admin     domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewStore(testutil.NewDB(t))
	svc := NewService(store, lock.NewGuard(store, lock.NewKeyedMutex(), time.Second), logger.Discard())
	svc.now = func() time.Time { return now }

	eq := &domain.Equipment{OwnerID: 10, Name: "John Deere 5075E", PricePerDay: 5000, IsAvailable: true}
	require.NoError(t, store.Equipment.Create(ctx, eq))

	return &fixture{
		ctx:       ctx,
		store:     store,
		svc:       svc,
		equipment: eq,
		owner:     domain.Actor{UserID: 10, Role: domain.RoleOwner},
		renter:    domain.Actor{UserID: 20, Role: domain.RoleFarmer},
		admin:     domain.Actor{UserID: 1, Role: domain.RoleAdmin},
	}
}

func (f *fixture) book(t *testing.T, renter domain.Actor, start, end int) *domain.Booking {
	t.Helper()
	b, err := f.svc.CreateBooking(f.ctx, renter, CreateBookingRequest{
		EquipmentID: f.equipment.ID,
		StartDate:   day(start),
		EndDate:     day(end),
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) events(t *testing.T, userID int64, event domain.EventType) int {
	t.Helper()
	all, err := f.store.Outbox.ListByUser(f.ctx, userID)
	require.NoError(t, err)
	n := 0
	for _, e := range all {
		if e.Event == event {
			n++
		}
	}
	return n
}

func TestCreateBooking_SnapshotsPriceAndNotifiesOwner(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, f.renter, 1, 4)

	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, domain.PaymentPending, b.PaymentStatus)
	assert.Equal(t, int64(3), b.TotalDays)
	assert.Equal(t, int64(5000), b.PricePerDay)
	assert.Equal(t, int64(15000), b.TotalPrice)
	assert.Equal(t, 1, f.events(t, f.owner.UserID, domain.EventBookingCreated))

	require.NoError(t, f.store.Equipment.UpdatePrice(f.ctx, f.equipment.ID, 9999))
	got, err := f.svc.GetBooking(f.ctx, b.ID, f.renter)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), got.TotalPrice)
}

func TestCreateBooking_PartialDayRoundsUp(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.CreateBooking(f.ctx, f.renter, CreateBookingRequest{
		EquipmentID: f.equipment.ID,
		StartDate:   day(1),
		EndDate:     day(2).Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.TotalDays)
	assert.Equal(t, int64(10000), b.TotalPrice)
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  CreateBookingRequest
		want error
	}{
		{"end before start", CreateBookingRequest{EquipmentID: f.equipment.ID, StartDate: day(3), EndDate: day(2)}, domain.ErrValidation},
		{"empty window", CreateBookingRequest{EquipmentID: f.equipment.ID, StartDate: day(3), EndDate: day(3)}, domain.ErrValidation},
		{"start in past", CreateBookingRequest{EquipmentID: f.equipment.ID, StartDate: day(-1), EndDate: day(2)}, domain.ErrValidation},
		{"missing equipment", CreateBookingRequest{EquipmentID: 999, StartDate: day(1), EndDate: day(2)}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(f.ctx, f.renter, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateBooking_UnavailableEquipment(t *testing.T) {
	f := newFixture(t)
	eq := &domain.Equipment{OwnerID: 10, Name: "Harvester", PricePerDay: 100, IsAvailable: false}
	require.NoError(t, f.store.Equipment.Create(f.ctx, eq))

	_, err := f.svc.CreateBooking(f.ctx, f.renter, CreateBookingRequest{EquipmentID: eq.ID, StartDate: day(1), EndDate: day(2)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateBooking_ConflictsOnlyWithHoldingReservations(t *testing.T) {
	f := newFixture(t)
	other := domain.Actor{UserID: 21, Role: domain.RoleFarmer}

	first := f.book(t, f.renter, 1, 5)
	// pending requests do not hold the calendar
	f.book(t, other, 3, 6)

	_, err := f.svc.SetBookingStatus(f.ctx, first.ID, f.owner, domain.BookingConfirmed)
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(f.ctx, other, CreateBookingRequest{EquipmentID: f.equipment.ID, StartDate: day(2), EndDate: day(3)})
	require.ErrorIs(t, err, domain.ErrScheduleConflict)

	var conflict *domain.ScheduleConflictError
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, domain.ReservationRef{Kind: domain.ReservationBooking, ID: first.ID}, conflict.Conflicts[0].Ref)

	// touching on either side is fine
	f.book(t, other, 5, 7)
	f.book(t, other, 0, 1)
}

func TestSetBookingStatus_ConfirmRechecksCalendar(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.renter, 1, 5)
	b := f.book(t, domain.Actor{UserID: 21}, 4, 8)

	_, err := f.svc.SetBookingStatus(f.ctx, a.ID, f.owner, domain.BookingConfirmed)
	require.NoError(t, err)

	_, err = f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingConfirmed)
	assert.ErrorIs(t, err, domain.ErrScheduleConflict)

	got, err := f.store.Bookings.GetByID(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)
}

func TestSetBookingStatus_ConcurrentConfirmsOfOverlappingRequests(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.renter, 1, 5)
	b := f.book(t, domain.Actor{UserID: 21}, 2, 6)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = f.svc.SetBookingStatus(f.ctx, id, f.owner, domain.BookingConfirmed)
		}(i, id)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrScheduleConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
}

func TestSetBookingStatus_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)

	b, err := f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingConfirmed)
	require.NoError(t, err)
	require.NotNil(t, b.ConfirmedAt)
	assert.Equal(t, 1, f.events(t, f.renter.UserID, domain.EventBookingConfirmed))

	b, err = f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingActive)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingActive, b.Status)

	b, err = f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, b.Status)
	assert.Equal(t, 1, f.events(t, f.renter.UserID, domain.EventBookingCompleted))
	assert.Equal(t, 1, f.events(t, f.owner.UserID, domain.EventBookingCompleted))

	for _, target := range []domain.BookingStatus{domain.BookingPending, domain.BookingConfirmed, domain.BookingActive, domain.BookingCompleted} {
		_, err = f.svc.SetBookingStatus(f.ctx, b.ID, f.admin, target)
		assert.ErrorIs(t, err, domain.ErrInvalidStateTransition, "to %s", target)
	}
	_, err = f.svc.CancelBooking(f.ctx, b.ID, f.renter, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestSetBookingStatus_SkippingStatesIsRejected(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)

	_, err := f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingActive)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingCompleted)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestSetBookingStatus_OnlyOwnerOrAdmin(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)

	_, err := f.svc.SetBookingStatus(f.ctx, b.ID, f.renter, domain.BookingConfirmed)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.SetBookingStatus(f.ctx, b.ID, domain.Actor{UserID: 99, Role: domain.RoleOwner}, domain.BookingConfirmed)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	b, err = f.svc.SetBookingStatus(f.ctx, b.ID, f.admin, domain.BookingConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	// admin actions reach both sides
	assert.Equal(t, 1, f.events(t, f.renter.UserID, domain.EventBookingConfirmed))
	assert.Equal(t, 1, f.events(t, f.owner.UserID, domain.EventBookingConfirmed))
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)
	_, err := f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingConfirmed)
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(f.ctx, b.ID, f.owner, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	b, err = f.svc.CancelBooking(f.ctx, b.ID, f.renter, "  weather  ")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, b.Status)
	assert.Equal(t, "weather", b.CancellationReason)
	require.NotNil(t, b.CancelledAt)
	assert.Equal(t, 1, f.events(t, f.owner.UserID, domain.EventBookingCancelled))

	// the freed window can be booked and confirmed again
	again := f.book(t, domain.Actor{UserID: 21}, 1, 3)
	_, err = f.svc.SetBookingStatus(f.ctx, again.ID, f.owner, domain.BookingConfirmed)
	assert.NoError(t, err)
}

func TestCancelBooking_NotFromActive(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)
	_, err := f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingConfirmed)
	require.NoError(t, err)
	_, err = f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingActive)
	require.NoError(t, err)

	_, err = f.svc.SetBookingStatus(f.ctx, b.ID, f.renter, domain.BookingCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestUpdateBooking(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)
	require.NoError(t, f.store.Equipment.UpdatePrice(f.ctx, f.equipment.ID, 1))

	start, end := day(2), day(6)
	notes := "deliver to north field"
	b, err := f.svc.UpdateBooking(f.ctx, b.ID, f.renter, UpdateBookingRequest{StartDate: &start, EndDate: &end, Notes: &notes})
	require.NoError(t, err)

	assert.Equal(t, int64(4), b.TotalDays)
	assert.Equal(t, int64(20000), b.TotalPrice, "repriced at the snapshotted rate")
	assert.Equal(t, notes, b.Notes)
	assert.Equal(t, 1, f.events(t, f.owner.UserID, domain.EventBookingUpdated))

	_, err = f.svc.UpdateBooking(f.ctx, b.ID, domain.Actor{UserID: 21}, UpdateBookingRequest{Notes: &notes})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdateBooking_RejectedOnceHeldWindowConflicts(t *testing.T) {
	f := newFixture(t)
	held := f.book(t, domain.Actor{UserID: 21}, 5, 8)
	_, err := f.svc.SetBookingStatus(f.ctx, held.ID, f.owner, domain.BookingConfirmed)
	require.NoError(t, err)

	b := f.book(t, f.renter, 1, 3)
	end := day(6)
	_, err = f.svc.UpdateBooking(f.ctx, b.ID, f.renter, UpdateBookingRequest{EndDate: &end})
	assert.ErrorIs(t, err, domain.ErrScheduleConflict)
}

func TestUpdateBooking_PaidBookingIsLocked(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)
	b.PaymentStatus = domain.PaymentPaid
	require.NoError(t, f.store.Bookings.Save(f.ctx, b))

	notes := "late change"
	_, err := f.svc.UpdateBooking(f.ctx, b.ID, f.renter, UpdateBookingRequest{Notes: &notes})
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestGetBooking_Visibility(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)

	for _, actor := range []domain.Actor{f.renter, f.owner, f.admin} {
		_, err := f.svc.GetBooking(f.ctx, b.ID, actor)
		assert.NoError(t, err)
	}
	_, err := f.svc.GetBooking(f.ctx, b.ID, domain.Actor{UserID: 77, Role: domain.RoleFarmer})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.ListEquipmentBookings(f.ctx, f.equipment.ID, f.renter, 10, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	list, err := f.svc.ListEquipmentBookings(f.ctx, f.equipment.ID, f.owner, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetSchedule(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.renter, 1, 3)
	f.book(t, f.renter, 10, 12)
	_, err := f.svc.SetBookingStatus(f.ctx, a.ID, f.owner, domain.BookingConfirmed)
	require.NoError(t, err)

	held, err := f.svc.GetSchedule(f.ctx, f.equipment.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, a.ID, held[0].Ref.ID)

	held, err = f.svc.GetSchedule(f.ctx, f.equipment.ID, day(3), day(9))
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestApplyPayment_Idempotent(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)
	b.PaymentReference = "ref-1"
	require.NoError(t, f.store.Bookings.Save(f.ctx, b))

	p := &domain.Payment{Reference: "ref-1", Kind: domain.PaymentForBooking, BookingID: &b.ID}

	apply := func() bool {
		var changed bool
		require.NoError(t, f.store.Transaction(f.ctx, func(tx *repository.Store) error {
			var err error
			changed, err = f.svc.ApplyPayment(f.ctx, tx, p, true)
			return err
		}))
		return changed
	}

	assert.True(t, apply())
	assert.False(t, apply())

	got, err := f.store.Bookings.GetByID(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, 1, f.events(t, f.owner.UserID, domain.EventBookingPaid))
}

func TestApplyPayment_StaleReferenceLeavesBookingAlone(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.renter, 1, 3)
	b.PaymentReference = "ref-new"
	require.NoError(t, f.store.Bookings.Save(f.ctx, b))

	p := &domain.Payment{Reference: "ref-old", Kind: domain.PaymentForBooking, BookingID: &b.ID}
	require.NoError(t, f.store.Transaction(f.ctx, func(tx *repository.Store) error {
		changed, err := f.svc.ApplyPayment(f.ctx, tx, p, true)
		assert.False(t, changed)
		return err
	}))

	got, err := f.store.Bookings.GetByID(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus)
}
