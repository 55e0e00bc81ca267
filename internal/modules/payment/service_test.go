package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agrirent/internal/domain"
	"agrirent/internal/lock"
	"agrirent/internal/logger"
	"agrirent/internal/modules/booking"
	"agrirent/internal/modules/groupbooking"
	"agrirent/internal/repository"
	"agrirent/internal/testutil"
)

const webhookSecret = "whsec_test"

type mockGate struct {
	mock.Mock
}

func (m *mockGate) Initialize(ctx context.Context, amount int64, reference string) (Initialization, error) {
	args := m.Called(ctx, amount, reference)
	return args.Get(0).(Initialization), args.Error(1)
}

func (m *mockGate) Verify(ctx context.Context, reference string) (Verification, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(Verification), args.Error(1)
}

type fixture struct {
	ctx      context.Context
	store    *repository.Store
	gate     *mockGate
	svc      *Service
	bookings *booking.Service
	groups   *groupbooking.Coordinator
	eq       *domain.Equipment
	owner    domain.Actor
	renter   domain.Actor
	refs     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewStore(testutil.NewDB(t))
	guard := lock.NewGuard(store, lock.NewKeyedMutex(), time.Second)
	log := logger.Discard()

	f := &fixture{
		ctx:      ctx,
		store:    store,
		gate:     &mockGate{},
		bookings: booking.NewService(store, guard, log),
		groups:   groupbooking.NewCoordinator(store, guard, log),
		owner:    domain.Actor{UserID: 10, Role: domain.RoleOwner},
		renter:   domain.Actor{UserID: 20, Role: domain.RoleFarmer},
	}
	f.svc = NewService(store, guard, f.gate, f.bookings, f.groups, webhookSecret, log)
	f.svc.newReference = func(prefix string) string {
		f.refs++
		return fmt.Sprintf("%sref-%d", prefix, f.refs)
	}

	f.eq = &domain.Equipment{OwnerID: f.owner.UserID, Name: "Rotavator", PricePerDay: 2500, IsAvailable: true}
	require.NoError(t, store.Equipment.Create(ctx, f.eq))
	return f
}

func (f *fixture) booking(t *testing.T) *domain.Booking {
	t.Helper()
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	b, err := f.bookings.CreateBooking(f.ctx, f.renter, booking.CreateBookingRequest{
		EquipmentID: f.eq.ID,
		StartDate:   start,
		EndDate:     start.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) expectCheckout(amount int64) {
	f.gate.On("Initialize", mock.Anything, amount, mock.AnythingOfType("string")).
		Return(Initialization{RedirectURL: "https://checkout.example/pay", ProviderOrderID: "order_1"}, nil).Once()
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

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func orderPaid(reference string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_1","receipt":%q,"amount_paid":%d,"status":"paid"}}}}`, reference, amount))
}

func TestInitiateBookingPayment_GatewayDownChangesNothing(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t)
	f.gate.On("Initialize", mock.Anything, b.TotalPrice, mock.Anything).
		Return(Initialization{}, fmt.Errorf("%w: timeout", ErrGatewayUnavailable)).Once()

	_, err := f.svc.InitiateBookingPayment(f.ctx, b.ID, f.renter)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	got, err := f.store.Bookings.GetByID(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PaymentReference)
	_, err = f.store.Payments.GetByReference(f.ctx, "bk_ref-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInitiateBookingPayment_Rejections(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t)

	_, err := f.svc.InitiateBookingPayment(f.ctx, b.ID, f.owner)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.bookings.CancelBooking(f.ctx, b.ID, f.renter, "")
	require.NoError(t, err)
	_, err = f.svc.InitiateBookingPayment(f.ctx, b.ID, f.renter)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	f.gate.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_MarksBookingPaidOnce(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t)
	f.expectCheckout(b.TotalPrice)

	res, err := f.svc.InitiateBookingPayment(f.ctx, b.ID, f.renter)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/pay", res.RedirectURL)
	assert.Equal(t, domain.PaymentRecordInitialized, res.Payment.Status)
	ref := res.Payment.Reference

	f.gate.On("Verify", mock.Anything, ref).Return(Verification{Pending: true}, nil).Once()
	p, err := f.svc.Verify(f.ctx, ref, f.renter)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordInitialized, p.Status)

	f.gate.On("Verify", mock.Anything, ref).Return(Verification{Paid: true, Amount: b.TotalPrice}, nil).Once()
	p, err = f.svc.Verify(f.ctx, ref, f.renter)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordPaid, p.Status)
	assert.Equal(t, b.TotalPrice, p.PaidAmount)

	// settled payments are not sent to the gateway again
	_, err = f.svc.Verify(f.ctx, ref, f.renter)
	require.NoError(t, err)
	f.gate.AssertNumberOfCalls(t, "Verify", 2)

	got, err := f.store.Bookings.GetByID(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, 1, f.events(t, f.owner.UserID, domain.EventBookingPaid))

	_, err = f.svc.Verify(f.ctx, ref, domain.Actor{UserID: 99})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestHandleWebhook_AppliedOnce(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t)
	f.expectCheckout(b.TotalPrice)
	res, err := f.svc.InitiateBookingPayment(f.ctx, b.ID, f.renter)
	require.NoError(t, err)

	body := orderPaid(res.Payment.Reference, b.TotalPrice)
	require.NoError(t, f.svc.HandleWebhook(f.ctx, body, sign(body)))
	require.NoError(t, f.svc.HandleWebhook(f.ctx, body, sign(body)))

	got, err := f.store.Bookings.GetByID(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, 1, f.events(t, f.owner.UserID, domain.EventBookingPaid))
	assert.Equal(t, 1, f.events(t, f.renter.UserID, domain.EventBookingPaid))
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	body := orderPaid("bk_ref-1", 100)

	assert.ErrorIs(t, f.svc.HandleWebhook(f.ctx, body, "deadbeef"), ErrInvalidSignature)
	assert.ErrorIs(t, f.svc.HandleWebhook(f.ctx, body, ""), ErrInvalidSignature)
}

func TestHandleWebhook_UnknownCheckoutIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	body := orderPaid("bk_missing", 100)
	assert.NoError(t, f.svc.HandleWebhook(f.ctx, body, sign(body)))

	other := []byte(`{"event":"refund.created","payload":{}}`)
	assert.NoError(t, f.svc.HandleWebhook(f.ctx, other, sign(other)))
}

func TestOnPaymentVerified_UnderpaymentFails(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t)
	f.expectCheckout(b.TotalPrice)
	res, err := f.svc.InitiateBookingPayment(f.ctx, b.ID, f.renter)
	require.NoError(t, err)

	p, err := f.svc.OnPaymentVerified(f.ctx, res.Payment.Reference, true, b.TotalPrice-1)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordFailed, p.Status)
	assert.Contains(t, p.FailureReason, "underpaid")

	got, err := f.store.Bookings.GetByID(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus)
	assert.Equal(t, 1, f.events(t, f.renter.UserID, domain.EventPaymentFailed))
}

func TestHandleWebhook_FailedThenCaptured(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t)
	f.expectCheckout(b.TotalPrice)
	res, err := f.svc.InitiateBookingPayment(f.ctx, b.ID, f.renter)
	require.NoError(t, err)

	failed := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":7500,"status":"failed"}}}}`)
	require.NoError(t, f.svc.HandleWebhook(f.ctx, failed, sign(failed)))
	require.NoError(t, f.svc.HandleWebhook(f.ctx, failed, sign(failed)))
	assert.Equal(t, 1, f.events(t, f.renter.UserID, domain.EventPaymentFailed))

	captured := []byte(fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_1","amount":%d,"status":"captured"}}}}`, b.TotalPrice))
	require.NoError(t, f.svc.HandleWebhook(f.ctx, captured, sign(captured)))

	p, err := f.store.Payments.GetByReference(f.ctx, res.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordPaid, p.Status)
	got, err := f.store.Bookings.GetByID(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
}

func TestParticipantPayment_MakesGroupReady(t *testing.T) {
	f := newFixture(t)
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	initiator := domain.Actor{UserID: 30, Role: domain.RoleFarmer}
	member := domain.Actor{UserID: 31, Role: domain.RoleFarmer}

	view, err := f.groups.Create(f.ctx, initiator, groupbooking.CreateGroupBookingRequest{
		EquipmentID:     f.eq.ID,
		StartDate:       start,
		EndDate:         start.Add(48 * time.Hour),
		MinParticipants: 2,
		MaxParticipants: 2,
	})
	require.NoError(t, err)
	groupID := view.Group.ID
	_, err = f.groups.Join(f.ctx, groupID, member, "")
	require.NoError(t, err)

	_, err = f.svc.InitiateParticipantPayment(f.ctx, groupID, f.renter)
	assert.ErrorIs(t, err, groupbooking.ErrNotParticipant)

	for _, actor := range []domain.Actor{initiator, member} {
		f.expectCheckout(2500)
		res, err := f.svc.InitiateParticipantPayment(f.ctx, groupID, actor)
		require.NoError(t, err)
		body := orderPaid(res.Payment.Reference, 2500)
		require.NoError(t, f.svc.HandleWebhook(f.ctx, body, sign(body)))
	}

	got, err := f.groups.Get(f.ctx, groupID, f.owner)
	require.NoError(t, err)
	assert.True(t, got.ReadyForConfirmation)
	assert.Equal(t, 1, f.events(t, f.owner.UserID, domain.EventGroupReady))

	_, err = f.svc.InitiateParticipantPayment(f.ctx, groupID, member)
	assert.ErrorIs(t, err, groupbooking.ErrAlreadyPaid)

	_, err = f.groups.Confirm(f.ctx, groupID, f.owner)
	assert.NoError(t, err)
}

func TestParticipantPayment_CheckoutOpenedBeforeLeaveStaysOutstanding(t *testing.T) {
	f := newFixture(t)
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	initiator := domain.Actor{UserID: 30, Role: domain.RoleFarmer}
	member := domain.Actor{UserID: 31, Role: domain.RoleFarmer}
	leaver := domain.Actor{UserID: 32, Role: domain.RoleFarmer}

	view, err := f.groups.Create(f.ctx, initiator, groupbooking.CreateGroupBookingRequest{
		EquipmentID:     f.eq.ID,
		StartDate:       start,
		EndDate:         start.Add(96 * time.Hour),
		MinParticipants: 2,
		MaxParticipants: 3,
	})
	require.NoError(t, err)
	groupID := view.Group.ID
	require.Equal(t, int64(10000), view.Group.TotalPrice)
	for _, a := range []domain.Actor{member, leaver} {
		_, err = f.groups.Join(f.ctx, groupID, a, "")
		require.NoError(t, err)
	}

	f.expectCheckout(3333)
	res, err := f.svc.InitiateParticipantPayment(f.ctx, groupID, member)
	require.NoError(t, err)

	_, err = f.groups.Leave(f.ctx, groupID, leaver)
	require.NoError(t, err)

	body := orderPaid(res.Payment.Reference, 3333)
	require.NoError(t, f.svc.HandleWebhook(f.ctx, body, sign(body)))

	p, err := f.store.Groups.GetParticipant(f.ctx, groupID, member.UserID)
	require.NoError(t, err)
	assert.False(t, p.IsPaid())
	assert.Equal(t, int64(3333), p.PaidAmount)
	assert.Equal(t, 1, f.events(t, member.UserID, domain.EventGroupShareOutstanding))

	// the next checkout asks only for the difference
	f.expectCheckout(1667)
	res, err = f.svc.InitiateParticipantPayment(f.ctx, groupID, member)
	require.NoError(t, err)
	assert.Equal(t, int64(1667), res.Payment.Amount)
	body = orderPaid(res.Payment.Reference, 1667)
	require.NoError(t, f.svc.HandleWebhook(f.ctx, body, sign(body)))

	f.expectCheckout(5000)
	res, err = f.svc.InitiateParticipantPayment(f.ctx, groupID, initiator)
	require.NoError(t, err)
	body = orderPaid(res.Payment.Reference, 5000)
	require.NoError(t, f.svc.HandleWebhook(f.ctx, body, sign(body)))

	confirmed, err := f.groups.Confirm(f.ctx, groupID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), domain.Collected(confirmed.Participants))
	f.gate.AssertExpectations(t)
}
