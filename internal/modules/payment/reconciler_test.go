package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lulufarm/internal/domain"
	"lulufarm/internal/repository"
	"lulufarm/internal/testutil"
)

type recordingNotifier struct {
	mu        sync.Mutex
	paid      []uuid.UUID
	cancelled []*domain.Booking
}

func (n *recordingNotifier) BookingPaid(_ context.Context, b *domain.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, b.ID)
}

func (n *recordingNotifier) BookingCancelled(_ context.Context, b *domain.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, b)
}

// stubGateway overrides status checks of the demo gateway.
type stubGateway struct {
	*DemoGateway
	status   InvoiceStatus
	checkErr error
}

func (g *stubGateway) CheckStatus(ctx context.Context, invoiceID string) (InvoiceStatus, error) {
	if g.checkErr != nil {
		return "", g.checkErr
	}
	if g.status != "" {
		return g.status, nil
	}
	return g.DemoGateway.CheckStatus(ctx, invoiceID)
}

type fixture struct {
	db         *gorm.DB
	bookings   *repository.BookingRepository
	slots      *repository.SlotRepository
	gateway    *stubGateway
	notifier   *recordingNotifier
	service    *Service
	reconciler *Reconciler
	slot       *domain.Slot
}

func newFixture(t *testing.T, cfg ReconcilerConfig) *fixture {
	db := testutil.NewDB(t)
	tariff := testutil.SeedTariff(t, db, "Стандарт", 1500, 800, 0)
	f := &fixture{
		db:       db,
		bookings: repository.NewBookingRepository(db),
		slots:    repository.NewSlotRepository(db),
		gateway:  &stubGateway{DemoGateway: NewDemoGateway("http://localhost:8080", "webhook-secret")},
		notifier: &recordingNotifier{},
		slot:     testutil.SeedSlot(t, db, tariff, "2026-06-01", "12:00", 15),
	}
	f.service = NewService(f.bookings, f.gateway, "", nil)
	f.reconciler = NewReconciler(db, f.bookings, f.slots, f.gateway, f.notifier, cfg, nil)
	return f
}

func (f *fixture) pendingWithInvoice(t *testing.T) (*domain.Booking, *Invoice) {
	b := testutil.SeedBooking(t, f.db, f.slot, 2, 1, uuid.NewString()+"@example.com")
	inv, err := f.service.CreateInvoice(context.Background(), b.ID)
	require.NoError(t, err)
	return b, inv
}

func TestService_CreateInvoice_Idempotent(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, inv := f.pendingWithInvoice(t)
	assert.Equal(t, "demo_"+b.ID.String(), inv.ID)

	again, err := f.service.CreateInvoice(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, inv, again)

	stored := testutil.ReloadBooking(t, f.db, b)
	assert.Equal(t, inv.ID, stored.InvoiceID)
	assert.Equal(t, inv.URL, stored.PaymentLink)

	_, err = f.service.CreateInvoice(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestReconciler_DuplicateWebhookTransitionsOnce(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, inv := f.pendingWithInvoice(t)
	n, err := f.gateway.Complete(inv.ID)
	require.NoError(t, err)
	form := f.gateway.Form(n)

	ack, outcome, err := f.reconciler.HandleNotification(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, "OK", ack)
	assert.Equal(t, OutcomeTransitioned, outcome)

	first := testutil.ReloadBooking(t, f.db, b)
	assert.Equal(t, domain.BookingPaid, first.Status)
	require.NotNil(t, first.PaidAt)
	assert.Equal(t, n.PaymentID, first.PaymentID)

	ack, outcome, err = f.reconciler.HandleNotification(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, "OK", ack)
	assert.Equal(t, OutcomeAlreadyPaid, outcome)

	second := testutil.ReloadBooking(t, f.db, b)
	assert.True(t, first.PaidAt.Equal(*second.PaidAt), "paidAt must not move")
	assert.Len(t, f.notifier.paid, 1)
}

func TestReconciler_RejectsBadSignature(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, inv := f.pendingWithInvoice(t)
	n, err := f.gateway.Complete(inv.ID)
	require.NoError(t, err)
	n.Signature = "deadbeef"

	_, _, err = f.reconciler.HandleNotification(context.Background(), f.gateway.Form(n))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, domain.BookingPending, testutil.ReloadBooking(t, f.db, b).Status)
	assert.Empty(t, f.notifier.paid)
}

func TestReconciler_RejectsAmountMismatch(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, _ := f.pendingWithInvoice(t)
	n := &Notification{PaymentID: "p1", OrderID: b.ID.String(), Amount: "10.00", Status: "success"}
	n.Signature = f.gateway.Sign(n)

	_, _, err := f.reconciler.HandleNotification(context.Background(), f.gateway.Form(n))
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, domain.BookingPending, testutil.ReloadBooking(t, f.db, b).Status)
}

func TestReconciler_MalformedAndUnknownBooking(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})

	n := &Notification{PaymentID: "p1", OrderID: "not-a-uuid", Amount: "1.00", Status: "success"}
	n.Signature = f.gateway.Sign(n)
	_, _, err := f.reconciler.HandleNotification(context.Background(), f.gateway.Form(n))
	assert.ErrorIs(t, err, ErrInvalidNotification)

	n.OrderID = uuid.NewString()
	n.Signature = f.gateway.Sign(n)
	_, _, err = f.reconciler.HandleNotification(context.Background(), f.gateway.Form(n))
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestReconciler_UnknownStatusIsIgnored(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, _ := f.pendingWithInvoice(t)
	n := &Notification{PaymentID: "p1", OrderID: b.ID.String(), Status: "refund_requested"}
	n.Signature = f.gateway.Sign(n)

	ack, outcome, err := f.reconciler.HandleNotification(context.Background(), f.gateway.Form(n))
	require.NoError(t, err)
	assert.Equal(t, "OK", ack)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, domain.BookingPending, testutil.ReloadBooking(t, f.db, b).Status)
}

func TestReconciler_FailedPaymentKeepsSeatsByDefault(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, _ := f.pendingWithInvoice(t)
	n := &Notification{PaymentID: "p1", OrderID: b.ID.String(), Status: "failed"}
	n.Signature = f.gateway.Sign(n)

	_, outcome, err := f.reconciler.HandleNotification(context.Background(), f.gateway.Form(n))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, outcome)

	got := testutil.ReloadBooking(t, f.db, b)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.Equal(t, domain.CancelReasonPaymentFailed, got.CancelReason)
	assert.Equal(t, 12, testutil.Reload(t, f.db, f.slot).AvailableCapacity)
	require.Len(t, f.notifier.cancelled, 1)
	assert.Equal(t, domain.CancelReasonPaymentFailed, f.notifier.cancelled[0].CancelReason)
}

func TestReconciler_FailedPaymentReleasesWhenConfigured(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{ReleaseOnPaymentFailure: true})
	b, _ := f.pendingWithInvoice(t)

	outcome, err := f.reconciler.MarkFailed(context.Background(), b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, outcome)
	assert.Equal(t, 15, testutil.Reload(t, f.db, f.slot).AvailableCapacity)

	outcome, err = f.reconciler.MarkFailed(context.Background(), b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCancelled, outcome)
	assert.Equal(t, 15, testutil.Reload(t, f.db, f.slot).AvailableCapacity, "second cancel must not release again")
}

func TestReconciler_PaidAfterCancelIsConflict(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, _ := f.pendingWithInvoice(t)
	_, err := f.reconciler.Expire(context.Background(), b.ID)
	require.NoError(t, err)

	outcome, err := f.reconciler.ConfirmPaid(context.Background(), b.ID, "late-payment")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, outcome)
	assert.Equal(t, domain.BookingCancelled, testutil.ReloadBooking(t, f.db, b).Status)
	assert.Empty(t, f.notifier.paid)
}

func TestReconciler_CheckAndReconcile(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, inv := f.pendingWithInvoice(t)

	res, err := f.reconciler.CheckAndReconcile(context.Background(), b.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.False(t, res.IsPaid)
	assert.False(t, res.Transitioned)

	f.gateway.status = StatusPaid
	res, err = f.reconciler.CheckAndReconcile(context.Background(), b.ID, inv.ID)
	require.NoError(t, err)
	assert.True(t, res.IsPaid)
	assert.True(t, res.Transitioned)
	assert.Equal(t, domain.BookingPaid, testutil.ReloadBooking(t, f.db, b).Status)

	res, err = f.reconciler.CheckAndReconcile(context.Background(), b.ID, inv.ID)
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Equal(t, OutcomeAlreadyPaid, res.Outcome)
	assert.Len(t, f.notifier.paid, 1)
}

func TestReconciler_CheckFailureDoesNotMutate(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, inv := f.pendingWithInvoice(t)
	f.gateway.checkErr = errors.New("connection reset")

	_, err := f.reconciler.CheckAndReconcile(context.Background(), b.ID, inv.ID)
	assert.ErrorIs(t, err, ErrPaymentCheckFailed)
	assert.Equal(t, domain.BookingPending, testutil.ReloadBooking(t, f.db, b).Status)

	_, err = f.reconciler.CheckAndReconcile(context.Background(), b.ID, "demo_other")
	assert.ErrorIs(t, err, ErrInvoiceMismatch)
}

func TestReconciler_ConcurrentConfirmations(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	b, _ := f.pendingWithInvoice(t)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 5)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], _ = f.reconciler.ConfirmPaid(context.Background(), b.ID, "pay-"+time.Now().String())
		}(i)
	}
	wg.Wait()

	transitions := 0
	for _, o := range outcomes {
		if o == OutcomeTransitioned {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
	assert.Len(t, f.notifier.paid, 1)
}
