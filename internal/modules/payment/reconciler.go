package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lulufarm/internal/domain"
	"lulufarm/internal/repository"
)

type Outcome string

const (
	OutcomeTransitioned     Outcome = "transitioned"
	OutcomeAlreadyPaid      Outcome = "already_paid"
	OutcomeAlreadyCancelled Outcome = "already_cancelled"
	// OutcomeConflict: payment confirmed for a cancelled booking. Needs a manual refund.
	OutcomeConflict Outcome = "conflict"
	OutcomeIgnored  Outcome = "ignored"
)

// Notifier receives committed booking transitions.
type Notifier interface {
	BookingPaid(ctx context.Context, b *domain.Booking)
	BookingCancelled(ctx context.Context, b *domain.Booking)
}

type ReconcilerConfig struct {
	ReleaseOnPaymentFailure bool
}

// Reconciler applies gateway signals to bookings. Every transition is a
// conditional update on status = PENDING, so duplicates and races between the
// webhook, the poll and the sweeper apply at most once.
type Reconciler struct {
	db       *gorm.DB
	bookings *repository.BookingRepository
	slots    *repository.SlotRepository
	gateway  Gateway
	notifier Notifier
	cfg      ReconcilerConfig
	now      func() time.Time
	loggerf  func(format string, args ...interface{})
}

func NewReconciler(db *gorm.DB, bookings *repository.BookingRepository, slots *repository.SlotRepository, gateway Gateway, notifier Notifier, cfg ReconcilerConfig, loggerf func(format string, args ...interface{})) *Reconciler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Reconciler{
		db:       db,
		bookings: bookings,
		slots:    slots,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		loggerf:  loggerf,
	}
}

// ConfirmPaid moves a PENDING booking to PAID exactly once. Side effects run
// only for the call that made the transition.
func (r *Reconciler) ConfirmPaid(ctx context.Context, bookingID uuid.UUID, paymentID string) (Outcome, error) {
	changed, err := r.bookings.MarkPaid(ctx, bookingID, paymentID, r.now())
	if err != nil {
		return "", fmt.Errorf("mark paid: %w", err)
	}
	if !changed {
		status, err := r.bookings.GetStatus(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", ErrBookingNotFound
			}
			return "", err
		}
		switch status {
		case domain.BookingPaid:
			r.loggerf("level=info msg=booking already paid booking_id=%s payment_id=%s", bookingID, paymentID)
			return OutcomeAlreadyPaid, nil
		case domain.BookingCancelled:
			r.loggerf("level=error msg=payment for cancelled booking, manual refund required booking_id=%s payment_id=%s", bookingID, paymentID)
			return OutcomeConflict, nil
		default:
			return "", fmt.Errorf("booking %s: unexpected status %s", bookingID, status)
		}
	}

	r.loggerf("level=info msg=booking paid booking_id=%s payment_id=%s", bookingID, paymentID)
	r.dispatch(ctx, bookingID, func(b *domain.Booking) { r.notifier.BookingPaid(ctx, b) })
	return OutcomeTransitioned, nil
}

// MarkFailed cancels a PENDING booking after a failed payment. Seats go back
// to the slot only when ReleaseOnPaymentFailure is set.
func (r *Reconciler) MarkFailed(ctx context.Context, bookingID uuid.UUID, reason string) (Outcome, error) {
	if reason == "" {
		reason = domain.CancelReasonPaymentFailed
	}
	return r.cancelPending(ctx, bookingID, reason, r.cfg.ReleaseOnPaymentFailure)
}

// Expire cancels a stale PENDING booking and releases its seats.
func (r *Reconciler) Expire(ctx context.Context, bookingID uuid.UUID) (Outcome, error) {
	return r.cancelPending(ctx, bookingID, domain.CancelReasonExpired, true)
}

func (r *Reconciler) cancelPending(ctx context.Context, bookingID uuid.UUID, reason string, release bool) (Outcome, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookings := r.bookings.WithTx(tx)
		b, err := bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		ok, err := bookings.MarkCancelled(ctx, bookingID, reason, r.now())
		if err != nil || !ok {
			return err
		}
		changed = true
		if !release {
			return nil
		}
		if err := r.slots.WithTx(tx).Release(ctx, b.SlotID, b.TotalTickets()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				r.loggerf("level=warn msg=slot gone, seats not released booking_id=%s slot_id=%s", bookingID, b.SlotID)
				return nil
			}
			return fmt.Errorf("release capacity: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrBookingNotFound
		}
		return "", err
	}
	if !changed {
		status, err := r.bookings.GetStatus(ctx, bookingID)
		if err != nil {
			return "", err
		}
		if status == domain.BookingPaid {
			return OutcomeAlreadyPaid, nil
		}
		return OutcomeAlreadyCancelled, nil
	}

	r.loggerf("level=info msg=booking cancelled booking_id=%s reason=%s released=%t", bookingID, reason, release)
	r.dispatch(ctx, bookingID, func(b *domain.Booking) { r.notifier.BookingCancelled(ctx, b) })
	return OutcomeTransitioned, nil
}

func (r *Reconciler) dispatch(ctx context.Context, bookingID uuid.UUID, fn func(b *domain.Booking)) {
	if r.notifier == nil {
		return
	}
	b, err := r.bookings.GetByID(ctx, bookingID)
	if err != nil {
		r.loggerf("level=error msg=reload booking for notifications failed booking_id=%s err=%v", bookingID, err)
		return
	}
	fn(b)
}

// HandleNotification authenticates a gateway callback and applies it. The
// returned ack is what the gateway expects in the response body.
func (r *Reconciler) HandleNotification(ctx context.Context, form url.Values) (string, Outcome, error) {
	n, err := r.gateway.ParseNotification(form)
	if err != nil {
		return "", "", err
	}
	bookingID, err := uuid.Parse(n.OrderID)
	if err != nil {
		return "", "", fmt.Errorf("%w: bad order id %q", ErrInvalidNotification, n.OrderID)
	}
	if !r.gateway.VerifySignature(n) {
		r.loggerf("level=warn msg=webhook signature rejected gateway=%s booking_id=%s payment_id=%s", r.gateway.Name(), bookingID, n.PaymentID)
		return "", "", ErrInvalidSignature
	}

	b, err := r.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", "", ErrBookingNotFound
		}
		return "", "", err
	}
	if n.Amount != "" && !amountEqual(n.Amount, formatAmount(b.TotalAmount)) {
		r.loggerf("level=error msg=webhook amount mismatch booking_id=%s callback_amount=%s expected_amount=%s", bookingID, n.Amount, formatAmount(b.TotalAmount))
		return "", "", ErrAmountMismatch
	}

	var outcome Outcome
	switch status := NormalizeStatus(n.Status); status {
	case StatusPaid:
		paymentID := n.PaymentID
		if paymentID == "" {
			paymentID = b.InvoiceID
		}
		outcome, err = r.ConfirmPaid(ctx, bookingID, paymentID)
	case StatusFailed, StatusExpired:
		outcome, err = r.MarkFailed(ctx, bookingID, domain.CancelReasonPaymentFailed)
	default:
		r.loggerf("level=warn msg=webhook status ignored booking_id=%s status=%q", bookingID, n.Status)
		outcome = OutcomeIgnored
	}
	if err != nil {
		return "", "", err
	}
	return r.gateway.Ack(n), outcome, nil
}

type CheckResult struct {
	Status       InvoiceStatus `json:"status"`
	InvoiceID    string        `json:"invoiceId"`
	IsPaid       bool          `json:"isPaid"`
	Transitioned bool          `json:"transitioned"`
	Outcome      Outcome       `json:"outcome,omitempty"`
}

// CheckAndReconcile polls the gateway and confirms the booking if the invoice
// is paid. A failed poll leaves the booking untouched.
func (r *Reconciler) CheckAndReconcile(ctx context.Context, bookingID uuid.UUID, invoiceID string) (*CheckResult, error) {
	b, err := r.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if b.InvoiceID == "" || b.InvoiceID != invoiceID {
		return nil, ErrInvoiceMismatch
	}

	status, err := r.gateway.CheckStatus(ctx, invoiceID)
	if err != nil {
		r.loggerf("level=error msg=payment status check failed gateway=%s booking_id=%s invoice_id=%s err=%v", r.gateway.Name(), bookingID, invoiceID, err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentCheckFailed, err)
	}

	res := &CheckResult{Status: status, InvoiceID: invoiceID, IsPaid: status == StatusPaid}
	if !res.IsPaid {
		return res, nil
	}
	outcome, err := r.ConfirmPaid(ctx, bookingID, invoiceID)
	if err != nil {
		return nil, err
	}
	res.Outcome = outcome
	res.Transitioned = outcome == OutcomeTransitioned
	return res, nil
}
