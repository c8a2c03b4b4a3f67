// Package notification fans booking lifecycle changes out to the CRM, the
// customer's mailbox and operational sinks. Every call is isolated: a failing
// integration is logged and never reaches the caller.
package notification

import (
	"context"
	"fmt"
	"time"

	"lulufarm/internal/domain"
	"lulufarm/internal/queue"
)

// Sink receives booking events (broker, live feed, owner chat).
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

type Dispatcher struct {
	crm     CRM
	mailer  Mailer
	sinks   []Sink
	timeout time.Duration
	now     func() time.Time
	loggerf func(format string, args ...interface{})
}

func NewDispatcher(crm CRM, mailer Mailer, sinks []Sink, timeout time.Duration, loggerf func(format string, args ...interface{})) *Dispatcher {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &Dispatcher{
		crm:     crm,
		mailer:  mailer,
		sinks:   live,
		timeout: timeout,
		now:     time.Now,
		loggerf: loggerf,
	}
}

// BookingCreated registers the customer and a deal in the CRM and announces
// the booking. It returns the CRM deal id, or 0 when the CRM call failed.
func (d *Dispatcher) BookingCreated(ctx context.Context, b *domain.Booking) int64 {
	var dealID int64
	if d.crm != nil && b.User != nil {
		var contactID int64
		d.run(ctx, "crm.create_or_update_contact", b, func(ctx context.Context) error {
			id, err := d.crm.CreateOrUpdateContact(ctx, Contact{
				Name:      b.User.Name,
				Email:     b.User.Email,
				Phone:     b.User.Phone,
				BookingID: b.ID.String(),
			})
			contactID = id
			return err
		})
		if contactID != 0 {
			d.run(ctx, "crm.create_deal", b, func(ctx context.Context) error {
				id, err := d.crm.CreateDeal(ctx, newDeal(b, contactID))
				dealID = id
				return err
			})
		}
	}
	d.publish(ctx, queue.EventBookingCreated, b)
	return dealID
}

// BookingPaid moves the CRM deal, sends the confirmation e-mail and announces
// the payment.
func (d *Dispatcher) BookingPaid(ctx context.Context, b *domain.Booking) {
	if d.crm != nil && b.AmocrmDealID == 0 {
		// deal may still be in flight; the creator moves it once the id is stored
		d.loggerf("level=warn msg=crm deal not linked at payment booking_id=%s", b.ID)
	}
	d.DealPaid(ctx, b)
	if d.mailer != nil && b.User != nil {
		d.run(ctx, "email.booking_confirmation", b, func(ctx context.Context) error {
			return d.mailer.SendBookingConfirmation(ctx, NewConfirmation(b))
		})
	}
	d.publish(ctx, queue.EventBookingPaid, b)
}

// DealPaid moves the booking's CRM deal to the paid stage. Booking creation
// calls it directly when the payment landed before the deal id was saved.
func (d *Dispatcher) DealPaid(ctx context.Context, b *domain.Booking) {
	if d.crm == nil || b.AmocrmDealID == 0 {
		return
	}
	d.run(ctx, "crm.update_deal_status", b, func(ctx context.Context) error {
		return d.crm.UpdateDealStatus(ctx, b.AmocrmDealID, StagePaid)
	})
}

func (d *Dispatcher) BookingCancelled(ctx context.Context, b *domain.Booking) {
	d.publish(ctx, queue.EventBookingCancelled, b)
}

func (d *Dispatcher) publish(ctx context.Context, t queue.EventType, b *domain.Booking) {
	if len(d.sinks) == 0 {
		return
	}
	ev := queue.NewBookingEvent(t, b, d.now())
	for _, s := range d.sinks {
		s := s
		d.run(ctx, "sink."+s.Name(), b, func(ctx context.Context) error {
			return s.Publish(ctx, ev)
		})
	}
}

// run executes one side effect with its own deadline. The parent's
// cancellation is dropped: a client hanging up must not abort notifications
// for a state change that already committed.
func (d *Dispatcher) run(parent context.Context, op string, b *domain.Booking, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()
	if err != nil {
		d.loggerf("level=error msg=notification failed op=%s booking_id=%s err=%v", op, b.ID, err)
		return
	}
	d.loggerf("level=info msg=notification sent op=%s booking_id=%s", op, b.ID)
}

func newDeal(b *domain.Booking, contactID int64) Deal {
	deal := Deal{
		Name:      fmt.Sprintf("Экскурсия #%s", b.ShortRef()),
		Price:     b.TotalAmount,
		ContactID: contactID,
		BookingID: b.ID.String(),
		Tickets:   b.TotalTickets(),
	}
	if b.Slot != nil {
		deal.Date = b.Slot.Date
		deal.Time = b.Slot.Time
	}
	return deal
}
