package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lulufarm/internal/domain"
	"lulufarm/internal/modules/payment"
	"lulufarm/internal/pkg/validator"
	"lulufarm/internal/repository"
)

type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, bookingID uuid.UUID) (*payment.Invoice, error)
}

// Notifier is told about committed bookings. BookingCreated returns the CRM
// deal id, 0 when there is none.
type Notifier interface {
	BookingCreated(ctx context.Context, b *domain.Booking) int64
	DealPaid(ctx context.Context, b *domain.Booking)
	BookingCancelled(ctx context.Context, b *domain.Booking)
}

type Service struct {
	db       *gorm.DB
	slots    *repository.SlotRepository
	bookings *repository.BookingRepository
	users    *repository.UserRepository
	invoices InvoiceCreator
	notifier Notifier
	loggerf  func(format string, args ...interface{})
}

func NewService(
	db *gorm.DB,
	slots *repository.SlotRepository,
	bookings *repository.BookingRepository,
	users *repository.UserRepository,
	invoices InvoiceCreator,
	notifier Notifier,
	loggerf func(format string, args ...interface{}),
) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{
		db:       db,
		slots:    slots,
		bookings: bookings,
		users:    users,
		invoices: invoices,
		notifier: notifier,
		loggerf:  loggerf,
	}
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func validateRequest(req *CreateBookingRequest) error {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	req.Customer.Phone = validator.NormalizePhone(req.Customer.Phone)

	if errs := validator.Validate(req); len(errs) > 0 {
		return validationError(validator.Message(errs))
	}
	if !req.Agreements.Offer || !req.Agreements.PersonalData {
		return validationError("offer and personal data agreements must be accepted")
	}
	total := req.Tickets.Total()
	if total < domain.MinTicketsPerBooking || total > domain.MaxTicketsPerBooking {
		return validationError(fmt.Sprintf("total tickets must be between %d and %d", domain.MinTicketsPerBooking, domain.MaxTicketsPerBooking))
	}
	return nil
}

// CreateBooking reserves seats and stores a PENDING booking in one
// transaction. The payment link and CRM deal are requested after commit; their
// failures are logged and the booking stands.
func (s *Service) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResponse, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		return nil, validationError("invalid slotId")
	}
	n := req.Tickets.Total()

	var b *domain.Booking
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slots := s.slots.WithTx(tx)

		slot, err := slots.GetByID(ctx, slotID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSlotNotFound
			}
			return err
		}
		if slot.Status != domain.SlotActive || slot.AvailableCapacity < n {
			return ErrSlotUnavailable
		}
		if slot.Tariff == nil {
			return fmt.Errorf("slot %s has no tariff", slot.ID)
		}

		user, err := s.users.WithTx(tx).UpsertByEmail(ctx, req.Customer.Name, req.Customer.Email, req.Customer.Phone)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}

		t := slot.Tariff
		b = &domain.Booking{
			UserID:        user.ID,
			SlotID:        slot.ID,
			AdultTickets:  req.Tickets.Adult,
			ChildTickets:  req.Tickets.Child,
			InfantTickets: req.Tickets.Infant,
			AdultPrice:    t.AdultPrice,
			ChildPrice:    t.ChildPrice,
			InfantPrice:   t.InfantPrice,
			TotalAmount:   t.PriceFor(req.Tickets.Adult, req.Tickets.Child, req.Tickets.Infant),
			Status:        domain.BookingPending,
		}
		if err := s.bookings.WithTx(tx).Create(ctx, b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}

		// the guarded decrement re-checks capacity against the committed row
		if err := slots.Reserve(ctx, slot.ID, n); err != nil {
			if errors.Is(err, repository.ErrSlotUnavailable) {
				return ErrSlotUnavailable
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=booking created booking_id=%s slot_id=%s tickets=%d total=%.2f", b.ID, b.SlotID, n, b.TotalAmount)

	resp := &CreateBookingResponse{BookingID: b.ID, Status: b.Status, TotalAmount: b.TotalAmount}
	s.afterCreate(ctx, b.ID, resp)
	return resp, nil
}

func (s *Service) afterCreate(ctx context.Context, id uuid.UUID, resp *CreateBookingResponse) {
	if s.invoices != nil {
		inv, err := s.invoices.CreateInvoice(ctx, id)
		if err != nil {
			s.loggerf("level=error msg=payment link not created, retry via /payments/create booking_id=%s err=%v", id, err)
		} else {
			resp.PaymentLink = inv.URL
			resp.InvoiceID = inv.ID
		}
	}

	if s.notifier == nil {
		return
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		s.loggerf("level=error msg=reload booking for notifications failed booking_id=%s err=%v", id, err)
		return
	}
	dealID := s.notifier.BookingCreated(ctx, b)
	if dealID == 0 {
		return
	}
	if err := s.bookings.SetDealID(ctx, id, dealID); err != nil {
		s.loggerf("level=error msg=save crm deal id failed booking_id=%s deal_id=%d err=%v", id, dealID, err)
		return
	}
	// payment confirmed while the CRM call was in flight saw no deal to move
	cur, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		s.loggerf("level=error msg=reload booking after deal link failed booking_id=%s err=%v", id, err)
		return
	}
	if cur.Status == domain.BookingPaid {
		s.notifier.DealPaid(ctx, cur)
	}
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Service) ListBookings(ctx context.Context, f repository.BookingFilter) ([]domain.Booking, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationError("unknown status " + string(f.Status))
	}
	return s.bookings.List(ctx, f)
}

// Cancel is the admin cancellation. It works on PENDING and PAID bookings and
// always returns the seats to the slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookings := s.bookings.WithTx(tx)
		b, err := bookings.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		var changed bool
		switch b.Status {
		case domain.BookingPending:
			changed, err = bookings.MarkCancelled(ctx, id, domain.CancelReasonAdmin, now)
		case domain.BookingPaid:
			changed, err = bookings.CancelPaid(ctx, id, domain.CancelReasonAdmin, now)
		default:
			return ErrAlreadyCancelled
		}
		if err != nil {
			return err
		}
		if !changed {
			// status moved under us
			return ErrAlreadyCancelled
		}
		if err := s.slots.WithTx(tx).Release(ctx, b.SlotID, b.TotalTickets()); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("release capacity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=booking cancelled by admin booking_id=%s tickets=%d", id, b.TotalTickets())
	if s.notifier != nil {
		s.notifier.BookingCancelled(ctx, b)
	}
	return b, nil
}
