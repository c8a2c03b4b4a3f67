package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lulufarm/internal/domain"
	"lulufarm/internal/repository"
)

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrBookingNotPending = errors.New("booking is not pending")
	ErrInvoiceMismatch   = errors.New("invoice does not belong to booking")
)

// Service issues payment links for bookings.
type Service struct {
	bookings    *repository.BookingRepository
	gateway     Gateway
	serviceName string
	loggerf     func(format string, args ...interface{})
}

func NewService(bookings *repository.BookingRepository, gateway Gateway, serviceName string, loggerf func(format string, args ...interface{})) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if serviceName == "" {
		serviceName = "Экскурсия на ферму ЛуЛу"
	}
	return &Service{bookings: bookings, gateway: gateway, serviceName: serviceName, loggerf: loggerf}
}

func (s *Service) Gateway() Gateway { return s.gateway }

// CreateInvoice returns the booking's payment link, creating the invoice on
// first call. Repeated and concurrent calls end up with the same invoice.
func (s *Service) CreateInvoice(ctx context.Context, bookingID uuid.UUID) (*Invoice, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if b.InvoiceID != "" {
		return &Invoice{ID: b.InvoiceID, URL: b.PaymentLink}, nil
	}
	if b.Status != domain.BookingPending {
		return nil, ErrBookingNotPending
	}

	req := InvoiceRequest{
		OrderID:     b.ID.String(),
		Amount:      b.TotalAmount,
		ServiceName: fmt.Sprintf("%s #%s", s.serviceName, b.ShortRef()),
	}
	if b.User != nil {
		req.ClientName = b.User.Name
		req.ClientEmail = b.User.Email
		req.ClientPhone = b.User.Phone
	}
	inv, err := s.gateway.CreateInvoice(ctx, req)
	if err != nil {
		s.loggerf("level=error msg=invoice creation failed gateway=%s booking_id=%s err=%v", s.gateway.Name(), b.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	attached, err := s.bookings.AttachInvoice(ctx, b.ID, inv.ID, inv.URL)
	if err != nil {
		return nil, fmt.Errorf("save invoice: %w", err)
	}
	if !attached {
		// another request stored its invoice first
		stored, err := s.bookings.GetByID(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		s.loggerf("level=info msg=invoice already attached booking_id=%s invoice_id=%s", b.ID, stored.InvoiceID)
		return &Invoice{ID: stored.InvoiceID, URL: stored.PaymentLink}, nil
	}
	s.loggerf("level=info msg=invoice created gateway=%s booking_id=%s invoice_id=%s", s.gateway.Name(), b.ID, inv.ID)
	return inv, nil
}
