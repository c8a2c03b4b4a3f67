package booking

import (
	"time"

	"github.com/google/uuid"

	"lulufarm/internal/domain"
)

type Tickets struct {
	Adult  int `json:"adult" validate:"min=0,max=10"`
	Child  int `json:"child" validate:"min=0,max=10"`
	Infant int `json:"infant" validate:"min=0,max=10"`
}

func (t Tickets) Total() int {
	return t.Adult + t.Child + t.Infant
}

type Customer struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Phone string `json:"phone" validate:"required,phone"`
	Email string `json:"email" validate:"required,email,max=255"`
}

type Agreements struct {
	Offer        bool `json:"offer"`
	PersonalData bool `json:"personalData"`
}

type CreateBookingRequest struct {
	SlotID     string     `json:"slotId" validate:"required,uuid"`
	Tickets    Tickets    `json:"tickets"`
	Customer   Customer   `json:"customer"`
	Agreements Agreements `json:"agreements"`
}

type CreateBookingResponse struct {
	BookingID   uuid.UUID            `json:"bookingId"`
	Status      domain.BookingStatus `json:"status"`
	TotalAmount float64              `json:"totalAmount"`
	PaymentLink string               `json:"paymentLink,omitempty"`
	InvoiceID   string               `json:"invoiceId,omitempty"`
}

// BookingView is the public projection of a booking; customer contacts stay out.
type BookingView struct {
	ID            uuid.UUID            `json:"id"`
	Status        domain.BookingStatus `json:"status"`
	Date          string               `json:"date"`
	Time          string               `json:"time"`
	AdultTickets  int                  `json:"adultTickets"`
	ChildTickets  int                  `json:"childTickets"`
	InfantTickets int                  `json:"infantTickets"`
	TotalAmount   float64              `json:"totalAmount"`
	PaymentLink   string               `json:"paymentLink,omitempty"`
	InvoiceID     string               `json:"invoiceId,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	PaidAt        *time.Time           `json:"paidAt,omitempty"`
}

func NewBookingView(b *domain.Booking) BookingView {
	v := BookingView{
		ID:            b.ID,
		Status:        b.Status,
		AdultTickets:  b.AdultTickets,
		ChildTickets:  b.ChildTickets,
		InfantTickets: b.InfantTickets,
		TotalAmount:   b.TotalAmount,
		CreatedAt:     b.CreatedAt,
		PaidAt:        b.PaidAt,
	}
	if b.Status == domain.BookingPending {
		v.PaymentLink = b.PaymentLink
		v.InvoiceID = b.InvoiceID
	}
	if b.Slot != nil {
		v.Date = b.Slot.Date
		v.Time = b.Slot.Time
	}
	return v
}
