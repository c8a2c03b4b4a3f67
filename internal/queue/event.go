// Package queue carries booking lifecycle events over RabbitMQ.
package queue

import (
	"time"

	"lulufarm/internal/domain"
)

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingPaid      EventType = "booking.paid"
	EventBookingCancelled EventType = "booking.cancelled"
)

// BookingEvent is self-contained so consumers never query the database.
type BookingEvent struct {
	Type          EventType `json:"type"`
	BookingID     string    `json:"booking_id"`
	Status        string    `json:"status"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone"`
	SlotDate      string    `json:"slot_date"`
	SlotTime      string    `json:"slot_time"`
	AdultTickets  int       `json:"adult_tickets"`
	ChildTickets  int       `json:"child_tickets"`
	InfantTickets int       `json:"infant_tickets"`
	TotalAmount   float64   `json:"total_amount"`
	PaymentID     string    `json:"payment_id,omitempty"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewBookingEvent snapshots a booking. User and Slot should be loaded.
func NewBookingEvent(t EventType, b *domain.Booking, at time.Time) BookingEvent {
	ev := BookingEvent{
		Type:          t,
		BookingID:     b.ID.String(),
		Status:        string(b.Status),
		AdultTickets:  b.AdultTickets,
		ChildTickets:  b.ChildTickets,
		InfantTickets: b.InfantTickets,
		TotalAmount:   b.TotalAmount,
		PaymentID:     b.PaymentID,
		CancelReason:  b.CancelReason,
		OccurredAt:    at.UTC(),
	}
	if b.User != nil {
		ev.CustomerName = b.User.Name
		ev.CustomerEmail = b.User.Email
		ev.CustomerPhone = b.User.Phone
	}
	if b.Slot != nil {
		ev.SlotDate = b.Slot.Date
		ev.SlotTime = b.Slot.Time
	}
	return ev
}

func (e BookingEvent) Tickets() int {
	return e.AdultTickets + e.ChildTickets + e.InfantTickets
}
