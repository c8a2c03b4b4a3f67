package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lulufarm/internal/domain"
)

func sampleBooking() *domain.Booking {
	return &domain.Booking{
		ID:           uuid.MustParse("8f14e45f-ceea-467a-9b57-000000000001"),
		Status:       domain.BookingPaid,
		AdultTickets: 2,
		ChildTickets: 1,
		TotalAmount:  3800,
		PaymentID:    "pk-77",
		User:         &domain.User{Name: "Анна", Email: "anna@example.com", Phone: "+79990000000"},
		Slot:         &domain.Slot{Date: "2026-06-01", Time: "12:00"},
	}
}

func TestNewBookingEvent(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := NewBookingEvent(EventBookingPaid, sampleBooking(), at)

	assert.Equal(t, EventBookingPaid, ev.Type)
	assert.Equal(t, "PAID", ev.Status)
	assert.Equal(t, "anna@example.com", ev.CustomerEmail)
	assert.Equal(t, "2026-06-01", ev.SlotDate)
	assert.Equal(t, 3, ev.Tickets())
	assert.Equal(t, at, ev.OccurredAt)
}

func TestConsumerHandleWritesLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer("", "q", LogLineHandler(&buf))

	body, err := json.Marshal(NewBookingEvent(EventBookingPaid, sampleBooking(), time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.NoError(t, c.handle(context.Background(), body))

	line := buf.String()
	assert.Contains(t, line, "booking.paid")
	assert.Contains(t, line, "tickets=3")
	assert.Contains(t, line, "total=3800.00")
	assert.Contains(t, line, "payment_id=pk-77")
}

func TestConsumerHandleRejectsGarbage(t *testing.T) {
	c := NewConsumer("", "q", LogLineHandler(&bytes.Buffer{}))
	assert.Error(t, c.handle(context.Background(), []byte("{")))
}
