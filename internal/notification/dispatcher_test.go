package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lulufarm/internal/domain"
	"lulufarm/internal/queue"
)

type MockCRM struct {
	mock.Mock
}

func (m *MockCRM) Name() string { return "mock-crm" }

func (m *MockCRM) CreateOrUpdateContact(ctx context.Context, c Contact) (int64, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCRM) CreateDeal(ctx context.Context, d Deal) (int64, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCRM) UpdateDealStatus(ctx context.Context, dealID int64, stage DealStage) error {
	args := m.Called(ctx, dealID, stage)
	return args.Error(0)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Name() string { return "mock-mailer" }

func (m *MockMailer) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

type recordingSink struct {
	mu     sync.Mutex
	name   string
	err    error
	panics bool
	events []queue.BookingEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, ev queue.BookingEvent) error {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

type logCapture struct {
	mu    sync.Mutex
	lines []string
}

func (l *logCapture) logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, format)
}

func (l *logCapture) count(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func sampleBooking() *domain.Booking {
	return &domain.Booking{
		ID:            uuid.New(),
		AdultTickets:  2,
		ChildTickets:  1,
		TotalAmount:   3800,
		AdultPrice:    1500,
		ChildPrice:    800,
		Status:        domain.BookingPending,
		User:          &domain.User{Name: "Анна", Email: "anna@example.com", Phone: "+79001234567"},
		Slot:          &domain.Slot{Date: "2026-06-01", Time: "12:00", Tariff: &domain.Tariff{Name: "Стандарт"}},
	}
}

func TestDispatcher_BookingCreated_ReturnsDealID(t *testing.T) {
	crm := new(MockCRM)
	b := sampleBooking()
	crm.On("CreateOrUpdateContact", mock.Anything, mock.MatchedBy(func(c Contact) bool {
		return c.Email == "anna@example.com" && c.BookingID == b.ID.String()
	})).Return(int64(11), nil)
	crm.On("CreateDeal", mock.Anything, mock.MatchedBy(func(d Deal) bool {
		return d.ContactID == 11 && d.Tickets == 3 && d.Price == 3800 && d.Date == "2026-06-01"
	})).Return(int64(22), nil)
	sink := &recordingSink{name: "rec"}

	d := NewDispatcher(crm, nil, []Sink{sink}, time.Second, nil)
	dealID := d.BookingCreated(context.Background(), b)

	assert.Equal(t, int64(22), dealID)
	crm.AssertExpectations(t)
	require.Len(t, sink.events, 1)
	assert.Equal(t, queue.EventBookingCreated, sink.events[0].Type)
	assert.Equal(t, 3, sink.events[0].Tickets())
}

func TestDispatcher_BookingCreated_ContactFailureSkipsDeal(t *testing.T) {
	crm := new(MockCRM)
	crm.On("CreateOrUpdateContact", mock.Anything, mock.Anything).Return(int64(0), errors.New("amocrm down"))
	sink := &recordingSink{name: "rec"}
	logs := &logCapture{}

	d := NewDispatcher(crm, nil, []Sink{sink}, time.Second, logs.logf)
	dealID := d.BookingCreated(context.Background(), sampleBooking())

	assert.Zero(t, dealID)
	crm.AssertNotCalled(t, "CreateDeal", mock.Anything, mock.Anything)
	assert.Len(t, sink.events, 1, "sinks still receive the event")
	assert.Equal(t, 1, logs.count("notification failed"))
}

func TestDispatcher_BookingPaid_IsolatesFailures(t *testing.T) {
	crm := new(MockCRM)
	mailer := new(MockMailer)
	b := sampleBooking()
	b.AmocrmDealID = 77
	b.Status = domain.BookingPaid

	crm.On("UpdateDealStatus", mock.Anything, int64(77), StagePaid).Return(errors.New("timeout"))
	mailer.On("SendBookingConfirmation", mock.Anything, mock.MatchedBy(func(c Confirmation) bool {
		return c.To == "anna@example.com" && c.BookingRef == b.ShortRef() && c.TariffName == "Стандарт"
	})).Return(nil)
	broken := &recordingSink{name: "broken", panics: true}
	failing := &recordingSink{name: "failing", err: errors.New("broker down")}
	ok := &recordingSink{name: "ok"}
	logs := &logCapture{}

	d := NewDispatcher(crm, mailer, []Sink{broken, nil, failing, ok}, time.Second, logs.logf)
	assert.NotPanics(t, func() { d.BookingPaid(context.Background(), b) })

	crm.AssertExpectations(t)
	mailer.AssertExpectations(t)
	assert.Len(t, failing.events, 1)
	require.Len(t, ok.events, 1)
	assert.Equal(t, queue.EventBookingPaid, ok.events[0].Type)
	assert.Equal(t, 3, logs.count("notification failed"))
}

func TestDispatcher_BookingPaid_NoDealSkipsCRM(t *testing.T) {
	crm := new(MockCRM)
	mailer := new(MockMailer)
	mailer.On("SendBookingConfirmation", mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(crm, mailer, nil, time.Second, nil)
	d.BookingPaid(context.Background(), sampleBooking())

	crm.AssertNotCalled(t, "UpdateDealStatus", mock.Anything, mock.Anything, mock.Anything)
	mailer.AssertNumberOfCalls(t, "SendBookingConfirmation", 1)
}

func TestDispatcher_BookingPaid_UnlinkedDealIsLogged(t *testing.T) {
	crm := new(MockCRM)
	logs := &logCapture{}

	d := NewDispatcher(crm, nil, nil, time.Second, logs.logf)
	d.BookingPaid(context.Background(), sampleBooking())

	assert.Equal(t, 1, logs.count("crm deal not linked"))
	crm.AssertNotCalled(t, "UpdateDealStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_DealPaid(t *testing.T) {
	crm := new(MockCRM)
	crm.On("UpdateDealStatus", mock.Anything, int64(91), StagePaid).Return(nil)
	sink := &recordingSink{name: "rec"}
	b := sampleBooking()

	d := NewDispatcher(crm, nil, []Sink{sink}, time.Second, nil)
	d.DealPaid(context.Background(), b) // no deal yet
	b.AmocrmDealID = 91
	d.DealPaid(context.Background(), b)

	crm.AssertNumberOfCalls(t, "UpdateDealStatus", 1)
	assert.Empty(t, sink.events, "deal sync does not re-announce the payment")
}

func TestDispatcher_RunIgnoresParentCancellation(t *testing.T) {
	mailer := new(MockMailer)
	mailer.On("SendBookingConfirmation", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(nil, mailer, nil, time.Second, nil)
	d.BookingPaid(ctx, sampleBooking())
	mailer.AssertExpectations(t)
}
