package notification

import (
	"context"
	"math/rand"
)

type DealStage string

const (
	StageBooked DealStage = "booked"
	StagePaid   DealStage = "paid"
)

type Contact struct {
	Name      string
	Email     string
	Phone     string
	BookingID string
}

type Deal struct {
	Name      string
	Price     float64
	ContactID int64
	BookingID string
	Date      string
	Time      string
	Tickets   int
}

// CRM mirrors customers and bookings into the sales pipeline.
type CRM interface {
	Name() string
	CreateOrUpdateContact(ctx context.Context, c Contact) (int64, error)
	CreateDeal(ctx context.Context, d Deal) (int64, error)
	UpdateDealStatus(ctx context.Context, dealID int64, stage DealStage) error
}

// DemoCRM answers with synthetic ids and records what it would have done.
type DemoCRM struct {
	log *CRMLog
}

func NewDemoCRM(log *CRMLog) *DemoCRM {
	return &DemoCRM{log: log}
}

func (c *DemoCRM) Name() string { return "amocrm-demo" }

func (c *DemoCRM) CreateOrUpdateContact(_ context.Context, ct Contact) (int64, error) {
	id := syntheticID()
	c.log.Add(CRMLogEntry{Action: ActionContactCreated, ContactID: id, BookingID: ct.BookingID, Details: map[string]any{"name": ct.Name, "email": ct.Email, "demo": true}})
	return id, nil
}

func (c *DemoCRM) CreateDeal(_ context.Context, d Deal) (int64, error) {
	id := syntheticID()
	c.log.Add(CRMLogEntry{Action: ActionDealCreated, ContactID: d.ContactID, DealID: id, BookingID: d.BookingID, Details: map[string]any{"name": d.Name, "price": d.Price, "demo": true}})
	return id, nil
}

func (c *DemoCRM) UpdateDealStatus(_ context.Context, dealID int64, stage DealStage) error {
	c.log.Add(CRMLogEntry{Action: ActionStatusChanged, DealID: dealID, Details: map[string]any{"stage": string(stage), "demo": true}})
	return nil
}

func syntheticID() int64 {
	return 1_000_000 + rand.Int63n(9_000_000)
}
