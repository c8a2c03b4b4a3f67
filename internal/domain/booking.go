package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingPaid      BookingStatus = "PAID"
	BookingCancelled BookingStatus = "CANCELLED"
)

func (s BookingStatus) Valid() bool {
	return s == BookingPending || s == BookingPaid || s == BookingCancelled
}

// Terminal states never change again.
func (s BookingStatus) Terminal() bool {
	return s == BookingPaid || s == BookingCancelled
}

const (
	MinTicketsPerBooking = 1
	MaxTicketsPerBooking = 10
)

// Причины отмены
const (
	CancelReasonPaymentFailed = "payment_failed"
	CancelReasonExpired       = "expired"
	CancelReasonAdmin         = "admin"
)

type Booking struct {
	ID            uuid.UUID     `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID        uuid.UUID     `json:"userId" gorm:"type:varchar(36);not null;index"`
	SlotID        uuid.UUID     `json:"slotId" gorm:"type:varchar(36);not null;index"`
	AdultTickets  int           `json:"adultTickets" gorm:"not null;default:0"`
	ChildTickets  int           `json:"childTickets" gorm:"not null;default:0"`
	InfantTickets int           `json:"infantTickets" gorm:"not null;default:0"`
	AdultPrice    float64       `json:"adultPrice" gorm:"type:decimal(10,2);not null;default:0"`
	ChildPrice    float64       `json:"childPrice" gorm:"type:decimal(10,2);not null;default:0"`
	InfantPrice   float64       `json:"infantPrice" gorm:"type:decimal(10,2);not null;default:0"`
	TotalAmount   float64       `json:"totalAmount" gorm:"type:decimal(10,2);not null"`
	Status        BookingStatus `json:"status" gorm:"size:16;not null;default:PENDING;index"`
	PaymentLink   string        `json:"paymentLink,omitempty" gorm:"type:text"`
	InvoiceID     string        `json:"invoiceId,omitempty" gorm:"size:128;not null;default:''"`
	PaymentID     string        `json:"paymentId,omitempty" gorm:"size:128"`
	AmocrmDealID  int64         `json:"amocrmDealId,omitempty"`
	CancelReason  string        `json:"cancelReason,omitempty" gorm:"size:32"`
	CreatedAt     time.Time     `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
	CancelledAt   *time.Time    `json:"cancelledAt,omitempty"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Slot *Slot `json:"slot,omitempty" gorm:"foreignKey:SlotID"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *Booking) TotalTickets() int {
	return b.AdultTickets + b.ChildTickets + b.InfantTickets
}

// ShortRef is the human-facing booking number used in e-mails and CRM deals.
func (b *Booking) ShortRef() string {
	s := b.ID.String()
	return strings.ToUpper(s[:8])
}
