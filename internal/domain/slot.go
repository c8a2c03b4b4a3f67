package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SlotStatus string

const (
	SlotActive  SlotStatus = "ACTIVE"
	SlotBlocked SlotStatus = "BLOCKED"
	SlotFull    SlotStatus = "FULL"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

func (s SlotStatus) Valid() bool {
	return s == SlotActive || s == SlotBlocked || s == SlotFull
}

// Slot is one excursion start. AvailableCapacity is owned by the capacity
// ledger in the repository package; nothing else writes it directly.
type Slot struct {
	ID                uuid.UUID      `json:"id" gorm:"type:varchar(36);primaryKey"`
	Date              string         `json:"date" gorm:"size:10;not null;uniqueIndex:idx_slots_date_time"`
	Time              string         `json:"time" gorm:"size:5;not null;uniqueIndex:idx_slots_date_time"`
	TotalCapacity     int            `json:"totalCapacity" gorm:"not null"`
	AvailableCapacity int            `json:"availableCapacity" gorm:"not null"`
	Status            SlotStatus     `json:"status" gorm:"size:16;not null;default:ACTIVE;index"`
	TariffID          uuid.UUID      `json:"tariffId" gorm:"type:varchar(36);not null;index"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`

	Tariff *Tariff `json:"tariff,omitempty" gorm:"foreignKey:TariffID"`
}

func (Slot) TableName() string {
	return "slots"
}

func (s *Slot) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// StartsAt combines Date and Time in the given location.
func (s *Slot) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.Time, loc)
}
