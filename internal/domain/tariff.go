package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tariff is a price table for one excursion visit. Prices are in rubles.
type Tariff struct {
	ID          uuid.UUID  `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name        string     `json:"name" gorm:"size:100;not null"`
	AdultPrice  float64    `json:"adultPrice" gorm:"type:decimal(10,2);not null"`
	ChildPrice  float64    `json:"childPrice" gorm:"type:decimal(10,2);not null"`
	InfantPrice float64    `json:"infantPrice" gorm:"type:decimal(10,2);not null;default:0"`
	Description string     `json:"description,omitempty" gorm:"type:text"`
	IsActive    bool       `json:"isActive" gorm:"not null;default:true;index"`
	ReplacedBy  *uuid.UUID `json:"replacedBy,omitempty" gorm:"type:varchar(36)"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Schedules []TariffSchedule `json:"schedules,omitempty" gorm:"foreignKey:TariffID"`
}

func (Tariff) TableName() string {
	return "tariffs"
}

func (t *Tariff) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// PriceFor returns the total for the given ticket mix.
func (t *Tariff) PriceFor(adult, child, infant int) float64 {
	total := float64(adult)*t.AdultPrice + float64(child)*t.ChildPrice + float64(infant)*t.InfantPrice
	return RoundMoney(total)
}

// TariffSchedule binds a tariff either to a weekday or to a specific date.
type TariffSchedule struct {
	ID           uuid.UUID `json:"id" gorm:"type:varchar(36);primaryKey"`
	TariffID     uuid.UUID `json:"tariffId" gorm:"type:varchar(36);not null;index"`
	DayOfWeek    string    `json:"dayOfWeek,omitempty" gorm:"size:16"`
	SpecificDate string    `json:"specificDate,omitempty" gorm:"size:10;index"`
	TimeFrom     string    `json:"timeFrom,omitempty" gorm:"size:5"`
	TimeTo       string    `json:"timeTo,omitempty" gorm:"size:5"`
	Priority     int       `json:"priority" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (TariffSchedule) TableName() string {
	return "tariff_schedules"
}

func (s *TariffSchedule) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Matches reports whether the schedule applies to the given date (YYYY-MM-DD)
// and start time (HH:MM). Empty time bounds match any time.
func (s TariffSchedule) Matches(date time.Time, slotTime string) bool {
	if s.SpecificDate != "" {
		if s.SpecificDate != date.Format(DateLayout) {
			return false
		}
	} else if s.DayOfWeek != "" {
		if !strings.EqualFold(s.DayOfWeek, date.Weekday().String()) {
			return false
		}
	} else {
		return false
	}
	if slotTime == "" {
		return true
	}
	if s.TimeFrom != "" && slotTime < s.TimeFrom {
		return false
	}
	if s.TimeTo != "" && slotTime >= s.TimeTo {
		return false
	}
	return true
}

// RoundMoney rounds to kopecks.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
