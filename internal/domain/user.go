package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a customer. Email is the natural key; name and phone follow the
// latest booking.
type User struct {
	ID        uuid.UUID `json:"id" gorm:"type:varchar(36);primaryKey"`
	Email     string    `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	Phone     string    `json:"phone" gorm:"size:32;not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
