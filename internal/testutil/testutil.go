// Package testutil builds in-memory databases and fixtures for package tests.
package testutil

import (
	"context"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lulufarm/internal/database"
	"lulufarm/internal/domain"
	"lulufarm/internal/repository"
)

// NewDB returns a migrated in-memory SQLite database closed at test end.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.ConnectWithOptions(":memory:", database.Options{LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("connect sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func SeedTariff(t testing.TB, db *gorm.DB, name string, adult, child, infant float64) *domain.Tariff {
	t.Helper()
	tariff := &domain.Tariff{Name: name, AdultPrice: adult, ChildPrice: child, InfantPrice: infant, IsActive: true}
	if err := db.Create(tariff).Error; err != nil {
		t.Fatalf("seed tariff: %v", err)
	}
	return tariff
}

func SeedSlot(t testing.TB, db *gorm.DB, tariff *domain.Tariff, date, clock string, capacity int) *domain.Slot {
	t.Helper()
	slot := &domain.Slot{
		Date:              date,
		Time:              clock,
		TotalCapacity:     capacity,
		AvailableCapacity: capacity,
		Status:            domain.SlotActive,
		TariffID:          tariff.ID,
	}
	if err := db.Create(slot).Error; err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return slot
}

// SeedBooking stores a PENDING booking and takes its seats from the slot the
// same way a reservation does.
func SeedBooking(t testing.TB, db *gorm.DB, slot *domain.Slot, adult, child int, email string) *domain.Booking {
	t.Helper()
	ctx := context.Background()

	user, err := repository.NewUserRepository(db).UpsertByEmail(ctx, "Тестовый Гость", email, "+79001234567")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	var tariff domain.Tariff
	if err := db.First(&tariff, "id = ?", slot.TariffID).Error; err != nil {
		t.Fatalf("load tariff: %v", err)
	}
	b := &domain.Booking{
		UserID:       user.ID,
		SlotID:       slot.ID,
		AdultTickets: adult,
		ChildTickets: child,
		AdultPrice:   tariff.AdultPrice,
		ChildPrice:   tariff.ChildPrice,
		InfantPrice:  tariff.InfantPrice,
		TotalAmount:  tariff.PriceFor(adult, child, 0),
		Status:       domain.BookingPending,
	}
	if err := repository.NewBookingRepository(db).Create(ctx, b); err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	if err := repository.NewSlotRepository(db).Reserve(ctx, slot.ID, b.TotalTickets()); err != nil {
		t.Fatalf("reserve seats: %v", err)
	}
	return b
}

// Reload reads the current row state of a slot, including soft-deleted ones.
func Reload(t testing.TB, db *gorm.DB, slot *domain.Slot) *domain.Slot {
	t.Helper()
	var s domain.Slot
	if err := db.Unscoped().First(&s, "id = ?", slot.ID).Error; err != nil {
		t.Fatalf("reload slot: %v", err)
	}
	return &s
}

func ReloadBooking(t testing.TB, db *gorm.DB, b *domain.Booking) *domain.Booking {
	t.Helper()
	var out domain.Booking
	if err := db.First(&out, "id = ?", b.ID).Error; err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	return &out
}
