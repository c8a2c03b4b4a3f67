package main

import (
	"context"
	"flag"
	"log"
	"time"
	_ "time/tzdata"

	"gorm.io/gorm"

	"lulufarm/internal/config"
	"lulufarm/internal/database"
	"lulufarm/internal/domain"
	"lulufarm/internal/modules/catalog"
	"lulufarm/internal/repository"
)

func main() {
	days := flag.Int("days", 14, "how many days of slots to create")
	reset := flag.Bool("reset", false, "delete existing bookings, slots, tariffs and users first")
	withBooking := flag.Bool("demo-booking", true, "create one paid demo booking")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	if *reset {
		// safe order for foreign keys
		log.Println("Cleaning old data...")
		for _, table := range []string{"bookings", "slots", "tariff_schedules", "tariffs", "users"} {
			if err := db.Exec("DELETE FROM " + table).Error; err != nil {
				log.Fatalf("clean %s: %v", table, err)
			}
		}
	}

	ctx := context.Background()
	slotRepo := repository.NewSlotRepository(db)
	tariffRepo := repository.NewTariffRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	svc := catalog.NewService(db, slotRepo, tariffRepo, bookingRepo, cfg.Location, log.Printf)

	existing, err := svc.ListTariffs(ctx, true)
	if err != nil {
		log.Fatalf("list tariffs: %v", err)
	}
	if len(existing) == 0 {
		log.Println("Creating tariffs...")
		if _, err := svc.CreateTariff(ctx, catalog.CreateTariffRequest{
			Name:        "Стандарт",
			AdultPrice:  1500,
			ChildPrice:  800,
			Description: "Стандартный тариф для выходных дней",
			Schedules: []catalog.ScheduleRequest{
				{DayOfWeek: "SATURDAY", Priority: 1},
				{DayOfWeek: "SUNDAY", Priority: 1},
			},
		}); err != nil {
			log.Fatalf("create tariff: %v", err)
		}
		if _, err := svc.CreateTariff(ctx, catalog.CreateTariffRequest{
			Name:        "Промо",
			AdultPrice:  1200,
			ChildPrice:  600,
			Description: "Промо тариф для будних дней",
			Schedules: []catalog.ScheduleRequest{
				{DayOfWeek: "MONDAY", Priority: 1},
				{DayOfWeek: "TUESDAY", Priority: 1},
				{DayOfWeek: "WEDNESDAY", Priority: 1},
				{DayOfWeek: "THURSDAY", Priority: 1},
				{DayOfWeek: "FRIDAY", Priority: 1},
			},
		}); err != nil {
			log.Fatalf("create tariff: %v", err)
		}
	} else {
		log.Printf("Tariffs already exist (%d), skipping", len(existing))
	}

	today := time.Now().In(cfg.Location)
	from := today.Format(domain.DateLayout)
	to := today.AddDate(0, 0, *days-1).Format(domain.DateLayout)
	res, err := svc.GenerateSlots(ctx, catalog.GenerateSlotsRequest{
		DateFrom: from,
		DateTo:   to,
		Times:    []string{"10:00", "12:00", "14:00", "16:00"},
		Capacity: 15,
	})
	if err != nil {
		log.Fatalf("generate slots: %v", err)
	}
	log.Printf("Slots: created=%d skipped=%d (%s..%s)", res.Created, res.Skipped, from, to)

	if *withBooking {
		if err := seedPaidBooking(ctx, db, from); err != nil {
			log.Fatalf("demo booking: %v", err)
		}
	}
	log.Println("Seed completed")
}

// seedPaidBooking takes three seats on the first slot of the day the same way
// a real reservation does and marks the booking paid.
func seedPaidBooking(ctx context.Context, db *gorm.DB, date string) error {
	slots, err := repository.NewSlotRepository(db).List(ctx, repository.SlotFilter{DateFrom: date, DateTo: date, Status: domain.SlotActive})
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		log.Println("No open slot for the demo booking, skipping")
		return nil
	}
	slot := slots[0]

	var booking *domain.Booking
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := repository.NewUserRepository(tx).UpsertByEmail(ctx, "Иван Иванов", "ivan@example.com", "+79001234567")
		if err != nil {
			return err
		}
		booking = &domain.Booking{
			UserID:       user.ID,
			SlotID:       slot.ID,
			AdultTickets: 2,
			ChildTickets: 1,
			AdultPrice:   slot.Tariff.AdultPrice,
			ChildPrice:   slot.Tariff.ChildPrice,
			InfantPrice:  slot.Tariff.InfantPrice,
			TotalAmount:  slot.Tariff.PriceFor(2, 1, 0),
			Status:       domain.BookingPending,
		}
		if err := repository.NewBookingRepository(tx).Create(ctx, booking); err != nil {
			return err
		}
		return repository.NewSlotRepository(tx).Reserve(ctx, slot.ID, booking.TotalTickets())
	})
	if err != nil {
		return err
	}
	if _, err := repository.NewBookingRepository(db).MarkPaid(ctx, booking.ID, "seed_payment", time.Now().UTC()); err != nil {
		return err
	}
	log.Printf("Demo booking %s: %s %s, total=%.2f", booking.ID, slot.Date, slot.Time, booking.TotalAmount)
	return nil
}
