package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lulufarm/internal/domain"
	"lulufarm/internal/pkg/validator"
	"lulufarm/internal/repository"
)

const (
	defaultListDays  = 30
	maxGenerateDays  = 92
	maxListRangeDays = 366
)

// Service owns slots and tariffs. Capacity edits go through the same
// repository as reservations and are checked against held tickets.
type Service struct {
	db       *gorm.DB
	slots    *repository.SlotRepository
	tariffs  *repository.TariffRepository
	bookings *repository.BookingRepository
	loc      *time.Location
	now      func() time.Time
	loggerf  func(format string, args ...interface{})
}

func NewService(db *gorm.DB, slots *repository.SlotRepository, tariffs *repository.TariffRepository, bookings *repository.BookingRepository, loc *time.Location, loggerf func(format string, args ...interface{})) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{
		db:       db,
		slots:    slots,
		tariffs:  tariffs,
		bookings: bookings,
		loc:      loc,
		now:      time.Now,
		loggerf:  loggerf,
	}
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func validate(v interface{}) error {
	if errs := validator.Validate(v); len(errs) > 0 {
		return validationError(validator.Message(errs))
	}
	return nil
}

func (s *Service) today() string {
	return s.now().In(s.loc).Format(domain.DateLayout)
}

/* ---------- PUBLIC ---------- */

// ListAvailableSlots returns bookable slots between from and to inclusive.
// Empty bounds mean today and today+30 days.
func (s *Service) ListAvailableSlots(ctx context.Context, from, to string) ([]domain.Slot, error) {
	f, err := s.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	f.Status = domain.SlotActive
	return s.slots.List(ctx, f)
}

func (s *Service) dateRange(from, to string) (repository.SlotFilter, error) {
	var f repository.SlotFilter
	if from == "" {
		from = s.today()
	}
	start, err := time.ParseInLocation(domain.DateLayout, from, s.loc)
	if err != nil {
		return f, validationError("date_from must be YYYY-MM-DD")
	}
	if to == "" {
		to = start.AddDate(0, 0, defaultListDays).Format(domain.DateLayout)
	}
	end, err := time.ParseInLocation(domain.DateLayout, to, s.loc)
	if err != nil {
		return f, validationError("date_to must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return f, validationError("date_to is before date_from")
	}
	if end.Sub(start) > maxListRangeDays*24*time.Hour {
		return f, validationError("date range is too long")
	}
	f.DateFrom, f.DateTo = from, to
	return f, nil
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*domain.Slot, error) {
	slot, err := s.slots.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSlotNotFound
	}
	return slot, err
}

func (s *Service) ListTariffs(ctx context.Context, activeOnly bool) ([]domain.Tariff, error) {
	return s.tariffs.List(ctx, activeOnly)
}

/* ---------- ADMIN: SLOTS ---------- */

func (s *Service) AdminListSlots(ctx context.Context, from, to string, status domain.SlotStatus) ([]repository.SlotSummary, error) {
	var f repository.SlotFilter
	if from != "" || to != "" {
		var err error
		if f, err = s.dateRange(from, to); err != nil {
			return nil, err
		}
	}
	if status != "" {
		if !status.Valid() {
			return nil, validationError("unknown status " + string(status))
		}
		f.Status = status
	}
	return s.slots.ListWithStats(ctx, f)
}

func (s *Service) CreateSlot(ctx context.Context, req CreateSlotRequest) (*domain.Slot, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	tariffID, err := s.resolveTariff(ctx, s.tariffs, req.TariffID, req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	status := domain.SlotActive
	if req.Status != "" {
		status = domain.SlotStatus(req.Status)
	}

	slot := &domain.Slot{
		Date:              req.Date,
		Time:              req.Time,
		TotalCapacity:     req.TotalCapacity,
		AvailableCapacity: req.TotalCapacity,
		Status:            status,
		TariffID:          tariffID,
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrSlotExists
		}
		return nil, err
	}
	s.loggerf("level=info msg=slot created slot_id=%s date=%s time=%s capacity=%d", slot.ID, slot.Date, slot.Time, slot.TotalCapacity)
	return s.GetSlot(ctx, slot.ID)
}

// resolveTariff validates an explicit tariff id or picks the scheduled one.
func (s *Service) resolveTariff(ctx context.Context, tariffs *repository.TariffRepository, raw, date, clock string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, validationError("invalid tariffId")
		}
		if _, err := tariffs.GetByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return uuid.Nil, ErrTariffNotFound
			}
			return uuid.Nil, err
		}
		return id, nil
	}
	day, err := time.ParseInLocation(domain.DateLayout, date, s.loc)
	if err != nil {
		return uuid.Nil, validationError("invalid date")
	}
	t, err := tariffs.ForDate(ctx, day, clock)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return uuid.Nil, ErrNoTariff
		}
		return uuid.Nil, err
	}
	return t.ID, nil
}

// UpdateSlot applies an admin edit under a row lock. Capacity overrides must
// leave room for every ticket held by PENDING and PAID bookings.
func (s *Service) UpdateSlot(ctx context.Context, id uuid.UUID, req UpdateSlotRequest) (*domain.Slot, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slots := s.slots.WithTx(tx)
		slot, err := slots.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSlotNotFound
			}
			return err
		}
		held, err := slots.HeldTickets(ctx, id)
		if err != nil {
			return err
		}

		if req.Date != nil {
			slot.Date = *req.Date
		}
		if req.Time != nil {
			slot.Time = *req.Time
		}
		if req.TariffID != nil {
			tariffID, err := s.resolveTariff(ctx, s.tariffs.WithTx(tx), *req.TariffID, slot.Date, slot.Time)
			if err != nil {
				return err
			}
			slot.TariffID = tariffID
		}
		if req.TotalCapacity != nil {
			// without an explicit override the free seats follow the total
			slot.AvailableCapacity += *req.TotalCapacity - slot.TotalCapacity
			slot.TotalCapacity = *req.TotalCapacity
		}
		if req.AvailableCapacity != nil {
			slot.AvailableCapacity = *req.AvailableCapacity
		}
		if err := checkCapacity(slot, held); err != nil {
			return err
		}

		blocked := slot.Status == domain.SlotBlocked
		if req.Status != nil {
			blocked = domain.SlotStatus(*req.Status) == domain.SlotBlocked
		}
		slot.Status = deriveStatus(slot.AvailableCapacity, blocked)

		if err := slots.Save(ctx, slot); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrSlotExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=slot updated slot_id=%s", id)
	return s.GetSlot(ctx, id)
}

func checkCapacity(slot *domain.Slot, held int) error {
	if slot.TotalCapacity < held {
		return fmt.Errorf("%w: %d tickets held, total %d", ErrCapacityBelowHeld, held, slot.TotalCapacity)
	}
	if slot.AvailableCapacity < 0 || slot.AvailableCapacity > slot.TotalCapacity {
		return validationError(fmt.Sprintf("availableCapacity must be between 0 and %d", slot.TotalCapacity))
	}
	if slot.TotalCapacity-slot.AvailableCapacity < held {
		return fmt.Errorf("%w: %d tickets held, at most %d can be free", ErrCapacityBelowHeld, held, slot.TotalCapacity-held)
	}
	return nil
}

func deriveStatus(available int, blocked bool) domain.SlotStatus {
	switch {
	case blocked:
		return domain.SlotBlocked
	case available <= 0:
		return domain.SlotFull
	default:
		return domain.SlotActive
	}
}

// RecountSlot rebuilds availableCapacity from the bookings on the slot.
func (s *Service) RecountSlot(ctx context.Context, id uuid.UUID) (*domain.Slot, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slots := s.slots.WithTx(tx)
		slot, err := slots.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSlotNotFound
			}
			return err
		}
		held, err := slots.HeldTickets(ctx, id)
		if err != nil {
			return err
		}
		before := slot.AvailableCapacity
		slot.AvailableCapacity = slot.TotalCapacity - held
		if slot.AvailableCapacity < 0 {
			s.loggerf("level=warn msg=slot oversold slot_id=%s total=%d held=%d", id, slot.TotalCapacity, held)
			slot.AvailableCapacity = 0
		}
		slot.Status = deriveStatus(slot.AvailableCapacity, slot.Status == domain.SlotBlocked)
		s.loggerf("level=info msg=slot recounted slot_id=%s available_before=%d available_after=%d", id, before, slot.AvailableCapacity)
		return slots.Save(ctx, slot)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSlot(ctx, id)
}

// DeleteSlot soft-deletes a slot that no PENDING or PAID booking references.
func (s *Service) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slots := s.slots.WithTx(tx)
		if _, err := slots.GetForUpdate(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSlotNotFound
			}
			return err
		}
		active, err := slots.CountActiveBookings(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("%w: %d", ErrSlotHasBookings, active)
		}
		if err := slots.Delete(ctx, id); err != nil {
			return err
		}
		s.loggerf("level=info msg=slot deleted slot_id=%s", id)
		return nil
	})
}

// GenerateSlots creates slots for every day in the range (optionally only on
// given weekdays) at the given times. Existing slots are left alone.
func (s *Service) GenerateSlots(ctx context.Context, req GenerateSlotsRequest) (*GenerateSlotsResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	start, err := time.ParseInLocation(domain.DateLayout, req.DateFrom, s.loc)
	if err != nil {
		return nil, validationError("invalid dateFrom")
	}
	end, err := time.ParseInLocation(domain.DateLayout, req.DateTo, s.loc)
	if err != nil {
		return nil, validationError("invalid dateTo")
	}
	if end.Before(start) {
		return nil, validationError("dateTo is before dateFrom")
	}
	if end.Sub(start) > maxGenerateDays*24*time.Hour {
		return nil, validationError(fmt.Sprintf("at most %d days per request", maxGenerateDays))
	}
	days := map[time.Weekday]bool{}
	for _, w := range req.Weekdays {
		d, _ := validator.ParseWeekday(w)
		days[d] = true
	}

	res := &GenerateSlotsResult{}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if len(days) > 0 && !days[day.Weekday()] {
			continue
		}
		date := day.Format(domain.DateLayout)
		for _, clock := range req.Times {
			clock = strings.TrimSpace(clock)
			exists, err := s.slots.ExistsAt(ctx, date, clock)
			if err != nil {
				return nil, err
			}
			if exists {
				res.Skipped++
				continue
			}
			t, err := s.tariffs.ForDate(ctx, day, clock)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, ErrNoTariff
				}
				return nil, err
			}
			slot := &domain.Slot{
				Date:              date,
				Time:              clock,
				TotalCapacity:     req.Capacity,
				AvailableCapacity: req.Capacity,
				Status:            domain.SlotActive,
				TariffID:          t.ID,
			}
			if err := s.slots.Create(ctx, slot); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					res.Skipped++
					continue
				}
				return nil, err
			}
			res.Created++
		}
	}
	s.loggerf("level=info msg=slots generated from=%s to=%s created=%d skipped=%d", req.DateFrom, req.DateTo, res.Created, res.Skipped)
	return res, nil
}
