package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lulufarm/internal/domain"
	"lulufarm/internal/pkg/validator"
	"lulufarm/internal/repository"
)

func (s *Service) GetTariff(ctx context.Context, id uuid.UUID) (*domain.Tariff, error) {
	t, err := s.tariffs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTariffNotFound
	}
	return t, err
}

func (s *Service) CreateTariff(ctx context.Context, req CreateTariffRequest) (*domain.Tariff, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	schedules := make([]domain.TariffSchedule, 0, len(req.Schedules))
	for _, sr := range req.Schedules {
		sc, err := buildSchedule(sr)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sc)
	}

	t := &domain.Tariff{
		Name:        strings.TrimSpace(req.Name),
		AdultPrice:  domain.RoundMoney(req.AdultPrice),
		ChildPrice:  domain.RoundMoney(req.ChildPrice),
		InfantPrice: domain.RoundMoney(req.InfantPrice),
		Description: strings.TrimSpace(req.Description),
		IsActive:    true,
		Schedules:   schedules,
	}
	if err := s.tariffs.Create(ctx, t); err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=tariff created tariff_id=%s name=%q schedules=%d", t.ID, t.Name, len(schedules))
	return s.GetTariff(ctx, t.ID)
}

func buildSchedule(req ScheduleRequest) (*domain.TariffSchedule, error) {
	if req.DayOfWeek == "" && req.SpecificDate == "" {
		return nil, validationError("schedule needs dayOfWeek or specificDate")
	}
	if req.TimeFrom != "" && req.TimeTo != "" && req.TimeFrom >= req.TimeTo {
		return nil, validationError("timeFrom must be before timeTo")
	}
	sc := &domain.TariffSchedule{
		SpecificDate: req.SpecificDate,
		TimeFrom:     req.TimeFrom,
		TimeTo:       req.TimeTo,
		Priority:     req.Priority,
	}
	if req.DayOfWeek != "" {
		d, ok := validator.ParseWeekday(req.DayOfWeek)
		if !ok {
			return nil, validationError("unknown dayOfWeek " + req.DayOfWeek)
		}
		sc.DayOfWeek = strings.ToUpper(d.String())
	}
	return sc, nil
}

// UpdateTariff edits a tariff. A price change on a tariff that already has
// bookings creates a new version instead: the old row is deactivated and
// points at the new one, schedules move over and future slots without
// bookings are repointed. Existing bookings keep their price snapshot.
func (s *Service) UpdateTariff(ctx context.Context, id uuid.UUID, req UpdateTariffRequest) (*domain.Tariff, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	current, err := s.GetTariff(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.changesPrices() {
		used, err := s.bookings.CountByTariff(ctx, id)
		if err != nil {
			return nil, err
		}
		if used > 0 {
			return s.versionTariff(ctx, current, req)
		}
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.AdultPrice != nil {
		updates["adult_price"] = domain.RoundMoney(*req.AdultPrice)
	}
	if req.ChildPrice != nil {
		updates["child_price"] = domain.RoundMoney(*req.ChildPrice)
	}
	if req.InfantPrice != nil {
		updates["infant_price"] = domain.RoundMoney(*req.InfantPrice)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return current, nil
	}
	if err := s.tariffs.Update(ctx, id, updates); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTariffNotFound
		}
		return nil, err
	}
	s.loggerf("level=info msg=tariff updated tariff_id=%s", id)
	return s.GetTariff(ctx, id)
}

func (s *Service) versionTariff(ctx context.Context, old *domain.Tariff, req UpdateTariffRequest) (*domain.Tariff, error) {
	next := &domain.Tariff{
		Name:        old.Name,
		AdultPrice:  old.AdultPrice,
		ChildPrice:  old.ChildPrice,
		InfantPrice: old.InfantPrice,
		Description: old.Description,
		IsActive:    true,
	}
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.AdultPrice != nil {
		next.AdultPrice = domain.RoundMoney(*req.AdultPrice)
	}
	if req.ChildPrice != nil {
		next.ChildPrice = domain.RoundMoney(*req.ChildPrice)
	}
	if req.InfantPrice != nil {
		next.InfantPrice = domain.RoundMoney(*req.InfantPrice)
	}
	if req.Description != nil {
		next.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		next.IsActive = *req.IsActive
	}

	var moved int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tariffs := s.tariffs.WithTx(tx)
		if err := tariffs.Create(ctx, next); err != nil {
			return err
		}
		if err := tariffs.Update(ctx, old.ID, map[string]interface{}{
			"is_active":   false,
			"replaced_by": next.ID,
		}); err != nil {
			return err
		}
		if err := tariffs.MoveSchedules(ctx, old.ID, next.ID); err != nil {
			return err
		}
		var err error
		moved, err = s.slots.WithTx(tx).RepointUnbooked(ctx, old.ID, next.ID, s.today())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=tariff versioned old_id=%s new_id=%s slots_moved=%d", old.ID, next.ID, moved)
	return s.GetTariff(ctx, next.ID)
}

func (s *Service) AddSchedule(ctx context.Context, tariffID uuid.UUID, req ScheduleRequest) (*domain.TariffSchedule, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if _, err := s.GetTariff(ctx, tariffID); err != nil {
		return nil, err
	}
	sc, err := buildSchedule(req)
	if err != nil {
		return nil, err
	}
	sc.TariffID = tariffID
	if err := s.tariffs.AddSchedule(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, tariffID, scheduleID uuid.UUID) error {
	err := s.tariffs.DeleteSchedule(ctx, tariffID, scheduleID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrScheduleNotFound
	}
	return err
}
