package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lulufarm/internal/domain"
)

type TariffRepository struct {
	db *gorm.DB
}

func NewTariffRepository(db *gorm.DB) *TariffRepository {
	return &TariffRepository{db: db}
}

func (r *TariffRepository) WithTx(tx *gorm.DB) *TariffRepository {
	return &TariffRepository{db: tx}
}

func (r *TariffRepository) Create(ctx context.Context, t *domain.Tariff) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TariffRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tariff, error) {
	var t domain.Tariff
	err := r.db.WithContext(ctx).
		Preload("Schedules", func(db *gorm.DB) *gorm.DB { return db.Order("priority DESC") }).
		Where("id = ?", id).
		First(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TariffRepository) List(ctx context.Context, activeOnly bool) ([]domain.Tariff, error) {
	q := r.db.WithContext(ctx).
		Preload("Schedules", func(db *gorm.DB) *gorm.DB { return db.Order("priority DESC") })
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []domain.Tariff
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TariffRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Tariff{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TariffRepository) AddSchedule(ctx context.Context, s *domain.TariffSchedule) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *TariffRepository) DeleteSchedule(ctx context.Context, tariffID, scheduleID uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ? AND tariff_id = ?", scheduleID, tariffID).Delete(&domain.TariffSchedule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MoveSchedules re-homes every schedule of one tariff onto another.
func (r *TariffRepository) MoveSchedules(ctx context.Context, from, to uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&domain.TariffSchedule{}).
		Where("tariff_id = ?", from).
		Update("tariff_id", to).Error
}

// ForDate resolves the tariff for a date and start time: the matching
// schedule with the highest priority wins (a specific date beats a weekday on
// a tie), otherwise the oldest active tariff.
func (r *TariffRepository) ForDate(ctx context.Context, date time.Time, slotTime string) (*domain.Tariff, error) {
	tariffs, err := r.List(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(tariffs) == 0 {
		return nil, ErrNotFound
	}

	type candidate struct {
		tariff   *domain.Tariff
		priority int
		specific bool
	}
	var found []candidate
	for i := range tariffs {
		for _, s := range tariffs[i].Schedules {
			if s.Matches(date, slotTime) {
				found = append(found, candidate{tariff: &tariffs[i], priority: s.Priority, specific: s.SpecificDate != ""})
			}
		}
	}
	if len(found) == 0 {
		return &tariffs[0], nil
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].priority != found[j].priority {
			return found[i].priority > found[j].priority
		}
		return found[i].specific && !found[j].specific
	})
	return found[0].tariff, nil
}
