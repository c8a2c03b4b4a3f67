package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lulufarm/internal/domain"
)

// activeBookingStatuses hold seats on a slot.
var activeBookingStatuses = []domain.BookingStatus{domain.BookingPending, domain.BookingPaid}

type SlotRepository struct {
	db *gorm.DB
}

func NewSlotRepository(db *gorm.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *SlotRepository) WithTx(tx *gorm.DB) *SlotRepository {
	return &SlotRepository{db: tx}
}

type SlotFilter struct {
	DateFrom string
	DateTo   string
	Status   domain.SlotStatus
}

// SlotSummary is a slot with booking counters for the admin panel.
type SlotSummary struct {
	domain.Slot
	BookingsCount int64 `json:"bookingsCount"`
	HeldTickets   int64 `json:"heldTickets"`
}

// Create inserts the slot. A deleted slot at the same date and time still
// owns the unique key, so it is brought back with the new settings instead.
func (r *SlotRepository) Create(ctx context.Context, s *domain.Slot) error {
	revived, err := r.revive(ctx, s)
	if err != nil || revived {
		return err
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Slot, error) {
	var s domain.Slot
	if err := r.db.WithContext(ctx).Preload("Tariff").Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// GetForUpdate locks the slot row until the surrounding transaction ends.
func (r *SlotRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Slot, error) {
	var s domain.Slot
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *SlotRepository) List(ctx context.Context, f SlotFilter) ([]domain.Slot, error) {
	q := r.db.WithContext(ctx).Preload("Tariff")
	if f.DateFrom != "" {
		q = q.Where("date >= ?", f.DateFrom)
	}
	if f.DateTo != "" {
		q = q.Where("date <= ?", f.DateTo)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []domain.Slot
	if err := q.Order("date ASC").Order("time ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListWithStats returns slots plus the number of non-cancelled bookings and
// the tickets they hold.
func (r *SlotRepository) ListWithStats(ctx context.Context, f SlotFilter) ([]SlotSummary, error) {
	slots, err := r.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return []SlotSummary{}, nil
	}
	ids := make([]uuid.UUID, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID)
	}

	type row struct {
		SlotID  string
		Cnt     int64
		Tickets int64
	}
	var rows []row
	err = r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Select("slot_id, COUNT(*) AS cnt, COALESCE(SUM(adult_tickets + child_tickets + infant_tickets), 0) AS tickets").
		Where("slot_id IN ? AND status IN ?", ids, activeBookingStatuses).
		Group("slot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := make(map[string]row, len(rows))
	for _, rw := range rows {
		stats[rw.SlotID] = rw
	}

	out := make([]SlotSummary, 0, len(slots))
	for _, s := range slots {
		st := stats[s.ID.String()]
		out = append(out, SlotSummary{Slot: s, BookingsCount: st.Cnt, HeldTickets: st.Tickets})
	}
	return out, nil
}

// Reserve takes n seats from an ACTIVE slot. The guard in the WHERE clause is
// evaluated by the database against the current row, so two concurrent
// reservations can never both pass it when combined demand exceeds supply.
func (r *SlotRepository) Reserve(ctx context.Context, id uuid.UUID, n int) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&domain.Slot{}).
		Where("id = ? AND status = ? AND available_capacity >= ?", id, domain.SlotActive, n).
		Updates(map[string]interface{}{
			"available_capacity": gorm.Expr("available_capacity - ?", n),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSlotUnavailable
	}
	return db.Model(&domain.Slot{}).
		Where("id = ? AND status = ? AND available_capacity <= 0", id, domain.SlotActive).
		Update("status", domain.SlotFull).Error
}

// Release returns n seats, never beyond total capacity. A FULL slot reopens.
func (r *SlotRepository) Release(ctx context.Context, id uuid.UUID, n int) error {
	if n <= 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	res := db.Model(&domain.Slot{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"available_capacity": gorm.Expr("CASE WHEN available_capacity + ? > total_capacity THEN total_capacity ELSE available_capacity + ? END", n, n),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return db.Model(&domain.Slot{}).
		Where("id = ? AND status = ? AND available_capacity > 0", id, domain.SlotFull).
		Update("status", domain.SlotActive).Error
}

// HeldTickets sums tickets of PENDING and PAID bookings on the slot.
func (r *SlotRepository) HeldTickets(ctx context.Context, id uuid.UUID) (int, error) {
	var held int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Select("COALESCE(SUM(adult_tickets + child_tickets + infant_tickets), 0)").
		Where("slot_id = ? AND status IN ?", id, activeBookingStatuses).
		Scan(&held).Error
	return int(held), err
}

func (r *SlotRepository) CountActiveBookings(ctx context.Context, id uuid.UUID) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("slot_id = ? AND status IN ?", id, activeBookingStatuses).
		Count(&cnt).Error
	return cnt, err
}

func (r *SlotRepository) Save(ctx context.Context, s *domain.Slot) error {
	s.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Model(&domain.Slot{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"date":               s.Date,
			"time":               s.Time,
			"total_capacity":     s.TotalCapacity,
			"available_capacity": s.AvailableCapacity,
			"status":             s.Status,
			"tariff_id":          s.TariffID,
			"updated_at":         s.UpdatedAt,
		}).Error
	if IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SlotRepository) revive(ctx context.Context, s *domain.Slot) (bool, error) {
	var old domain.Slot
	err := r.db.WithContext(ctx).Unscoped().
		Where("date = ? AND time = ? AND deleted_at IS NOT NULL", s.Date, s.Time).
		First(&old).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	err = r.db.WithContext(ctx).Unscoped().
		Model(&domain.Slot{}).
		Where("id = ?", old.ID).
		Updates(map[string]interface{}{
			"total_capacity":     s.TotalCapacity,
			"available_capacity": s.AvailableCapacity,
			"status":             s.Status,
			"tariff_id":          s.TariffID,
			"updated_at":         now,
			"deleted_at":         nil,
		}).Error
	if err != nil {
		return false, err
	}
	s.ID = old.ID
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = now
	return true, nil
}

// CountBookings counts bookings of any status that point at the slot.
func (r *SlotRepository) CountBookings(ctx context.Context, id uuid.UUID) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("slot_id = ?", id).
		Count(&cnt).Error
	return cnt, err
}

// Delete removes the slot. The row is kept (soft delete) only while
// cancelled bookings still reference it. Callers check active bookings first
// under a row lock.
func (r *SlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	refs, err := r.CountBookings(ctx, id)
	if err != nil {
		return err
	}
	q := r.db.WithContext(ctx)
	if refs == 0 {
		q = q.Unscoped()
	}
	res := q.Where("id = ?", id).Delete(&domain.Slot{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RepointUnbooked moves slots dated on or after fromDate that have no
// bookings at all from one tariff to another.
func (r *SlotRepository) RepointUnbooked(ctx context.Context, fromTariff, toTariff uuid.UUID, fromDate string) (int64, error) {
	booked := r.db.Model(&domain.Booking{}).Select("slot_id")
	res := r.db.WithContext(ctx).
		Model(&domain.Slot{}).
		Where("tariff_id = ? AND date >= ? AND id NOT IN (?)", fromTariff, fromDate, booked).
		Update("tariff_id", toTariff)
	return res.RowsAffected, res.Error
}

func (r *SlotRepository) ExistsAt(ctx context.Context, date, clock string) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&domain.Slot{}).Where("date = ? AND time = ?", date, clock).Count(&cnt).Error
	return cnt > 0, err
}
