package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lulufarm/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) WithTx(tx *gorm.DB) *BookingRepository {
	return &BookingRepository{db: tx}
}

type BookingFilter struct {
	Status domain.BookingStatus
	SlotID uuid.UUID
	Limit  int
}

func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	return r.db.WithContext(ctx).Omit("User", "Slot").Create(b).Error
}

// GetByID loads the booking with its customer, slot and tariff. Soft-deleted
// slots are still resolved.
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	err := r.detailed(r.db.WithContext(ctx)).Where("bookings.id = ?", id).First(&b).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// GetStatus reads only the status column.
func (r *BookingRepository) GetStatus(ctx context.Context, id uuid.UUID) (domain.BookingStatus, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Select("id", "status").Where("id = ?", id).First(&b).Error; err != nil {
		return "", notFound(err)
	}
	return b.Status, nil
}

func (r *BookingRepository) List(ctx context.Context, f BookingFilter) ([]domain.Booking, error) {
	q := r.detailed(r.db.WithContext(ctx))
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.SlotID != uuid.Nil {
		q = q.Where("slot_id = ?", f.SlotID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.Booking
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BookingRepository) detailed(q *gorm.DB) *gorm.DB {
	return q.
		Preload("User").
		Preload("Slot", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Slot.Tariff")
}

// AttachInvoice stores the payment link unless another invoice was stored
// first. Returns false when the booking already carries an invoice.
func (r *BookingRepository) AttachInvoice(ctx context.Context, id uuid.UUID, invoiceID, link string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND invoice_id = ?", id, "").
		Updates(map[string]interface{}{
			"invoice_id":   invoiceID,
			"payment_link": link,
			"updated_at":   time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *BookingRepository) SetDealID(ctx context.Context, id uuid.UUID, dealID int64) error {
	return r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ?", id).
		Update("amocrm_deal_id", dealID).Error
}

// MarkPaid moves a PENDING booking to PAID. It reports false when the booking
// was not PENDING, which makes repeated confirmations no-ops.
func (r *BookingRepository) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, domain.BookingPending).
		Updates(map[string]interface{}{
			"status":     domain.BookingPaid,
			"payment_id": paymentID,
			"paid_at":    paidAt,
			"updated_at": paidAt,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkCancelled moves a PENDING booking to CANCELLED.
func (r *BookingRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, domain.BookingPending).
		Updates(map[string]interface{}{
			"status":        domain.BookingCancelled,
			"cancel_reason": reason,
			"cancelled_at":  at,
			"updated_at":    at,
		})
	return res.RowsAffected == 1, res.Error
}

// CancelPaid is the admin-only override for bookings that were already paid.
func (r *BookingRepository) CancelPaid(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, domain.BookingPaid).
		Updates(map[string]interface{}{
			"status":        domain.BookingCancelled,
			"cancel_reason": reason,
			"cancelled_at":  at,
			"updated_at":    at,
		})
	return res.RowsAffected == 1, res.Error
}

// ListStalePending returns PENDING bookings created before the cutoff, oldest
// first. A non-nil after continues the listing past that booking.
func (r *BookingRepository) ListStalePending(ctx context.Context, cutoff time.Time, after *domain.Booking, limit int) ([]domain.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.BookingPending, cutoff)
	if after != nil {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var out []domain.Booking
	err := q.Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *BookingRepository) CountByTariff(ctx context.Context, tariffID uuid.UUID) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Joins("JOIN slots ON slots.id = bookings.slot_id").
		Where("slots.tariff_id = ?", tariffID).
		Count(&cnt).Error
	return cnt, err
}

// StatusStat is the number of bookings, tickets and money per status.
type StatusStat struct {
	Status  domain.BookingStatus `json:"status"`
	Count   int64                `json:"count"`
	Tickets int64                `json:"tickets"`
	Amount  float64              `json:"amount"`
}

// StatsByStatus aggregates bookings created at or after since.
func (r *BookingRepository) StatsByStatus(ctx context.Context, since time.Time) ([]StatusStat, error) {
	var out []StatusStat
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(adult_tickets + child_tickets + infant_tickets), 0) AS tickets, COALESCE(SUM(total_amount), 0) AS amount").
		Where("created_at >= ?", since).
		Group("status").
		Order("status ASC").
		Scan(&out).Error
	return out, err
}
