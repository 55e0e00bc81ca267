package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agrirent/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

type bookingModel struct {
	ID                 int64      `gorm:"column:id;primaryKey"`
	EquipmentID        int64      `gorm:"column:equipment_id;not null;index:idx_bookings_equipment_status"`
	FarmerID           int64      `gorm:"column:farmer_id;not null;index"`
	StartDate          time.Time  `gorm:"column:start_date;not null"`
	EndDate            time.Time  `gorm:"column:end_date;not null"`
	TotalDays          int64      `gorm:"column:total_days;not null"`
	PricePerDay        int64      `gorm:"column:price_per_day;not null"`
	TotalPrice         int64      `gorm:"column:total_price;not null"`
	Status             string     `gorm:"column:status;not null;index:idx_bookings_equipment_status"`
	PaymentStatus      string     `gorm:"column:payment_status;not null"`
	PaymentReference   *string    `gorm:"column:payment_reference"`
	Notes              *string    `gorm:"column:notes;type:text"`
	CancellationReason *string    `gorm:"column:cancellation_reason;type:text"`
	ConfirmedAt        *time.Time `gorm:"column:confirmed_at"`
	ActivatedAt        *time.Time `gorm:"column:activated_at"`
	CompletedAt        *time.Time `gorm:"column:completed_at"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (bookingModel) TableName() string { return "bookings" }

func toDomainBooking(m bookingModel) *domain.Booking {
	return &domain.Booking{
		ID:                 m.ID,
		EquipmentID:        m.EquipmentID,
		FarmerID:           m.FarmerID,
		StartDate:          m.StartDate.UTC(),
		EndDate:            m.EndDate.UTC(),
		TotalDays:          m.TotalDays,
		PricePerDay:        m.PricePerDay,
		TotalPrice:         m.TotalPrice,
		Status:             domain.BookingStatus(m.Status),
		PaymentStatus:      domain.PaymentStatus(m.PaymentStatus),
		PaymentReference:   deref(m.PaymentReference),
		Notes:              deref(m.Notes),
		CancellationReason: deref(m.CancellationReason),
		ConfirmedAt:        m.ConfirmedAt,
		ActivatedAt:        m.ActivatedAt,
		CompletedAt:        m.CompletedAt,
		CancelledAt:        m.CancelledAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func toBookingModel(b *domain.Booking) bookingModel {
	return bookingModel{
		ID:                 b.ID,
		EquipmentID:        b.EquipmentID,
		FarmerID:           b.FarmerID,
		StartDate:          b.StartDate.UTC(),
		EndDate:            b.EndDate.UTC(),
		TotalDays:          b.TotalDays,
		PricePerDay:        b.PricePerDay,
		TotalPrice:         b.TotalPrice,
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		PaymentReference:   ptr(b.PaymentReference),
		Notes:              ptr(b.Notes),
		CancellationReason: ptr(b.CancellationReason),
		ConfirmedAt:        b.ConfirmedAt,
		ActivatedAt:        b.ActivatedAt,
		CompletedAt:        b.CompletedAt,
		CancelledAt:        b.CancelledAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	m := toBookingModel(b)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err, "booking")
	}
	*b = *toDomainBooking(m)
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var m bookingModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err, "booking")
	}
	return toDomainBooking(m), nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	var m bookingModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, id).Error
	if err != nil {
		return nil, translate(err, "booking")
	}
	return toDomainBooking(m), nil
}

// Save writes every column of b.
func (r *BookingRepository) Save(ctx context.Context, b *domain.Booking) error {
	m := toBookingModel(b)
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return translate(err, "booking")
	}
	*b = *toDomainBooking(m)
	return nil
}

// Holding returns the bookings of an equipment whose status holds the calendar.
// Overlap is evaluated by the caller.
func (r *BookingRepository) Holding(ctx context.Context, equipmentID int64) ([]domain.Booking, error) {
	statuses := make([]string, 0, 2)
	for _, st := range domain.HoldingBookingStatuses() {
		statuses = append(statuses, string(st))
	}
	return r.listWhere(ctx, 0, 0, "equipment_id = ? AND status IN ?", equipmentID, statuses)
}

func (r *BookingRepository) ListByFarmer(ctx context.Context, farmerID int64, limit, offset int) ([]domain.Booking, error) {
	return r.listWhere(ctx, limit, offset, "farmer_id = ?", farmerID)
}

func (r *BookingRepository) ListByEquipment(ctx context.Context, equipmentID int64, limit, offset int) ([]domain.Booking, error) {
	return r.listWhere(ctx, limit, offset, "equipment_id = ?", equipmentID)
}

func (r *BookingRepository) listWhere(ctx context.Context, limit, offset int, query string, args ...any) ([]domain.Booking, error) {
	q := r.db.WithContext(ctx).Where(query, args...).Order("start_date ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var rows []bookingModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Booking, 0, len(rows))
	for _, m := range rows {
		out = append(out, *toDomainBooking(m))
	}
	return out, nil
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
