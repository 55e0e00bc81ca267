package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agrirent/internal/domain"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

type paymentModel struct {
	ID              int64      `gorm:"column:id;primaryKey"`
	Reference       string     `gorm:"column:reference;not null;uniqueIndex"`
	Kind            string     `gorm:"column:kind;not null"`
	EquipmentID     int64      `gorm:"column:equipment_id;not null"`
	BookingID       *int64     `gorm:"column:booking_id;index"`
	GroupBookingID  *int64     `gorm:"column:group_booking_id;index"`
	ParticipantID   *int64     `gorm:"column:participant_id"`
	PayerID         int64      `gorm:"column:payer_id;not null"`
	Amount          int64      `gorm:"column:amount;not null"`
	PaidAmount      int64      `gorm:"column:paid_amount;not null"`
	Status          string     `gorm:"column:status;not null"`
	ProviderOrderID *string    `gorm:"column:provider_order_id;index"`
	RedirectURL     *string    `gorm:"column:redirect_url;type:text"`
	FailureReason   *string    `gorm:"column:failure_reason;type:text"`
	VerifiedAt      *time.Time `gorm:"column:verified_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (paymentModel) TableName() string { return "payments" }

func toDomainPayment(m paymentModel) *domain.Payment {
	return &domain.Payment{
		ID:              m.ID,
		Reference:       m.Reference,
		Kind:            domain.PaymentKind(m.Kind),
		EquipmentID:     m.EquipmentID,
		BookingID:       m.BookingID,
		GroupBookingID:  m.GroupBookingID,
		ParticipantID:   m.ParticipantID,
		PayerID:         m.PayerID,
		Amount:          m.Amount,
		PaidAmount:      m.PaidAmount,
		Status:          domain.PaymentRecordStatus(m.Status),
		ProviderOrderID: deref(m.ProviderOrderID),
		RedirectURL:     deref(m.RedirectURL),
		FailureReason:   deref(m.FailureReason),
		VerifiedAt:      m.VerifiedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toPaymentModel(p *domain.Payment) paymentModel {
	return paymentModel{
		ID:              p.ID,
		Reference:       p.Reference,
		Kind:            string(p.Kind),
		EquipmentID:     p.EquipmentID,
		BookingID:       p.BookingID,
		GroupBookingID:  p.GroupBookingID,
		ParticipantID:   p.ParticipantID,
		PayerID:         p.PayerID,
		Amount:          p.Amount,
		PaidAmount:      p.PaidAmount,
		Status:          string(p.Status),
		ProviderOrderID: ptr(p.ProviderOrderID),
		RedirectURL:     ptr(p.RedirectURL),
		FailureReason:   ptr(p.FailureReason),
		VerifiedAt:      p.VerifiedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	m := toPaymentModel(p)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err, "payment")
	}
	*p = *toDomainPayment(m)
	return nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	var m paymentModel
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&m).Error; err != nil {
		return nil, translate(err, "payment")
	}
	return toDomainPayment(m), nil
}

// GetByProviderOrderID resolves gateway callbacks that carry only the order id.
func (r *PaymentRepository) GetByProviderOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	var m paymentModel
	if err := r.db.WithContext(ctx).Where("provider_order_id = ?", orderID).First(&m).Error; err != nil {
		return nil, translate(err, "payment")
	}
	return toDomainPayment(m), nil
}

func (r *PaymentRepository) GetByReferenceForUpdate(ctx context.Context, reference string) (*domain.Payment, error) {
	var m paymentModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		First(&m).Error
	if err != nil {
		return nil, translate(err, "payment")
	}
	return toDomainPayment(m), nil
}

func (r *PaymentRepository) Save(ctx context.Context, p *domain.Payment) error {
	m := toPaymentModel(p)
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return translate(err, "payment")
	}
	*p = *toDomainPayment(m)
	return nil
}
