package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agrirent/internal/domain"
)

type EquipmentRepository struct {
	db *gorm.DB
}

func NewEquipmentRepository(db *gorm.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

type equipmentModel struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	OwnerID     int64     `gorm:"column:owner_id;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	PricePerDay int64     `gorm:"column:price_per_day;not null"`
	IsAvailable bool      `gorm:"column:is_available;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (equipmentModel) TableName() string { return "equipment" }

func toDomainEquipment(m equipmentModel) *domain.Equipment {
	return &domain.Equipment{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Name:        m.Name,
		PricePerDay: m.PricePerDay,
		IsAvailable: m.IsAvailable,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toEquipmentModel(e *domain.Equipment) equipmentModel {
	return equipmentModel{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		Name:        e.Name,
		PricePerDay: e.PricePerDay,
		IsAvailable: e.IsAvailable,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (r *EquipmentRepository) Create(ctx context.Context, e *domain.Equipment) error {
	m := toEquipmentModel(e)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	*e = *toDomainEquipment(m)
	return nil
}

func (r *EquipmentRepository) GetByID(ctx context.Context, id int64) (*domain.Equipment, error) {
	var m equipmentModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err, "equipment")
	}
	return toDomainEquipment(m), nil
}

// GetForUpdate row-locks the equipment on databases that support it.
func (r *EquipmentRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Equipment, error) {
	var m equipmentModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, id).Error
	if err != nil {
		return nil, translate(err, "equipment")
	}
	return toDomainEquipment(m), nil
}

func (r *EquipmentRepository) UpdatePrice(ctx context.Context, id int64, pricePerDay int64) error {
	return r.db.WithContext(ctx).
		Model(&equipmentModel{}).
		Where("id = ?", id).
		Update("price_per_day", pricePerDay).Error
}

func (r *EquipmentRepository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Equipment, error) {
	var rows []equipmentModel
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Equipment, 0, len(rows))
	for _, m := range rows {
		out = append(out, *toDomainEquipment(m))
	}
	return out, nil
}
