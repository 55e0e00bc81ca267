package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agrirent/internal/domain"
)

type GroupBookingRepository struct {
	db *gorm.DB
}

func NewGroupBookingRepository(db *gorm.DB) *GroupBookingRepository {
	return &GroupBookingRepository{db: db}
}

type groupBookingModel struct {
	ID                 int64      `gorm:"column:id;primaryKey"`
	EquipmentID        int64      `gorm:"column:equipment_id;not null;index:idx_group_bookings_equipment_status"`
	InitiatorID        int64      `gorm:"column:initiator_id;not null;index"`
	StartDate          time.Time  `gorm:"column:start_date;not null"`
	EndDate            time.Time  `gorm:"column:end_date;not null"`
	TotalDays          int64      `gorm:"column:total_days;not null"`
	PricePerDay        int64      `gorm:"column:price_per_day;not null"`
	TotalPrice         int64      `gorm:"column:total_price;not null"`
	MinParticipants    int        `gorm:"column:min_participants;not null"`
	MaxParticipants    int        `gorm:"column:max_participants;not null"`
	IsPublic           bool       `gorm:"column:is_public;not null"`
	ExpiresAt          *time.Time `gorm:"column:expires_at"`
	Status             string     `gorm:"column:status;not null;index:idx_group_bookings_equipment_status"`
	Notes              *string    `gorm:"column:notes;type:text"`
	CancellationReason *string    `gorm:"column:cancellation_reason;type:text"`
	ConfirmedAt        *time.Time `gorm:"column:confirmed_at"`
	ActivatedAt        *time.Time `gorm:"column:activated_at"`
	CompletedAt        *time.Time `gorm:"column:completed_at"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (groupBookingModel) TableName() string { return "group_bookings" }

type groupParticipantModel struct {
	ID               int64     `gorm:"column:id;primaryKey"`
	GroupBookingID   int64     `gorm:"column:group_booking_id;not null;uniqueIndex:idx_group_participant_farmer"`
	FarmerID         int64     `gorm:"column:farmer_id;not null;uniqueIndex:idx_group_participant_farmer;index"`
	ShareAmount      int64     `gorm:"column:share_amount;not null"`
	PaymentStatus    string    `gorm:"column:payment_status;not null"`
	PaymentReference *string   `gorm:"column:payment_reference"`
	PaidAmount       int64     `gorm:"column:paid_amount;not null"`
	Notes            *string   `gorm:"column:notes;type:text"`
	JoinedAt         time.Time `gorm:"column:joined_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (groupParticipantModel) TableName() string { return "group_participants" }

func toDomainGroup(m groupBookingModel) *domain.GroupBooking {
	return &domain.GroupBooking{
		ID:                 m.ID,
		EquipmentID:        m.EquipmentID,
		InitiatorID:        m.InitiatorID,
		StartDate:          m.StartDate.UTC(),
		EndDate:            m.EndDate.UTC(),
		TotalDays:          m.TotalDays,
		PricePerDay:        m.PricePerDay,
		TotalPrice:         m.TotalPrice,
		MinParticipants:    m.MinParticipants,
		MaxParticipants:    m.MaxParticipants,
		IsPublic:           m.IsPublic,
		ExpiresAt:          m.ExpiresAt,
		Status:             domain.GroupStatus(m.Status),
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

func toGroupModel(g *domain.GroupBooking) groupBookingModel {
	return groupBookingModel{
		ID:                 g.ID,
		EquipmentID:        g.EquipmentID,
		InitiatorID:        g.InitiatorID,
		StartDate:          g.StartDate.UTC(),
		EndDate:            g.EndDate.UTC(),
		TotalDays:          g.TotalDays,
		PricePerDay:        g.PricePerDay,
		TotalPrice:         g.TotalPrice,
		MinParticipants:    g.MinParticipants,
		MaxParticipants:    g.MaxParticipants,
		IsPublic:           g.IsPublic,
		ExpiresAt:          g.ExpiresAt,
		Status:             string(g.Status),
		Notes:              ptr(g.Notes),
		CancellationReason: ptr(g.CancellationReason),
		ConfirmedAt:        g.ConfirmedAt,
		ActivatedAt:        g.ActivatedAt,
		CompletedAt:        g.CompletedAt,
		CancelledAt:        g.CancelledAt,
		CreatedAt:          g.CreatedAt,
		UpdatedAt:          g.UpdatedAt,
	}
}

func toDomainParticipant(m groupParticipantModel) domain.GroupParticipant {
	return domain.GroupParticipant{
		ID:               m.ID,
		GroupBookingID:   m.GroupBookingID,
		FarmerID:         m.FarmerID,
		ShareAmount:      m.ShareAmount,
		PaymentStatus:    domain.PaymentStatus(m.PaymentStatus),
		PaymentReference: deref(m.PaymentReference),
		PaidAmount:       m.PaidAmount,
		Notes:            deref(m.Notes),
		JoinedAt:         m.JoinedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toParticipantModel(p *domain.GroupParticipant) groupParticipantModel {
	return groupParticipantModel{
		ID:               p.ID,
		GroupBookingID:   p.GroupBookingID,
		FarmerID:         p.FarmerID,
		ShareAmount:      p.ShareAmount,
		PaymentStatus:    string(p.PaymentStatus),
		PaymentReference: ptr(p.PaymentReference),
		PaidAmount:       p.PaidAmount,
		Notes:            ptr(p.Notes),
		JoinedAt:         p.JoinedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (r *GroupBookingRepository) Create(ctx context.Context, g *domain.GroupBooking) error {
	m := toGroupModel(g)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err, "group booking")
	}
	*g = *toDomainGroup(m)
	return nil
}

func (r *GroupBookingRepository) GetByID(ctx context.Context, id int64) (*domain.GroupBooking, error) {
	var m groupBookingModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err, "group booking")
	}
	return toDomainGroup(m), nil
}

// GetForUpdate row-locks the group. Joins, leaves, confirmation and payment
// application all serialise on this row.
func (r *GroupBookingRepository) GetForUpdate(ctx context.Context, id int64) (*domain.GroupBooking, error) {
	var m groupBookingModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, id).Error
	if err != nil {
		return nil, translate(err, "group booking")
	}
	return toDomainGroup(m), nil
}

func (r *GroupBookingRepository) Save(ctx context.Context, g *domain.GroupBooking) error {
	m := toGroupModel(g)
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return translate(err, "group booking")
	}
	*g = *toDomainGroup(m)
	return nil
}

func (r *GroupBookingRepository) Holding(ctx context.Context, equipmentID int64) ([]domain.GroupBooking, error) {
	statuses := make([]string, 0, 4)
	for _, st := range domain.HoldingGroupStatuses() {
		statuses = append(statuses, string(st))
	}
	return r.listWhere(ctx, 0, 0, "equipment_id = ? AND status IN ?", equipmentID, statuses)
}

// ListJoinable returns public groups of an equipment still accepting members.
func (r *GroupBookingRepository) ListJoinable(ctx context.Context, equipmentID int64, limit, offset int) ([]domain.GroupBooking, error) {
	return r.listWhere(ctx, limit, offset,
		"equipment_id = ? AND is_public = ? AND status IN ?",
		equipmentID, true, []string{string(domain.GroupOpen), string(domain.GroupFilled)})
}

// ListByFarmer returns the groups a farmer initiated or participates in.
func (r *GroupBookingRepository) ListByFarmer(ctx context.Context, farmerID int64, limit, offset int) ([]domain.GroupBooking, error) {
	sub := r.db.Model(&groupParticipantModel{}).Select("group_booking_id").Where("farmer_id = ?", farmerID)
	return r.listWhere(ctx, limit, offset, "initiator_id = ? OR id IN (?)", farmerID, sub)
}

func (r *GroupBookingRepository) listWhere(ctx context.Context, limit, offset int, query string, args ...any) ([]domain.GroupBooking, error) {
	q := r.db.WithContext(ctx).Where(query, args...).Order("start_date ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var rows []groupBookingModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.GroupBooking, 0, len(rows))
	for _, m := range rows {
		out = append(out, *toDomainGroup(m))
	}
	return out, nil
}

// AddParticipant inserts p. A second row for the same farmer and group fails
// with ErrDuplicate.
func (r *GroupBookingRepository) AddParticipant(ctx context.Context, p *domain.GroupParticipant) error {
	m := toParticipantModel(p)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err, "group participant")
	}
	*p = toDomainParticipant(m)
	return nil
}

func (r *GroupBookingRepository) GetParticipant(ctx context.Context, groupID, farmerID int64) (*domain.GroupParticipant, error) {
	var m groupParticipantModel
	err := r.db.WithContext(ctx).
		Where("group_booking_id = ? AND farmer_id = ?", groupID, farmerID).
		First(&m).Error
	if err != nil {
		return nil, translate(err, "group participant")
	}
	p := toDomainParticipant(m)
	return &p, nil
}

func (r *GroupBookingRepository) GetParticipantByID(ctx context.Context, id int64) (*domain.GroupParticipant, error) {
	var m groupParticipantModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err, "group participant")
	}
	p := toDomainParticipant(m)
	return &p, nil
}

// ListParticipants returns participants in join order.
func (r *GroupBookingRepository) ListParticipants(ctx context.Context, groupID int64) ([]domain.GroupParticipant, error) {
	var rows []groupParticipantModel
	err := r.db.WithContext(ctx).
		Where("group_booking_id = ?", groupID).
		Order("joined_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.GroupParticipant, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainParticipant(m))
	}
	return out, nil
}

func (r *GroupBookingRepository) CountParticipants(ctx context.Context, groupID int64) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&groupParticipantModel{}).
		Where("group_booking_id = ?", groupID).
		Count(&n).Error
	return int(n), err
}

func (r *GroupBookingRepository) UpdateShare(ctx context.Context, participantID int64, share int64, status domain.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&groupParticipantModel{}).
		Where("id = ?", participantID).
		Updates(map[string]any{
			"share_amount":   share,
			"payment_status": string(status),
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *GroupBookingRepository) SaveParticipant(ctx context.Context, p *domain.GroupParticipant) error {
	m := toParticipantModel(p)
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return translate(err, "group participant")
	}
	*p = toDomainParticipant(m)
	return nil
}

func (r *GroupBookingRepository) DeleteParticipant(ctx context.Context, participantID int64) error {
	res := r.db.WithContext(ctx).Delete(&groupParticipantModel{}, participantID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "group participant")
	}
	return nil
}
