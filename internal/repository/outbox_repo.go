package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"agrirent/internal/domain"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

type outboxModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	UserID      int64          `gorm:"column:user_id;not null;index"`
	Event       string         `gorm:"column:event;not null"`
	Payload     map[string]any `gorm:"column:payload;type:text;serializer:json"`
	Status      string         `gorm:"column:status;not null;index"`
	Attempts    int            `gorm:"column:attempts;not null"`
	LastError   *string        `gorm:"column:last_error;type:text"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	DeliveredAt *time.Time     `gorm:"column:delivered_at"`
}

func (outboxModel) TableName() string { return "notification_outbox" }

func toDomainOutbox(m outboxModel) domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:          m.ID,
		UserID:      m.UserID,
		Event:       domain.EventType(m.Event),
		Payload:     m.Payload,
		Status:      domain.OutboxStatus(m.Status),
		Attempts:    m.Attempts,
		LastError:   deref(m.LastError),
		CreatedAt:   m.CreatedAt,
		DeliveredAt: m.DeliveredAt,
	}
}

// Enqueue stores pending events. Call it with the transaction-bound store of
// the state change the events describe.
func (r *OutboxRepository) Enqueue(ctx context.Context, events ...domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]outboxModel, 0, len(events))
	for _, e := range events {
		rows = append(rows, outboxModel{
			UserID:  e.UserID,
			Event:   string(e.Event),
			Payload: e.Payload,
			Status:  string(domain.OutboxPending),
		})
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	var rows []outboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.OutboxPending)).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.OutboxEvent, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainOutbox(m))
	}
	return out, nil
}

// ListByUser returns every event addressed to a user, oldest first.
func (r *OutboxRepository) ListByUser(ctx context.Context, userID int64) ([]domain.OutboxEvent, error) {
	var rows []outboxModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OutboxEvent, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainOutbox(m))
	}
	return out, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       string(domain.OutboxDelivered),
			"delivered_at": at,
		}).Error
}

// MarkAttemptFailed records a failed delivery; once attempts reach maxAttempts
// the event is parked as failed.
func (r *OutboxRepository) MarkAttemptFailed(ctx context.Context, id int64, attempts, maxAttempts int, cause string) error {
	status := domain.OutboxPending
	if attempts >= maxAttempts {
		status = domain.OutboxFailed
	}
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"attempts":   attempts,
			"last_error": cause,
		}).Error
}

// PurgeDelivered deletes delivered and parked events created before cutoff.
func (r *OutboxRepository) PurgeDelivered(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []string{string(domain.OutboxDelivered), string(domain.OutboxFailed)}, before).
		Delete(&outboxModel{})
	return res.RowsAffected, res.Error
}
