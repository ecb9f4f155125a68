package repository

import (
	"time"

	"github.com/pushmill/push-gateway/internal/model"
)

type FailedDeliveryEntity struct {
	ID               int64      `db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	DeliveryID       int64      `db:"delivery_id"       gorm:"column:delivery_id;not null;index"`
	SubscriptionID   int64      `db:"subscription_id"   gorm:"column:subscription_id;not null;index"`
	ErrorCode        string     `db:"error_code"        gorm:"column:error_code"`
	ErrorCategory    string     `db:"error_category"    gorm:"column:error_category;index"`
	ErrorMessage     string     `db:"error_message"     gorm:"column:error_message"`
	AttemptCount     int        `db:"attempt_count"     gorm:"column:attempt_count;not null;default:0"`
	MaxAttempts      int        `db:"max_attempts"      gorm:"column:max_attempts;not null;default:0"`
	WillRetry        bool       `db:"will_retry"        gorm:"column:will_retry;not null;default:false;index"`
	NextRetryAt      *time.Time `db:"next_retry_at"     gorm:"column:next_retry_at;index"`
	ResolvedAt       *time.Time `db:"resolved_at"       gorm:"column:resolved_at"`
	ResolutionReason string     `db:"resolution_reason" gorm:"column:resolution_reason"`
	CreatedAt        time.Time  `db:"created_at"        gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `db:"updated_at"        gorm:"column:updated_at;autoUpdateTime"`
}

func (FailedDeliveryEntity) TableName() string {
	return "failed_deliveries"
}

func toFailedDeliveryEntity(m *model.FailedDelivery) *FailedDeliveryEntity {
	if m == nil {
		return nil
	}
	return &FailedDeliveryEntity{
		ID:               m.ID,
		DeliveryID:       m.DeliveryID,
		SubscriptionID:   m.SubscriptionID,
		ErrorCode:        m.ErrorCode,
		ErrorCategory:    m.ErrorCategory,
		ErrorMessage:     m.ErrorMessage,
		AttemptCount:     m.AttemptCount,
		MaxAttempts:      m.MaxAttempts,
		WillRetry:        m.WillRetry,
		NextRetryAt:      m.NextRetryAt,
		ResolvedAt:       m.ResolvedAt,
		ResolutionReason: m.ResolutionReason,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toFailedDeliveryModel(e *FailedDeliveryEntity) *model.FailedDelivery {
	if e == nil {
		return nil
	}
	return &model.FailedDelivery{
		ID:               e.ID,
		DeliveryID:       e.DeliveryID,
		SubscriptionID:   e.SubscriptionID,
		ErrorCode:        e.ErrorCode,
		ErrorCategory:    e.ErrorCategory,
		ErrorMessage:     e.ErrorMessage,
		AttemptCount:     e.AttemptCount,
		MaxAttempts:      e.MaxAttempts,
		WillRetry:        e.WillRetry,
		NextRetryAt:      e.NextRetryAt,
		ResolvedAt:       e.ResolvedAt,
		ResolutionReason: e.ResolutionReason,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func toFailedDeliveryModels(entities []*FailedDeliveryEntity) []*model.FailedDelivery {
	if entities == nil {
		return nil
	}
	models := make([]*model.FailedDelivery, len(entities))
	for i, e := range entities {
		models[i] = toFailedDeliveryModel(e)
	}
	return models
}
