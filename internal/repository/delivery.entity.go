package repository

import (
	"time"

	"github.com/pushmill/push-gateway/internal/model"
)

type DeliveryEntity struct {
	ID             int64      `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID     *int64     `db:"campaign_id"     gorm:"column:campaign_id;index"`
	SubscriptionID int64      `db:"subscription_id" gorm:"column:subscription_id;not null;index"`
	Status         string     `db:"status"          gorm:"column:status;not null;default:pending;index"`
	Payload        string     `db:"payload"         gorm:"column:payload"`
	RetryCount     int        `db:"retry_count"     gorm:"column:retry_count;not null;default:0"`
	FailureReason  string     `db:"failure_reason"  gorm:"column:failure_reason"`
	CreatedAt      time.Time  `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	SentAt         *time.Time `db:"sent_at"         gorm:"column:sent_at;index"`
	FailedAt       *time.Time `db:"failed_at"       gorm:"column:failed_at"`
	DeliveredAt    *time.Time `db:"delivered_at"    gorm:"column:delivered_at"`
	OpenedAt       *time.Time `db:"opened_at"       gorm:"column:opened_at"`
	ClickedAt      *time.Time `db:"clicked_at"      gorm:"column:clicked_at"`
}

func (DeliveryEntity) TableName() string {
	return "deliveries"
}

func toDeliveryEntity(m *model.Delivery) *DeliveryEntity {
	if m == nil {
		return nil
	}
	return &DeliveryEntity{
		ID:             m.ID,
		CampaignID:     m.CampaignID,
		SubscriptionID: m.SubscriptionID,
		Status:         string(m.Status),
		Payload:        m.Payload,
		RetryCount:     m.RetryCount,
		FailureReason:  m.FailureReason,
		CreatedAt:      m.CreatedAt,
		SentAt:         m.SentAt,
		FailedAt:       m.FailedAt,
		DeliveredAt:    m.DeliveredAt,
		OpenedAt:       m.OpenedAt,
		ClickedAt:      m.ClickedAt,
	}
}

func toDeliveryModel(e *DeliveryEntity) *model.Delivery {
	if e == nil {
		return nil
	}
	return &model.Delivery{
		ID:             e.ID,
		CampaignID:     e.CampaignID,
		SubscriptionID: e.SubscriptionID,
		Status:         model.DeliveryStatus(e.Status),
		Payload:        e.Payload,
		RetryCount:     e.RetryCount,
		FailureReason:  e.FailureReason,
		CreatedAt:      e.CreatedAt,
		SentAt:         e.SentAt,
		FailedAt:       e.FailedAt,
		DeliveredAt:    e.DeliveredAt,
		OpenedAt:       e.OpenedAt,
		ClickedAt:      e.ClickedAt,
	}
}

func toDeliveryModels(entities []*DeliveryEntity) []*model.Delivery {
	if entities == nil {
		return nil
	}
	models := make([]*model.Delivery, len(entities))
	for i, e := range entities {
		models[i] = toDeliveryModel(e)
	}
	return models
}
