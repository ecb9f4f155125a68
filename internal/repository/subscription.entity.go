package repository

import (
	"encoding/json"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
)

type SubscriptionEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	Endpoint  string    `db:"endpoint"   gorm:"column:endpoint;not null;uniqueIndex"`
	P256dhKey string    `db:"p256dh_key" gorm:"column:p256dh_key;not null"`
	AuthKey   string    `db:"auth_key"   gorm:"column:auth_key;not null"`
	Status    string    `db:"status"     gorm:"column:status;not null;default:active;index"`
	Metadata  string    `db:"metadata"   gorm:"column:metadata"` // JSON object, may be empty
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	Segments []*SubscriptionSegmentEntity `gorm:"foreignKey:SubscriptionID"`
}

func (SubscriptionEntity) TableName() string {
	return "subscriptions"
}

// SubscriptionSegmentEntity is one targeting tag on a subscription. Exact
// per-segment rows keep audience lookups on a plain index instead of array
// containment scans.
type SubscriptionSegmentEntity struct {
	ID             int64  `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	SubscriptionID int64  `db:"subscription_id" gorm:"column:subscription_id;not null;index:idx_segment_sub"`
	Segment        string `db:"segment"         gorm:"column:segment;not null;index:idx_segment_name"`
}

func (SubscriptionSegmentEntity) TableName() string {
	return "subscription_segments"
}

func toSubscriptionEntity(m *model.Subscription) *SubscriptionEntity {
	if m == nil {
		return nil
	}
	e := &SubscriptionEntity{
		ID:        m.ID,
		Endpoint:  m.Endpoint,
		P256dhKey: m.P256dhKey,
		AuthKey:   m.AuthKey,
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Metadata) > 0 {
		if raw, err := json.Marshal(m.Metadata); err == nil {
			e.Metadata = string(raw)
		}
	}
	return e
}

func toSubscriptionModel(e *SubscriptionEntity) *model.Subscription {
	if e == nil {
		return nil
	}
	m := &model.Subscription{
		ID:        e.ID,
		Endpoint:  e.Endpoint,
		P256dhKey: e.P256dhKey,
		AuthKey:   e.AuthKey,
		Status:    model.SubscriptionStatus(e.Status),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.Metadata != "" {
		_ = json.Unmarshal([]byte(e.Metadata), &m.Metadata)
	}
	for _, seg := range e.Segments {
		m.Segments = append(m.Segments, seg.Segment)
	}
	return m
}

func marshalMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}

func toSubscriptionModels(entities []*SubscriptionEntity) []*model.Subscription {
	if entities == nil {
		return nil
	}
	models := make([]*model.Subscription, len(entities))
	for i, e := range entities {
		models[i] = toSubscriptionModel(e)
	}
	return models
}
