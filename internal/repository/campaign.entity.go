package repository

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pushmill/push-gateway/internal/model"
)

type CampaignEntity struct {
	ID          int64          `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	Name        string         `db:"name"         gorm:"column:name;not null"`
	Payload     string         `db:"payload"      gorm:"column:payload;not null"` // JSON PushPayload
	Segments    pq.StringArray `db:"segments"     gorm:"column:segments;type:text[]"`
	Status      string         `db:"status"       gorm:"column:status;not null;default:draft;index"`
	Paused      bool           `db:"paused"       gorm:"column:paused;not null;default:false"`
	ScheduledAt *time.Time     `db:"scheduled_at" gorm:"column:scheduled_at;index"`
	StartedAt   *time.Time     `db:"started_at"   gorm:"column:started_at"`
	CompletedAt *time.Time     `db:"completed_at" gorm:"column:completed_at"`
	SentCount   int            `db:"sent_count"   gorm:"column:sent_count;not null;default:0"`
	FailedCount int            `db:"failed_count" gorm:"column:failed_count;not null;default:0"`
	SkipCount   int            `db:"skip_count"   gorm:"column:skip_count;not null;default:0"`
	CreatedAt   time.Time      `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `db:"updated_at"   gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt   *time.Time     `db:"deleted_at"   gorm:"column:deleted_at;index"`
}

func (CampaignEntity) TableName() string {
	return "campaigns"
}

func toCampaignEntity(m *model.Campaign) *CampaignEntity {
	if m == nil {
		return nil
	}
	e := &CampaignEntity{
		ID:          m.ID,
		Name:        m.Name,
		Segments:    pq.StringArray(m.Segments),
		Status:      string(m.Status),
		Paused:      m.Paused,
		ScheduledAt: m.ScheduledAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		SentCount:   m.SentCount,
		FailedCount: m.FailedCount,
		SkipCount:   m.SkipCount,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		DeletedAt:   m.DeletedAt,
	}
	if raw, err := json.Marshal(m.Payload); err == nil {
		e.Payload = string(raw)
	}
	return e
}

func toCampaignModel(e *CampaignEntity) *model.Campaign {
	if e == nil {
		return nil
	}
	m := &model.Campaign{
		ID:          e.ID,
		Name:        e.Name,
		Segments:    []string(e.Segments),
		Status:      model.CampaignStatus(e.Status),
		Paused:      e.Paused,
		ScheduledAt: e.ScheduledAt,
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		SentCount:   e.SentCount,
		FailedCount: e.FailedCount,
		SkipCount:   e.SkipCount,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		DeletedAt:   e.DeletedAt,
	}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &m.Payload)
	}
	return m
}

func toCampaignModels(entities []*CampaignEntity) []*model.Campaign {
	if entities == nil {
		return nil
	}
	models := make([]*model.Campaign, len(entities))
	for i, e := range entities {
		models[i] = toCampaignModel(e)
	}
	return models
}
