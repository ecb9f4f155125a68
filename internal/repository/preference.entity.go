package repository

import (
	"time"

	"github.com/pushmill/push-gateway/internal/model"
)

type PreferenceEntity struct {
	ID                int64      `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	SubscriptionID    int64      `db:"subscription_id"     gorm:"column:subscription_id;not null;uniqueIndex"`
	OptIn             bool       `db:"opt_in"              gorm:"column:opt_in;not null;default:true"`
	QuietHoursEnabled bool       `db:"quiet_hours_enabled" gorm:"column:quiet_hours_enabled;not null;default:false"`
	QuietHoursStart   string     `db:"quiet_hours_start"   gorm:"column:quiet_hours_start"`
	QuietHoursEnd     string     `db:"quiet_hours_end"     gorm:"column:quiet_hours_end"`
	Timezone          string     `db:"timezone"            gorm:"column:timezone"`
	MaxPerHour        int        `db:"max_per_hour"        gorm:"column:max_per_hour;not null;default:3"`
	MaxPerDay         int        `db:"max_per_day"         gorm:"column:max_per_day;not null;default:10"`
	MaxPerWeek        int        `db:"max_per_week"        gorm:"column:max_per_week;not null;default:50"`
	DNDUntil          *time.Time `db:"dnd_until"           gorm:"column:dnd_until"`
	CreatedAt         time.Time  `db:"created_at"          gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `db:"updated_at"          gorm:"column:updated_at;autoUpdateTime"`
}

func (PreferenceEntity) TableName() string {
	return "preferences"
}

func toPreferenceEntity(m *model.Preference) *PreferenceEntity {
	if m == nil {
		return nil
	}
	return &PreferenceEntity{
		ID:                m.ID,
		SubscriptionID:    m.SubscriptionID,
		OptIn:             m.OptIn,
		QuietHoursEnabled: m.QuietHoursEnabled,
		QuietHoursStart:   m.QuietHoursStart,
		QuietHoursEnd:     m.QuietHoursEnd,
		Timezone:          m.Timezone,
		MaxPerHour:        m.MaxPerHour,
		MaxPerDay:         m.MaxPerDay,
		MaxPerWeek:        m.MaxPerWeek,
		DNDUntil:          m.DNDUntil,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toPreferenceModel(e *PreferenceEntity) *model.Preference {
	if e == nil {
		return nil
	}
	return &model.Preference{
		ID:                e.ID,
		SubscriptionID:    e.SubscriptionID,
		OptIn:             e.OptIn,
		QuietHoursEnabled: e.QuietHoursEnabled,
		QuietHoursStart:   e.QuietHoursStart,
		QuietHoursEnd:     e.QuietHoursEnd,
		Timezone:          e.Timezone,
		MaxPerHour:        e.MaxPerHour,
		MaxPerDay:         e.MaxPerDay,
		MaxPerWeek:        e.MaxPerWeek,
		DNDUntil:          e.DNDUntil,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}
