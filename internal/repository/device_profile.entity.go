package repository

import (
	"time"

	"github.com/pushmill/push-gateway/internal/model"
)

type DeviceProfileEntity struct {
	ID             int64     `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	SubscriptionID int64     `db:"subscription_id" gorm:"column:subscription_id;not null;uniqueIndex"`
	Platform       string    `db:"platform"        gorm:"column:platform"`
	BrowserName    string    `db:"browser_name"    gorm:"column:browser_name"`
	BrowserVersion string    `db:"browser_version" gorm:"column:browser_version"`
	UserAgent      string    `db:"user_agent"      gorm:"column:user_agent"`
	CreatedAt      time.Time `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `db:"updated_at"      gorm:"column:updated_at;autoUpdateTime"`
}

func (DeviceProfileEntity) TableName() string {
	return "device_profiles"
}

func toDeviceProfileEntity(m *model.DeviceProfile) *DeviceProfileEntity {
	if m == nil {
		return nil
	}
	return &DeviceProfileEntity{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		Platform:       m.Platform,
		BrowserName:    m.BrowserName,
		BrowserVersion: m.BrowserVersion,
		UserAgent:      m.UserAgent,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toDeviceProfileModel(e *DeviceProfileEntity) *model.DeviceProfile {
	if e == nil {
		return nil
	}
	return &model.DeviceProfile{
		ID:             e.ID,
		SubscriptionID: e.SubscriptionID,
		Platform:       e.Platform,
		BrowserName:    e.BrowserName,
		BrowserVersion: e.BrowserVersion,
		UserAgent:      e.UserAgent,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}
