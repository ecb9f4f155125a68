package model

import "time"

// DeviceProfile is a best-effort description of the browser behind a
// subscription, captured at registration time. The delivery pipeline only
// reads it; the registration flow is the sole writer.
type DeviceProfile struct {
	ID             int64     `json:"id"`
	SubscriptionID int64     `json:"subscription_id"`
	Platform       string    `json:"platform"` // ios | android | desktop | tablet
	BrowserName    string    `json:"browser_name"`
	BrowserVersion string    `json:"browser_version"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (DeviceProfile) TableName() string { return "device_profiles" }
