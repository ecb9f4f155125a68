package model

import (
	"errors"
	"time"
)

// SubscriptionStatus is the lifecycle state of a push subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusFailed   SubscriptionStatus = "failed"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
)

// CanTransitionTo enforces the subscription lifecycle. Active endpoints may
// degrade to failed or be retired to inactive; failed endpoints may recover
// to active on a later successful send or be retired. Inactive is terminal;
// a retired endpoint comes back only as a fresh subscription row.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	switch s {
	case SubscriptionStatusActive:
		return next == SubscriptionStatusFailed || next == SubscriptionStatusInactive
	case SubscriptionStatusFailed:
		return next == SubscriptionStatusInactive || next == SubscriptionStatusActive
	default:
		return false
	}
}

type Subscription struct {
	ID        int64              `json:"id"         db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	Endpoint  string             `json:"endpoint"   db:"endpoint"    gorm:"column:endpoint;not null;uniqueIndex"`
	P256dhKey string             `json:"p256dh_key" db:"p256dh_key"  gorm:"column:p256dh_key;not null"`
	AuthKey   string             `json:"auth_key"   db:"auth_key"    gorm:"column:auth_key;not null"`
	Status    SubscriptionStatus `json:"status"     db:"status"      gorm:"column:status;not null;default:active;index"`
	Segments  []string           `json:"segments,omitempty"           gorm:"-"`
	Metadata  map[string]string  `json:"metadata,omitempty"           gorm:"-"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"  gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"  gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionCreateRequest is the input for registering a push endpoint.
type SubscriptionCreateRequest struct {
	Endpoint  string
	P256dhKey string
	AuthKey   string
	UserAgent string
	Platform  string
	Segments  []string
	Metadata  map[string]string
}

func (p SubscriptionCreateRequest) Validate() error {
	if p.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if p.P256dhKey == "" {
		return errors.New("p256dh key is required")
	}
	if p.AuthKey == "" {
		return errors.New("auth key is required")
	}
	return nil
}

// SubscriptionFilter controls List queries.
type SubscriptionFilter struct {
	Statuses []SubscriptionStatus // IN (...)
	Endpoint *string              // equals
	Segment  *string              // has this targeting tag
	From     *time.Time
	To       *time.Time
	Limit    int // default 50
	Offset   int
	Desc     bool // order by created_at
}
