package model

import "time"

// DeliveryStatus is the lifecycle state of one attempted send.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusOpened    DeliveryStatus = "opened"
	DeliveryStatusClicked   DeliveryStatus = "clicked"
)

// rank orders statuses along the forward-only lifecycle. failed is a sibling
// of sent reachable only from pending; the tracking states extend sent only.
func (s DeliveryStatus) rank() int {
	switch s {
	case DeliveryStatusPending:
		return 0
	case DeliveryStatusSent, DeliveryStatusFailed:
		return 1
	case DeliveryStatusDelivered:
		return 2
	case DeliveryStatusOpened:
		return 3
	case DeliveryStatusClicked:
		return 4
	default:
		return -1
	}
}

// CanTransitionTo allows only forward movement: pending becomes sent or
// failed; a failed delivery may still become sent when a recovery resend
// lands; sent advances through delivered/opened/clicked as tracking events
// arrive and never regresses.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	switch s {
	case DeliveryStatusPending:
		return next == DeliveryStatusSent || next == DeliveryStatusFailed
	case DeliveryStatusFailed:
		return next == DeliveryStatusSent
	default:
		if next == DeliveryStatusFailed {
			return false
		}
		return next.rank() > s.rank()
	}
}

type Delivery struct {
	ID             int64          `json:"id"              db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID     *int64         `json:"campaign_id"     db:"campaign_id"     gorm:"column:campaign_id;index"`
	SubscriptionID int64          `json:"subscription_id" db:"subscription_id" gorm:"column:subscription_id;not null;index"`
	Status         DeliveryStatus `json:"status"          db:"status"          gorm:"column:status;not null;default:pending;index"`
	Payload        string         `json:"payload"         db:"payload"         gorm:"column:payload"` // JSON snapshot of the campaign payload, pre-adaptation
	RetryCount     int            `json:"retry_count"     db:"retry_count"     gorm:"column:retry_count;not null;default:0"`
	FailureReason  string         `json:"failure_reason,omitempty" db:"failure_reason" gorm:"column:failure_reason"`
	CreatedAt      time.Time      `json:"created_at"      db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	SentAt         *time.Time     `json:"sent_at,omitempty"       db:"sent_at"       gorm:"column:sent_at;index"`
	FailedAt       *time.Time     `json:"failed_at,omitempty"     db:"failed_at"     gorm:"column:failed_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"  db:"delivered_at"  gorm:"column:delivered_at"`
	OpenedAt       *time.Time     `json:"opened_at,omitempty"     db:"opened_at"     gorm:"column:opened_at"`
	ClickedAt      *time.Time     `json:"clicked_at,omitempty"    db:"clicked_at"    gorm:"column:clicked_at"`
}

func (Delivery) TableName() string { return "deliveries" }

// DeliveryFilter controls List queries.
type DeliveryFilter struct {
	CampaignID     *int64
	SubscriptionID *int64
	Statuses       []DeliveryStatus
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
	Desc           bool
}
