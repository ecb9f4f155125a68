package model

import "time"

// Delivery event outcomes published on the tracking stream.
const (
	EventOutcomeSent    = "sent"
	EventOutcomeFailed  = "failed"
	EventOutcomeSkipped = "skipped"
)

// DeliveryEvent is one per-recipient outcome on the tracking stream. Code
// carries the retry error code for failures and the gate reason for skips.
type DeliveryEvent struct {
	CampaignID     int64     `json:"campaign_id"`
	DeliveryID     int64     `json:"delivery_id"`
	SubscriptionID int64     `json:"subscription_id"`
	Outcome        string    `json:"outcome"`
	Code           string    `json:"code,omitempty"`
	At             time.Time `json:"at"`
}
