package model

import "time"

// Resolution reasons recorded when a dead-letter entry leaves the retry queue.
const (
	ResolutionRecovered          = "recovered"
	ResolutionMaxAttemptsReached = "max_attempts_reached"
)

// FailedDelivery is one dead-letter entry: the retry lineage of a delivery
// that could not be pushed. While WillRetry is true and NextRetryAt has
// passed, the recovery loop owns the record; once ResolvedAt is set the
// record is terminal.
type FailedDelivery struct {
	ID               int64      `json:"id"              db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	DeliveryID       int64      `json:"delivery_id"     db:"delivery_id"     gorm:"column:delivery_id;not null;index"`
	SubscriptionID   int64      `json:"subscription_id" db:"subscription_id" gorm:"column:subscription_id;not null;index"`
	ErrorCode        string     `json:"error_code"      db:"error_code"      gorm:"column:error_code"`
	ErrorCategory    string     `json:"error_category"  db:"error_category"  gorm:"column:error_category;index"`
	ErrorMessage     string     `json:"error_message"   db:"error_message"   gorm:"column:error_message"`
	AttemptCount     int        `json:"attempt_count"   db:"attempt_count"   gorm:"column:attempt_count;not null;default:0"`
	MaxAttempts      int        `json:"max_attempts"    db:"max_attempts"    gorm:"column:max_attempts;not null;default:0"`
	WillRetry        bool       `json:"will_retry"      db:"will_retry"      gorm:"column:will_retry;not null;default:false;index"`
	NextRetryAt      *time.Time `json:"next_retry_at,omitempty"     db:"next_retry_at"     gorm:"column:next_retry_at;index"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"       db:"resolved_at"       gorm:"column:resolved_at"`
	ResolutionReason string     `json:"resolution_reason,omitempty" db:"resolution_reason" gorm:"column:resolution_reason"`
	CreatedAt        time.Time  `json:"created_at"      db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `json:"updated_at"      db:"updated_at"      gorm:"column:updated_at;autoUpdateTime"`
}

func (FailedDelivery) TableName() string { return "failed_deliveries" }

// Resolved reports whether the record is terminal.
func (f *FailedDelivery) Resolved() bool { return f.ResolvedAt != nil }

// FailedDeliveryStats aggregates dead-letter counts for dashboards.
type FailedDeliveryStats struct {
	Pending    int64            `json:"pending"`
	Resolved   int64            `json:"resolved"`
	Recovered  int64            `json:"recovered"`
	Exhausted  int64            `json:"exhausted"`
	ByCategory map[string]int64 `json:"by_category"`
}
