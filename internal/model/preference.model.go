package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default caps applied when a subscriber has no preference row yet.
const (
	DefaultMaxPerHour = 3
	DefaultMaxPerDay  = 10
	DefaultMaxPerWeek = 50
)

// Preference holds a subscriber's delivery consent and throttling settings.
// At most one row exists per subscription; it is created lazily with defaults
// on first access.
type Preference struct {
	ID                int64      `json:"id"`
	SubscriptionID    int64      `json:"subscription_id"`
	OptIn             bool       `json:"opt_in"`
	QuietHoursEnabled bool       `json:"quiet_hours_enabled"`
	QuietHoursStart   string     `json:"quiet_hours_start"` // "HH:MM" local time
	QuietHoursEnd     string     `json:"quiet_hours_end"`   // "HH:MM" local time
	Timezone          string     `json:"timezone"`          // IANA name, e.g. "Europe/Berlin"
	MaxPerHour        int        `json:"max_per_hour"`
	MaxPerDay         int        `json:"max_per_day"`
	MaxPerWeek        int        `json:"max_per_week"`
	DNDUntil          *time.Time `json:"dnd_until,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Preference) TableName() string { return "preferences" }

// DefaultPreference returns the lazily-created settings for a subscriber that
// has never touched their preferences.
func DefaultPreference(subscriptionID int64) *Preference {
	return &Preference{
		SubscriptionID: subscriptionID,
		OptIn:          true,
		MaxPerHour:     DefaultMaxPerHour,
		MaxPerDay:      DefaultMaxPerDay,
		MaxPerWeek:     DefaultMaxPerWeek,
	}
}

// ParseMinuteOfDay converts an "HH:MM" clock string into minutes since
// midnight. Used for quiet-hours window comparisons.
func ParseMinuteOfDay(clock string) (int, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", clock)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", clock)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return h*60 + m, nil
}

// PreferenceUpdateRequest carries partial updates; nil fields are untouched.
type PreferenceUpdateRequest struct {
	OptIn             *bool
	QuietHoursEnabled *bool
	QuietHoursStart   *string
	QuietHoursEnd     *string
	Timezone          *string
	MaxPerHour        *int
	MaxPerDay         *int
	MaxPerWeek        *int
	DNDUntil          *time.Time
	ClearDND          bool
}

func (p PreferenceUpdateRequest) Validate() error {
	if p.QuietHoursStart != nil {
		if _, err := ParseMinuteOfDay(*p.QuietHoursStart); err != nil {
			return err
		}
	}
	if p.QuietHoursEnd != nil {
		if _, err := ParseMinuteOfDay(*p.QuietHoursEnd); err != nil {
			return err
		}
	}
	if p.Timezone != nil && *p.Timezone != "" {
		if _, err := time.LoadLocation(*p.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q", *p.Timezone)
		}
	}
	if p.MaxPerHour != nil && *p.MaxPerHour < 0 {
		return fmt.Errorf("max_per_hour must not be negative")
	}
	if p.MaxPerDay != nil && *p.MaxPerDay < 0 {
		return fmt.Errorf("max_per_day must not be negative")
	}
	if p.MaxPerWeek != nil && *p.MaxPerWeek < 0 {
		return fmt.Errorf("max_per_week must not be negative")
	}
	return nil
}
