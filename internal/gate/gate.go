package gate

import (
	"context"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/logger"
)

// Block reasons reported on a denied Decision.
const (
	ReasonAllowed    = "allowed"
	ReasonOptedOut   = "opted_out"
	ReasonDND        = "do_not_disturb"
	ReasonQuietHours = "quiet_hours"
	ReasonHourlyCap  = "hourly_cap_reached"
	ReasonDailyCap   = "daily_cap_reached"
	ReasonWeeklyCap  = "weekly_cap_reached"
)

// PreferenceStore loads a subscriber's settings, creating the default row on
// first access.
type PreferenceStore interface {
	GetOrCreate(ctx context.Context, subscriptionID int64) (*model.Preference, error)
}

// DeliveryCounter counts deliveries that reached the push service inside a
// trailing window.
type DeliveryCounter interface {
	CountSentSince(ctx context.Context, subscriptionID int64, since time.Time) (int64, error)
}

// Decision is the gate's verdict for one prospective send.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Gate decides, per subscriber and per send, whether a notification may go
// out right now. Decisions are computed fresh on every call: a cached verdict
// could leak a send into a quiet-hours window that opened a second ago.
type Gate struct {
	prefs      PreferenceStore
	deliveries DeliveryCounter
}

func New(prefs PreferenceStore, deliveries DeliveryCounter) *Gate {
	return &Gate{prefs: prefs, deliveries: deliveries}
}

// CanSend evaluates the gate for the current moment.
func (g *Gate) CanSend(ctx context.Context, subscriptionID int64) (Decision, error) {
	return g.CanSendAt(ctx, subscriptionID, time.Now())
}

// CanSendAt evaluates consent, do-not-disturb, quiet hours, and the trailing
// frequency caps in that order; the first blocking rule wins and later rules
// are not consulted. Cap windows trail from now (last hour, last 24h, last
// 7 days), not calendar buckets.
func (g *Gate) CanSendAt(ctx context.Context, subscriptionID int64, now time.Time) (Decision, error) {
	pref, err := g.prefs.GetOrCreate(ctx, subscriptionID)
	if err != nil {
		return Decision{}, err
	}

	if !pref.OptIn {
		return Decision{Reason: ReasonOptedOut}, nil
	}

	if pref.DNDUntil != nil && now.Before(*pref.DNDUntil) {
		return Decision{Reason: ReasonDND}, nil
	}

	if inQuietHours(pref, now) {
		return Decision{Reason: ReasonQuietHours}, nil
	}

	caps := []struct {
		limit  int
		window time.Duration
		reason string
	}{
		{pref.MaxPerHour, time.Hour, ReasonHourlyCap},
		{pref.MaxPerDay, 24 * time.Hour, ReasonDailyCap},
		{pref.MaxPerWeek, 7 * 24 * time.Hour, ReasonWeeklyCap},
	}
	for _, c := range caps {
		sent, err := g.deliveries.CountSentSince(ctx, subscriptionID, now.Add(-c.window))
		if err != nil {
			return Decision{}, err
		}
		if sent >= int64(c.limit) {
			return Decision{Reason: c.reason}, nil
		}
	}

	return Decision{Allowed: true, Reason: ReasonAllowed}, nil
}

// inQuietHours checks the clock in the subscriber's own timezone. A window
// whose end is at or before its start wraps past midnight; start == end is
// an empty window. Unparseable settings never block a send.
func inQuietHours(pref *model.Preference, now time.Time) bool {
	if !pref.QuietHoursEnabled {
		return false
	}

	start, err := model.ParseMinuteOfDay(pref.QuietHoursStart)
	if err != nil {
		logger.Warn("gate: invalid quiet_hours_start, ignoring window",
			"subscription_id", pref.SubscriptionID, "value", pref.QuietHoursStart)
		return false
	}
	end, err := model.ParseMinuteOfDay(pref.QuietHoursEnd)
	if err != nil {
		logger.Warn("gate: invalid quiet_hours_end, ignoring window",
			"subscription_id", pref.SubscriptionID, "value", pref.QuietHoursEnd)
		return false
	}
	if start == end {
		return false
	}

	loc := time.UTC
	if pref.Timezone != "" {
		l, err := time.LoadLocation(pref.Timezone)
		if err != nil {
			logger.Warn("gate: unknown timezone, falling back to UTC",
				"subscription_id", pref.SubscriptionID, "timezone", pref.Timezone)
		} else {
			loc = l
		}
	}

	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()

	if start < end {
		return cur >= start && cur < end
	}
	// Overnight window, e.g. 22:00 to 08:00.
	return cur >= start || cur < end
}
