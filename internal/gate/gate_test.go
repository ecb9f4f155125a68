package gate

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPrefs struct {
	pref *model.Preference
	err  error
}

func (s *stubPrefs) GetOrCreate(_ context.Context, subscriptionID int64) (*model.Preference, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := *s.pref
	p.SubscriptionID = subscriptionID
	return &p, nil
}

// stubCounter records send instants and counts the ones inside a window, so
// cap tests can watch old sends rotate out.
type stubCounter struct {
	sentAt []time.Time
}

func (s *stubCounter) CountSentSince(_ context.Context, _ int64, since time.Time) (int64, error) {
	var n int64
	for _, ts := range s.sentAt {
		if !ts.Before(since) {
			n++
		}
	}
	return n, nil
}

func defaultPref() *model.Preference {
	return &model.Preference{
		OptIn:      true,
		MaxPerHour: model.DefaultMaxPerHour,
		MaxPerDay:  model.DefaultMaxPerDay,
		MaxPerWeek: model.DefaultMaxPerWeek,
	}
}

func TestCanSendAt_DefaultsAllow(t *testing.T) {
	g := New(&stubPrefs{pref: defaultPref()}, &stubCounter{})

	d, err := g.CanSendAt(context.Background(), 1, time.Now())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonAllowed, d.Reason)
}

func TestCanSendAt_OptedOut(t *testing.T) {
	pref := defaultPref()
	pref.OptIn = false
	g := New(&stubPrefs{pref: pref}, &stubCounter{})

	d, err := g.CanSendAt(context.Background(), 1, time.Now())
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOptedOut, d.Reason)
}

func TestCanSendAt_DoNotDisturb(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	pref := defaultPref()
	until := now.Add(2 * time.Hour)
	pref.DNDUntil = &until
	g := New(&stubPrefs{pref: pref}, &stubCounter{})

	d, err := g.CanSendAt(context.Background(), 1, now)
	require.NoError(t, err)
	assert.Equal(t, ReasonDND, d.Reason)

	// An expired snooze no longer blocks.
	expired := now.Add(-time.Minute)
	pref.DNDUntil = &expired
	d, err = g.CanSendAt(context.Background(), 1, now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCanSendAt_OvernightQuietHours(t *testing.T) {
	pref := defaultPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	g := New(&stubPrefs{pref: pref}, &stubCounter{})

	tests := []struct {
		clock   string
		allowed bool
	}{
		{"23:30", false},
		{"02:00", false},
		{"07:59", false},
		{"08:00", true},
		{"09:00", true},
		{"21:59", true},
		{"22:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			mins, err := model.ParseMinuteOfDay(tt.clock)
			require.NoError(t, err)
			now := time.Date(2025, 6, 10, mins/60, mins%60, 0, 0, time.UTC)

			d, err := g.CanSendAt(context.Background(), 1, now)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, ReasonQuietHours, d.Reason)
			}
		})
	}
}

func TestCanSendAt_SameDayQuietHours(t *testing.T) {
	pref := defaultPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "09:00"
	pref.QuietHoursEnd = "17:00"
	g := New(&stubPrefs{pref: pref}, &stubCounter{})

	noon := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	d, err := g.CanSendAt(context.Background(), 1, noon)
	require.NoError(t, err)
	assert.Equal(t, ReasonQuietHours, d.Reason)

	evening := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)
	d, err = g.CanSendAt(context.Background(), 1, evening)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCanSendAt_QuietHoursUseSubscriberTimezone(t *testing.T) {
	pref := defaultPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	pref.Timezone = "Asia/Tokyo"
	g := New(&stubPrefs{pref: pref}, &stubCounter{})

	// 14:00 UTC is 23:00 in Tokyo: inside the window.
	now := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	d, err := g.CanSendAt(context.Background(), 1, now)
	require.NoError(t, err)
	assert.Equal(t, ReasonQuietHours, d.Reason)

	// 04:00 UTC is 13:00 in Tokyo: outside.
	now = time.Date(2025, 6, 10, 4, 0, 0, 0, time.UTC)
	d, err = g.CanSendAt(context.Background(), 1, now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCanSendAt_DisabledOrEmptyWindowNeverBlocks(t *testing.T) {
	pref := defaultPref()
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	// Window configured but not enabled.
	g := New(&stubPrefs{pref: pref}, &stubCounter{})

	night := time.Date(2025, 6, 10, 23, 30, 0, 0, time.UTC)
	d, err := g.CanSendAt(context.Background(), 1, night)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// start == end is a zero-length window.
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "10:00"
	pref.QuietHoursEnd = "10:00"
	d, err = g.CanSendAt(context.Background(), 1, night)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCanSendAt_HourlyCapRotates(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	counter := &stubCounter{sentAt: []time.Time{
		now.Add(-50 * time.Minute),
		now.Add(-30 * time.Minute),
		now.Add(-10 * time.Minute),
	}}
	g := New(&stubPrefs{pref: defaultPref()}, counter)

	d, err := g.CanSendAt(context.Background(), 1, now)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonHourlyCap, d.Reason)

	// Eleven minutes later the oldest send leaves the trailing hour.
	d, err = g.CanSendAt(context.Background(), 1, now.Add(11*time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCanSendAt_DailyAndWeeklyCaps(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	// Ten sends spread over the day, none in the last hour.
	var sent []time.Time
	for i := 0; i < 10; i++ {
		sent = append(sent, now.Add(-time.Duration(2+i)*time.Hour))
	}
	g := New(&stubPrefs{pref: defaultPref()}, &stubCounter{sentAt: sent})

	d, err := g.CanSendAt(context.Background(), 1, now)
	require.NoError(t, err)
	assert.Equal(t, ReasonDailyCap, d.Reason)

	// Fifty sends spread over the week, none in the last 24h.
	sent = sent[:0]
	for i := 0; i < 50; i++ {
		sent = append(sent, now.Add(-time.Duration(25+i)*time.Hour))
	}
	g = New(&stubPrefs{pref: defaultPref()}, &stubCounter{sentAt: sent})

	d, err = g.CanSendAt(context.Background(), 1, now)
	require.NoError(t, err)
	assert.Equal(t, ReasonWeeklyCap, d.Reason)
}

func TestCanSendAt_OptOutWinsOverQuietHours(t *testing.T) {
	pref := defaultPref()
	pref.OptIn = false
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	g := New(&stubPrefs{pref: pref}, &stubCounter{})

	night := time.Date(2025, 6, 10, 23, 30, 0, 0, time.UTC)
	d, err := g.CanSendAt(context.Background(), 1, night)
	require.NoError(t, err)
	assert.Equal(t, ReasonOptedOut, d.Reason)
}

func TestCanSendAt_PreferenceLoadErrorPropagates(t *testing.T) {
	g := New(&stubPrefs{err: errors.New("db down")}, &stubCounter{})

	_, err := g.CanSendAt(context.Background(), 1, time.Now())
	assert.Error(t, err)
}
