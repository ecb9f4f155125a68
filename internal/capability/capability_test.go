package capability

import (
	"strings"
	"testing"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_KnownBrowsers(t *testing.T) {
	tests := []struct {
		browser   string
		title     int
		body      int
		actions   int
		dataBytes int
		image     bool
		vibration bool
	}{
		{"Chrome", 50, 120, 2, 2048, true, true},
		{"Firefox", 50, 120, 2, 2048, true, true},
		{"Edge", 50, 120, 2, 2048, true, true},
		{"Opera", 50, 120, 2, 2048, true, true},
		{"Samsung Internet", 50, 120, 2, 2048, true, true},
		{"Safari", 30, 100, 1, 1024, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.browser, func(t *testing.T) {
			p := Resolve(tt.browser, "")
			assert.Equal(t, tt.title, p.MaxTitleLength)
			assert.Equal(t, tt.body, p.MaxBodyLength)
			assert.Equal(t, tt.actions, p.MaxActions)
			assert.Equal(t, tt.dataBytes, p.MaxDataBytes)
			assert.Equal(t, tt.image, p.SupportsImage)
			assert.Equal(t, tt.vibration, p.SupportsVibration)
		})
	}
}

func TestResolve_SubstringMatch(t *testing.T) {
	p := Resolve("Mobile Safari", "17.4")
	assert.Equal(t, "safari", p.Name)
	assert.Equal(t, 30, p.MaxTitleLength)

	p = Resolve("HeadlessChrome", "120.0")
	assert.Equal(t, "chrome", p.Name)
}

func TestResolve_UnknownFallsBackToDesktop(t *testing.T) {
	p := Resolve("NetPositive", "1.0")
	assert.Equal(t, "desktop", p.Name)
	assert.Equal(t, 50, p.MaxTitleLength)
	assert.Equal(t, 120, p.MaxBodyLength)
}

func TestResolve_OldVersionsLoseFeatures(t *testing.T) {
	// Images landed in 50, action buttons in 44.
	p := Resolve("Chrome", "49.0.2623")
	assert.False(t, p.SupportsImage)
	assert.True(t, p.SupportsActions)

	p = Resolve("Chrome", "43.0.2357")
	assert.False(t, p.SupportsImage)
	assert.False(t, p.SupportsActions)

	p = Resolve("Chrome", "120.0.6099")
	assert.True(t, p.SupportsImage)
	assert.True(t, p.SupportsActions)

	// Unparseable versions leave the profile untouched.
	p = Resolve("Chrome", "unknown")
	assert.True(t, p.SupportsImage)
}

func TestResolveByPlatform(t *testing.T) {
	ios := ResolveByPlatform("iOS")
	assert.Equal(t, 30, ios.MaxTitleLength)
	assert.Equal(t, 1, ios.MaxActions)
	assert.False(t, ios.SupportsImage)

	android := ResolveByPlatform("android")
	assert.Equal(t, 50, android.MaxTitleLength)
	assert.True(t, android.SupportsImage)

	assert.Equal(t, "desktop", ResolveByPlatform("").Name)
	assert.Equal(t, "desktop", ResolveByPlatform("smartwatch").Name)
}

func TestValidate_TitleLengthAgainstProfiles(t *testing.T) {
	long := &model.PushPayload{Title: strings.Repeat("x", 60), Body: "hi"}
	short := &model.PushPayload{Title: strings.Repeat("x", 25), Body: "hi"}

	for _, browser := range []string{"Safari", "Chrome"} {
		t.Run(browser, func(t *testing.T) {
			profile := Resolve(browser, "")

			res := Validate(long, profile)
			assert.False(t, res.CanSend)
			require.Len(t, res.Issues, 1)
			assert.Contains(t, res.Issues[0], "title length 60")

			res = Validate(short, profile)
			assert.True(t, res.CanSend)
			assert.Empty(t, res.Issues)
		})
	}
}

func TestValidate_RuneCountNotByteCount(t *testing.T) {
	// 28 two-byte runes: 56 bytes but under Safari's 30-character limit.
	payload := &model.PushPayload{Title: strings.Repeat("é", 28), Body: "hi"}
	res := Validate(payload, Resolve("safari", ""))
	assert.True(t, res.CanSend)
}

func TestValidate_DataSizeLimit(t *testing.T) {
	payload := &model.PushPayload{
		Title: "hello",
		Data:  map[string]interface{}{"blob": strings.Repeat("a", 1200)},
	}

	res := Validate(payload, Resolve("safari", ""))
	assert.False(t, res.CanSend)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "data size")

	res = Validate(payload, Resolve("chrome", ""))
	assert.True(t, res.CanSend)
}

func TestValidate_UnsupportedFeaturesWarnOnly(t *testing.T) {
	payload := &model.PushPayload{
		Title:   "hello",
		Image:   "https://cdn.example.com/big.png",
		Vibrate: []int{200, 100, 200},
		Actions: []model.NotificationAction{
			{Action: "open", Title: "Open"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}

	res := Validate(payload, Resolve("safari", ""))
	assert.True(t, res.CanSend, "degradations must not block the send")
	assert.Empty(t, res.Issues)
	assert.Len(t, res.Warnings, 3)
}

func TestValidate_CrossFieldRules(t *testing.T) {
	res := Validate(&model.PushPayload{Title: "t", Renotify: true}, Resolve("chrome", ""))
	assert.False(t, res.CanSend)
	assert.Contains(t, res.Issues[0], "renotify requires a tag")

	res = Validate(&model.PushPayload{Title: "t", Silent: true, Vibrate: []int{100}}, Resolve("chrome", ""))
	assert.False(t, res.CanSend)

	res = Validate(&model.PushPayload{Body: "no title"}, Resolve("chrome", ""))
	assert.False(t, res.CanSend)
	assert.Contains(t, res.Issues[0], "title is required")
}

func TestBuilder_TruncatesWithEllipsis(t *testing.T) {
	b := &Builder{}
	base := &model.PushPayload{
		Title: strings.Repeat("x", 60),
		Body:  strings.Repeat("y", 150),
	}

	out := b.BuildForDevice(base, Resolve("safari", ""))
	assert.Equal(t, 30, len([]rune(out.Title)))
	assert.True(t, strings.HasSuffix(out.Title, "…"))
	assert.Equal(t, 100, len([]rune(out.Body)))
	assert.True(t, strings.HasSuffix(out.Body, "…"))

	// Input untouched.
	assert.Equal(t, 60, len(base.Title))
}

func TestBuilder_TruncationIsRuneSafe(t *testing.T) {
	b := &Builder{}
	base := &model.PushPayload{Title: strings.Repeat("日", 40)}

	out := b.BuildForDevice(base, Resolve("safari", ""))
	runes := []rune(out.Title)
	assert.Equal(t, 30, len(runes))
	assert.Equal(t, '日', runes[0])
	assert.Equal(t, '…', runes[29])
}

func TestBuilder_StripsUnsupportedFeatures(t *testing.T) {
	b := &Builder{}
	base := &model.PushPayload{
		Title:   "sale",
		Image:   "https://cdn.example.com/hero.png",
		Vibrate: []int{200, 100},
		Dir:     "rtl",
		Actions: []model.NotificationAction{
			{Action: "open", Title: "Open"},
			{Action: "later", Title: "Later"},
		},
	}

	out := b.BuildForDevice(base, Resolve("safari", ""))
	assert.Empty(t, out.Image)
	assert.Empty(t, out.Vibrate)
	assert.Empty(t, out.Dir)
	assert.Len(t, out.Actions, 1, "safari keeps only the first action")
	assert.Equal(t, "open", out.Actions[0].Action)

	out = b.BuildForDevice(base, Resolve("chrome", ""))
	assert.Equal(t, base.Image, out.Image)
	assert.Len(t, out.Actions, 2)
}

func TestBuilder_AppliesDefaults(t *testing.T) {
	b := &Builder{DefaultIcon: "/icons/app.png", DefaultBadge: "/icons/badge.png"}

	out := b.BuildForDevice(&model.PushPayload{Title: "t"}, Resolve("chrome", ""))
	assert.Equal(t, "/icons/app.png", out.Icon)
	assert.Equal(t, "/icons/badge.png", out.Badge)

	out = b.BuildForDevice(&model.PushPayload{Title: "t", Icon: "/custom.png"}, Resolve("chrome", ""))
	assert.Equal(t, "/custom.png", out.Icon)
}

func TestBuilder_FitsOversizedData(t *testing.T) {
	b := &Builder{}
	base := &model.PushPayload{
		Title: "t",
		Data: map[string]interface{}{
			"url":  "https://example.com/offer/42",
			"blob": strings.Repeat("a", 1200),
		},
	}

	out := b.BuildForDevice(base, Resolve("safari", ""))
	require.NotNil(t, out.Data)
	assert.Equal(t, base.Data["url"], out.Data["url"])
	assert.NotContains(t, out.Data, "blob")

	// When even the URL alone cannot fit, the data blob goes entirely.
	huge := &model.PushPayload{
		Title: "t",
		Data:  map[string]interface{}{"url": strings.Repeat("u", 2000)},
	}
	out = b.BuildForDevice(huge, Resolve("safari", ""))
	assert.Nil(t, out.Data)
}

func TestBuilder_NeverProducesInvalidPayload(t *testing.T) {
	b := &Builder{}
	base := &model.PushPayload{
		Title:    strings.Repeat("x", 200),
		Body:     strings.Repeat("y", 500),
		Image:    "https://cdn.example.com/a.png",
		Renotify: true,
		Vibrate:  []int{1, 2, 3},
		Data:     map[string]interface{}{"blob": strings.Repeat("z", 5000)},
		Actions: []model.NotificationAction{
			{Action: "a", Title: "A"}, {Action: "b", Title: "B"}, {Action: "c", Title: "C"},
		},
	}

	for _, browser := range []string{"chrome", "firefox", "safari", "edge", "opera"} {
		profile := Resolve(browser, "")
		out := b.BuildForDevice(base, profile)
		res := Validate(out, profile)
		assert.True(t, res.CanSend, "%s: %v", browser, res.Issues)
	}
}
