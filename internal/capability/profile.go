package capability

import (
	"strconv"
	"strings"
)

// Profile fixes the notification limits a browser/platform enforces. The
// numbers encode real platform constraints: exceeding them does not degrade
// the notification, it kills the delivery.
type Profile struct {
	Name           string `json:"name"`
	MaxTitleLength int    `json:"max_title_length"`
	MaxBodyLength  int    `json:"max_body_length"`
	MaxActions     int    `json:"max_actions"`
	MaxDataBytes   int    `json:"max_data_bytes"`

	SupportsImage              bool `json:"supports_image"`
	SupportsActions            bool `json:"supports_actions"`
	SupportsVibration          bool `json:"supports_vibration"`
	SupportsBadge              bool `json:"supports_badge"`
	SupportsTag                bool `json:"supports_tag"`
	SupportsRenotify           bool `json:"supports_renotify"`
	SupportsRequireInteraction bool `json:"supports_require_interaction"`
	SupportsTimestamp          bool `json:"supports_timestamp"`
	SupportsDirection          bool `json:"supports_direction"`
	SupportsInlineReply        bool `json:"supports_inline_reply"`
}

// browserProfiles is the fixed capability table keyed by lowercase browser
// name. Safari is the restrictive outlier: short texts, one action button,
// no images, no vibration.
var browserProfiles = map[string]Profile{
	"chrome": {
		Name: "chrome", MaxTitleLength: 50, MaxBodyLength: 120, MaxActions: 2, MaxDataBytes: 2048,
		SupportsImage: true, SupportsActions: true, SupportsVibration: true, SupportsBadge: true,
		SupportsTag: true, SupportsRenotify: true, SupportsRequireInteraction: true,
		SupportsTimestamp: true, SupportsDirection: true, SupportsInlineReply: true,
	},
	"firefox": {
		Name: "firefox", MaxTitleLength: 50, MaxBodyLength: 120, MaxActions: 2, MaxDataBytes: 2048,
		SupportsImage: true, SupportsActions: true, SupportsVibration: true, SupportsBadge: true,
		SupportsTag: true, SupportsRenotify: true, SupportsRequireInteraction: true,
		SupportsTimestamp: true, SupportsDirection: true,
	},
	"edge": {
		Name: "edge", MaxTitleLength: 50, MaxBodyLength: 120, MaxActions: 2, MaxDataBytes: 2048,
		SupportsImage: true, SupportsActions: true, SupportsVibration: true, SupportsBadge: true,
		SupportsTag: true, SupportsRenotify: true, SupportsRequireInteraction: true,
		SupportsTimestamp: true, SupportsDirection: true, SupportsInlineReply: true,
	},
	"opera": {
		Name: "opera", MaxTitleLength: 50, MaxBodyLength: 120, MaxActions: 2, MaxDataBytes: 2048,
		SupportsImage: true, SupportsActions: true, SupportsVibration: true, SupportsBadge: true,
		SupportsTag: true, SupportsRenotify: true, SupportsRequireInteraction: true,
		SupportsTimestamp: true, SupportsDirection: true,
	},
	"samsung internet": {
		Name: "samsung internet", MaxTitleLength: 50, MaxBodyLength: 120, MaxActions: 2, MaxDataBytes: 2048,
		SupportsImage: true, SupportsActions: true, SupportsVibration: true, SupportsBadge: true,
		SupportsTag: true, SupportsRenotify: true, SupportsRequireInteraction: true,
		SupportsTimestamp: true, SupportsDirection: true,
	},
	"safari": {
		Name: "safari", MaxTitleLength: 30, MaxBodyLength: 100, MaxActions: 1, MaxDataBytes: 1024,
		SupportsBadge: true, SupportsTag: true, SupportsTimestamp: true,
		SupportsActions: true,
	},
}

// platformProfiles backs resolution when the browser is unknown. iOS pushes
// always land in Safari's engine, so it inherits the Safari limits.
var platformProfiles = map[string]Profile{
	"ios": {
		Name: "ios", MaxTitleLength: 30, MaxBodyLength: 100, MaxActions: 1, MaxDataBytes: 1024,
		SupportsBadge: true, SupportsTag: true, SupportsTimestamp: true,
		SupportsActions: true,
	},
	"android": {
		Name: "android", MaxTitleLength: 50, MaxBodyLength: 120, MaxActions: 2, MaxDataBytes: 2048,
		SupportsImage: true, SupportsActions: true, SupportsVibration: true, SupportsBadge: true,
		SupportsTag: true, SupportsRenotify: true, SupportsRequireInteraction: true,
		SupportsTimestamp: true, SupportsDirection: true, SupportsInlineReply: true,
	},
	"desktop": {
		Name: "desktop", MaxTitleLength: 50, MaxBodyLength: 120, MaxActions: 2, MaxDataBytes: 2048,
		SupportsImage: true, SupportsActions: true, SupportsVibration: true, SupportsBadge: true,
		SupportsTag: true, SupportsRenotify: true, SupportsRequireInteraction: true,
		SupportsTimestamp: true, SupportsDirection: true,
	},
	"tablet": {
		Name: "tablet", MaxTitleLength: 50, MaxBodyLength: 120, MaxActions: 2, MaxDataBytes: 2048,
		SupportsImage: true, SupportsActions: true, SupportsVibration: true, SupportsBadge: true,
		SupportsTag: true, SupportsRenotify: true, SupportsRequireInteraction: true,
		SupportsTimestamp: true, SupportsDirection: true,
	},
}

// Resolve maps a browser identity onto its capability profile. Lookup order:
// exact case-insensitive name, then substring match, then the desktop
// default. A parseable version further restricts the profile: majors below
// 50 never supported images, and action buttons arrived in 44.
func Resolve(browserName, browserVersion string) Profile {
	name := strings.ToLower(strings.TrimSpace(browserName))

	prof, ok := browserProfiles[name]
	if !ok {
		for key, p := range browserProfiles {
			if name != "" && (strings.Contains(name, key) || strings.Contains(key, name)) {
				prof = p
				ok = true
				break
			}
		}
	}
	if !ok {
		prof = platformProfiles["desktop"]
	}

	if major, err := majorVersion(browserVersion); err == nil {
		if major < 50 {
			prof.SupportsImage = false
		}
		if major < 44 {
			prof.SupportsActions = false
		}
	}
	return prof
}

// ResolveByPlatform is the fallback when no browser identity exists at all.
func ResolveByPlatform(platform string) Profile {
	p := strings.ToLower(strings.TrimSpace(platform))
	if prof, ok := platformProfiles[p]; ok {
		return prof
	}
	return platformProfiles["desktop"]
}

func majorVersion(version string) (int, error) {
	v := strings.TrimSpace(version)
	if v == "" {
		return 0, strconv.ErrSyntax
	}
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
	}
	return strconv.Atoi(v)
}
