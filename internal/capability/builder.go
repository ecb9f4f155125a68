package capability

import "github.com/pushmill/push-gateway/internal/model"

const ellipsis = "…"

// Builder adapts a campaign payload to a specific device profile. It always
// produces a sendable payload: unsupported features are stripped and
// over-limit texts truncated rather than rejected. The zero value is usable.
type Builder struct {
	// DefaultIcon and DefaultBadge fill in when the payload carries none.
	DefaultIcon  string
	DefaultBadge string
}

// BuildForDevice returns a copy of base fitted to the profile. The input is
// never mutated, so one campaign payload can fan out to many devices.
func (b *Builder) BuildForDevice(base *model.PushPayload, profile Profile) *model.PushPayload {
	p := base.Clone()

	p.Title = truncateRunes(p.Title, profile.MaxTitleLength)
	p.Body = truncateRunes(p.Body, profile.MaxBodyLength)

	if p.Icon == "" {
		p.Icon = b.DefaultIcon
	}
	if p.Badge == "" && profile.SupportsBadge {
		p.Badge = b.DefaultBadge
	}

	if !profile.SupportsActions {
		p.Actions = nil
	} else if len(p.Actions) > profile.MaxActions {
		p.Actions = p.Actions[:profile.MaxActions]
	}

	if !profile.SupportsImage {
		p.Image = ""
	}
	if !profile.SupportsVibration || p.Silent {
		p.Vibrate = nil
	}
	if !profile.SupportsBadge {
		p.Badge = ""
	}
	if !profile.SupportsTag {
		p.Tag = ""
	}
	if !profile.SupportsRenotify || p.Tag == "" {
		p.Renotify = false
	}
	if !profile.SupportsRequireInteraction {
		p.RequireInteraction = false
	}
	if !profile.SupportsTimestamp {
		p.Timestamp = 0
	}
	if !profile.SupportsDirection {
		p.Dir = ""
	}

	p.Data = fitData(p.Data, profile.MaxDataBytes)
	return &p
}

// truncateRunes cuts s down to limit characters, spending the last one on an
// ellipsis so truncation stays visible to the user.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit == 1 {
		return ellipsis
	}
	return string(runes[:limit-1]) + ellipsis
}

// fitData shrinks an oversized data map instead of failing the build. The
// click URL is the one key the service worker cannot do without, so it is
// kept alone when the full map does not fit.
func fitData(data map[string]interface{}, maxBytes int) map[string]interface{} {
	if len(data) == 0 || maxBytes <= 0 {
		return data
	}
	probe := model.PushPayload{Data: data}
	if probe.DataSize() <= maxBytes {
		return data
	}
	if url, ok := data["url"]; ok {
		reduced := map[string]interface{}{"url": url}
		probe.Data = reduced
		if probe.DataSize() <= maxBytes {
			return reduced
		}
	}
	return nil
}
