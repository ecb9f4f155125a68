package services

import (
	"strings"
	"unicode/utf8"
)

// maxUserAgentLength bounds what we persist; browsers do not send UA strings
// anywhere near this long, so anything beyond it is garbage or abuse.
const maxUserAgentLength = 512

// deviceIdentity is the best-effort parse of a registration User-Agent.
// Fields are empty when the string gave no usable signal.
type deviceIdentity struct {
	BrowserName    string // chrome | firefox | edge | opera | samsung internet | safari
	BrowserVersion string // major version, digits only
	Platform       string // ios | android | tablet | desktop
}

// browser tokens in detection order. Order matters: every Chromium UA also
// contains "Chrome" and "Safari", so the derivative browsers must be ruled
// out before Chrome, and Chrome before Safari.
var browserTokens = []struct {
	token string
	name  string
}{
	{"edg/", "edge"},
	{"edge/", "edge"},
	{"opr/", "opera"},
	{"opera", "opera"},
	{"samsungbrowser/", "samsung internet"},
	{"firefox/", "firefox"},
	{"fxios/", "firefox"},
	{"crios/", "chrome"},
	{"chrome/", "chrome"},
	{"safari/", "safari"},
}

// parseUserAgent sniffs browser and platform out of a raw User-Agent header.
// It is deliberately forgiving: an unrecognized string yields an empty
// identity and the capability resolver falls back to desktop defaults.
func parseUserAgent(ua string) deviceIdentity {
	var id deviceIdentity
	if ua == "" {
		return id
	}
	lower := strings.ToLower(ua)

	for _, b := range browserTokens {
		idx := strings.Index(lower, b.token)
		if idx < 0 {
			continue
		}
		id.BrowserName = b.name
		id.BrowserVersion = majorVersionAt(lower, idx+len(b.token))
		break
	}
	// Safari does not put its version after the Safari/ token; the real
	// number rides in a separate "Version/" field.
	if id.BrowserName == "safari" {
		if idx := strings.Index(lower, "version/"); idx >= 0 {
			id.BrowserVersion = majorVersionAt(lower, idx+len("version/"))
		}
	}

	switch {
	case strings.Contains(lower, "ipad"):
		id.Platform = "tablet"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipod"):
		id.Platform = "ios"
	case strings.Contains(lower, "android"):
		// Android tablets omit the Mobile token.
		if strings.Contains(lower, "mobile") {
			id.Platform = "android"
		} else {
			id.Platform = "tablet"
		}
	case strings.Contains(lower, "windows"),
		strings.Contains(lower, "macintosh"),
		strings.Contains(lower, "linux"),
		strings.Contains(lower, "cros"):
		id.Platform = "desktop"
	}
	return id
}

// majorVersionAt reads the leading digit run starting at pos, stopping at the
// first dot or non-digit.
func majorVersionAt(s string, pos int) string {
	end := pos
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[pos:end]
}

// truncateUserAgent trims overly long user agents without splitting a
// multi-byte character.
func truncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= maxUserAgentLength {
		return ua
	}
	runes := []rune(ua)
	return string(runes[:maxUserAgentLength])
}
