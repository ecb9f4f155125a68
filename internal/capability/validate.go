package capability

import (
	"fmt"
	"unicode/utf8"

	"github.com/pushmill/push-gateway/internal/model"
)

// ValidationResult separates delivery-killing problems from degradations.
// Issues mean the payload would be rejected or truncated by the platform in
// a user-visible way; warnings mean a feature will be silently dropped.
type ValidationResult struct {
	CanSend  bool     `json:"can_send"`
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *ValidationResult) issue(format string, args ...interface{}) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
	r.CanSend = false
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks a payload against a capability profile without modifying
// it. Length limits are counted in characters, not bytes, so multi-byte
// titles are not penalized.
func Validate(payload *model.PushPayload, profile Profile) ValidationResult {
	res := ValidationResult{CanSend: true}
	if payload == nil {
		res.issue("payload is empty")
		return res
	}

	if payload.Title == "" {
		res.issue("title is required")
	} else if n := utf8.RuneCountInString(payload.Title); n > profile.MaxTitleLength {
		res.issue("title length %d exceeds %s limit of %d", n, profile.Name, profile.MaxTitleLength)
	}

	if n := utf8.RuneCountInString(payload.Body); n > profile.MaxBodyLength {
		res.issue("body length %d exceeds %s limit of %d", n, profile.Name, profile.MaxBodyLength)
	}

	if size := payload.DataSize(); size > profile.MaxDataBytes {
		res.issue("data size %dB exceeds %s limit of %dB", size, profile.Name, profile.MaxDataBytes)
	}

	switch {
	case len(payload.Actions) > 0 && !profile.SupportsActions:
		res.warn("%s does not support action buttons, %d will be dropped", profile.Name, len(payload.Actions))
	case len(payload.Actions) > profile.MaxActions:
		res.warn("%s supports %d actions, %d will be dropped",
			profile.Name, profile.MaxActions, len(payload.Actions)-profile.MaxActions)
	}

	if payload.Image != "" && !profile.SupportsImage {
		res.warn("%s does not support images, image will be dropped", profile.Name)
	}
	if len(payload.Vibrate) > 0 && !profile.SupportsVibration {
		res.warn("%s does not support vibration patterns", profile.Name)
	}
	if payload.Renotify && !profile.SupportsRenotify {
		res.warn("%s does not support renotify", profile.Name)
	}
	if payload.RequireInteraction && !profile.SupportsRequireInteraction {
		res.warn("%s does not support require_interaction", profile.Name)
	}

	// Cross-field rules from the Notification API itself, independent of
	// the target profile.
	if payload.Renotify && payload.Tag == "" {
		res.issue("renotify requires a tag")
	}
	if payload.Silent && len(payload.Vibrate) > 0 {
		res.issue("silent notifications cannot carry a vibration pattern")
	}

	return res
}
