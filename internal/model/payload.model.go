package model

import "encoding/json"

// NotificationAction is one button rendered on a notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// PushPayload is the notification body handed to the push transport. Fields
// mirror the Notification API options; the capability layer trims them per
// target browser before serialization.
type PushPayload struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon,omitempty"`
	Image              string                 `json:"image,omitempty"`
	Badge              string                 `json:"badge,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
	Actions            []NotificationAction   `json:"actions,omitempty"`
	Vibrate            []int                  `json:"vibrate,omitempty"`
	Renotify           bool                   `json:"renotify,omitempty"`
	RequireInteraction bool                   `json:"requireInteraction,omitempty"`
	Timestamp          int64                  `json:"timestamp,omitempty"`
	Tag                string                 `json:"tag,omitempty"`
	Silent             bool                   `json:"silent,omitempty"`
	Dir                string                 `json:"dir,omitempty"` // auto | ltr | rtl
}

// DataSize reports the serialized byte size of the free-form data blob, used
// for capability limit checks. A payload without data has size zero.
func (p PushPayload) DataSize() int {
	if len(p.Data) == 0 {
		return 0
	}
	raw, err := json.Marshal(p.Data)
	if err != nil {
		return 0
	}
	return len(raw)
}

// Clone returns a deep copy safe to mutate during capability adaptation.
func (p PushPayload) Clone() PushPayload {
	out := p
	if p.Data != nil {
		out.Data = make(map[string]interface{}, len(p.Data))
		for k, v := range p.Data {
			out.Data[k] = v
		}
	}
	if p.Actions != nil {
		out.Actions = make([]NotificationAction, len(p.Actions))
		copy(out.Actions, p.Actions)
	}
	if p.Vibrate != nil {
		out.Vibrate = make([]int, len(p.Vibrate))
		copy(out.Vibrate, p.Vibrate)
	}
	return out
}
