package fixtures

import (
	"time"

	"github.com/pushmill/push-gateway/internal/model"
)

const (
	UserAgentChrome  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	UserAgentFirefox = "Mozilla/5.0 (X11; Linux x86_64; rv:122.0) Gecko/20100101 Firefox/122.0"
	UserAgentSafari  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15"
	UserAgentEdge    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	UserAgentAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Mobile Safari/537.36"
	UserAgentUnknown = "curl/8.4.0"
)

// Key material is a syntactically valid but throwaway P-256 pair; the mock
// transport never decrypts, it only checks the fields are present.
const (
	TestP256dhKey = "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM"
	TestAuthKey   = "tBHItJI5svbpez7KI4CCXg"
)

func NewSubscriptionCreateRequest(endpoint, userAgent string, segments ...string) model.SubscriptionCreateRequest {
	return model.SubscriptionCreateRequest{
		Endpoint:  endpoint,
		P256dhKey: TestP256dhKey,
		AuthKey:   TestAuthKey,
		UserAgent: userAgent,
		Segments:  segments,
	}
}

func SimplePayload(title, body string) model.PushPayload {
	return model.PushPayload{
		Title: title,
		Body:  body,
		Icon:  "https://cdn.example.com/icon.png",
		Data:  map[string]interface{}{"url": "https://example.com/landing"},
	}
}

func RichPayload() model.PushPayload {
	return model.PushPayload{
		Title: "Flash sale",
		Body:  "Everything 20% off for the next hour",
		Icon:  "https://cdn.example.com/icon.png",
		Image: "https://cdn.example.com/banner.jpg",
		Badge: "https://cdn.example.com/badge.png",
		Tag:   "sale-2026",
		Actions: []model.NotificationAction{
			{Action: "open", Title: "Shop now"},
			{Action: "dismiss", Title: "Not today"},
		},
		Vibrate:            []int{200, 100, 200},
		RequireInteraction: true,
		Data:               map[string]interface{}{"campaign": "flash-sale"},
	}
}

func NewCampaignCreateRequest(name string, segments ...string) model.CampaignCreateRequest {
	return model.CampaignCreateRequest{
		Name:     name,
		Payload:  SimplePayload(name, "fixture campaign body"),
		Segments: segments,
	}
}

func ScheduledCampaignCreateRequest(name string, at time.Time) model.CampaignCreateRequest {
	req := NewCampaignCreateRequest(name)
	req.ScheduledAt = &at
	return req
}

var (
	ValidEndpoints = []string{
		"https://fcm.googleapis.com/fcm/send/cOeKep4rQlk",
		"https://updates.push.services.mozilla.com/wpush/v2/gAAAAABk",
		"https://web.push.apple.com/QGZwc2hNZXNzYWdl",
		"https://wns2-par02p.notify.windows.com/w/?token=AwYAAAA",
	}

	InvalidEndpoints = []string{
		"",
		"   ",
		"not-a-url",
	}
)

func SubscriptionFilterBySegment(segment string) model.SubscriptionFilter {
	return model.SubscriptionFilter{
		Segment: &segment,
		Limit:   50,
	}
}

func SubscriptionFilterByStatus(statuses ...model.SubscriptionStatus) model.SubscriptionFilter {
	return model.SubscriptionFilter{
		Statuses: statuses,
		Limit:    50,
	}
}

func DeliveryFilterByCampaign(campaignID int64) model.DeliveryFilter {
	return model.DeliveryFilter{
		CampaignID: &campaignID,
		Limit:      50,
	}
}

func DeliveryFilterByTimeRange(campaignID int64, from, to time.Time) model.DeliveryFilter {
	return model.DeliveryFilter{
		CampaignID: &campaignID,
		From:       &from,
		To:         &to,
		Limit:      50,
	}
}
