package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pushmill/push-gateway/internal/model"
)

// MaxPayloadBytes is the largest payload the client will hand to the push
// service. The encrypted record is capped at 4096 bytes and encryption
// overhead eats 103 of them.
const MaxPayloadBytes = 4096 - 103

// Config tunes the push client. Zero values fall back to sane defaults.
type Config struct {
	// TTL is how long, in seconds, the push service keeps an undelivered
	// message before dropping it.
	TTL int
	// Urgency maps to the Web Push urgency header.
	Urgency string
	// Timeout bounds one request to the push service.
	Timeout time.Duration
	// HTTPClient overrides the transport, used by tests and the local mock.
	HTTPClient webpush.HTTPClient
}

const (
	defaultTTL     = 24 * 60 * 60
	defaultTimeout = 30 * time.Second
)

// Client delivers encrypted payloads to browser push services. It is safe
// for concurrent use; the VAPID identity is re-read from the credential
// store on every send so rotation takes effect without a restart.
type Client struct {
	creds   *CredentialStore
	ttl     int
	urgency webpush.Urgency
	http    webpush.HTTPClient
}

func NewClient(creds *CredentialStore, cfg Config) *Client {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	urgency := webpush.Urgency(cfg.Urgency)
	switch urgency {
	case webpush.UrgencyVeryLow, webpush.UrgencyLow, webpush.UrgencyNormal, webpush.UrgencyHigh:
	default:
		urgency = webpush.UrgencyNormal
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{creds: creds, ttl: ttl, urgency: urgency, http: httpClient}
}

// Send encrypts payload against the subscription's keys and posts it to the
// subscription's push service. A nil return means the push service accepted
// the message, not that the device displayed it.
func (c *Client) Send(ctx context.Context, sub *model.Subscription, payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return &Error{StatusCode: 413, Body: "payload exceeds web push size limit"}
	}

	keys := c.creds.Active()
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      c.http,
		Subscriber:      keys.Subscriber,
		VAPIDPublicKey:  keys.PublicKey,
		VAPIDPrivateKey: keys.PrivateKey,
		TTL:             c.ttl,
		Urgency:         c.urgency,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &Error{StatusCode: resp.StatusCode, Body: string(body)}
}
