package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/redis"
)

// DeliveryEventStream is the default stream carrying per-recipient campaign
// outcomes for downstream analytics consumers.
const DeliveryEventStream = "events:deliveries"

// TrackingPublisher appends delivery outcomes to a capped Redis Stream. It is
// fire-and-forget from the sender's point of view: a full or unreachable
// stream never blocks a campaign run.
type TrackingPublisher struct {
	adapter redis.RedisAdapter
	stream  string
	maxLen  int64
}

func NewTrackingPublisher(adapter redis.RedisAdapter, stream string, maxLen int64) *TrackingPublisher {
	if stream == "" {
		stream = DeliveryEventStream
	}
	return &TrackingPublisher{
		adapter: adapter,
		stream:  stream,
		maxLen:  maxLen,
	}
}

func (p *TrackingPublisher) PublishDeliveryEvent(ctx context.Context, ev model.DeliveryEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	values := map[string]interface{}{
		"campaign_id":     ev.CampaignID,
		"delivery_id":     ev.DeliveryID,
		"subscription_id": ev.SubscriptionID,
		"outcome":         ev.Outcome,
		"code":            ev.Code,
		"at":              at.UnixMilli(),
	}

	if _, err := p.adapter.XAdd(p.stream, values); err != nil {
		return fmt.Errorf("failed to publish delivery event: %w", err)
	}

	if p.maxLen > 0 {
		// Trim errors only cost stream length, not events.
		_ = p.adapter.XTrimApprox(p.stream, p.maxLen)
	}

	return nil
}

// DecodeDeliveryEvent rebuilds an event from its stream entry.
func DecodeDeliveryEvent(msg redis.StreamMessage) (model.DeliveryEvent, error) {
	var ev model.DeliveryEvent

	str := func(key string) string {
		if v, ok := msg.Values[key].(string); ok {
			return v
		}
		return ""
	}
	num := func(key string) (int64, error) {
		raw, ok := msg.Values[key].(string)
		if !ok {
			return 0, fmt.Errorf("delivery event field %q missing", key)
		}
		return strconv.ParseInt(raw, 10, 64)
	}

	var err error
	if ev.CampaignID, err = num("campaign_id"); err != nil {
		return ev, err
	}
	if ev.DeliveryID, err = num("delivery_id"); err != nil {
		return ev, err
	}
	if ev.SubscriptionID, err = num("subscription_id"); err != nil {
		return ev, err
	}

	ev.Outcome = str("outcome")
	ev.Code = str("code")
	if ms, err := num("at"); err == nil {
		ev.At = time.UnixMilli(ms)
	}

	return ev, nil
}
