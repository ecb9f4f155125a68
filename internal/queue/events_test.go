package queue

import (
	"context"
	"testing"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackingPublisher_PublishDeliveryEvent(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	pub := NewTrackingPublisher(adapter, "test:events:deliveries", 0)
	ctx := context.Background()

	sentAt := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	require.NoError(t, pub.PublishDeliveryEvent(ctx, model.DeliveryEvent{
		CampaignID:     1,
		DeliveryID:     10,
		SubscriptionID: 100,
		Outcome:        model.EventOutcomeSent,
		At:             sentAt,
	}))
	require.NoError(t, pub.PublishDeliveryEvent(ctx, model.DeliveryEvent{
		CampaignID:     1,
		DeliveryID:     11,
		SubscriptionID: 101,
		Outcome:        model.EventOutcomeFailed,
		Code:           "NETWORK",
	}))

	total, err := adapter.XLen("test:events:deliveries")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	msgs, err := adapter.XRead("test:events:deliveries", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	first, err := DecodeDeliveryEvent(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.CampaignID)
	assert.Equal(t, int64(10), first.DeliveryID)
	assert.Equal(t, int64(100), first.SubscriptionID)
	assert.Equal(t, model.EventOutcomeSent, first.Outcome)
	assert.Empty(t, first.Code)
	assert.WithinDuration(t, sentAt, first.At, time.Second)

	second, err := DecodeDeliveryEvent(msgs[1])
	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeFailed, second.Outcome)
	assert.Equal(t, "NETWORK", second.Code)
	assert.WithinDuration(t, time.Now(), second.At, 5*time.Second, "missing timestamp is stamped at publish")
}

func TestTrackingPublisher_DefaultStream(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	pub := NewTrackingPublisher(adapter, "", 0)
	require.NoError(t, pub.PublishDeliveryEvent(context.Background(), model.DeliveryEvent{
		CampaignID:     2,
		DeliveryID:     20,
		SubscriptionID: 200,
		Outcome:        model.EventOutcomeSkipped,
		Code:           "quiet_hours",
	}))

	total, err := adapter.XLen(DeliveryEventStream)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestDecodeDeliveryEvent_MissingFields(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	_, err := adapter.XAdd("test:events:broken", map[string]interface{}{
		"outcome": "sent",
	})
	require.NoError(t, err)

	msgs, err := adapter.XRead("test:events:broken", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	_, err = DecodeDeliveryEvent(msgs[0])
	assert.ErrorContains(t, err, "campaign_id")
}
