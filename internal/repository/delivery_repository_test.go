package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createDelivery(t *testing.T, repo *DeliveryRepository, subID int64) *model.Delivery {
	t.Helper()
	d, err := repo.Create(context.Background(), &model.Delivery{
		SubscriptionID: subID,
		Payload:        `{"title":"hello","body":"world"}`,
	})
	require.NoError(t, err)
	return d
}

func TestDeliveryRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryRepository(db)
	ctx := context.Background()

	campaignID := int64(5)
	d, err := repo.Create(ctx, &model.Delivery{
		CampaignID:     &campaignID,
		SubscriptionID: 1,
		Payload:        `{"title":"hi"}`,
	})
	require.NoError(t, err)
	assert.NotZero(t, d.ID)
	assert.Equal(t, model.DeliveryStatusPending, d.Status, "status defaults to pending")
	assert.Equal(t, int64(5), *d.CampaignID)

	got, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, `{"title":"hi"}`, got.Payload)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeliveryRepository_MarkSent(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryRepository(db)
	ctx := context.Background()

	t.Run("pending settles as sent", func(t *testing.T) {
		d := createDelivery(t, repo, 1)

		ok, err := repo.MarkSent(ctx, d.ID, 2)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryStatusSent, got.Status)
		assert.Equal(t, 2, got.RetryCount)
		assert.NotNil(t, got.SentAt)
	})

	t.Run("second settle loses", func(t *testing.T) {
		d := createDelivery(t, repo, 1)
		ok, err := repo.MarkSent(ctx, d.ID, 1)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.MarkSent(ctx, d.ID, 5)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.RetryCount, "the losing settle changes nothing")
	})

	t.Run("failed recovers to sent", func(t *testing.T) {
		d := createDelivery(t, repo, 1)
		ok, err := repo.MarkFailed(ctx, d.ID, 3, "connection refused")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.MarkSent(ctx, d.ID, 4)
		require.NoError(t, err)
		assert.True(t, ok, "the recovery loop settles failed deliveries as sent")

		got, err := repo.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryStatusSent, got.Status)
	})
}

func TestDeliveryRepository_MarkFailed(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryRepository(db)
	ctx := context.Background()

	d := createDelivery(t, repo, 1)
	ok, err := repo.MarkFailed(ctx, d.ID, 3, "status 503")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusFailed, got.Status)
	assert.Equal(t, "status 503", got.FailureReason)
	assert.NotNil(t, got.FailedAt)

	t.Run("sent rows never rewind to failed", func(t *testing.T) {
		d := createDelivery(t, repo, 2)
		ok, err := repo.MarkSent(ctx, d.ID, 1)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.MarkFailed(ctx, d.ID, 1, "late failure")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDeliveryRepository_AdvanceStatus(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryRepository(db)
	ctx := context.Background()

	t.Run("sent walks forward through tracking statuses", func(t *testing.T) {
		d := createDelivery(t, repo, 1)
		_, err := repo.MarkSent(ctx, d.ID, 1)
		require.NoError(t, err)

		ok, err := repo.AdvanceStatus(ctx, d.ID, model.DeliveryStatusDelivered)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.AdvanceStatus(ctx, d.ID, model.DeliveryStatusOpened)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.AdvanceStatus(ctx, d.ID, model.DeliveryStatusClicked)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryStatusClicked, got.Status)
		assert.NotNil(t, got.DeliveredAt)
		assert.NotNil(t, got.OpenedAt)
		assert.NotNil(t, got.ClickedAt)
	})

	t.Run("duplicate events are dropped", func(t *testing.T) {
		d := createDelivery(t, repo, 1)
		_, err := repo.MarkSent(ctx, d.ID, 1)
		require.NoError(t, err)

		ok, err := repo.AdvanceStatus(ctx, d.ID, model.DeliveryStatusDelivered)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.AdvanceStatus(ctx, d.ID, model.DeliveryStatusDelivered)
		require.NoError(t, err)
		assert.False(t, ok, "a second delivered event is a no-op")
	})

	t.Run("late events never rewind", func(t *testing.T) {
		d := createDelivery(t, repo, 1)
		_, err := repo.MarkSent(ctx, d.ID, 1)
		require.NoError(t, err)

		ok, err := repo.AdvanceStatus(ctx, d.ID, model.DeliveryStatusClicked)
		require.NoError(t, err)
		require.True(t, ok, "clicked can arrive without a delivered event first")

		ok, err = repo.AdvanceStatus(ctx, d.ID, model.DeliveryStatusDelivered)
		require.NoError(t, err)
		assert.False(t, ok, "delivered after clicked would rewind")
	})

	t.Run("pending rows see no tracking events", func(t *testing.T) {
		d := createDelivery(t, repo, 1)
		ok, err := repo.AdvanceStatus(ctx, d.ID, model.DeliveryStatusDelivered)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDeliveryRepository_CountSentSince(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryRepository(db)
	ctx := context.Background()

	subID := int64(77)
	for i := 0; i < 3; i++ {
		d := createDelivery(t, repo, subID)
		_, err := repo.MarkSent(ctx, d.ID, 1)
		require.NoError(t, err)
	}
	// A pending and a failed delivery never count.
	createDelivery(t, repo, subID)
	failed := createDelivery(t, repo, subID)
	_, err := repo.MarkFailed(ctx, failed.ID, 1, "nope")
	require.NoError(t, err)

	count, err := repo.CountSentSince(ctx, subID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = repo.CountSentSince(ctx, subID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count, "cutoff in the future matches nothing")
}

func TestDeliveryRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryRepository(db)
	ctx := context.Background()

	campaignID := int64(3)
	for i := 0; i < 4; i++ {
		_, err := repo.Create(ctx, &model.Delivery{
			CampaignID:     &campaignID,
			SubscriptionID: int64(i + 1),
			Payload:        `{"title":"x"}`,
		})
		require.NoError(t, err)
	}

	t.Run("filter by campaign", func(t *testing.T) {
		deliveries, total, err := repo.List(ctx, model.DeliveryFilter{CampaignID: &campaignID})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, deliveries, 4)
	})

	t.Run("filter by status", func(t *testing.T) {
		deliveries, total, err := repo.List(ctx, model.DeliveryFilter{
			Statuses: []model.DeliveryStatus{model.DeliveryStatusPending},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, deliveries, 4)
	})

	t.Run("pagination", func(t *testing.T) {
		deliveries, total, err := repo.List(ctx, model.DeliveryFilter{
			CampaignID: &campaignID,
			Limit:      2,
			Offset:     3,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, deliveries, 1)
	})
}
