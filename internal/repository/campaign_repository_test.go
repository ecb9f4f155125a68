package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createCampaign(t *testing.T, repo *CampaignRepository, name string, segments []string, scheduledAt *time.Time) *model.Campaign {
	t.Helper()
	c, err := repo.Create(context.Background(), model.CampaignCreateRequest{
		Name: name,
		Payload: model.PushPayload{
			Title: "Spring sale",
			Body:  "Everything half off today",
		},
		Segments:    segments,
		ScheduledAt: scheduledAt,
	})
	require.NoError(t, err)
	return c
}

func TestCampaignRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	t.Run("without a schedule the campaign is a draft", func(t *testing.T) {
		c := createCampaign(t, repo, "spring-sale", []string{"news", "offers"}, nil)
		assert.Equal(t, model.CampaignStatusDraft, c.Status)
		assert.Nil(t, c.ScheduledAt)

		got, err := repo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "spring-sale", got.Name)
		assert.Equal(t, "Spring sale", got.Payload.Title)
		assert.Equal(t, "Everything half off today", got.Payload.Body)
		assert.ElementsMatch(t, []string{"news", "offers"}, got.Segments)
	})

	t.Run("a schedule files it as scheduled", func(t *testing.T) {
		at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		c := createCampaign(t, repo, "launch", nil, &at)
		assert.Equal(t, model.CampaignStatusScheduled, c.Status)

		got, err := repo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ScheduledAt)
		assert.WithinDuration(t, at, *got.ScheduledAt, time.Second)
		assert.Empty(t, got.Segments)
	})

	t.Run("missing campaign", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 99999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCampaignRepository_TransitionStatus(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	t.Run("draft to sending stamps the start time", func(t *testing.T) {
		c := createCampaign(t, repo, "one", nil, nil)

		ok, err := repo.TransitionStatus(ctx, c.ID, model.CampaignStatusDraft, model.CampaignStatusSending)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CampaignStatusSending, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.WithinDuration(t, time.Now(), *got.StartedAt, 5*time.Second)
	})

	t.Run("a second sender loses the race", func(t *testing.T) {
		c := createCampaign(t, repo, "two", nil, nil)

		ok, err := repo.TransitionStatus(ctx, c.ID, model.CampaignStatusDraft, model.CampaignStatusSending)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.TransitionStatus(ctx, c.ID, model.CampaignStatusDraft, model.CampaignStatusSending)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stale expectation does not move the row", func(t *testing.T) {
		c := createCampaign(t, repo, "three", nil, nil)

		ok, err := repo.TransitionStatus(ctx, c.ID, model.CampaignStatusScheduled, model.CampaignStatusSending)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CampaignStatusDraft, got.Status)
	})

	t.Run("paused campaigns refuse to move", func(t *testing.T) {
		c := createCampaign(t, repo, "four", nil, nil)
		_, err := repo.SetPaused(ctx, c.ID, true)
		require.NoError(t, err)

		ok, err := repo.TransitionStatus(ctx, c.ID, model.CampaignStatusDraft, model.CampaignStatusSending)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("deleted campaigns refuse to move", func(t *testing.T) {
		c := createCampaign(t, repo, "five", nil, nil)
		_, err := repo.SoftDelete(ctx, c.ID)
		require.NoError(t, err)

		ok, err := repo.TransitionStatus(ctx, c.ID, model.CampaignStatusDraft, model.CampaignStatusSending)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCampaignRepository_Complete(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	c := createCampaign(t, repo, "spring-sale", nil, nil)
	ok, err := repo.TransitionStatus(ctx, c.ID, model.CampaignStatusDraft, model.CampaignStatusSending)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Complete(ctx, c.ID, 5, 2, 1))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, got.Status)
	assert.Equal(t, 5, got.SentCount)
	assert.Equal(t, 2, got.FailedCount)
	assert.Equal(t, 1, got.SkipCount)
	assert.NotNil(t, got.CompletedAt)

	t.Run("only a sending campaign completes", func(t *testing.T) {
		draft := createCampaign(t, repo, "still-draft", nil, nil)
		err := repo.Complete(ctx, draft.ID, 0, 0, 0)
		assert.ErrorContains(t, err, "not sending")
	})
}

func TestCampaignRepository_SoftDelete(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	kept := createCampaign(t, repo, "kept", nil, nil)
	gone := createCampaign(t, repo, "gone", nil, nil)

	ok, err := repo.SoftDelete(ctx, gone.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SoftDelete(ctx, gone.ID)
	require.NoError(t, err)
	assert.False(t, ok, "deleting twice is a no-op")

	ok, err = repo.SetPaused(ctx, gone.ID, true)
	require.NoError(t, err)
	assert.False(t, ok, "deleted campaigns are immutable")

	list, total, err := repo.List(ctx, model.CampaignFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)

	list, total, err = repo.List(ctx, model.CampaignFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	t.Run("history stays queryable by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, gone.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.DeletedAt)
	})
}

func TestCampaignRepository_ListScheduledDue(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	earlier := time.Now().Add(-2 * time.Hour)
	later := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	second := createCampaign(t, repo, "second", nil, &later)
	first := createCampaign(t, repo, "first", nil, &earlier)
	createCampaign(t, repo, "future", nil, &future)
	createCampaign(t, repo, "draft", nil, nil)

	paused := createCampaign(t, repo, "paused", nil, &earlier)
	_, err := repo.SetPaused(ctx, paused.ID, true)
	require.NoError(t, err)

	due, err := repo.ListScheduledDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, first.ID, due[0].ID, "oldest schedule first")
	assert.Equal(t, second.ID, due[1].ID)
}

func TestCampaignRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	createCampaign(t, repo, "a", nil, nil)
	createCampaign(t, repo, "b", nil, nil)
	at := time.Now().Add(time.Hour)
	createCampaign(t, repo, "c", nil, &at)

	list, total, err := repo.List(ctx, model.CampaignFilter{
		Statuses: []model.CampaignStatus{model.CampaignStatusDraft},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	list, total, err = repo.List(ctx, model.CampaignFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 2)
}
