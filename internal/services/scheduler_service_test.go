package services

import (
	"context"
	"testing"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduleStore struct {
	due []*model.Campaign
	err error
}

func (s *fakeScheduleStore) ListScheduledDue(ctx context.Context, before time.Time, limit int) ([]*model.Campaign, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.due) > limit {
		return s.due[:limit], nil
	}
	return s.due, nil
}

type recordingTriggerer struct {
	triggered []int64
	origins   []string
	failWith  map[int64]error
}

func (t *recordingTriggerer) Trigger(ctx context.Context, id int64, triggeredBy string) error {
	if err, ok := t.failWith[id]; ok {
		return err
	}
	t.triggered = append(t.triggered, id)
	t.origins = append(t.origins, triggeredBy)
	return nil
}

func TestSchedulerService_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueues every due campaign with the scheduler origin", func(t *testing.T) {
		store := &fakeScheduleStore{due: []*model.Campaign{
			{ID: 1, Status: model.CampaignStatusScheduled},
			{ID: 2, Status: model.CampaignStatusScheduled},
		}}
		trig := &recordingTriggerer{}
		scheduler := NewSchedulerService(store, trig, SchedulerConfig{})

		enqueued, err := scheduler.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, enqueued)
		assert.Equal(t, []int64{1, 2}, trig.triggered)
		assert.Equal(t, []string{model.JobTriggerScheduler, model.JobTriggerScheduler}, trig.origins)
	})

	t.Run("one failed trigger does not block the rest", func(t *testing.T) {
		store := &fakeScheduleStore{due: []*model.Campaign{
			{ID: 1}, {ID: 2}, {ID: 3},
		}}
		trig := &recordingTriggerer{failWith: map[int64]error{2: ErrCampaignInFlight}}
		scheduler := NewSchedulerService(store, trig, SchedulerConfig{})

		enqueued, err := scheduler.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, enqueued)
		assert.Equal(t, []int64{1, 3}, trig.triggered)
	})

	t.Run("respects the batch size", func(t *testing.T) {
		store := &fakeScheduleStore{due: []*model.Campaign{{ID: 1}, {ID: 2}, {ID: 3}}}
		trig := &recordingTriggerer{}
		scheduler := NewSchedulerService(store, trig, SchedulerConfig{BatchSize: 2})

		enqueued, err := scheduler.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, enqueued)
	})

	t.Run("nothing due", func(t *testing.T) {
		scheduler := NewSchedulerService(&fakeScheduleStore{}, &recordingTriggerer{}, SchedulerConfig{})

		enqueued, err := scheduler.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, enqueued)
	})
}
