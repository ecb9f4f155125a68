package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCampaignStore struct {
	byID    map[int64]*model.Campaign
	created []*model.Campaign
	paused  map[int64]bool
	deleted []int64
}

func newFakeCampaignStore(campaigns ...*model.Campaign) *fakeCampaignStore {
	s := &fakeCampaignStore{
		byID:   make(map[int64]*model.Campaign),
		paused: make(map[int64]bool),
	}
	for _, c := range campaigns {
		s.byID[c.ID] = c
	}
	return s
}

func (s *fakeCampaignStore) Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error) {
	c := &model.Campaign{
		ID:          int64(len(s.created) + 1),
		Name:        req.Name,
		Payload:     req.Payload,
		Segments:    req.Segments,
		Status:      model.CampaignStatusDraft,
		ScheduledAt: req.ScheduledAt,
	}
	if req.ScheduledAt != nil {
		c.Status = model.CampaignStatusScheduled
	}
	s.created = append(s.created, c)
	s.byID[c.ID] = c
	return c, nil
}

func (s *fakeCampaignStore) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (s *fakeCampaignStore) SetPaused(ctx context.Context, id int64, paused bool) (bool, error) {
	s.paused[id] = paused
	return true, nil
}

func (s *fakeCampaignStore) SoftDelete(ctx context.Context, id int64) (bool, error) {
	s.deleted = append(s.deleted, id)
	return true, nil
}

func (s *fakeCampaignStore) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	var out []*model.Campaign
	for _, c := range s.byID {
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

type fakeJobQueue struct {
	published []model.CampaignJob
	metadata  []map[string]string
	err       error
}

func (q *fakeJobQueue) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	var job model.CampaignJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return "", err
	}
	q.published = append(q.published, job)
	q.metadata = append(q.metadata, metadata)
	return "1-0", nil
}

func TestCampaignService_Create(t *testing.T) {
	store := newFakeCampaignStore()
	service := NewCampaignService(store, &fakeJobQueue{})
	ctx := context.Background()

	t.Run("creates a draft", func(t *testing.T) {
		c, err := service.Create(ctx, model.CampaignCreateRequest{
			Name:     "spring-sale",
			Payload:  model.PushPayload{Title: "Spring sale", Body: "Everything half off"},
			Segments: []string{"news"},
		})
		require.NoError(t, err)
		assert.Equal(t, model.CampaignStatusDraft, c.Status)
	})

	t.Run("rejects a payload without a title", func(t *testing.T) {
		_, err := service.Create(ctx, model.CampaignCreateRequest{
			Name:    "no-title",
			Payload: model.PushPayload{Body: "body only"},
		})
		assert.Error(t, err)
	})
}

func TestCampaignService_Trigger(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueues a job for a draft campaign", func(t *testing.T) {
		store := newFakeCampaignStore(&model.Campaign{ID: 42, Status: model.CampaignStatusDraft})
		jobs := &fakeJobQueue{}
		service := NewCampaignService(store, jobs)

		require.NoError(t, service.Trigger(ctx, 42, ""))

		require.Len(t, jobs.published, 1)
		job := jobs.published[0]
		assert.NotEmpty(t, job.JobID)
		assert.Equal(t, int64(42), job.CampaignID)
		assert.Equal(t, model.JobTriggerAPI, job.TriggeredBy)
		assert.WithinDuration(t, time.Now(), job.EnqueuedAt, 5*time.Second)
		assert.Equal(t, "campaign", jobs.metadata[0]["type"])
	})

	t.Run("keeps the scheduler's trigger origin", func(t *testing.T) {
		store := newFakeCampaignStore(&model.Campaign{ID: 7, Status: model.CampaignStatusScheduled})
		jobs := &fakeJobQueue{}
		service := NewCampaignService(store, jobs)

		require.NoError(t, service.Trigger(ctx, 7, model.JobTriggerScheduler))
		require.Len(t, jobs.published, 1)
		assert.Equal(t, model.JobTriggerScheduler, jobs.published[0].TriggeredBy)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		service := NewCampaignService(newFakeCampaignStore(), &fakeJobQueue{})
		err := service.Trigger(ctx, 999, "")
		assert.ErrorIs(t, err, ErrCampaignNotFound)
	})

	t.Run("terminal and blocked states never enqueue", func(t *testing.T) {
		now := time.Now()
		cases := []struct {
			name     string
			campaign *model.Campaign
			want     error
		}{
			{"deleted", &model.Campaign{ID: 1, Status: model.CampaignStatusDraft, DeletedAt: &now}, ErrCampaignDeleted},
			{"paused", &model.Campaign{ID: 1, Status: model.CampaignStatusDraft, Paused: true}, ErrCampaignPaused},
			{"completed", &model.Campaign{ID: 1, Status: model.CampaignStatusCompleted}, ErrCampaignFinished},
			{"mid-send", &model.Campaign{ID: 1, Status: model.CampaignStatusSending}, ErrCampaignInFlight},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				jobs := &fakeJobQueue{}
				service := NewCampaignService(newFakeCampaignStore(tc.campaign), jobs)

				err := service.Trigger(ctx, 1, "")
				assert.ErrorIs(t, err, tc.want)
				assert.Empty(t, jobs.published)
			})
		}
	})
}

func TestCampaignService_PauseResume(t *testing.T) {
	ctx := context.Background()

	store := newFakeCampaignStore(&model.Campaign{ID: 10, Status: model.CampaignStatusDraft})
	service := NewCampaignService(store, &fakeJobQueue{})

	require.NoError(t, service.Pause(ctx, 10))
	assert.True(t, store.paused[10])

	require.NoError(t, service.Resume(ctx, 10))
	assert.False(t, store.paused[10])

	t.Run("deleted campaigns are immutable", func(t *testing.T) {
		now := time.Now()
		store := newFakeCampaignStore(&model.Campaign{ID: 11, DeletedAt: &now})
		service := NewCampaignService(store, &fakeJobQueue{})

		err := service.Pause(ctx, 11)
		assert.ErrorIs(t, err, ErrCampaignDeleted)
	})
}

func TestCampaignService_Delete(t *testing.T) {
	ctx := context.Background()

	store := newFakeCampaignStore(&model.Campaign{ID: 20, Status: model.CampaignStatusDraft})
	service := NewCampaignService(store, &fakeJobQueue{})

	require.NoError(t, service.Delete(ctx, 20))
	assert.Equal(t, []int64{20}, store.deleted)

	err := service.Delete(ctx, 404)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}
