package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCampaignService struct {
	mock.Mock
}

func (m *MockCampaignService) Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignService) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignService) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Campaign), args.Get(1).(int64), args.Error(2)
}

func (m *MockCampaignService) Trigger(ctx context.Context, id int64, triggeredBy string) error {
	args := m.Called(ctx, id, triggeredBy)
	return args.Error(0)
}

func (m *MockCampaignService) Pause(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCampaignService) Resume(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCampaignService) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestCampaignHandler_Create(t *testing.T) {
	t.Run("creates a draft", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		reqBody := createCampaignRequest{
			Name:     "spring launch",
			Payload:  model.PushPayload{Title: "Spring is here", Body: "20% off"},
			Segments: []string{"news"},
		}
		bodyBytes, _ := json.Marshal(reqBody)

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.CampaignCreateRequest) bool {
			return p.Name == "spring launch" && p.ScheduledAt == nil
		})).Return(&model.Campaign{ID: 3, Name: "spring launch", Status: model.CampaignStatusDraft}, nil)

		ctx := setupTestContext("POST", "/campaigns", bodyBytes)
		handler.Create(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response model.Campaign
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, model.CampaignStatusDraft, response.Status)

		svc.AssertExpectations(t)
	})

	t.Run("parses scheduled_at", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		when := "2026-09-01T08:00:00Z"
		bodyBytes, _ := json.Marshal(createCampaignRequest{
			Name:        "scheduled",
			Payload:     model.PushPayload{Title: "t"},
			ScheduledAt: &when,
		})

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.CampaignCreateRequest) bool {
			return p.ScheduledAt != nil && p.ScheduledAt.UTC().Hour() == 8
		})).Return(&model.Campaign{ID: 4, Status: model.CampaignStatusScheduled}, nil)

		ctx := setupTestContext("POST", "/campaigns", bodyBytes)
		handler.Create(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("rejects a malformed scheduled_at before touching the service", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		when := "tomorrow morning"
		bodyBytes, _ := json.Marshal(createCampaignRequest{
			Name:        "bad schedule",
			Payload:     model.PushPayload{Title: "t"},
			ScheduledAt: &when,
		})

		ctx := setupTestContext("POST", "/campaigns", bodyBytes)
		handler.Create(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestCampaignHandler_Trigger(t *testing.T) {
	t.Run("queues and returns 202", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		svc.On("Trigger", mock.Anything, int64(3), model.JobTriggerAPI).Return(nil)

		ctx := setupTestContext("POST", "/campaigns/3/trigger", nil)
		ctx.SetUserValue("id", "3")
		handler.Trigger(ctx)

		assert.Equal(t, 202, ctx.Response.StatusCode())

		var response map[string]string
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, "queued", response["status"])

		svc.AssertExpectations(t)
	})

	t.Run("state conflicts map to 409", func(t *testing.T) {
		for _, sentinel := range []error{
			services.ErrCampaignDeleted,
			services.ErrCampaignPaused,
			services.ErrCampaignFinished,
			services.ErrCampaignInFlight,
		} {
			svc := new(MockCampaignService)
			handler := NewCampaignHandler(svc)

			svc.On("Trigger", mock.Anything, int64(3), model.JobTriggerAPI).Return(sentinel)

			ctx := setupTestContext("POST", "/campaigns/3/trigger", nil)
			ctx.SetUserValue("id", "3")
			handler.Trigger(ctx)

			assert.Equal(t, 409, ctx.Response.StatusCode(), sentinel.Error())
		}
	})

	t.Run("unknown campaign maps to 404", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		svc.On("Trigger", mock.Anything, int64(99), model.JobTriggerAPI).Return(services.ErrCampaignNotFound)

		ctx := setupTestContext("POST", "/campaigns/99/trigger", nil)
		ctx.SetUserValue("id", "99")
		handler.Trigger(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

func TestCampaignHandler_PauseResumeDelete(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)

	svc.On("Pause", mock.Anything, int64(3)).Return(nil)
	svc.On("Resume", mock.Anything, int64(3)).Return(nil)
	svc.On("Delete", mock.Anything, int64(3)).Return(nil)

	ctx := setupTestContext("POST", "/campaigns/3/pause", nil)
	ctx.SetUserValue("id", "3")
	handler.Pause(ctx)
	assert.Equal(t, 204, ctx.Response.StatusCode())

	ctx = setupTestContext("POST", "/campaigns/3/resume", nil)
	ctx.SetUserValue("id", "3")
	handler.Resume(ctx)
	assert.Equal(t, 204, ctx.Response.StatusCode())

	ctx = setupTestContext("DELETE", "/campaigns/3", nil)
	ctx.SetUserValue("id", "3")
	handler.Delete(ctx)
	assert.Equal(t, 204, ctx.Response.StatusCode())

	svc.AssertExpectations(t)
}

func TestCampaignHandler_List(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)

	svc.On("List", mock.Anything, mock.MatchedBy(func(f model.CampaignFilter) bool {
		return len(f.Statuses) == 1 &&
			f.Statuses[0] == model.CampaignStatusSending &&
			f.IncludeDeleted &&
			f.Limit == 5
	})).Return([]*model.Campaign{{ID: 1}, {ID: 2}}, int64(2), nil)

	ctx := setupTestContext("GET", "/campaigns?status=sending&include_deleted=true&limit=5", nil)
	handler.List(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var response campaignListResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, int64(2), response.Total)
	assert.Len(t, response.Items, 2)

	svc.AssertExpectations(t)
}
