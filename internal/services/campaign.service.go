package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/repository"
	"github.com/pushmill/push-gateway/pkg/logger"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrCampaignDeleted  = errors.New("campaign is deleted")
	ErrCampaignPaused   = errors.New("campaign is paused")
	ErrCampaignFinished = errors.New("campaign already ran")
	ErrCampaignInFlight = errors.New("campaign send already in progress")
)

type CampaignStore interface {
	Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error)
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	SetPaused(ctx context.Context, id int64, paused bool) (bool, error)
	SoftDelete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error)
}

// JobQueue enqueues campaign jobs for the dispatcher fleet.
type JobQueue interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// CampaignService owns the campaign CRUD surface and the trigger path. The
// send itself runs in the dispatcher; triggering only enqueues a job naming
// the campaign, and the status machine plus the dispatcher's run lock keep a
// twice-enqueued campaign from sending twice.
type CampaignService struct {
	campaigns CampaignStore
	jobs      JobQueue
}

func NewCampaignService(campaigns CampaignStore, jobs JobQueue) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		jobs:      jobs,
	}
}

// Create stores a draft campaign, or a scheduled one when ScheduledAt is set.
// A schedule already in the past is accepted; the scheduler just picks it up
// on its next sweep.
func (s *CampaignService) Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.campaigns.Create(ctx, req)
}

func (s *CampaignService) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	return c, nil
}

func (s *CampaignService) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	return s.campaigns.List(ctx, f)
}

// Trigger enqueues a send job for the campaign. The checks here only reject
// requests that can never run; the dispatcher re-validates against the live
// row when the job is consumed, so a campaign paused between trigger and
// pickup still does not send.
func (s *CampaignService) Trigger(ctx context.Context, id int64, triggeredBy string) error {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return s.mapNotFound(err)
	}
	if err := triggerable(c); err != nil {
		return err
	}
	if triggeredBy == "" {
		triggeredBy = model.JobTriggerAPI
	}

	job := model.CampaignJob{
		JobID:       uuid.NewString(),
		CampaignID:  c.ID,
		TriggeredBy: triggeredBy,
		EnqueuedAt:  time.Now(),
	}
	msgID, err := s.jobs.PublishJSON(ctx, job, map[string]string{"type": "campaign"})
	if err != nil {
		return err
	}
	logger.Info("campaign job enqueued",
		"job_id", job.JobID, "campaign_id", c.ID, "message_id", msgID, "triggered_by", triggeredBy)
	return nil
}

// Pause stops future sends of the campaign without touching its status.
// Pausing mid-send does not recall recipients already dispatched.
func (s *CampaignService) Pause(ctx context.Context, id int64) error {
	return s.setPaused(ctx, id, true)
}

// Resume lifts a pause. The campaign does not send until triggered again.
func (s *CampaignService) Resume(ctx context.Context, id int64) error {
	return s.setPaused(ctx, id, false)
}

// Delete soft-deletes the campaign. Deleted campaigns never send again and
// disappear from default listings, but their rows and delivery history stay.
func (s *CampaignService) Delete(ctx context.Context, id int64) error {
	if _, err := s.campaigns.GetByID(ctx, id); err != nil {
		return s.mapNotFound(err)
	}
	_, err := s.campaigns.SoftDelete(ctx, id)
	return err
}

func (s *CampaignService) setPaused(ctx context.Context, id int64, paused bool) error {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return s.mapNotFound(err)
	}
	if c.DeletedAt != nil {
		return ErrCampaignDeleted
	}
	_, err = s.campaigns.SetPaused(ctx, id, paused)
	return err
}

// triggerable rejects trigger requests no later validation could save.
func triggerable(c *model.Campaign) error {
	switch {
	case c.DeletedAt != nil:
		return ErrCampaignDeleted
	case c.Paused:
		return ErrCampaignPaused
	case c.Status == model.CampaignStatusCompleted:
		return ErrCampaignFinished
	case c.Status == model.CampaignStatusSending:
		return ErrCampaignInFlight
	}
	return nil
}

func (s *CampaignService) mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrCampaignNotFound
	}
	return err
}
