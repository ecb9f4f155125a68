package services

import (
	"context"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/logger"
)

// ScheduledCampaignStore lists campaigns whose schedule has come due.
// Paused and deleted rows never come back from it.
type ScheduledCampaignStore interface {
	ListScheduledDue(ctx context.Context, before time.Time, limit int) ([]*model.Campaign, error)
}

// campaignTriggerer enqueues one campaign run. Satisfied by *CampaignService.
type campaignTriggerer interface {
	Trigger(ctx context.Context, id int64, triggeredBy string) error
}

// SchedulerConfig tunes the sweep loop. Zero values take the defaults.
type SchedulerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func (c *SchedulerConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
}

// SchedulerService turns due schedules into queued campaign jobs. A campaign
// stays `scheduled` until a dispatcher starts its run, so a row picked up
// between sweeps can be enqueued twice; the run lock and the status machine
// drop the duplicate on the consuming side.
type SchedulerService struct {
	campaigns ScheduledCampaignStore
	trigger   campaignTriggerer
	cfg       SchedulerConfig
}

func NewSchedulerService(campaigns ScheduledCampaignStore, trigger campaignTriggerer, cfg SchedulerConfig) *SchedulerService {
	cfg.defaults()
	return &SchedulerService{
		campaigns: campaigns,
		trigger:   trigger,
		cfg:       cfg,
	}
}

// Run sweeps on a ticker until the context ends.
func (s *SchedulerService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	logger.Info("scheduler loop started",
		"poll_interval", s.cfg.PollInterval.String(), "batch_size", s.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler loop stopped")
			return
		case <-ticker.C:
			enqueued, err := s.Sweep(ctx)
			if err != nil {
				logger.Error("scheduler sweep failed", "error", err)
				continue
			}
			if enqueued > 0 {
				logger.Info("scheduler sweep enqueued campaigns", "count", enqueued)
			}
		}
	}
}

// Sweep enqueues every due campaign once and reports how many jobs went out.
// One campaign's trigger failure never blocks the rest of the batch.
func (s *SchedulerService) Sweep(ctx context.Context) (int, error) {
	due, err := s.campaigns.ListScheduledDue(ctx, time.Now(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, c := range due {
		if err := s.trigger.Trigger(ctx, c.ID, model.JobTriggerScheduler); err != nil {
			// InFlight means a dispatcher beat this sweep to the row.
			logger.Warn("failed to trigger scheduled campaign",
				"campaign_id", c.ID, "error", err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}
