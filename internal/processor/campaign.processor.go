package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/pushmill/push-gateway/internal/campaign"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/queue"
	"github.com/pushmill/push-gateway/pkg/logger"
)

// CampaignRunner runs one campaign end to end. Satisfied by
// *campaign.Orchestrator.
type CampaignRunner interface {
	Send(ctx context.Context, campaignID int64) (campaign.Result, error)
}

// CampaignJobProcessor consumes campaign trigger jobs. The queue is
// at-least-once, so every decision here is about which failures are worth a
// redelivery: transient run errors nack, anything terminal acks.
type CampaignJobProcessor struct {
	runner      CampaignRunner
	idempotency *IdempotencyService
}

func NewCampaignJobProcessor(runner CampaignRunner, idempotency *IdempotencyService) *CampaignJobProcessor {
	return &CampaignJobProcessor{
		runner:      runner,
		idempotency: idempotency,
	}
}

func (p *CampaignJobProcessor) GetType() string {
	return "campaign"
}

// Process runs the campaign named by the job under the per-campaign run lock.
func (p *CampaignJobProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	// Step 1: parse the job
	var job model.CampaignJob
	if err := json.Unmarshal(queueMessage.Data, &job); err != nil {
		logger.Error("Failed to unmarshal campaign job", "message_id", queueMessage.ID, "error", err)
		return err // keeps failing until the DLQ takes it
	}
	if job.CampaignID <= 0 {
		logger.Error("Campaign job without a campaign id", "message_id", queueMessage.ID)
		return nil // nothing to retry
	}

	campaignID := strconv.FormatInt(job.CampaignID, 10)

	// Step 2: single-flight the run across dispatcher instances
	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, campaignID)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			logger.Info("Campaign already ran, dropping duplicate job", "campaign_id", campaignID)
			return nil
		}
		if errors.Is(err, ErrMaxRetriesExceeded) {
			logger.Error("Campaign run retry budget exhausted", "campaign_id", campaignID)
			return nil // ack; the campaign stays in `sending` for operators
		}
		if errors.Is(err, ErrLockAcquireFailed) {
			return errors.New("campaign locked by another dispatcher")
		}
		logger.Error("Failed to acquire run lock", "campaign_id", campaignID, "error", err)
		return err
	}

	defer func() {
		if procCtx.lockAcquired {
			p.idempotency.ReleaseLock(ctx, procCtx)
		}
	}()

	logger.Info("Running campaign job",
		"job_id", job.JobID,
		"campaign_id", campaignID,
		"triggered_by", job.TriggeredBy,
		"retry_count", procCtx.RetryCount,
		"is_retry", procCtx.IsRetry)

	// Step 3: fan out
	res, err := p.runner.Send(ctx, job.CampaignID)
	if err != nil {
		if errors.Is(err, campaign.ErrNotRunnable) {
			// Paused, deleted, missing, or already ran. No marker is set: a
			// later legitimate trigger (say, after unpausing) must still run.
			logger.Warn("Campaign not runnable, dropping job", "campaign_id", campaignID, "error", err)
			return nil
		}

		logger.Error("Campaign run failed", "campaign_id", campaignID, "error", err)
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("Failed to mark run failure", "campaign_id", campaignID, "error", markErr)
		}
		return err // nack so the queue redelivers
	}

	// Step 4: seal the run
	logger.Info("Campaign run finished",
		"campaign_id", campaignID,
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped)

	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		// The campaign completed; a missing marker only risks a duplicate
		// job hitting the status machine
		logger.Error("Failed to mark run success", "campaign_id", campaignID, "error", markErr)
	}

	return nil
}
