package campaign

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pushmill/push-gateway/internal/dispatch"
	"github.com/pushmill/push-gateway/internal/gate"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/repository"
	"github.com/pushmill/push-gateway/internal/retry"
	"github.com/pushmill/push-gateway/pkg/logger"
	"github.com/pushmill/push-gateway/pkg/prom"
)

// CampaignStore is the slice of the campaign repository the orchestrator
// needs. TransitionStatus is a conditional update; moving into `sending`
// stamps StartedAt.
type CampaignStore interface {
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	TransitionStatus(ctx context.Context, id int64, from, to model.CampaignStatus) (bool, error)
	// Complete flips sending -> completed and records the aggregate counts.
	Complete(ctx context.Context, id int64, sent, failed, skipped int) error
}

// AudienceStore pages through the active subscriptions a campaign targets,
// ascending by id. An empty segment list means every active subscription.
type AudienceStore interface {
	ListActiveIDs(ctx context.Context, segments []string, afterID int64, limit int) ([]int64, error)
}

// DeliveryStore creates and settles per-recipient delivery rows. MarkSent
// and MarkFailed are conditional on the current status so the recovery loop
// and a concurrent orchestrator cannot double-settle one row.
type DeliveryStore interface {
	Create(ctx context.Context, d *model.Delivery) (*model.Delivery, error)
	MarkSent(ctx context.Context, id int64, retryCount int) (bool, error)
	MarkFailed(ctx context.Context, id int64, retryCount int, reason string) (bool, error)
}

// Gatekeeper decides whether a recipient may be contacted right now.
// Satisfied by *gate.Gate.
type Gatekeeper interface {
	CanSend(ctx context.Context, subscriptionID int64) (gate.Decision, error)
}

// Sender pushes one payload and reports the classified outcome. Satisfied by
// *dispatch.Dispatcher.
type Sender interface {
	SendTracked(ctx context.Context, deliveryID, subscriptionID int64, payload *model.PushPayload) dispatch.Result
}

// EventSink receives per-recipient outcome events for the tracking stream.
// Publishing is best-effort; a sink error never fails the recipient.
type EventSink interface {
	PublishDeliveryEvent(ctx context.Context, ev model.DeliveryEvent) error
}

// ErrNotRunnable marks trigger failures that retrying cannot fix: the
// campaign is missing, deleted, paused, or already past the sendable states.
var ErrNotRunnable = errors.New("campaign is not runnable")

// Config tunes the fan-out. Zero values take the defaults.
type Config struct {
	Concurrency int // recipients pushed in parallel
	PageSize    int // audience rows fetched per query
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
}

// Result aggregates one campaign send.
type Result struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Orchestrator runs a campaign end to end: audience load, per-recipient gate
// check, dispatch, delivery settlement, tracking events. One send invocation
// is synchronous and not resumable; a crash mid-run leaves the campaign in
// `sending`.
type Orchestrator struct {
	campaigns  CampaignStore
	audience   AudienceStore
	deliveries DeliveryStore
	gate       Gatekeeper
	sender     Sender
	events     EventSink
	cfg        Config
}

func New(campaigns CampaignStore, audience AudienceStore, deliveries DeliveryStore, gk Gatekeeper, sender Sender, events EventSink, cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{
		campaigns:  campaigns,
		audience:   audience,
		deliveries: deliveries,
		gate:       gk,
		sender:     sender,
		events:     events,
		cfg:        cfg,
	}
}

// Send runs the campaign against its full audience and returns the aggregate
// counts. One recipient's failure never cancels its siblings; a cancelled
// context stops new work but waits for in-flight recipients.
func (o *Orchestrator) Send(ctx context.Context, campaignID int64) (Result, error) {
	var res Result

	c, err := o.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return res, errors.Wrapf(ErrNotRunnable, "campaign %d not found", campaignID)
		}
		return res, errors.Wrap(err, "failed to load campaign")
	}
	if c.DeletedAt != nil {
		return res, errors.Wrapf(ErrNotRunnable, "campaign %d is deleted", campaignID)
	}
	if c.Paused {
		return res, errors.Wrapf(ErrNotRunnable, "campaign %d is paused", campaignID)
	}
	if err := o.start(ctx, c); err != nil {
		return res, err
	}

	logger.Info("campaign send started",
		"campaign_id", c.ID, "name", c.Name, "segments", c.Segments)

	snapshot, err := json.Marshal(c.Payload)
	if err != nil {
		return res, errors.Wrap(err, "failed to snapshot campaign payload")
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, o.cfg.Concurrency)
	)
	tally := func(outcome string) {
		mu.Lock()
		switch outcome {
		case model.EventOutcomeSent:
			res.Sent++
		case model.EventOutcomeFailed:
			res.Failed++
		case model.EventOutcomeSkipped:
			res.Skipped++
		}
		mu.Unlock()
		prom.IncCampaignRecipient(outcome)
	}

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return res, err
		}
		ids, err := o.audience.ListActiveIDs(ctx, c.Segments, afterID, o.cfg.PageSize)
		if err != nil {
			wg.Wait()
			return res, errors.Wrap(err, "failed to load campaign audience")
		}
		if len(ids) == 0 {
			break
		}
		afterID = ids[len(ids)-1]

		for _, subID := range ids {
			wg.Add(1)
			sem <- struct{}{}
			go func(subID int64) {
				defer wg.Done()
				defer func() { <-sem }()
				tally(o.processRecipient(ctx, c, subID, snapshot))
			}(subID)
		}
	}
	wg.Wait()

	if err := o.campaigns.Complete(ctx, c.ID, res.Sent, res.Failed, res.Skipped); err != nil {
		return res, errors.Wrap(err, "failed to complete campaign")
	}
	logger.Info("campaign send finished",
		"campaign_id", c.ID,
		"sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

// start moves the campaign into `sending` from whichever sendable state it
// is in. The conditional update means exactly one caller wins a concurrent
// trigger.
func (o *Orchestrator) start(ctx context.Context, c *model.Campaign) error {
	for _, from := range []model.CampaignStatus{model.CampaignStatusDraft, model.CampaignStatusScheduled} {
		ok, err := o.campaigns.TransitionStatus(ctx, c.ID, from, model.CampaignStatusSending)
		if err != nil {
			return errors.Wrap(err, "failed to start campaign")
		}
		if ok {
			c.Status = model.CampaignStatusSending
			return nil
		}
	}
	return errors.Wrapf(ErrNotRunnable, "campaign %d is not in a sendable state (%s)", c.ID, c.Status)
}

// processRecipient runs one recipient start to finish and returns the
// outcome. Panics are contained here so a poisoned recipient cannot take the
// batch down.
func (o *Orchestrator) processRecipient(ctx context.Context, c *model.Campaign, subID int64, snapshot []byte) (outcome string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("recipient send panicked",
				"campaign_id", c.ID, "subscription_id", subID, "panic", rec)
			outcome = model.EventOutcomeFailed
		}
	}()

	d, err := o.deliveries.Create(ctx, &model.Delivery{
		CampaignID:     &c.ID,
		SubscriptionID: subID,
		Status:         model.DeliveryStatusPending,
		Payload:        string(snapshot),
	})
	if err != nil {
		logger.Error("failed to create delivery row",
			"campaign_id", c.ID, "subscription_id", subID, "error", err)
		return model.EventOutcomeFailed
	}

	decision, err := o.gate.CanSend(ctx, subID)
	if err != nil {
		logger.Error("gate check failed",
			"campaign_id", c.ID, "subscription_id", subID, "error", err)
		o.settleFailed(ctx, d.ID, 0, "gate check failed")
		o.publish(ctx, c.ID, d.ID, subID, model.EventOutcomeFailed, string(retry.CodeUnknown))
		return model.EventOutcomeFailed
	}
	if !decision.Allowed {
		// The pending row stays as the audit record; nothing else happens
		// for this recipient.
		prom.IncGateBlocked(decision.Reason)
		o.publish(ctx, c.ID, d.ID, subID, model.EventOutcomeSkipped, decision.Reason)
		return model.EventOutcomeSkipped
	}

	sendRes := o.sender.SendTracked(ctx, d.ID, subID, &c.Payload)
	if sendRes.Success {
		if _, err := o.deliveries.MarkSent(ctx, d.ID, sendRes.Attempts); err != nil {
			logger.Error("failed to mark delivery sent", "delivery_id", d.ID, "error", err)
		}
		o.publish(ctx, c.ID, d.ID, subID, model.EventOutcomeSent, "")
		return model.EventOutcomeSent
	}

	o.settleFailed(ctx, d.ID, sendRes.Attempts, sendRes.Reason)
	o.publish(ctx, c.ID, d.ID, subID, model.EventOutcomeFailed, string(sendRes.ErrorCode))
	return model.EventOutcomeFailed
}

func (o *Orchestrator) settleFailed(ctx context.Context, deliveryID int64, attempts int, reason string) {
	if _, err := o.deliveries.MarkFailed(ctx, deliveryID, attempts, reason); err != nil {
		logger.Error("failed to mark delivery failed", "delivery_id", deliveryID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, campaignID, deliveryID, subID int64, outcome, code string) {
	if o.events == nil {
		return
	}
	ev := model.DeliveryEvent{
		CampaignID:     campaignID,
		DeliveryID:     deliveryID,
		SubscriptionID: subID,
		Outcome:        outcome,
		Code:           code,
		At:             time.Now(),
	}
	if err := o.events.PublishDeliveryEvent(ctx, ev); err != nil {
		logger.Warn("failed to publish delivery event",
			"campaign_id", campaignID, "delivery_id", deliveryID, "error", err)
	}
}
