package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pushmill/push-gateway/internal/dispatch"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/logger"
	"github.com/pushmill/push-gateway/pkg/prom"
)

// DeliveryStore is the slice of the delivery repository recovery needs.
type DeliveryStore interface {
	GetByID(ctx context.Context, id int64) (*model.Delivery, error)
	// MarkSent flips failed -> sent with the final retry count, reporting
	// whether this caller performed the flip.
	MarkSent(ctx context.Context, id int64, retryCount int) (bool, error)
}

// Sender resends a payload; satisfied by *dispatch.Dispatcher.
type Sender interface {
	Send(ctx context.Context, subscriptionID int64, payload *model.PushPayload) dispatch.Result
}

// Locker provides the per-delivery mutual exclusion keys. Satisfied by the
// Redis adapter.
type Locker interface {
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)
	Del(key string) error
}

// RecoveryConfig tunes the background loop. Zero values take the defaults.
type RecoveryConfig struct {
	Interval        time.Duration // time between queue sweeps
	BatchSize       int           // entries per sweep
	LockTTL         time.Duration // per-delivery lock lifetime
	Retention       time.Duration // how long resolved entries are kept
	CleanupInterval time.Duration // time between retention purges
}

func (c *RecoveryConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 6 * time.Hour
	}
}

// RunStats summarizes one sweep of the retry queue.
type RunStats struct {
	Recovered         int `json:"recovered"`
	PermanentlyFailed int `json:"permanently_failed"`
	StillPending      int `json:"still_pending"`
	Skipped           int `json:"skipped"`
}

// RecoveryService drains the dead-letter queue: due entries are resent, and
// the outcome either closes the entry or pushes its deadline further out.
// Multiple instances may run at once; per-delivery locks keep them off each
// other's entries.
type RecoveryService struct {
	store      *Store
	deliveries DeliveryStore
	sender     Sender
	locks      Locker
	cfg        RecoveryConfig
}

func NewRecoveryService(store *Store, deliveries DeliveryStore, sender Sender, locks Locker, cfg RecoveryConfig) *RecoveryService {
	cfg.defaults()
	return &RecoveryService{
		store:      store,
		deliveries: deliveries,
		sender:     sender,
		locks:      locks,
		cfg:        cfg,
	}
}

// Run sweeps the queue on a ticker until the context ends, purging resolved
// entries past retention on a slower cadence.
func (r *RecoveryService) Run(ctx context.Context) {
	sweep := time.NewTicker(r.cfg.Interval)
	defer sweep.Stop()
	cleanup := time.NewTicker(r.cfg.CleanupInterval)
	defer cleanup.Stop()

	logger.Info("recovery loop started",
		"interval", r.cfg.Interval.String(), "batch_size", r.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			logger.Info("recovery loop stopped")
			return
		case <-sweep.C:
			stats, err := r.ProcessRetryQueue(ctx, r.cfg.BatchSize)
			if err != nil {
				logger.Error("recovery sweep failed", "error", err)
				continue
			}
			if stats.Recovered+stats.PermanentlyFailed+stats.StillPending+stats.Skipped > 0 {
				logger.Info("recovery sweep finished",
					"recovered", stats.Recovered,
					"permanently_failed", stats.PermanentlyFailed,
					"still_pending", stats.StillPending,
					"skipped", stats.Skipped)
			}
		case <-cleanup.C:
			purged, err := r.store.Cleanup(ctx, r.cfg.Retention)
			if err != nil {
				logger.Error("dead-letter cleanup failed", "error", err)
				continue
			}
			if purged > 0 {
				logger.Info("dead-letter entries purged", "count", purged)
			}
		}
	}
}

// ProcessRetryQueue runs one sweep: every due entry gets exactly one
// recovery attempt. One entry's failure, or panic, never touches its
// siblings.
func (r *RecoveryService) ProcessRetryQueue(ctx context.Context, limit int) (*RunStats, error) {
	records, err := r.store.GetRetryable(ctx, limit)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{}
	for _, fd := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		switch r.processRecord(ctx, fd) {
		case outcomeRecovered:
			stats.Recovered++
			prom.IncRecoveryOutcome("recovered")
		case outcomePermanent:
			stats.PermanentlyFailed++
			prom.IncRecoveryOutcome("permanently_failed")
		case outcomePending:
			stats.StillPending++
			prom.IncRecoveryOutcome("still_pending")
		case outcomeSkipped:
			stats.Skipped++
		}
	}
	return stats, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeRecovered
	outcomePermanent
	outcomePending
)

func (r *RecoveryService) processRecord(ctx context.Context, fd *model.FailedDelivery) (out outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("recovery attempt panicked",
				"failed_delivery_id", fd.ID, "delivery_id", fd.DeliveryID, "panic", rec)
			out = outcomeSkipped
		}
	}()

	lockKey := fmt.Sprintf("pushgw:recovery:delivery:%d", fd.DeliveryID)
	locked, err := r.locks.SetNX(lockKey, []byte("1"), r.cfg.LockTTL)
	if err != nil {
		logger.Error("recovery lock error", "delivery_id", fd.DeliveryID, "error", err)
		return outcomeSkipped
	}
	if !locked {
		// Another instance owns this delivery right now.
		return outcomeSkipped
	}
	defer func() {
		if err := r.locks.Del(lockKey); err != nil {
			logger.Warn("recovery lock release failed", "delivery_id", fd.DeliveryID, "error", err)
		}
	}()

	delivery, err := r.deliveries.GetByID(ctx, fd.DeliveryID)
	if err != nil || delivery == nil {
		// The delivery row is gone; nothing left to recover.
		logger.Warn("dead-letter entry references missing delivery, resolving",
			"failed_delivery_id", fd.ID, "delivery_id", fd.DeliveryID)
		r.resolve(ctx, fd, model.ResolutionRecovered)
		return outcomeRecovered
	}
	if delivery.Status != model.DeliveryStatusFailed && delivery.Status != model.DeliveryStatusPending {
		// Someone else already walked this delivery forward.
		r.resolve(ctx, fd, model.ResolutionRecovered)
		return outcomeRecovered
	}

	var payload model.PushPayload
	if err := json.Unmarshal([]byte(delivery.Payload), &payload); err != nil {
		logger.Error("dead-letter entry has an unreadable payload snapshot, giving up",
			"failed_delivery_id", fd.ID, "delivery_id", fd.DeliveryID, "error", err)
		r.resolve(ctx, fd, model.ResolutionMaxAttemptsReached)
		return outcomePermanent
	}

	res := r.sender.Send(ctx, fd.SubscriptionID, &payload)
	if res.Success {
		if _, err := r.deliveries.MarkSent(ctx, fd.DeliveryID, fd.AttemptCount+1); err != nil {
			logger.Error("failed to mark recovered delivery sent",
				"delivery_id", fd.DeliveryID, "error", err)
		}
		r.resolve(ctx, fd, model.ResolutionRecovered)
		logger.Info("delivery recovered",
			"delivery_id", fd.DeliveryID,
			"subscription_id", fd.SubscriptionID,
			"recovery_attempt", fd.AttemptCount+1)
		return outcomeRecovered
	}

	if res.ErrorCode == "" {
		// Rejected before any transport attempt: the subscription is gone
		// or inactive, so this entry can never succeed.
		r.resolve(ctx, fd, model.ResolutionMaxAttemptsReached)
		return outcomePermanent
	}

	exhausted, err := r.store.RecordRetryFailure(ctx, fd, res.ErrorCode, res.Reason)
	if err != nil {
		logger.Error("failed to reschedule dead-letter entry",
			"failed_delivery_id", fd.ID, "error", err)
	}
	if exhausted {
		logger.Warn("delivery permanently failed",
			"delivery_id", fd.DeliveryID,
			"subscription_id", fd.SubscriptionID,
			"attempts", fd.AttemptCount,
			"code", fd.ErrorCode)
		return outcomePermanent
	}
	return outcomePending
}

func (r *RecoveryService) resolve(ctx context.Context, fd *model.FailedDelivery, reason string) {
	if _, err := r.store.MarkResolved(ctx, fd.ID, reason); err != nil {
		logger.Error("failed to resolve dead-letter entry",
			"failed_delivery_id", fd.ID, "reason", reason, "error", err)
	}
}
