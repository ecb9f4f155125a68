package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pushmill/push-gateway/pkg/logger"
	"github.com/pushmill/push-gateway/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("campaign run already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire run lock")
	ErrMaxRetriesExceeded = errors.New("maximum run retries exceeded")
)

type IdempotencyConfig struct {
	// LockTTL bounds one campaign run. A dispatcher that dies mid-run frees
	// the campaign for another consumer after this long.
	LockTTL time.Duration

	// ProcessedTTL is how long a finished run shields the campaign from
	// duplicate jobs.
	ProcessedTTL time.Duration

	MaxRetries int

	RetryKeyPrefix string

	LockKeyPrefix string

	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            10 * time.Minute,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "jobs:retry:",
		LockKeyPrefix:      "jobs:lock:",
		ProcessedKeyPrefix: "jobs:processed:",
	}
}

// IdempotencyService keeps campaign runs single-flight across dispatcher
// instances. The queue is at-least-once, so the same trigger job can arrive
// twice; the Redis lock makes sure only one consumer fans a campaign out, and
// the processed marker swallows late duplicates.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type ProcessingContext struct {
	CampaignID   string
	RetryCount   int
	IsRetry      bool
	lockAcquired bool
	service      *IdempotencyService
}

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, campaignID string) (*ProcessingContext, error) {
	// Step 1: a finished run leaves a long-term marker
	processedKey := s.config.ProcessedKeyPrefix + campaignID
	exists, err := s.redis.Exist(processedKey)
	if err != nil {
		logger.Warn("Failed to check processed marker", "campaign_id", campaignID, "error", err)
		// A failed check must not block the run; a duplicate send is caught
		// by the campaign status machine anyway
	} else if exists > 0 {
		return nil, ErrAlreadyProcessed
	}

	// Step 2: how many times this run has failed before
	retryKey := s.config.RetryKeyPrefix + campaignID
	retryCount := 0
	if raw, err := s.redis.Get(retryKey); err == nil && len(raw) > 0 {
		if n, err := strconv.Atoi(string(raw)); err == nil {
			retryCount = n
		}
	}

	// Step 3: give up once the budget is burnt
	if retryCount >= s.config.MaxRetries {
		logger.Error("Campaign run out of retries", "campaign_id", campaignID, "retry_count", retryCount)
		return nil, fmt.Errorf("%w: campaign_id=%s, retries=%d", ErrMaxRetriesExceeded, campaignID, retryCount)
	}

	// Step 4: the short-term lock keeps the run single-flight
	lockKey := s.config.LockKeyPrefix + campaignID
	lockValue := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))

	acquired, err := s.redis.SetNX(lockKey, lockValue, s.config.LockTTL)
	if err != nil {
		logger.Error("Failed to acquire run lock", "campaign_id", campaignID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}

	if !acquired {
		logger.Info("Campaign locked by another dispatcher", "campaign_id", campaignID)
		return nil, ErrLockAcquireFailed
	}

	logger.Info("Run lock acquired",
		"campaign_id", campaignID,
		"retry_count", retryCount,
		"lock_ttl", s.config.LockTTL)

	return &ProcessingContext{
		CampaignID:   campaignID,
		RetryCount:   retryCount,
		IsRetry:      retryCount > 0,
		lockAcquired: true,
		service:      s,
	}, nil
}

func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	campaignID := pc.CampaignID

	processedKey := s.config.ProcessedKeyPrefix + campaignID
	if err := s.redis.Set(processedKey, []byte("1"), s.config.ProcessedTTL); err != nil {
		logger.Error("Failed to set processed marker", "campaign_id", campaignID, "error", err)
		return fmt.Errorf("failed to mark as processed: %w", err)
	}

	s.cleanup(ctx, pc)

	logger.Info("Campaign run marked processed",
		"campaign_id", campaignID,
		"retry_count", pc.RetryCount)

	return nil
}

func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	campaignID := pc.CampaignID

	// The retry counter outlives the lock so the budget survives redeliveries
	retryKey := s.config.RetryKeyPrefix + campaignID
	newRetryCount := pc.RetryCount + 1
	if err := s.redis.Set(retryKey, []byte(strconv.Itoa(newRetryCount)), s.config.ProcessedTTL); err != nil {
		logger.Error("Failed to bump retry counter", "campaign_id", campaignID, "error", err)
	}

	lockKey := s.config.LockKeyPrefix + campaignID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to remove run lock", "campaign_id", campaignID, "error", err)
	}

	logger.Warn("Campaign run failed, queue will redeliver",
		"campaign_id", campaignID,
		"retry_count", newRetryCount,
		"max_retries", s.config.MaxRetries,
		"reason", reason)

	return nil
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}

	lockKey := s.config.LockKeyPrefix + pc.CampaignID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to release run lock", "campaign_id", pc.CampaignID, "error", err)
		return err
	}

	pc.lockAcquired = false
	logger.Debug("Run lock released", "campaign_id", pc.CampaignID)
	return nil
}

func (s *IdempotencyService) cleanup(ctx context.Context, pc *ProcessingContext) {
	campaignID := pc.CampaignID

	lockKey := s.config.LockKeyPrefix + campaignID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to cleanup run lock", "campaign_id", campaignID, "error", err)
	}

	retryKey := s.config.RetryKeyPrefix + campaignID
	if err := s.redis.Del(retryKey); err != nil {
		logger.Warn("Failed to cleanup retry counter", "campaign_id", campaignID, "error", err)
	}

	pc.lockAcquired = false
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, campaignID string) (int, error) {
	retryKey := s.config.RetryKeyPrefix + campaignID
	raw, err := s.redis.Get(retryKey)
	if err != nil {
		if err == redis.NilError {
			return 0, nil
		}
		return 0, err
	}

	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, campaignID string) (bool, error) {
	processedKey := s.config.ProcessedKeyPrefix + campaignID
	exists, err := s.redis.Exist(processedKey)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
