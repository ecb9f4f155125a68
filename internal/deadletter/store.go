package deadletter

import (
	"context"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/retry"
)

// Repository is the persistence slice behind the store.
type Repository interface {
	Create(ctx context.Context, fd *model.FailedDelivery) (*model.FailedDelivery, error)
	Update(ctx context.Context, fd *model.FailedDelivery) error
	GetRetryable(ctx context.Context, before time.Time, limit int) ([]*model.FailedDelivery, error)
	// MarkResolved sets the resolution only when the row is still open,
	// reporting whether this call closed it.
	MarkResolved(ctx context.Context, id int64, reason string) (bool, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (*model.FailedDeliveryStats, error)
}

// DefaultRetention is how long resolved entries are kept for inspection
// before Cleanup purges them.
const DefaultRetention = 30 * 24 * time.Hour

// recoveryDelayCeiling caps the spacing between recovery attempts. Recovery
// runs out-of-band, so spacing is deterministic; jitter would only make the
// queue order harder to reason about.
const recoveryDelayCeiling = 60 * time.Second

// Store files failed deliveries and schedules their recovery.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// RecordFailure classifies sendErr and persists a dead-letter entry.
// attempt is how many transport attempts the dispatcher already burned; the
// entry retries only while the class's policy still has attempts left.
func (s *Store) RecordFailure(ctx context.Context, deliveryID, subscriptionID int64, sendErr error, attempt int) (*model.FailedDelivery, error) {
	code := retry.Classify(sendErr)
	policy := retry.PolicyFor(code)
	if attempt < 1 {
		attempt = 1
	}

	fd := &model.FailedDelivery{
		DeliveryID:     deliveryID,
		SubscriptionID: subscriptionID,
		ErrorCode:      string(code),
		ErrorCategory:  CategorizeError(code),
		ErrorMessage:   sendErr.Error(),
		AttemptCount:   attempt,
		MaxAttempts:    policy.MaxAttempts,
		WillRetry:      retry.IsRetryable(code) && attempt < policy.MaxAttempts,
	}
	if fd.WillRetry {
		next := time.Now().Add(recoveryDelay(attempt, policy))
		fd.NextRetryAt = &next
	}
	return s.repo.Create(ctx, fd)
}

// RecordRetryFailure updates an entry after a recovery attempt failed too.
// The latest error wins: a delivery that first failed on the network and now
// hits a 410 is rescheduled, or exhausted, under the new class. Reports
// whether the entry is now exhausted.
func (s *Store) RecordRetryFailure(ctx context.Context, fd *model.FailedDelivery, code retry.ErrorCode, message string) (bool, error) {
	if code == "" {
		code = retry.CodeUnknown
	}
	policy := retry.PolicyFor(code)

	fd.AttemptCount++
	fd.ErrorCode = string(code)
	fd.ErrorCategory = CategorizeError(code)
	fd.ErrorMessage = message
	fd.MaxAttempts = policy.MaxAttempts
	fd.WillRetry = retry.IsRetryable(code) && fd.AttemptCount < policy.MaxAttempts

	if fd.WillRetry {
		next := time.Now().Add(recoveryDelay(fd.AttemptCount, policy))
		fd.NextRetryAt = &next
		return false, s.repo.Update(ctx, fd)
	}

	fd.NextRetryAt = nil
	if err := s.repo.Update(ctx, fd); err != nil {
		return true, err
	}
	_, err := s.repo.MarkResolved(ctx, fd.ID, model.ResolutionMaxAttemptsReached)
	return true, err
}

// GetRetryable returns entries due for a recovery attempt, oldest deadline
// first so no entry starves behind a hot one.
func (s *Store) GetRetryable(ctx context.Context, limit int) ([]*model.FailedDelivery, error) {
	return s.repo.GetRetryable(ctx, time.Now(), limit)
}

// MarkResolved closes an entry. Safe to call twice; only the first call wins.
func (s *Store) MarkResolved(ctx context.Context, id int64, reason string) (bool, error) {
	return s.repo.MarkResolved(ctx, id, reason)
}

// Cleanup purges resolved entries older than the retention window and
// returns how many rows went away.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return s.repo.DeleteResolvedBefore(ctx, time.Now().Add(-retention))
}

// Stats aggregates open/resolved counts for the operations dashboard.
func (s *Store) Stats(ctx context.Context) (*model.FailedDeliveryStats, error) {
	return s.repo.Stats(ctx)
}

// recoveryDelay spaces recovery attempts exponentially from the class's base
// delay, without jitter, capped at the ceiling.
func recoveryDelay(attempt int, policy retry.Policy) time.Duration {
	return retry.NextDelay(attempt, retry.Policy{
		BaseDelay:  policy.BaseDelay,
		MaxDelay:   recoveryDelayCeiling,
		Multiplier: 2,
	})
}

// CategorizeError buckets an error code for dashboards and alert routing.
func CategorizeError(code retry.ErrorCode) string {
	switch code {
	case retry.CodeExpired:
		return "expired"
	case retry.CodePermissionDenied:
		return "permission"
	case retry.CodeNotFound:
		return "endpoint_invalid"
	case retry.CodeRateLimited:
		return "throttling"
	case retry.CodeTimeout, retry.CodeNetwork:
		return "network"
	case retry.CodeInvalidPayload:
		return "payload_invalid"
	case retry.CodePayloadTooLarge:
		return "payload_too_large"
	case retry.CodeServerError, retry.CodeServiceUnavailable:
		return "server_error"
	default:
		return "unknown"
	}
}
