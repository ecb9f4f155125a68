package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/pg"
	"gorm.io/gorm"
)

type FailedDeliveryRepository struct {
	*pg.DB
}

func NewFailedDeliveryRepository(db *pg.DB) *FailedDeliveryRepository {
	return &FailedDeliveryRepository{
		db,
	}
}

func (r *FailedDeliveryRepository) Create(ctx context.Context, fd *model.FailedDelivery) (*model.FailedDelivery, error) {
	entity := toFailedDeliveryEntity(fd)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toFailedDeliveryModel(entity), nil
}

// Update rewrites the retry bookkeeping after a recovery attempt. The
// caller's model is the source of truth, including nil NextRetryAt.
func (r *FailedDeliveryRepository) Update(ctx context.Context, fd *model.FailedDelivery) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&FailedDeliveryEntity{}).
		Where("id = ?", fd.ID).
		Updates(map[string]interface{}{
			"error_code":     fd.ErrorCode,
			"error_category": fd.ErrorCategory,
			"error_message":  fd.ErrorMessage,
			"attempt_count":  fd.AttemptCount,
			"max_attempts":   fd.MaxAttempts,
			"will_retry":     fd.WillRetry,
			"next_retry_at":  fd.NextRetryAt,
			"updated_at":     time.Now(),
		}).Error
}

func (r *FailedDeliveryRepository) GetByID(ctx context.Context, id int64) (*model.FailedDelivery, error) {
	var entity FailedDeliveryEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toFailedDeliveryModel(&entity), nil
}

// GetRetryable returns open entries whose deadline has passed, oldest
// deadline first.
func (r *FailedDeliveryRepository) GetRetryable(ctx context.Context, before time.Time, limit int) ([]*model.FailedDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	var entities []*FailedDeliveryEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("will_retry = ? AND resolved_at IS NULL AND next_retry_at <= ?", true, before).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toFailedDeliveryModels(entities), nil
}

// MarkResolved closes an entry, conditional on it still being open. Reports
// whether this call performed the close.
func (r *FailedDeliveryRepository) MarkResolved(ctx context.Context, id int64, reason string) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&FailedDeliveryEntity{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]interface{}{
			"resolved_at":       time.Now(),
			"resolution_reason": reason,
			"will_retry":        false,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *FailedDeliveryRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.Write(ctx).WithContext(ctx).
		Where("resolved_at IS NOT NULL AND resolved_at < ?", cutoff).
		Delete(&FailedDeliveryEntity{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Stats aggregates the dead-letter queue for dashboards. ByCategory counts
// the open backlog, not historic rows.
func (r *FailedDeliveryRepository) Stats(ctx context.Context) (*model.FailedDeliveryStats, error) {
	stats := &model.FailedDeliveryStats{ByCategory: make(map[string]int64)}

	if err := r.Read(ctx).WithContext(ctx).Model(&FailedDeliveryEntity{}).
		Where("resolved_at IS NULL").
		Count(&stats.Pending).Error; err != nil {
		return nil, err
	}
	if err := r.Read(ctx).WithContext(ctx).Model(&FailedDeliveryEntity{}).
		Where("resolved_at IS NOT NULL").
		Count(&stats.Resolved).Error; err != nil {
		return nil, err
	}
	if err := r.Read(ctx).WithContext(ctx).Model(&FailedDeliveryEntity{}).
		Where("resolution_reason = ?", model.ResolutionRecovered).
		Count(&stats.Recovered).Error; err != nil {
		return nil, err
	}
	if err := r.Read(ctx).WithContext(ctx).Model(&FailedDeliveryEntity{}).
		Where("resolution_reason = ?", model.ResolutionMaxAttemptsReached).
		Count(&stats.Exhausted).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Category string
		Total    int64
	}
	if err := r.Read(ctx).WithContext(ctx).Model(&FailedDeliveryEntity{}).
		Select("error_category AS category, COUNT(*) AS total").
		Where("resolved_at IS NULL").
		Group("error_category").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByCategory[row.Category] = row.Total
	}
	return stats, nil
}
