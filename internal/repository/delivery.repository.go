package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/pg"
	"gorm.io/gorm"
)

type DeliveryRepository struct {
	*pg.DB
}

func NewDeliveryRepository(db *pg.DB) *DeliveryRepository {
	return &DeliveryRepository{
		db,
	}
}

func (r *DeliveryRepository) Create(ctx context.Context, d *model.Delivery) (*model.Delivery, error) {
	entity := toDeliveryEntity(d)
	if entity.Status == "" {
		entity.Status = string(model.DeliveryStatusPending)
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toDeliveryModel(entity), nil
}

func (r *DeliveryRepository) GetByID(ctx context.Context, id int64) (*model.Delivery, error) {
	var entity DeliveryEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDeliveryModel(&entity), nil
}

// MarkSent settles a delivery as sent with its final transport attempt
// count. Conditional on the row still being pending or failed, so the
// orchestrator and the recovery loop cannot both settle it.
func (r *DeliveryRepository) MarkSent(ctx context.Context, id int64, retryCount int) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&DeliveryEntity{}).
		Where("id = ? AND status IN ?", id, []string{
			string(model.DeliveryStatusPending),
			string(model.DeliveryStatusFailed),
		}).
		Updates(map[string]interface{}{
			"status":      string(model.DeliveryStatusSent),
			"retry_count": retryCount,
			"sent_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed settles a pending delivery as failed.
func (r *DeliveryRepository) MarkFailed(ctx context.Context, id int64, retryCount int, reason string) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&DeliveryEntity{}).
		Where("id = ? AND status = ?", id, string(model.DeliveryStatusPending)).
		Updates(map[string]interface{}{
			"status":         string(model.DeliveryStatusFailed),
			"retry_count":    retryCount,
			"failure_reason": reason,
			"failed_at":      time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AdvanceStatus walks a delivery forward to a tracking status (delivered,
// opened, clicked), stamping the matching timestamp. The update is
// conditional on a status the lifecycle allows to move from, so late or
// duplicated tracking events are dropped instead of rewinding the row.
func (r *DeliveryRepository) AdvanceStatus(ctx context.Context, id int64, to model.DeliveryStatus) (bool, error) {
	froms := transitionSources(to)
	if len(froms) == 0 {
		return false, nil
	}

	updates := map[string]interface{}{"status": string(to)}
	now := time.Now()
	switch to {
	case model.DeliveryStatusDelivered:
		updates["delivered_at"] = now
	case model.DeliveryStatusOpened:
		updates["opened_at"] = now
	case model.DeliveryStatusClicked:
		updates["clicked_at"] = now
	}

	res := r.Write(ctx).WithContext(ctx).
		Model(&DeliveryEntity{}).
		Where("id = ? AND status IN ?", id, froms).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountSentSince counts sends to one subscription since the cutoff,
// whatever the delivery advanced to afterwards. Feeds the frequency caps.
func (r *DeliveryRepository) CountSentSince(ctx context.Context, subscriptionID int64, since time.Time) (int64, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&DeliveryEntity{}).
		Where("subscription_id = ? AND sent_at >= ?", subscriptionID, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DeliveryRepository) List(ctx context.Context, f model.DeliveryFilter) ([]*model.Delivery, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&DeliveryEntity{})

	if f.CampaignID != nil {
		q = q.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.SubscriptionID != nil {
		q = q.Where("subscription_id = ?", *f.SubscriptionID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*DeliveryEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toDeliveryModels(entities), total, nil
}

// transitionSources lists the statuses the lifecycle allows to move to the
// target, as strings for the conditional update.
func transitionSources(to model.DeliveryStatus) []string {
	all := []model.DeliveryStatus{
		model.DeliveryStatusPending,
		model.DeliveryStatusSent,
		model.DeliveryStatusFailed,
		model.DeliveryStatusDelivered,
		model.DeliveryStatusOpened,
		model.DeliveryStatusClicked,
	}
	var froms []string
	for _, from := range all {
		if from.CanTransitionTo(to) {
			froms = append(froms, string(from))
		}
	}
	return froms
}
