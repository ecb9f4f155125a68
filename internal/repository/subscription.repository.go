package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
)

type SubscriptionRepository struct {
	*pg.DB
}

func NewSubscriptionRepository(db *pg.DB) *SubscriptionRepository {
	return &SubscriptionRepository{
		db,
	}
}

// Register upserts a subscription by endpoint. A brand-new endpoint gets an
// active row; re-registering an existing endpoint refreshes the keys,
// segments and metadata and reactivates the row, whatever state it was in.
// This is the only path that brings an inactive endpoint back.
func (r *SubscriptionRepository) Register(ctx context.Context, req model.SubscriptionCreateRequest) (*model.Subscription, error) {
	var out *SubscriptionEntity
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		var existing SubscriptionEntity
		err := r.Write(ctx).WithContext(ctx).
			Where("endpoint = ?", req.Endpoint).
			First(&existing).Error
		switch {
		case err == nil:
			updates := map[string]interface{}{
				"p256dh_key": req.P256dhKey,
				"auth_key":   req.AuthKey,
				"status":     string(model.SubscriptionStatusActive),
				"metadata":   marshalMetadata(req.Metadata),
				"updated_at": time.Now(),
			}
			if err := r.Write(ctx).WithContext(ctx).
				Model(&SubscriptionEntity{}).
				Where("id = ?", existing.ID).
				Updates(updates).Error; err != nil {
				return err
			}
			if err := r.replaceSegments(ctx, existing.ID, req.Segments); err != nil {
				return err
			}
			var reloaded SubscriptionEntity
			if err := r.Write(ctx).WithContext(ctx).
				Preload("Segments").
				First(&reloaded, existing.ID).Error; err != nil {
				return err
			}
			out = &reloaded
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			entity := &SubscriptionEntity{
				Endpoint:  req.Endpoint,
				P256dhKey: req.P256dhKey,
				AuthKey:   req.AuthKey,
				Status:    string(model.SubscriptionStatusActive),
				Metadata:  marshalMetadata(req.Metadata),
			}
			if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
				return err
			}
			if err := r.replaceSegments(ctx, entity.ID, req.Segments); err != nil {
				return err
			}
			out = entity
			out.Segments = segmentEntities(entity.ID, req.Segments)
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return toSubscriptionModel(out), nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	var entity SubscriptionEntity
	err := r.Read(ctx).WithContext(ctx).
		Preload("Segments").
		First(&entity, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toSubscriptionModel(&entity), nil
}

func (r *SubscriptionRepository) GetByEndpoint(ctx context.Context, endpoint string) (*model.Subscription, error) {
	var entity SubscriptionEntity
	err := r.Read(ctx).WithContext(ctx).
		Preload("Segments").
		Where("endpoint = ?", endpoint).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toSubscriptionModel(&entity), nil
}

// TransitionStatus applies from -> to only while the row still holds from,
// reporting whether this caller won the swap.
func (r *SubscriptionRepository) TransitionStatus(ctx context.Context, id int64, from, to model.SubscriptionStatus) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&SubscriptionEntity{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Retire moves a subscription to inactive from whatever state it is in.
// Reports false when the row is already inactive or missing.
func (r *SubscriptionRepository) Retire(ctx context.Context, id int64) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&SubscriptionEntity{}).
		Where("id = ? AND status <> ?", id, string(model.SubscriptionStatusInactive)).
		Updates(map[string]interface{}{
			"status":     string(model.SubscriptionStatusInactive),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RotateEndpoint swaps the endpoint URL and keys in place, keeping the
// subscription id and its history. Used when the push service hands the
// browser a replacement endpoint.
func (r *SubscriptionRepository) RotateEndpoint(ctx context.Context, id int64, endpoint, p256dh, auth string) (*model.Subscription, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&SubscriptionEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"endpoint":   endpoint,
			"p256dh_key": p256dh,
			"auth_key":   auth,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *SubscriptionRepository) List(ctx context.Context, f model.SubscriptionFilter) ([]*model.Subscription, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&SubscriptionEntity{})

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.Endpoint != nil && *f.Endpoint != "" {
		q = q.Where("endpoint = ?", *f.Endpoint)
	}
	if f.Segment != nil && *f.Segment != "" {
		q = q.Where("id IN (?)", r.Read(ctx).WithContext(ctx).
			Model(&SubscriptionSegmentEntity{}).
			Select("subscription_id").
			Where("segment = ?", *f.Segment))
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

	var entities []*SubscriptionEntity
	if err := q.Preload("Segments").Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toSubscriptionModels(entities), total, nil
}

// ListActiveIDs pages the active audience for a campaign, ascending by id.
// An empty segment list targets every active subscription.
func (r *SubscriptionRepository) ListActiveIDs(ctx context.Context, segments []string, afterID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 500
	}
	q := r.Read(ctx).WithContext(ctx).
		Model(&SubscriptionEntity{}).
		Where("status = ? AND id > ?", string(model.SubscriptionStatusActive), afterID)
	if len(segments) > 0 {
		q = q.Where("id IN (?)", r.Read(ctx).WithContext(ctx).
			Model(&SubscriptionSegmentEntity{}).
			Select("subscription_id").
			Where("segment IN ?", segments))
	}

	var ids []int64
	if err := q.Order("id ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// replaceSegments rewrites the targeting tags for one subscription.
func (r *SubscriptionRepository) replaceSegments(ctx context.Context, subscriptionID int64, segments []string) error {
	if err := r.Write(ctx).WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Delete(&SubscriptionSegmentEntity{}).Error; err != nil {
		return err
	}
	rows := segmentEntities(subscriptionID, segments)
	if len(rows) == 0 {
		return nil
	}
	return r.Write(ctx).WithContext(ctx).Create(&rows).Error
}

func segmentEntities(subscriptionID int64, segments []string) []*SubscriptionSegmentEntity {
	var rows []*SubscriptionSegmentEntity
	seen := make(map[string]bool, len(segments))
	for _, s := range segments {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		rows = append(rows, &SubscriptionSegmentEntity{SubscriptionID: subscriptionID, Segment: s})
	}
	return rows
}

