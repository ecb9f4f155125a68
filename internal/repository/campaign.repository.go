package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/pg"
	"gorm.io/gorm"
)

type CampaignRepository struct {
	*pg.DB
}

func NewCampaignRepository(db *pg.DB) *CampaignRepository {
	return &CampaignRepository{
		db,
	}
}

// Create files a new draft campaign.
func (r *CampaignRepository) Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error) {
	raw, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, err
	}
	status := model.CampaignStatusDraft
	if req.ScheduledAt != nil {
		status = model.CampaignStatusScheduled
	}
	entity := &CampaignEntity{
		Name:        req.Name,
		Payload:     string(raw),
		Segments:    pq.StringArray(req.Segments),
		Status:      string(status),
		ScheduledAt: req.ScheduledAt,
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toCampaignModel(entity), nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var entity CampaignEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toCampaignModel(&entity), nil
}

// TransitionStatus applies from -> to only while the row still holds from
// and is neither paused nor deleted. Moving into `sending` stamps StartedAt.
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int64, from, to model.CampaignStatus) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	if to == model.CampaignStatusSending {
		updates["started_at"] = time.Now()
	}

	res := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND status = ? AND paused = ? AND deleted_at IS NULL", id, string(from), false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Complete settles a finished run: sending -> completed plus the aggregate
// counts.
func (r *CampaignRepository) Complete(ctx context.Context, id int64, sent, failed, skipped int) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND status = ?", id, string(model.CampaignStatusSending)).
		Updates(map[string]interface{}{
			"status":       string(model.CampaignStatusCompleted),
			"sent_count":   sent,
			"failed_count": failed,
			"skip_count":   skipped,
			"completed_at": time.Now(),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("campaign is not sending")
	}
	return nil
}

// SetPaused flips the pause flag, which is orthogonal to the status flow.
func (r *CampaignRepository) SetPaused(ctx context.Context, id int64, paused bool) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"paused":     paused,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SoftDelete hides a campaign from listings and blocks future sends while
// keeping its delivery history queryable.
func (r *CampaignRepository) SoftDelete(ctx context.Context, id int64) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"deleted_at": time.Now(),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListScheduledDue returns scheduled campaigns whose ScheduledAt has passed,
// for the dispatcher to enqueue.
func (r *CampaignRepository) ListScheduledDue(ctx context.Context, before time.Time, limit int) ([]*model.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	var entities []*CampaignEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ? AND paused = ? AND deleted_at IS NULL AND scheduled_at <= ?",
			string(model.CampaignStatusScheduled), false, before).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toCampaignModels(entities), nil
}

func (r *CampaignRepository) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&CampaignEntity{})

	if !f.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
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

	var entities []*CampaignEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toCampaignModels(entities), total, nil
}
