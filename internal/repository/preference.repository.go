package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/pg"
	"gorm.io/gorm"
)

type PreferenceRepository struct {
	*pg.DB
}

func NewPreferenceRepository(db *pg.DB) *PreferenceRepository {
	return &PreferenceRepository{
		db,
	}
}

// GetOrCreate returns the subscriber's preferences, lazily creating the row
// with defaults on first access.
func (r *PreferenceRepository) GetOrCreate(ctx context.Context, subscriptionID int64) (*model.Preference, error) {
	return r.GetOrCreateFrom(ctx, model.DefaultPreference(subscriptionID))
}

// GetOrCreateFrom is GetOrCreate with a caller-supplied default row, for when
// the fleet-wide caps come from configuration rather than the model constants.
// Losing a concurrent create race falls back to reading the winner's row.
func (r *PreferenceRepository) GetOrCreateFrom(ctx context.Context, def *model.Preference) (*model.Preference, error) {
	var entity PreferenceEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("subscription_id = ?", def.SubscriptionID).
		First(&entity).Error
	if err == nil {
		return toPreferenceModel(&entity), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := toPreferenceEntity(def)
	if createErr := r.Write(ctx).WithContext(ctx).Create(fresh).Error; createErr != nil {
		// The unique index means someone else created it first.
		readErr := r.Read(ctx).WithContext(ctx).
			Where("subscription_id = ?", def.SubscriptionID).
			First(&entity).Error
		if readErr != nil {
			return nil, createErr
		}
		return toPreferenceModel(&entity), nil
	}
	return toPreferenceModel(fresh), nil
}

// Update applies the non-nil fields of req to the subscriber's preferences
// and returns the updated row. The row is created first if it never existed.
func (r *PreferenceRepository) Update(ctx context.Context, subscriptionID int64, req model.PreferenceUpdateRequest) (*model.Preference, error) {
	if _, err := r.GetOrCreate(ctx, subscriptionID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.OptIn != nil {
		updates["opt_in"] = *req.OptIn
	}
	if req.QuietHoursEnabled != nil {
		updates["quiet_hours_enabled"] = *req.QuietHoursEnabled
	}
	if req.QuietHoursStart != nil {
		updates["quiet_hours_start"] = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		updates["quiet_hours_end"] = *req.QuietHoursEnd
	}
	if req.Timezone != nil {
		updates["timezone"] = *req.Timezone
	}
	if req.MaxPerHour != nil {
		updates["max_per_hour"] = *req.MaxPerHour
	}
	if req.MaxPerDay != nil {
		updates["max_per_day"] = *req.MaxPerDay
	}
	if req.MaxPerWeek != nil {
		updates["max_per_week"] = *req.MaxPerWeek
	}
	if req.DNDUntil != nil {
		updates["dnd_until"] = *req.DNDUntil
	}
	if req.ClearDND {
		updates["dnd_until"] = nil
	}

	if err := r.Write(ctx).WithContext(ctx).
		Model(&PreferenceEntity{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	var entity PreferenceEntity
	if err := r.Read(ctx).WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		First(&entity).Error; err != nil {
		return nil, err
	}
	return toPreferenceModel(&entity), nil
}
