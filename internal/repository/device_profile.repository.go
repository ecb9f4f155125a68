package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/pkg/pg"
	"gorm.io/gorm"
)

type DeviceProfileRepository struct {
	*pg.DB
}

func NewDeviceProfileRepository(db *pg.DB) *DeviceProfileRepository {
	return &DeviceProfileRepository{
		db,
	}
}

// Upsert stores the device identity for a subscription, one row per
// subscription. Registration is the only writer, so last write wins.
func (r *DeviceProfileRepository) Upsert(ctx context.Context, profile *model.DeviceProfile) (*model.DeviceProfile, error) {
	entity := toDeviceProfileEntity(profile)

	var existing DeviceProfileEntity
	err := r.Write(ctx).WithContext(ctx).
		Where("subscription_id = ?", entity.SubscriptionID).
		First(&existing).Error
	switch {
	case err == nil:
		entity.ID = existing.ID
		entity.CreatedAt = existing.CreatedAt
		entity.UpdatedAt = time.Now()
		if err := r.Write(ctx).WithContext(ctx).Save(entity).Error; err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return toDeviceProfileModel(entity), nil
}

// GetBySubscription returns the stored device identity, or nil with no error
// when none was ever captured.
func (r *DeviceProfileRepository) GetBySubscription(ctx context.Context, subscriptionID int64) (*model.DeviceProfile, error) {
	var entity DeviceProfileEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDeviceProfileModel(&entity), nil
}
