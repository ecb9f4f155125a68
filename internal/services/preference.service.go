package services

import (
	"context"
	"errors"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/repository"
)

// PreferenceStore is the slice of the preference repository the service
// needs. GetOrCreateFrom lazily creates the row from the supplied defaults.
type PreferenceStore interface {
	GetOrCreateFrom(ctx context.Context, def *model.Preference) (*model.Preference, error)
	Update(ctx context.Context, subscriptionID int64, req model.PreferenceUpdateRequest) (*model.Preference, error)
}

// Caps are the frequency limits stamped onto a preference row the first time
// a subscriber is seen, normally taken from configuration. Zero or negative
// values fall back to the model defaults.
type Caps struct {
	PerHour int
	PerDay  int
	PerWeek int
}

func (c Caps) orDefaults() Caps {
	if c.PerHour <= 0 {
		c.PerHour = model.DefaultMaxPerHour
	}
	if c.PerDay <= 0 {
		c.PerDay = model.DefaultMaxPerDay
	}
	if c.PerWeek <= 0 {
		c.PerWeek = model.DefaultMaxPerWeek
	}
	return c
}

// PreferenceService owns consent and throttling settings. It sits in front of
// both the preferences API and the send gate, so every lazily created row
// carries the same configured caps no matter which path touched it first.
type PreferenceService struct {
	prefs PreferenceStore
	subs  SubscriptionStore
	caps  Caps
}

func NewPreferenceService(prefs PreferenceStore, subs SubscriptionStore, caps Caps) *PreferenceService {
	return &PreferenceService{
		prefs: prefs,
		subs:  subs,
		caps:  caps.orDefaults(),
	}
}

// Get returns the subscriber's preferences, creating the default row on
// first access. The subscription must exist; preferences for retired
// subscriptions remain readable.
func (s *PreferenceService) Get(ctx context.Context, subscriptionID int64) (*model.Preference, error) {
	if _, err := s.subs.GetByID(ctx, subscriptionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return s.GetOrCreate(ctx, subscriptionID)
}

// GetOrCreate satisfies the gate's preference lookup. Unlike Get it skips the
// subscription existence check: the gate only ever asks about ids it just
// paged out of the subscriptions table.
func (s *PreferenceService) GetOrCreate(ctx context.Context, subscriptionID int64) (*model.Preference, error) {
	return s.prefs.GetOrCreateFrom(ctx, s.defaultsFor(subscriptionID))
}

// Update applies a partial settings change and returns the updated row.
func (s *PreferenceService) Update(ctx context.Context, subscriptionID int64, req model.PreferenceUpdateRequest) (*model.Preference, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.subs.GetByID(ctx, subscriptionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if _, err := s.GetOrCreate(ctx, subscriptionID); err != nil {
		return nil, err
	}
	return s.prefs.Update(ctx, subscriptionID, req)
}

func (s *PreferenceService) defaultsFor(subscriptionID int64) *model.Preference {
	def := model.DefaultPreference(subscriptionID)
	def.MaxPerHour = s.caps.PerHour
	def.MaxPerDay = s.caps.PerDay
	def.MaxPerWeek = s.caps.PerWeek
	return def
}
