package services

import (
	"context"
	"errors"
	"strings"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/repository"
	"github.com/pushmill/push-gateway/internal/transport"
	"github.com/pushmill/push-gateway/pkg/logger"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrEndpointRequired     = errors.New("endpoint is required")
	ErrKeysRequired         = errors.New("p256dh and auth keys are required")
)

type SubscriptionStore interface {
	Register(ctx context.Context, req model.SubscriptionCreateRequest) (*model.Subscription, error)
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)
	Retire(ctx context.Context, id int64) (bool, error)
	RotateEndpoint(ctx context.Context, id int64, endpoint, p256dh, auth string) (*model.Subscription, error)
	List(ctx context.Context, f model.SubscriptionFilter) ([]*model.Subscription, int64, error)
}

type DeviceProfileStore interface {
	Upsert(ctx context.Context, profile *model.DeviceProfile) (*model.DeviceProfile, error)
	GetBySubscription(ctx context.Context, subscriptionID int64) (*model.DeviceProfile, error)
}

type SubscriptionService struct {
	subs     SubscriptionStore
	profiles DeviceProfileStore
}

func NewSubscriptionService(subs SubscriptionStore, profiles DeviceProfileStore) *SubscriptionService {
	return &SubscriptionService{
		subs:     subs,
		profiles: profiles,
	}
}

// Register upserts a subscription by endpoint and captures the device
// identity from the User-Agent. Profile capture is best-effort: a parse or
// storage failure never fails the registration, the capability resolver just
// falls back to desktop defaults for that device.
func (s *SubscriptionService) Register(ctx context.Context, req model.SubscriptionCreateRequest) (*model.Subscription, error) {
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := transport.ValidateSubscription(&model.Subscription{
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
	}); err != nil {
		return nil, err
	}

	sub, err := s.subs.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	identity := parseUserAgent(req.UserAgent)
	if req.Platform != "" {
		// A platform stated by the client outranks anything sniffed.
		identity.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	}
	if identity.BrowserName != "" || identity.Platform != "" {
		profile := &model.DeviceProfile{
			SubscriptionID: sub.ID,
			Platform:       identity.Platform,
			BrowserName:    identity.BrowserName,
			BrowserVersion: identity.BrowserVersion,
			UserAgent:      truncateUserAgent(req.UserAgent),
		}
		if _, err := s.profiles.Upsert(ctx, profile); err != nil {
			logger.Warn("device profile capture failed",
				"subscription_id", sub.ID, "error", err.Error())
		}
	}

	return sub, nil
}

// Unregister retires the subscription. Retiring an already inactive row is a
// no-op, not an error; only a missing row is.
func (s *SubscriptionService) Unregister(ctx context.Context, id int64) error {
	if _, err := s.subs.GetByID(ctx, id); err != nil {
		return s.mapNotFound(err)
	}
	if _, err := s.subs.Retire(ctx, id); err != nil {
		return err
	}
	return nil
}

// RotateEndpoint swaps the endpoint URL and keys in place when the push
// service hands the browser a replacement. The subscription id and its
// delivery history survive the swap.
func (s *SubscriptionService) RotateEndpoint(ctx context.Context, id int64, endpoint, p256dh, auth string) (*model.Subscription, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if p256dh == "" || auth == "" {
		return nil, ErrKeysRequired
	}
	if err := transport.ValidateSubscription(&model.Subscription{
		Endpoint:  endpoint,
		P256dhKey: p256dh,
		AuthKey:   auth,
	}); err != nil {
		return nil, err
	}
	sub, err := s.subs.RotateEndpoint(ctx, id, endpoint, p256dh, auth)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id int64) (*model.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	return sub, nil
}

// GetDeviceProfile returns the captured device identity, or nil when
// registration never captured one.
func (s *SubscriptionService) GetDeviceProfile(ctx context.Context, subscriptionID int64) (*model.DeviceProfile, error) {
	return s.profiles.GetBySubscription(ctx, subscriptionID)
}

func (s *SubscriptionService) List(ctx context.Context, f model.SubscriptionFilter) ([]*model.Subscription, int64, error) {
	return s.subs.List(ctx, f)
}

// AuditEndpoints structurally validates stored subscriptions in concurrent
// batches and reports the rows that could never receive a push: mangled
// endpoint URLs and key material that would not encrypt. It makes no network
// calls, so it is safe to run against the live table.
func (s *SubscriptionService) AuditEndpoints(ctx context.Context, f model.SubscriptionFilter) (int, []transport.ValidationIssue, error) {
	subs, _, err := s.subs.List(ctx, f)
	if err != nil {
		return 0, nil, err
	}
	issues, err := transport.ValidateBatch(ctx, subs)
	if err != nil {
		return 0, nil, err
	}
	return len(subs), issues, nil
}

// mapNotFound translates the repository's not-found into the service-level
// sentinel handlers match on.
func (s *SubscriptionService) mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSubscriptionNotFound
	}
	return err
}
