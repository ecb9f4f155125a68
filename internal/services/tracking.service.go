package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/repository"
	"github.com/pushmill/push-gateway/pkg/prom"
)

var ErrDeliveryNotFound = errors.New("delivery not found")

// Tracking event names accepted from service workers.
const (
	TrackEventDelivered = "delivered"
	TrackEventOpened    = "opened"
	TrackEventClicked   = "clicked"
)

type DeliveryStore interface {
	GetByID(ctx context.Context, id int64) (*model.Delivery, error)
	AdvanceStatus(ctx context.Context, id int64, to model.DeliveryStatus) (bool, error)
	List(ctx context.Context, f model.DeliveryFilter) ([]*model.Delivery, int64, error)
}

// TrackingService ingests delivery beacons reported back by service workers.
// Beacons arrive out of order and duplicated; the delivery lifecycle only
// moves forward, so a stale beacon lands as a recorded no-op, never an error
// the client would retry on.
type TrackingService struct {
	deliveries DeliveryStore
}

func NewTrackingService(deliveries DeliveryStore) *TrackingService {
	return &TrackingService{deliveries: deliveries}
}

// Ingest applies one tracking event to a delivery. The boolean reports
// whether the row actually moved; false means the event was late or a
// duplicate and the row already sits at or past that state.
func (s *TrackingService) Ingest(ctx context.Context, deliveryID int64, event string) (bool, error) {
	status, err := statusForEvent(event)
	if err != nil {
		return false, err
	}

	if _, err := s.deliveries.GetByID(ctx, deliveryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrDeliveryNotFound
		}
		return false, err
	}

	moved, err := s.deliveries.AdvanceStatus(ctx, deliveryID, status)
	if err != nil {
		return false, err
	}
	if moved {
		prom.IncTrackingEvent(event)
	}
	return moved, nil
}

// ListDeliveries exposes delivery rows for campaign drill-down views.
func (s *TrackingService) ListDeliveries(ctx context.Context, f model.DeliveryFilter) ([]*model.Delivery, int64, error) {
	return s.deliveries.List(ctx, f)
}

func statusForEvent(event string) (model.DeliveryStatus, error) {
	switch event {
	case TrackEventDelivered:
		return model.DeliveryStatusDelivered, nil
	case TrackEventOpened:
		return model.DeliveryStatusOpened, nil
	case TrackEventClicked:
		return model.DeliveryStatusClicked, nil
	}
	return "", fmt.Errorf("unknown tracking event %q", event)
}
