package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pushmill/push-gateway/internal/capability"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/retry"
	"github.com/pushmill/push-gateway/pkg/logger"
	"github.com/pushmill/push-gateway/pkg/prom"
)

// SubscriptionStore is the slice of the subscription repository the
// dispatcher needs: a point read and a compare-and-swap status transition.
type SubscriptionStore interface {
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)
	// TransitionStatus applies from -> to only while the row still holds
	// from, reporting whether this caller won the swap.
	TransitionStatus(ctx context.Context, id int64, from, to model.SubscriptionStatus) (bool, error)
}

// DeviceProfileStore resolves the browser identity captured at registration.
// A nil profile with a nil error means none was ever captured.
type DeviceProfileStore interface {
	GetBySubscription(ctx context.Context, subscriptionID int64) (*model.DeviceProfile, error)
}

// Pusher posts an encrypted payload to a subscription's push service.
type Pusher interface {
	Send(ctx context.Context, sub *model.Subscription, payload []byte) error
}

// FailureRecorder files a failed delivery for the recovery loop.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, deliveryID, subscriptionID int64, sendErr error, attempt int) (*model.FailedDelivery, error)
}

// Reason strings for sends rejected before any transport attempt.
const (
	ReasonInactive = "subscription is inactive"
	ReasonNotFound = "subscription not found"
)

// Result is the outcome of one dispatch, after in-process retries.
type Result struct {
	Success   bool            `json:"success"`
	ErrorCode retry.ErrorCode `json:"error_code,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Attempts  int             `json:"attempts"`
}

// Dispatcher pushes one payload to one subscription: adapts the payload to
// the device, retries transient transport failures in-process, and keeps the
// subscription's lifecycle status in step with what the push service said.
type Dispatcher struct {
	subs    SubscriptionStore
	devices DeviceProfileStore
	pusher  Pusher
	dlq     FailureRecorder
	builder *capability.Builder
	policy  retry.Policy
}

func New(subs SubscriptionStore, devices DeviceProfileStore, pusher Pusher, dlq FailureRecorder, builder *capability.Builder) *Dispatcher {
	if builder == nil {
		builder = &capability.Builder{}
	}
	return &Dispatcher{
		subs:    subs,
		devices: devices,
		pusher:  pusher,
		dlq:     dlq,
		builder: builder,
		policy:  retry.DefaultPolicy(),
	}
}

// Send delivers payload to the subscription. Inactive subscriptions are
// rejected before any network traffic; failed ones are still tried, and a
// success promotes them back to active.
func (d *Dispatcher) Send(ctx context.Context, subscriptionID int64, payload *model.PushPayload) Result {
	sub, err := d.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		logger.Warn("dispatch: subscription lookup failed", "subscription_id", subscriptionID, "error", err)
		return Result{Reason: ReasonNotFound}
	}
	return d.send(ctx, sub, payload)
}

// SendTracked is Send plus dead-letter bookkeeping: any failure is recorded
// against the originating delivery so the recovery loop can pick it up.
func (d *Dispatcher) SendTracked(ctx context.Context, deliveryID, subscriptionID int64, payload *model.PushPayload) Result {
	sub, err := d.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		logger.Warn("dispatch: subscription lookup failed", "subscription_id", subscriptionID, "error", err)
		return Result{Reason: ReasonNotFound}
	}

	res := d.send(ctx, sub, payload)
	if !res.Success && res.ErrorCode != "" {
		if _, recErr := d.dlq.RecordFailure(ctx, deliveryID, subscriptionID, errorFor(res), res.Attempts); recErr != nil {
			logger.Error("failed to record dead-letter entry",
				"delivery_id", deliveryID, "subscription_id", subscriptionID, "error", recErr)
		}
	}
	return res
}

func (d *Dispatcher) send(ctx context.Context, sub *model.Subscription, payload *model.PushPayload) Result {
	if sub.Status == model.SubscriptionStatusInactive {
		return Result{Reason: ReasonInactive}
	}

	profile := d.resolveProfile(ctx, sub)
	built := d.builder.BuildForDevice(payload, profile)
	raw, err := json.Marshal(built)
	if err != nil {
		return Result{ErrorCode: retry.CodeInvalidPayload, Reason: err.Error()}
	}

	started := time.Now()
	res := retry.Execute(ctx, d.policy, func(ctx context.Context) error {
		return d.pusher.Send(ctx, sub, raw)
	})

	if res.Success {
		prom.AddPushDeliveryDuration(time.Since(started).Seconds(), "success")
		prom.IncPushDelivery("success", "")
		if sub.Status == model.SubscriptionStatusFailed {
			d.transition(ctx, sub, model.SubscriptionStatusActive)
		}
		logger.Debug("push delivered",
			"subscription_id", sub.ID, "profile", profile.Name, "attempts", res.Attempts)
		return Result{Success: true, Attempts: res.Attempts}
	}
	prom.AddPushDeliveryDuration(time.Since(started).Seconds(), "failure")
	prom.IncPushDelivery("failure", string(res.Code))

	demoted := model.SubscriptionStatusFailed
	if endpointDead(res.Code) {
		demoted = model.SubscriptionStatusInactive
	}
	if sub.Status != demoted {
		d.transition(ctx, sub, demoted)
	}

	logger.Warn("push delivery failed",
		"subscription_id", sub.ID,
		"code", string(res.Code),
		"attempts", res.Attempts,
		"demoted_to", string(demoted),
		"error", res.Err)
	return Result{ErrorCode: res.Code, Reason: res.Err.Error(), Attempts: res.Attempts}
}

// resolveProfile picks the capability profile for the subscription's device.
// No stored profile, or a lookup error, falls back to the desktop defaults.
func (d *Dispatcher) resolveProfile(ctx context.Context, sub *model.Subscription) capability.Profile {
	dp, err := d.devices.GetBySubscription(ctx, sub.ID)
	if err != nil {
		logger.Warn("device profile lookup failed, using defaults",
			"subscription_id", sub.ID, "error", err)
		return capability.ResolveByPlatform("")
	}
	if dp == nil {
		return capability.ResolveByPlatform("")
	}
	if dp.BrowserName != "" {
		return capability.Resolve(dp.BrowserName, dp.BrowserVersion)
	}
	return capability.ResolveByPlatform(dp.Platform)
}

func (d *Dispatcher) transition(ctx context.Context, sub *model.Subscription, to model.SubscriptionStatus) {
	if !sub.Status.CanTransitionTo(to) {
		return
	}
	ok, err := d.subs.TransitionStatus(ctx, sub.ID, sub.Status, to)
	if err != nil {
		logger.Error("subscription status transition failed",
			"subscription_id", sub.ID, "from", string(sub.Status), "to", string(to), "error", err)
		return
	}
	if !ok {
		// A concurrent writer moved the row first; their view is newer.
		logger.Debug("subscription status transition lost the race",
			"subscription_id", sub.ID, "from", string(sub.Status), "to", string(to))
	}
}

// endpointDead reports codes that mean the endpoint itself is gone and the
// subscription can never receive another push.
func endpointDead(code retry.ErrorCode) bool {
	switch code {
	case retry.CodeExpired, retry.CodePermissionDenied, retry.CodeNotFound:
		return true
	}
	return false
}

func errorFor(res Result) error {
	return &dispatchError{code: res.ErrorCode, reason: res.Reason}
}

// dispatchError re-materializes the classified failure for the dead-letter
// store, which classifies from the error it receives.
type dispatchError struct {
	code   retry.ErrorCode
	reason string
}

func (e *dispatchError) Error() string { return e.reason }

// Code lets classification recover the original class without re-parsing.
func (e *dispatchError) Code() retry.ErrorCode { return e.code }
