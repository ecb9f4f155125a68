package campaign

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pushmill/push-gateway/internal/dispatch"
	"github.com/pushmill/push-gateway/internal/gate"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/repository"
	"github.com/pushmill/push-gateway/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCampaigns struct {
	mu          sync.Mutex
	campaigns   map[int64]*model.Campaign
	transitions []string
	completed   map[int64]Result
}

func newFakeCampaigns(cs ...*model.Campaign) *fakeCampaigns {
	f := &fakeCampaigns{campaigns: make(map[int64]*model.Campaign), completed: make(map[int64]Result)}
	for _, c := range cs {
		f.campaigns[c.ID] = c
	}
	return f
}

func (f *fakeCampaigns) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaigns) TransitionStatus(_ context.Context, id int64, from, to model.CampaignStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	f.transitions = append(f.transitions, string(from)+"->"+string(to))
	return true, nil
}

func (f *fakeCampaigns) Complete(_ context.Context, id int64, sent, failed, skipped int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status != model.CampaignStatusSending {
		return errors.New("campaign is not sending")
	}
	c.Status = model.CampaignStatusCompleted
	f.completed[id] = Result{Sent: sent, Failed: failed, Skipped: skipped}
	return nil
}

type fakeAudience struct {
	mu     sync.Mutex
	ids    []int64 // ascending
	afters []int64
}

func (f *fakeAudience) ListActiveIDs(_ context.Context, _ []string, afterID int64, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afters = append(f.afters, afterID)
	var page []int64
	for _, id := range f.ids {
		if id > afterID {
			page = append(page, id)
			if len(page) == limit {
				break
			}
		}
	}
	return page, nil
}

type fakeDeliveries struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.Delivery
}

func newFakeDeliveries() *fakeDeliveries {
	return &fakeDeliveries{rows: make(map[int64]*model.Delivery)}
}

func (f *fakeDeliveries) Create(_ context.Context, d *model.Delivery) (*model.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d.ID = f.nextID
	f.rows[d.ID] = d
	return d, nil
}

func (f *fakeDeliveries) MarkSent(_ context.Context, id int64, retryCount int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok || d.Status != model.DeliveryStatusPending {
		return false, nil
	}
	d.Status = model.DeliveryStatusSent
	d.RetryCount = retryCount
	return true, nil
}

func (f *fakeDeliveries) MarkFailed(_ context.Context, id int64, retryCount int, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok || d.Status != model.DeliveryStatusPending {
		return false, nil
	}
	d.Status = model.DeliveryStatusFailed
	d.RetryCount = retryCount
	d.FailureReason = reason
	return true, nil
}

func (f *fakeDeliveries) bySubscription(subID int64) *model.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.rows {
		if d.SubscriptionID == subID {
			return d
		}
	}
	return nil
}

type fakeGate struct {
	mu      sync.Mutex
	denied  map[int64]string // subscription id -> reason
	errFor  map[int64]error
	checked []int64
}

func newFakeGate() *fakeGate {
	return &fakeGate{denied: make(map[int64]string), errFor: make(map[int64]error)}
}

func (f *fakeGate) CanSend(_ context.Context, subID int64) (gate.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, subID)
	if err := f.errFor[subID]; err != nil {
		return gate.Decision{}, err
	}
	if reason, ok := f.denied[subID]; ok {
		return gate.Decision{Reason: reason}, nil
	}
	return gate.Decision{Allowed: true, Reason: gate.ReasonAllowed}, nil
}

type fakeSender struct {
	mu       sync.Mutex
	results  map[int64]dispatch.Result // subscription id -> outcome
	panicFor map[int64]bool
	calls    []int64
	inFlight int
	maxSeen  int
}

func newFakeSender() *fakeSender {
	return &fakeSender{results: make(map[int64]dispatch.Result), panicFor: make(map[int64]bool)}
}

func (f *fakeSender) SendTracked(_ context.Context, _ int64, subID int64, _ *model.PushPayload) dispatch.Result {
	f.mu.Lock()
	f.calls = append(f.calls, subID)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	panics := f.panicFor[subID]
	res, scripted := f.results[subID]
	f.mu.Unlock()

	time.Sleep(time.Millisecond)
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if panics {
		panic("sender exploded")
	}
	if scripted {
		return res
	}
	return dispatch.Result{Success: true, Attempts: 1}
}

type fakeSink struct {
	mu     sync.Mutex
	events []model.DeliveryEvent
	err    error
}

func (f *fakeSink) PublishDeliveryEvent(_ context.Context, ev model.DeliveryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeSink) outcomes() map[int64]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]string, len(f.events))
	for _, ev := range f.events {
		out[ev.SubscriptionID] = ev.Outcome
	}
	return out
}

func draftCampaign(id int64) *model.Campaign {
	return &model.Campaign{
		ID:      id,
		Name:    "spring launch",
		Payload: model.PushPayload{Title: "Spring sale", Body: "Everything half off today"},
		Status:  model.CampaignStatusDraft,
	}
}

type orchestratorFixture struct {
	campaigns  *fakeCampaigns
	audience   *fakeAudience
	deliveries *fakeDeliveries
	gate       *fakeGate
	sender     *fakeSender
	sink       *fakeSink
}

func newFixture(c *model.Campaign, subIDs []int64, cfg Config) (*Orchestrator, *orchestratorFixture) {
	fx := &orchestratorFixture{
		campaigns:  newFakeCampaigns(c),
		audience:   &fakeAudience{ids: subIDs},
		deliveries: newFakeDeliveries(),
		gate:       newFakeGate(),
		sender:     newFakeSender(),
		sink:       &fakeSink{},
	}
	o := New(fx.campaigns, fx.audience, fx.deliveries, fx.gate, fx.sender, fx.sink, cfg)
	return o, fx
}

func TestOrchestrator_SendAllRecipients(t *testing.T) {
	o, fx := newFixture(draftCampaign(1), []int64{101, 102, 103}, Config{})

	res, err := o.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 3}, res)

	assert.Equal(t, model.CampaignStatusCompleted, fx.campaigns.campaigns[1].Status)
	assert.Equal(t, Result{Sent: 3}, fx.campaigns.completed[1])
	assert.Contains(t, fx.campaigns.transitions, "draft->sending")
	assert.Len(t, fx.sender.calls, 3)
	for _, subID := range []int64{101, 102, 103} {
		d := fx.deliveries.bySubscription(subID)
		require.NotNil(t, d, "every recipient gets a delivery row")
		assert.Equal(t, model.DeliveryStatusSent, d.Status)
		assert.Equal(t, int64(1), *d.CampaignID)
		assert.JSONEq(t, `{"title":"Spring sale","body":"Everything half off today"}`, d.Payload)
	}
	assert.Equal(t,
		map[int64]string{101: "sent", 102: "sent", 103: "sent"},
		fx.sink.outcomes())
}

func TestOrchestrator_MixedOutcomes(t *testing.T) {
	o, fx := newFixture(draftCampaign(1), []int64{101, 102, 103}, Config{})
	fx.gate.denied[102] = gate.ReasonQuietHours
	fx.sender.results[103] = dispatch.Result{
		ErrorCode: retry.CodeNetwork, Reason: "connection refused", Attempts: 3,
	}

	res, err := o.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1, Failed: 1, Skipped: 1}, res)

	// The denied recipient keeps its pending row and is never dispatched.
	denied := fx.deliveries.bySubscription(102)
	require.NotNil(t, denied)
	assert.Equal(t, model.DeliveryStatusPending, denied.Status)
	assert.NotContains(t, fx.sender.calls, int64(102))

	failed := fx.deliveries.bySubscription(103)
	require.NotNil(t, failed)
	assert.Equal(t, model.DeliveryStatusFailed, failed.Status)
	assert.Equal(t, 3, failed.RetryCount)
	assert.Equal(t, "connection refused", failed.FailureReason)

	outcomes := fx.sink.outcomes()
	assert.Equal(t, "sent", outcomes[101])
	assert.Equal(t, "skipped", outcomes[102])
	assert.Equal(t, "failed", outcomes[103])
}

func TestOrchestrator_PausedCampaignRefusesToSend(t *testing.T) {
	c := draftCampaign(1)
	c.Paused = true
	o, fx := newFixture(c, []int64{101}, Config{})

	_, err := o.Send(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRunnable)
	assert.Contains(t, err.Error(), "paused")
	assert.Empty(t, fx.campaigns.transitions)
	assert.Empty(t, fx.sender.calls)
}

func TestOrchestrator_DeletedCampaignRefusesToSend(t *testing.T) {
	c := draftCampaign(1)
	now := time.Now()
	c.DeletedAt = &now
	o, fx := newFixture(c, []int64{101}, Config{})

	_, err := o.Send(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRunnable)
	assert.Contains(t, err.Error(), "deleted")
	assert.Empty(t, fx.sender.calls)
}

func TestOrchestrator_UnknownCampaignIsNotRunnable(t *testing.T) {
	o, fx := newFixture(draftCampaign(1), []int64{101}, Config{})

	_, err := o.Send(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRunnable)
	assert.Empty(t, fx.sender.calls)
}

func TestOrchestrator_AlreadySendingLosesTheTrigger(t *testing.T) {
	c := draftCampaign(1)
	c.Status = model.CampaignStatusSending
	o, fx := newFixture(c, []int64{101}, Config{})

	_, err := o.Send(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRunnable)
	assert.Contains(t, err.Error(), "not in a sendable state")
	assert.Empty(t, fx.sender.calls)
}

func TestOrchestrator_ScheduledCampaignIsSendable(t *testing.T) {
	c := draftCampaign(1)
	c.Status = model.CampaignStatusScheduled
	o, fx := newFixture(c, []int64{101}, Config{})

	res, err := o.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1}, res)
	assert.Contains(t, fx.campaigns.transitions, "scheduled->sending")
}

func TestOrchestrator_EmptyAudienceCompletes(t *testing.T) {
	o, fx := newFixture(draftCampaign(1), nil, Config{})

	res, err := o.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, model.CampaignStatusCompleted, fx.campaigns.campaigns[1].Status)
}

func TestOrchestrator_PagesThroughAudience(t *testing.T) {
	o, fx := newFixture(draftCampaign(1), []int64{1, 2, 3, 4, 5}, Config{PageSize: 2})

	res, err := o.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 5}, res)
	assert.Equal(t, []int64{0, 2, 4, 5}, fx.audience.afters, "cursor advances to the last id of each page")
}

func TestOrchestrator_ConcurrencyIsBounded(t *testing.T) {
	ids := make([]int64, 20)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	o, fx := newFixture(draftCampaign(1), ids, Config{Concurrency: 3})

	res, err := o.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 20}, res)
	assert.LessOrEqual(t, fx.sender.maxSeen, 3, "no more than Concurrency sends in flight")
}

func TestOrchestrator_PanickedRecipientCountsAsFailed(t *testing.T) {
	o, fx := newFixture(draftCampaign(1), []int64{101, 102, 103}, Config{})
	fx.sender.panicFor[102] = true

	res, err := o.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 2, Failed: 1}, res)
	assert.Equal(t, model.CampaignStatusCompleted, fx.campaigns.campaigns[1].Status)
}

func TestOrchestrator_GateErrorFailsOnlyThatRecipient(t *testing.T) {
	o, fx := newFixture(draftCampaign(1), []int64{101, 102}, Config{})
	fx.gate.errFor[101] = errors.New("preferences store down")

	res, err := o.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1, Failed: 1}, res)

	failed := fx.deliveries.bySubscription(101)
	require.NotNil(t, failed)
	assert.Equal(t, model.DeliveryStatusFailed, failed.Status)
	assert.NotContains(t, fx.sender.calls, int64(101), "no dispatch without a gate verdict")
}

func TestOrchestrator_SinkErrorsDoNotChangeOutcomes(t *testing.T) {
	o, fx := newFixture(draftCampaign(1), []int64{101, 102}, Config{})
	fx.sink.err = errors.New("stream unavailable")

	res, err := o.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 2}, res)
}
