package processor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/pushmill/push-gateway/internal/campaign"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls   []int64
	result  campaign.Result
	err     error
	perCall map[int64]error
}

func (f *fakeRunner) Send(_ context.Context, campaignID int64) (campaign.Result, error) {
	f.calls = append(f.calls, campaignID)
	if f.perCall != nil {
		if err, ok := f.perCall[campaignID]; ok {
			return campaign.Result{}, err
		}
	}
	return f.result, f.err
}

func jobMessage(t *testing.T, job model.CampaignJob) *queue.Message {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return &queue.Message{ID: "1-0", Data: data}
}

func newJobProcessor(runner *fakeRunner) (*CampaignJobProcessor, *IdempotencyService) {
	idem := NewIdempotencyService(newMockRedisAdapter(), DefaultIdempotencyConfig())
	return NewCampaignJobProcessor(runner, idem), idem
}

func TestCampaignJobProcessor_SuccessfulRun(t *testing.T) {
	runner := &fakeRunner{result: campaign.Result{Sent: 3, Failed: 1, Skipped: 1}}
	p, idem := newJobProcessor(runner)
	ctx := context.Background()

	err := p.Process(ctx, jobMessage(t, model.CampaignJob{CampaignID: 42, TriggeredBy: model.JobTriggerAPI}))
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, runner.calls)

	processed, err := idem.IsProcessed(ctx, "42")
	require.NoError(t, err)
	assert.True(t, processed, "a finished run leaves the processed marker")
}

func TestCampaignJobProcessor_DuplicateJobIsDropped(t *testing.T) {
	runner := &fakeRunner{}
	p, _ := newJobProcessor(runner)
	ctx := context.Background()

	msg := jobMessage(t, model.CampaignJob{CampaignID: 42})
	require.NoError(t, p.Process(ctx, msg))
	require.NoError(t, p.Process(ctx, msg))

	assert.Len(t, runner.calls, 1, "the second delivery never reaches the orchestrator")
}

func TestCampaignJobProcessor_NotRunnableAcksWithoutMarker(t *testing.T) {
	runner := &fakeRunner{err: errors.Wrap(campaign.ErrNotRunnable, "campaign 42 is paused")}
	p, idem := newJobProcessor(runner)
	ctx := context.Background()

	err := p.Process(ctx, jobMessage(t, model.CampaignJob{CampaignID: 42}))
	assert.NoError(t, err, "a paused campaign is not worth a redelivery")

	processed, err := idem.IsProcessed(ctx, "42")
	require.NoError(t, err)
	assert.False(t, processed, "a later trigger after unpausing must still run")

	count, err := idem.GetRetryCount(ctx, "42")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCampaignJobProcessor_TransientFailureNacks(t *testing.T) {
	runner := &fakeRunner{err: errors.New("audience query timed out")}
	p, idem := newJobProcessor(runner)
	ctx := context.Background()

	msg := jobMessage(t, model.CampaignJob{CampaignID: 42})
	err := p.Process(ctx, msg)
	require.Error(t, err)

	count, err := idem.GetRetryCount(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The redelivered job runs again under the bumped retry count
	runner.err = nil
	require.NoError(t, p.Process(ctx, msg))
	assert.Len(t, runner.calls, 2)
}

func TestCampaignJobProcessor_RetryBudgetExhausted(t *testing.T) {
	runner := &fakeRunner{err: errors.New("still down")}
	idem := NewIdempotencyService(newMockRedisAdapter(), IdempotencyConfig{
		LockTTL:            DefaultIdempotencyConfig().LockTTL,
		ProcessedTTL:       DefaultIdempotencyConfig().ProcessedTTL,
		MaxRetries:         2,
		RetryKeyPrefix:     "jobs:retry:",
		LockKeyPrefix:      "jobs:lock:",
		ProcessedKeyPrefix: "jobs:processed:",
	})
	p := NewCampaignJobProcessor(runner, idem)
	ctx := context.Background()

	msg := jobMessage(t, model.CampaignJob{CampaignID: 42})
	require.Error(t, p.Process(ctx, msg))
	require.Error(t, p.Process(ctx, msg))

	// Budget burnt: the job acks so the queue stops redelivering
	assert.NoError(t, p.Process(ctx, msg))
	assert.Len(t, runner.calls, 2)
}

func TestCampaignJobProcessor_MalformedJob(t *testing.T) {
	runner := &fakeRunner{}
	p, _ := newJobProcessor(runner)

	err := p.Process(context.Background(), &queue.Message{ID: "1-0", Data: []byte("{broken")})
	assert.Error(t, err, "malformed jobs head for the queue's DLQ")
	assert.Empty(t, runner.calls)
}

func TestCampaignJobProcessor_MissingCampaignID(t *testing.T) {
	runner := &fakeRunner{}
	p, _ := newJobProcessor(runner)

	err := p.Process(context.Background(), jobMessage(t, model.CampaignJob{}))
	assert.NoError(t, err, "nothing to retry without a campaign id")
	assert.Empty(t, runner.calls)
}

func TestCampaignJobProcessor_LockHeldByAnotherDispatcher(t *testing.T) {
	runner := &fakeRunner{}
	p, idem := newJobProcessor(runner)
	ctx := context.Background()

	held, err := idem.AcquireProcessingLock(ctx, "42")
	require.NoError(t, err)
	defer idem.ReleaseLock(ctx, held)

	err = p.Process(ctx, jobMessage(t, model.CampaignJob{CampaignID: 42}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another dispatcher")
	assert.Empty(t, runner.calls)
}
