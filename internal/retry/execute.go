package retry

import (
	"context"
	"time"
)

// Result summarizes a completed Execute run.
type Result struct {
	Success    bool
	Err        error
	Code       ErrorCode
	Attempts   int
	TotalDelay time.Duration
}

// Execute runs op up to p.MaxAttempts times, sleeping NextDelay between
// attempts. The loop blocks only the caller's goroutine; sleeps honor ctx
// cancellation. An error classified as non-retryable ends the run at once,
// no matter how many attempts the policy would otherwise allow.
func Execute(ctx context.Context, p Policy, op func(ctx context.Context) error) Result {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	res := Result{}
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		res.Attempts = attempt

		err := op(ctx)
		if err == nil {
			res.Success = true
			res.Err = nil
			return res
		}

		res.Err = err
		res.Code = Classify(err)

		if !IsRetryable(res.Code) || attempt == p.MaxAttempts {
			return res
		}

		delay := NextDelay(attempt, p)
		res.TotalDelay += delay

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			res.Code = Classify(ctx.Err())
			return res
		case <-time.After(delay):
		}
	}
	return res
}
