package pipeline

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/youtubelmm/api/internal/failure"
)

// RetryPolicy bounds and spaces the retries of a stage.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64 // 0..1, fraction of the delay that may be shaved off
}

// DefaultPolicies are the retry policies of each stage.
var DefaultPolicies = map[Stage]RetryPolicy{
	StageFetch:      {MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Minute, Jitter: 0.5},
	StageTranscribe: {MaxRetries: 2, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Minute, Jitter: 0.5},
	StageSummarize:  {MaxRetries: 2, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Minute, Jitter: 0.5},
	StageFinalize:   {MaxRetries: 0},
}

// PolicyFor returns the policy of stage, or a no-retry policy.
func PolicyFor(stage Stage) RetryPolicy {
	return DefaultPolicies[stage]
}

// Backoff returns the delay before retry n, counting from 1.
func (p RetryPolicy) Backoff(n int) time.Duration {
	return p.backoff(n, rand.Float64())
}

func (p RetryPolicy) backoff(n int, r float64) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	j := math.Min(math.Max(p.Jitter, 0), 1)
	return time.Duration(d * (1 - j*r))
}

// Retry runs fn until it succeeds, fails with a non-retryable error or the
// policy is exhausted. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry(ctx, p, fn, sleepCtx)
}

func retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error), sleep func(context.Context, time.Duration) error) (T, error) {
	for attempt := 0; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !failure.IsRetryable(err) || attempt >= p.MaxRetries {
			return out, err
		}
		if serr := sleep(ctx, p.Backoff(attempt+1)); serr != nil {
			return out, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
