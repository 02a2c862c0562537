package upstream

import (
	"context"
	"time"

	"example.com/league/internal/observability"
)

// DefaultEffortRetryDelays mask the gap between an upstream push
// notification and the completion of its effort indexing.
var DefaultEffortRetryDelays = []time.Duration{15 * time.Second, 45 * time.Second, 90 * time.Second}

// Retrier wraps a single activity detail fetch with bounded backoff against
// the upstream's asynchronous effort indexing. The same policy serves the
// webhook-push and batch-pull triggers.
type Retrier struct {
	provider Provider
	delays   []time.Duration
	wait     func(context.Context, time.Duration) error
}

// NewRetrier constructs a Retrier; an empty delay list falls back to
// DefaultEffortRetryDelays.
func NewRetrier(provider Provider, delays []time.Duration) *Retrier {
	if len(delays) == 0 {
		delays = DefaultEffortRetryDelays
	}
	return &Retrier{provider: provider, delays: delays, wait: waitContext}
}

// FetchWithEffortRetry fetches the activity detail up to len(delays)+1
// times, waiting between attempts. A non-empty effort list (a nil list
// counts as empty) returns immediately with no further waits. Transport and
// auth failures propagate at once: backoff exists for the indexing race, not
// for network trouble. When every attempt comes back empty the last detail
// is returned so the selector can reject it as insufficient repetitions,
// the terminal outcome when the upstream never finishes indexing.
func (r *Retrier) FetchWithEffortRetry(ctx context.Context, token string, activityID int64) (*ActivityDetail, error) {
	for attempt := 0; ; attempt++ {
		detail, err := r.provider.GetActivityDetail(ctx, token, activityID)
		if err != nil {
			return nil, err
		}
		if len(detail.SegmentEfforts) > 0 || attempt >= len(r.delays) {
			return detail, nil
		}
		observability.RecordEffortRetryWait()
		if err := r.wait(ctx, r.delays[attempt]); err != nil {
			return nil, err
		}
	}
}

// waitContext sleeps without occupying a dedicated timer past cancellation.
func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
