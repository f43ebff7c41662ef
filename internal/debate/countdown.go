package debate

import (
	"context"
	"math"
	"time"
)

// waitFunc blocks until d has elapsed or ctx is done. It reports false on cancellation.
type waitFunc func(ctx context.Context, d time.Duration) bool

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// steps converts a duration into whole countdown steps.
func steps(d, tick time.Duration) int {
	if d <= 0 || tick <= 0 {
		return 0
	}
	return int(math.Round(float64(d) / float64(tick)))
}

// runCountdown emits the remaining step count against an absolute deadline:
// once immediately, then once per tick, ending with an emission of 0.
// Remaining time is always derived from the deadline so scheduling jitter
// never accumulates. emit returning false stops the countdown.
func runCountdown(ctx context.Context, deadline time.Time, tick time.Duration, wait waitFunc, emit func(remaining int) bool) {
	if wait == nil {
		wait = sleepCtx
	}
	last := math.MaxInt
	for {
		if ctx.Err() != nil {
			return
		}
		remaining := steps(time.Until(deadline), tick)
		if remaining >= last {
			remaining = last - 1
		}
		if remaining < 0 {
			remaining = 0
		}
		last = remaining

		if !emit(remaining) || remaining == 0 {
			return
		}

		next := deadline.Add(-time.Duration(remaining-1) * tick)
		if !wait(ctx, time.Until(next)) {
			return
		}
	}
}
