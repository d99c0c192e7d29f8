package source

import (
	"context"
	"time"
)

// steadyStateBackoff computes the exponential reconnect delay used once
// a camera has been probed successfully and later drops mid-stream.
// This is deliberately distinct from the fixed-schedule probe retry in
// probeWithRetry: a source that was streaming fine a moment ago is
// assumed to be a transient network blip, so backing off aggressively
// (grounded on the capture library's RunWithReconnect/calculateBackoff)
// recovers faster than the conservative, fixed probe schedule would.
type steadyStateBackoff struct {
	attempt int
	base    time.Duration
	cap     time.Duration
}

func newSteadyStateBackoff(base time.Duration) *steadyStateBackoff {
	return &steadyStateBackoff{base: base, cap: 30 * time.Second}
}

func (b *steadyStateBackoff) next() time.Duration {
	b.attempt++
	delay := b.base * time.Duration(1<<uint(b.attempt-1))
	if delay > b.cap {
		delay = b.cap
	}
	return delay
}

func (b *steadyStateBackoff) reset() { b.attempt = 0 }

func sleepOrCancel(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
