package engine

import (
	"context"
	"time"
)

// rateBarrier caps the number of dispatches inside a fixed one-second
// window. It is not safe for concurrent use; the engine is single-threaded.
type rateBarrier struct {
	maxPerWindow int
	windowStart  time.Time
	count        int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func newRateBarrier(maxPerWindow int) *rateBarrier {
	return &rateBarrier{
		maxPerWindow: maxPerWindow,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// await blocks until the current window has room for one more dispatch.
func (b *rateBarrier) await(ctx context.Context) {
	if b == nil {
		return
	}
	now := b.now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= time.Second {
		b.windowStart = now
		b.count = 0
	}
	if b.count >= b.maxPerWindow {
		b.sleep(ctx, b.windowStart.Add(time.Second).Sub(now))
		b.windowStart = b.now()
		b.count = 0
	}
	b.count++
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
