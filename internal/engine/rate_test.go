package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateBarrier(t *testing.T) {
	now := time.Unix(1000, 0)
	var slept []time.Duration

	b := newRateBarrier(2)
	b.now = func() time.Time { return now }
	b.sleep = func(_ context.Context, d time.Duration) {
		slept = append(slept, d)
		now = now.Add(d)
	}

	ctx := context.Background()
	b.await(ctx)
	b.await(ctx)
	assert.Empty(t, slept, "the first window has room for two dispatches")

	b.await(ctx)
	assert.Equal(t, []time.Duration{time.Second}, slept, "the third dispatch waits out the window")

	now = now.Add(2 * time.Second)
	b.await(ctx)
	assert.Len(t, slept, 1, "a fresh window does not wait")
}

func TestNilRateBarrier(t *testing.T) {
	var b *rateBarrier
	b.await(context.Background())
}
