package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowedBucket_AcquireWithinCapacityDoesNotBlock(t *testing.T) {
	w := NewWindowedBucket(60, 600, 5000)
	start := time.Now()
	require.NoError(t, w.Acquire(context.Background(), 1))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWindowedBucket_ExhaustingMinuteWindowBlocksSubsequentAcquire(t *testing.T) {
	w := NewWindowedBucket(1, 600, 5000)
	ctx := context.Background()
	require.NoError(t, w.Acquire(ctx, 1))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := w.Acquire(cancelCtx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWindowedBucket_SmallestWindowGoverns(t *testing.T) {
	w := NewWindowedBucket(1, 600, 5000)
	ctx := context.Background()
	require.NoError(t, w.Acquire(ctx, 1))

	cancelCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := w.Acquire(cancelCtx, 1)
	assert.Error(t, err, "the per-minute window should still be exhausted even though hour and day have ample headroom")
}

func TestWindowedBucket_ContextCancelledBeforeAcquireReturnsImmediately(t *testing.T) {
	w := NewWindowedBucket(1, 600, 5000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Acquire(context.Background(), 1))

	start := time.Now()
	err := w.Acquire(ctx, 1)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestBucket_RefillAccumulatesOverTime(t *testing.T) {
	b := newBucket(60, time.Minute)
	b.consume(60)
	assert.Equal(t, time.Duration(0), b.waitFor(b.last, 0))

	later := b.last.Add(30 * time.Second)
	wait := b.waitFor(later, 30)
	assert.Equal(t, time.Duration(0), wait, "30s at 1 token/sec should refill exactly 30 tokens")
}

func TestBucket_WaitForReportsRemainingDeficit(t *testing.T) {
	b := newBucket(60, time.Minute)
	b.consume(60)
	wait := b.waitFor(b.last, 60)
	assert.Greater(t, wait, time.Duration(0))
}
