package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorLimiter_FirstCallDoesNotBlock(t *testing.T) {
	l := NewVendorLimiter()
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "primegov"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestVendorLimiter_SecondCallWaitsAtLeastTheVendorDelay(t *testing.T) {
	l := NewVendorLimiter()
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "legistar"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "legistar"))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, vendorDelay["legistar"])
}

func TestVendorLimiter_DifferentVendorsDoNotBlockEachOther(t *testing.T) {
	l := NewVendorLimiter()
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "civicplus"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "granicus"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestVendorLimiter_ContextCancellation(t *testing.T) {
	l := NewVendorLimiter()
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "municode"))

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := l.Wait(cancelCtx, "municode")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
