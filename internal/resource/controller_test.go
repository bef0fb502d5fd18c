package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Pin(t *testing.T) {
	c := NewController(Config{PinLimitBytes: 100})
	assert.Equal(t, int64(100), c.PinLimit())

	require.NoError(t, c.AcquirePin(50))
	require.NoError(t, c.AcquirePin(40))
	assert.Equal(t, int64(90), c.PinnedBytes())

	// Acquire 20 (should fail - limit exceeded)
	assert.ErrorIs(t, c.AcquirePin(20), ErrPinLimitExceeded)
	assert.Equal(t, int64(90), c.PinnedBytes())

	c.ReleasePin(50)
	assert.Equal(t, int64(40), c.PinnedBytes())

	require.NoError(t, c.AcquirePin(20))
	assert.Equal(t, int64(60), c.PinnedBytes())

	// Non-positive sizes are ignored.
	require.NoError(t, c.AcquirePin(-1))
	c.ReleasePin(0)
	assert.Equal(t, int64(60), c.PinnedBytes())
}

func TestController_UnlimitedPin(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, int64(0), c.PinLimit())

	require.NoError(t, c.AcquirePin(1000))
	assert.Equal(t, int64(1000), c.PinnedBytes())

	c.ReleasePin(500)
	assert.Equal(t, int64(500), c.PinnedBytes())
}

func TestController_Workers(t *testing.T) {
	c := NewController(Config{MaxFlushWorkers: 2})
	assert.Equal(t, 2, c.MaxFlushWorkers())

	require.NoError(t, c.AcquireWorker(t.Context()))
	require.NoError(t, c.AcquireWorker(t.Context()))
	assert.False(t, c.TryAcquireWorker())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireWorker(ctx))

	c.ReleaseWorker()
	assert.True(t, c.TryAcquireWorker())

	// Default is a single worker.
	assert.Equal(t, 1, NewController(Config{}).MaxFlushWorkers())
}

func TestController_IO(t *testing.T) {
	c := NewController(Config{FlushBytesPerSec: 1000})
	ctx := context.Background()

	require.NoError(t, c.AcquireIO(ctx, 100))
	assert.True(t, c.TryAcquireIO(100))

	// Larger than the bucket: split into several waits instead of failing.
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, c.AcquireIO(ctx2, 1500))
	assert.Greater(t, time.Since(start), 500*time.Millisecond)

	// Unlimited
	c2 := NewController(Config{})
	assert.NoError(t, c2.AcquireIO(ctx, 1000000))
	assert.True(t, c2.TryAcquireIO(1000000))
}

func TestController_IOCanceled(t *testing.T) {
	c := NewController(Config{FlushBytesPerSec: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, c.AcquireIO(ctx, 10))
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.AcquirePin(100))
	c.ReleasePin(100)
	assert.Equal(t, int64(0), c.PinnedBytes())
	assert.Equal(t, int64(0), c.PinLimit())

	assert.NoError(t, c.AcquireWorker(context.Background()))
	assert.True(t, c.TryAcquireWorker())
	c.ReleaseWorker()
	assert.Equal(t, 1, c.MaxFlushWorkers())

	assert.NoError(t, c.AcquireIO(context.Background(), 100))
	assert.True(t, c.TryAcquireIO(100))
}

func TestRateLimitedWriter(t *testing.T) {
	c := NewController(Config{FlushBytesPerSec: 10000})

	var buf bytes.Buffer
	w := NewRateLimitedWriter(context.Background(), &buf, c)

	n, err := w.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
}
