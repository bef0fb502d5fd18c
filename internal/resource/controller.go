package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrPinLimitExceeded is returned when pinning would exceed the configured budget.
var ErrPinLimitExceeded = errors.New("pin limit exceeded")

// Config holds resource limits.
type Config struct {
	// PinLimitBytes is the hard limit for page-locked memory across every
	// buffer sharing the controller.
	// If 0, no hard limit is enforced (only tracking).
	PinLimitBytes int64

	// MaxFlushWorkers is the maximum number of concurrent background flushes.
	// If 0, defaults to 1.
	MaxFlushWorkers int64

	// FlushBytesPerSec is the maximum write-back throughput for background flushes.
	// If 0, unlimited.
	FlushBytesPerSec int64
}

// Controller manages resources shared by append buffers (pinned memory,
// flush concurrency, flush IO).
type Controller struct {
	cfg Config

	// Pinned memory
	pinSem  *semaphore.Weighted // nil if unlimited
	pinUsed atomic.Int64

	// Concurrency
	workerSem *semaphore.Weighted

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxFlushWorkers <= 0 {
		cfg.MaxFlushWorkers = 1
	}

	c := &Controller{
		cfg:       cfg,
		workerSem: semaphore.NewWeighted(cfg.MaxFlushWorkers),
	}

	if cfg.PinLimitBytes > 0 {
		c.pinSem = semaphore.NewWeighted(cfg.PinLimitBytes)
	}

	if cfg.FlushBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.FlushBytesPerSec), int(cfg.FlushBytesPerSec))
	}

	return c
}

// AcquirePin attempts to reserve bytes of pinned memory.
// Returns ErrPinLimitExceeded if the limit would be exceeded.
// Non-blocking - callers control retry/backoff policy.
func (c *Controller) AcquirePin(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.pinSem != nil {
		if !c.pinSem.TryAcquire(bytes) {
			return ErrPinLimitExceeded
		}
	}

	c.pinUsed.Add(bytes)
	return nil
}

// ReleasePin releases reserved pinned memory.
func (c *Controller) ReleasePin(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.pinSem != nil {
		c.pinSem.Release(bytes)
	}
	c.pinUsed.Add(-bytes)
}

// PinnedBytes returns the current pinned memory in bytes.
func (c *Controller) PinnedBytes() int64 {
	if c == nil {
		return 0
	}
	return c.pinUsed.Load()
}

// PinLimit returns the configured pin limit in bytes (0 if unlimited).
func (c *Controller) PinLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.PinLimitBytes
}

// MaxFlushWorkers returns the number of flush worker slots.
func (c *Controller) MaxFlushWorkers() int {
	if c == nil {
		return 1
	}
	return int(c.cfg.MaxFlushWorkers)
}

// AcquireWorker reserves a flush worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workerSem.Acquire(ctx, 1)
}

// TryAcquireWorker attempts to reserve a flush worker slot without blocking.
func (c *Controller) TryAcquireWorker() bool {
	if c == nil {
		return true
	}
	return c.workerSem.TryAcquire(1)
}

// ReleaseWorker releases a flush worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workerSem.Release(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than the bucket are split into burst-sized waits.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// TryAcquireIO attempts to acquire IO tokens without blocking.
// Returns true if tokens were acquired, false otherwise.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	return c.ioLimiter.AllowN(time.Now(), bytes)
}
