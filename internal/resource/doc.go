// Package resource implements the Controller shared by append buffers.
//
// The Controller manages three resource types:
//
//   - Pinned memory: budget for PinPages across buffers (non-blocking, fail-fast)
//   - Flush workers: limit concurrent background msync runs
//   - Flush IO: rate-limit write-back and snapshot uploads so they do not starve appenders
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                        Controller                           │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Pin Budget     │  Flush Workers  │  IO Rate Limiter        │
//	│  (fail-fast)    │  (semaphore)    │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  AcquirePin     │  AcquireWorker  │  AcquireIO              │
//	│  ReleasePin     │  TryAcquire     │  RateLimitedWriter      │
//	│  PinnedBytes    │  ReleaseWorker  │                         │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// # Pinned Memory
//
//	rc := resource.NewController(resource.Config{
//	    PinLimitBytes: 64 << 20,
//	})
//
//	if err := rc.AcquirePin(size); err != nil {
//	    // ErrPinLimitExceeded - caller decides retry/backoff
//	}
//	defer rc.ReleasePin(size)
//
// # IO Rate Limiting
//
// Token bucket rate limiter; requests larger than one second of budget are
// split into several waits:
//
//	if err := rc.AcquireIO(ctx, runLength); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
