package mmapappend

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/mmapappend/internal/header"
)

// AcquireAppendLock takes the append lock in the mapped header, waiting until
// it is free or ctx is done. A done ctx yields an error matching
// ErrLockTimeout. WithLockTimeout also bounds the wait, and Close ends it
// with ErrClosed.
//
// The lock is not reentrant: calling Append while holding it blocks until
// the wait gives up. Always pair with ReleaseAppendLock.
func (b *AppendBuffer) AcquireAppendLock(ctx context.Context) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	ctx, cancel := b.lockContext(ctx)
	defer cancel()

	if err := b.acquire(ctx); err != nil {
		return err
	}
	b.held.Store(true)
	return nil
}

// TryAcquireAppendLock takes the append lock if it is free, without waiting.
func (b *AppendBuffer) TryAcquireAppendLock() bool {
	if b.enter() != nil {
		return false
	}
	defer b.leave()
	if !b.hdr.TryAcquire(b.token) {
		return false
	}
	b.held.Store(true)
	return true
}

// ReleaseAppendLock clears the append lock. It returns ErrNotLocked if the
// lock word was already clear.
//
// The lock word records the holder's process ID but release does not check
// it: any mapping can clear the lock.
func (b *AppendBuffer) ReleaseAppendLock() error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()
	b.held.Store(false)
	if err := b.hdr.Release(); err != nil {
		if errors.Is(err, header.ErrNotLocked) {
			return ErrNotLocked
		}
		return err
	}
	return nil
}

// AppendLocked reports whether any process holds the append lock.
func (b *AppendBuffer) AppendLocked() bool {
	if b.enter() != nil {
		return false
	}
	defer b.leave()
	return b.hdr.Locked()
}

// LockHolder returns the process ID stored in the lock word, or 0 if the lock
// is free.
func (b *AppendBuffer) LockHolder() uint64 {
	if b.enter() != nil {
		return 0
	}
	defer b.leave()
	return b.hdr.Holder()
}

func (b *AppendBuffer) lockContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.opts.lockTimeout > 0 {
		return context.WithTimeout(ctx, b.opts.lockTimeout)
	}
	return ctx, func() {}
}

func (b *AppendBuffer) acquire(ctx context.Context) error {
	start := time.Now()
	err := b.wait(ctx)
	b.opts.metricsCollector.RecordLockWait(time.Since(start), err)
	return err
}

// wait spins briefly, then polls at the configured retry interval until the
// lock is taken, ctx is done or Close begins. The caller holds the mapping.
func (b *AppendBuffer) wait(ctx context.Context) error {
	for i := 0; i < lockSpins; i++ {
		if b.closed.Load() {
			return ErrClosed
		}
		if b.hdr.TryAcquire(b.token) {
			return nil
		}
		runtime.Gosched()
	}

	limiter := rate.NewLimiter(rate.Every(b.opts.lockRetryInterval), 1)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if b.hdr.TryAcquire(b.token) {
			return nil
		}

		timer.Reset(limiter.Reserve().Delay())
		select {
		case <-timer.C:
		case <-b.done:
			return ErrClosed
		case <-ctx.Done():
			// The lock may have been freed right at the deadline.
			if b.hdr.TryAcquire(b.token) {
				return nil
			}
			cause := ctx.Err()
			holder := b.hdr.Holder()
			b.logger.WarnContext(ctx, "append lock wait gave up", "holder", holder, "error", cause)
			return fmt.Errorf("%w (held by %d): %w", ErrLockTimeout, holder, cause)
		}
	}
}

func (b *AppendBuffer) release() {
	if err := b.hdr.Release(); err != nil {
		b.logger.Warn("append lock was cleared while held", "error", err)
	}
}
