package mmapappend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mmapappend/internal/dirty"
	"github.com/hupe1980/mmapappend/internal/mmap"
	"github.com/hupe1980/mmapappend/internal/resource"
)

// AccessPattern is a paging hint passed to Advise.
type AccessPattern = mmap.AccessPattern

const (
	AccessDefault    = mmap.AccessDefault
	AccessSequential = mmap.AccessSequential
	AccessRandom     = mmap.AccessRandom
	AccessWillNeed   = mmap.AccessWillNeed
	AccessDontNeed   = mmap.AccessDontNeed
)

// Flush synchronously writes the whole mapping back to the file.
func (b *AppendBuffer) Flush() error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()
	return b.flushAll()
}

// FlushAsync schedules write-back of the whole mapping and returns at once.
func (b *AppendBuffer) FlushAsync() error {
	return b.FlushAsyncRange(0, b.Len())
}

// FlushRange synchronously writes back [off, off+n). The range is widened to
// page boundaries. A range outside the mapping fails with
// ErrRangeOutOfBounds before any syscall.
func (b *AppendBuffer) FlushRange(off, n int64) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()
	return b.msync(off, n, false)
}

// FlushAsyncRange schedules write-back of [off, off+n).
func (b *AppendBuffer) FlushAsyncRange(off, n int64) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()
	return b.msync(off, n, true)
}

func (b *AppendBuffer) flushAll() error {
	if b.dirty == nil {
		return b.msync(0, b.Len(), false)
	}
	// Pages dirtied after this point are picked up by the next flush.
	runs := b.dirty.Take()
	if err := b.msync(0, b.Len(), false); err != nil {
		b.remark(runs)
		return err
	}
	return nil
}

// FlushDirty synchronously writes back the pages touched since the last
// FlushDirty or Flush. Runs are synced concurrently, bounded by the flush
// worker limit, and throttled by the flush byte rate.
//
// Without dirty tracking it flushes the whole mapping.
func (b *AppendBuffer) FlushDirty(ctx context.Context) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()
	return b.flushDirty(ctx)
}

func (b *AppendBuffer) flushDirty(ctx context.Context) error {
	if b.dirty == nil {
		return b.flushAll()
	}

	runs := b.dirty.Take()
	if len(runs) == 0 {
		return nil
	}

	size := b.Len()
	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		if run.Offset >= size {
			continue
		}
		if run.End() > size {
			run.Length = size - run.Offset
		}

		g.Go(func() error {
			if err := b.rc.AcquireWorker(gctx); err != nil {
				b.dirty.Mark(run.Offset, run.Length)
				return err
			}
			defer b.rc.ReleaseWorker()

			if err := b.rc.AcquireIO(gctx, int(run.Length)); err != nil {
				b.dirty.Mark(run.Offset, run.Length)
				return err
			}
			if err := b.msync(run.Offset, run.Length, false); err != nil {
				b.dirty.Mark(run.Offset, run.Length)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// DirtyPages returns the number of pages awaiting FlushDirty, or 0 without
// dirty tracking.
func (b *AppendBuffer) DirtyPages() uint64 {
	if b.dirty == nil {
		return 0
	}
	return b.dirty.Pages()
}

func (b *AppendBuffer) remark(runs []dirty.Run) {
	for _, r := range runs {
		b.dirty.Mark(r.Offset, r.Length)
	}
}

// msync writes back [off, off+n). The caller holds the mapping.
func (b *AppendBuffer) msync(off, n int64, async bool) error {
	if err := b.checkRange(off, n); err != nil {
		return err
	}

	start := time.Now()
	op := "flush"
	if async {
		op = "flush_async"
	}
	err := ioError(op, off, n, b.m.Flush(int(off), int(n), async))

	b.opts.metricsCollector.RecordFlush(n, async, time.Since(start), err)
	b.logger.LogFlush(context.Background(), off, n, async, err)
	return err
}

// Advise hints the expected access pattern for the whole mapping.
func (b *AppendBuffer) Advise(pattern AccessPattern) error {
	return b.AdviseRange(pattern, 0, b.Len())
}

// AdviseRange hints the expected access pattern for [off, off+n). A range
// outside the mapping fails with ErrRangeOutOfBounds before any syscall.
func (b *AppendBuffer) AdviseRange(pattern AccessPattern, off, n int64) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	if err := b.checkRange(off, n); err != nil {
		return err
	}
	if err := b.m.AdviseRange(pattern, int(off), int(n)); err != nil {
		return ioError("advise "+pattern.String(), off, n, err)
	}
	return nil
}

// PinPages locks the whole mapping in physical memory. The pinned bytes count
// against the resource controller's pin limit. Pinning an already pinned
// buffer is a no-op.
func (b *AppendBuffer) PinPages() error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	b.pinMu.Lock()
	defer b.pinMu.Unlock()

	if b.pinned.Load() > 0 {
		return nil
	}

	size := b.Len()
	if err := b.rc.AcquirePin(size); err != nil {
		if errors.Is(err, resource.ErrPinLimitExceeded) {
			return fmt.Errorf("mmapappend: pin %d bytes: %w (limit %d, in use %d)",
				size, err, b.rc.PinLimit(), b.rc.PinnedBytes())
		}
		return err
	}
	if err := b.m.Pin(); err != nil {
		b.rc.ReleasePin(size)
		return ioError("pin", 0, size, err)
	}
	b.pinned.Store(size)
	return nil
}

// UnpinPages undoes PinPages. Unpinning a buffer that is not pinned is a
// no-op.
func (b *AppendBuffer) UnpinPages() error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	b.pinMu.Lock()
	defer b.pinMu.Unlock()

	size := b.pinned.Load()
	if size == 0 {
		return nil
	}
	if err := b.m.Unpin(); err != nil {
		return ioError("unpin", 0, size, err)
	}
	b.pinned.Store(0)
	b.rc.ReleasePin(size)
	return nil
}

// Pinned reports whether PinPages is in effect.
func (b *AppendBuffer) Pinned() bool { return b.pinned.Load() > 0 }

func (b *AppendBuffer) checkRange(off, n int64) error {
	size := b.Len()
	if off < 0 || n < 0 || off > size || n > size-off {
		return &RangeError{Offset: off, Length: n, Limit: size}
	}
	return nil
}
