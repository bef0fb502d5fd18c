package mmapappend

import (
	"context"
	"sync"
	"time"
)

// flusher periodically writes back the dirty pages of a buffer.
type flusher struct {
	b        *AppendBuffer
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newFlusher(b *AppendBuffer, interval time.Duration) *flusher {
	return &flusher{
		b:        b,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (f *flusher) start() {
	f.wg.Add(1)
	go f.run()
}

func (f *flusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-f.stopCh
		cancel()
	}()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			if err := f.b.FlushDirty(ctx); err != nil && ctx.Err() == nil {
				f.b.logger.Error("background flush failed", "error", err)
			}
		}
	}
}

// stop signals the worker and waits for it to exit. Pages left dirty are
// written back by the caller.
func (f *flusher) stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
	f.wg.Wait()
}
