package mmapappend

import (
	"errors"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordAppend is called after each append.
	// bytes is the payload size, err is nil if the append committed.
	RecordAppend(bytes int, duration time.Duration, err error)

	// RecordLockWait is called after each append lock acquisition attempt.
	// duration is the time spent waiting, err is non-nil on timeout.
	RecordLockWait(duration time.Duration, err error)

	// RecordFlush is called after each flush syscall.
	RecordFlush(bytes int64, async bool, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAppend(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordLockWait(time.Duration, error)              {}
func (NoopMetricsCollector) RecordFlush(int64, bool, time.Duration, error)    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AppendCount      atomic.Int64
	AppendErrors     atomic.Int64
	AppendBytes      atomic.Int64
	AppendTotalNanos atomic.Int64
	LockWaitCount    atomic.Int64
	LockTimeouts     atomic.Int64
	LockWaitNanos    atomic.Int64
	FlushCount       atomic.Int64
	FlushAsyncCount  atomic.Int64
	FlushErrors      atomic.Int64
	FlushBytes       atomic.Int64
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(bytes int, duration time.Duration, err error) {
	b.AppendCount.Add(1)
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
		return
	}
	b.AppendBytes.Add(int64(bytes))
}

// RecordLockWait implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLockWait(duration time.Duration, err error) {
	b.LockWaitCount.Add(1)
	b.LockWaitNanos.Add(duration.Nanoseconds())
	if errors.Is(err, ErrLockTimeout) {
		b.LockTimeouts.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(bytes int64, async bool, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	if async {
		b.FlushAsyncCount.Add(1)
	}
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AppendCount:      b.AppendCount.Load(),
		AppendErrors:     b.AppendErrors.Load(),
		AppendBytes:      b.AppendBytes.Load(),
		AppendAvgNanos:   avg(b.AppendTotalNanos.Load(), b.AppendCount.Load()),
		LockWaitCount:    b.LockWaitCount.Load(),
		LockTimeouts:     b.LockTimeouts.Load(),
		LockWaitAvgNanos: avg(b.LockWaitNanos.Load(), b.LockWaitCount.Load()),
		FlushCount:       b.FlushCount.Load(),
		FlushAsyncCount:  b.FlushAsyncCount.Load(),
		FlushErrors:      b.FlushErrors.Load(),
		FlushBytes:       b.FlushBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of metrics from BasicMetricsCollector.
type BasicMetricsStats struct {
	AppendCount      int64
	AppendErrors     int64
	AppendBytes      int64
	AppendAvgNanos   int64
	LockWaitCount    int64
	LockTimeouts     int64
	LockWaitAvgNanos int64
	FlushCount       int64
	FlushAsyncCount  int64
	FlushErrors      int64
	FlushBytes       int64
}
