package benchmark_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/hupe1980/mmapappend"
)

// ============================================================================
// Append Benchmarks
// ============================================================================

// BenchmarkAppend measures single-goroutine append throughput.
func BenchmarkAppend(b *testing.B) {
	for _, size := range []int{16, 256, 4096} {
		b.Run("size="+strconv.Itoa(size), func(b *testing.B) {
			buf := OpenBenchBuffer(b)
			rec := make([]byte, size)
			limit := recordsFor(size)

			b.SetBytes(int64(size))
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if i == limit {
					b.StopTimer()
					buf = OpenBenchBuffer(b)
					b.StartTimer()
				}
				if _, err := buf.Append(rec); err != nil {
					b.Fatal(err)
				}
			}

			b.StopTimer()
			b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "appends/sec")
		})
	}
}

// BenchmarkAppendParallel measures lock contention between goroutines
// sharing one mapping.
func BenchmarkAppendParallel(b *testing.B) {
	buf := OpenBenchBuffer(b)
	rec := make([]byte, 64)
	ctx := context.Background()

	b.SetBytes(int64(len(rec)))
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := buf.AppendContext(ctx, rec); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkAppendTracked measures the cost of dirty page tracking.
func BenchmarkAppendTracked(b *testing.B) {
	buf := OpenBenchBuffer(b, mmapappend.WithDirtyTracking())
	rec := make([]byte, 256)

	b.SetBytes(int64(len(rec)))
	b.ResetTimer()

	for i := 0; i < b.N && i < recordsFor(len(rec)); i++ {
		if _, err := buf.Append(rec); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFlushDirty measures writing back the pages touched by a batch
// of appends.
func BenchmarkFlushDirty(b *testing.B) {
	buf := OpenBenchBuffer(b, mmapappend.WithDirtyTracking(), mmapappend.WithFlushWorkers(4))
	rec := make([]byte, 1024)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		for range 64 {
			if _, err := buf.Append(rec); err != nil {
				if i > 0 {
					b.Skip("buffer full")
				}
				b.Fatal(err)
			}
		}
		b.StartTimer()

		start := time.Now()
		if err := buf.FlushDirty(ctx); err != nil {
			b.Fatal(err)
		}
		b.ReportMetric(float64(time.Since(start).Microseconds()), "flush-us")
	}
}
