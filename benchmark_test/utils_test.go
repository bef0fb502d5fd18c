package benchmark_test

import (
	"path/filepath"
	"testing"

	"github.com/hupe1980/mmapappend"
)

const benchBufferSize = 1 << 30

// OpenBenchBuffer creates a buffer large enough for any b.N.
func OpenBenchBuffer(b *testing.B, opts ...mmapappend.Option) *mmapappend.AppendBuffer {
	b.Helper()

	buf, err := mmapappend.Create(filepath.Join(b.TempDir(), "bench.buf"), benchBufferSize, opts...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = buf.Close() })
	return buf
}

// recordsFor returns how many records of size n fit in a bench buffer.
func recordsFor(n int) int {
	return int((benchBufferSize - mmapappend.HeaderSize) / int64(n))
}
