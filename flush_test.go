package mmapappend

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mmapappend/internal/resource"
)

func TestFlush(t *testing.T) {
	b, path := newTestBuffer(t, 8192)

	_, err := b.Append([]byte("durable"))
	require.NoError(t, err)

	require.NoError(t, b.Flush())
	require.NoError(t, b.FlushAsync())
	require.NoError(t, b.FlushAsyncRange(HeaderSize, 7))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), data[HeaderSize:HeaderSize+7])
}

func TestFlush_RangeBounds(t *testing.T) {
	b, _ := newTestBuffer(t, 4096)

	tests := []struct {
		name   string
		off, n int64
		ok     bool
	}{
		{"Whole", 0, 4096, true},
		{"EmptyAtEnd", 4096, 0, true},
		{"Unaligned", 17, 100, true},
		{"PastEnd", 4000, 200, false},
		{"NegativeOffset", -1, 1, false},
		{"NegativeLength", 0, -1, false},
		{"OffsetPastEnd", 4097, 0, false},
		{"Overflow", 1, 1<<63 - 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checks := map[string]error{
				"FlushRange":      b.FlushRange(tt.off, tt.n),
				"FlushAsyncRange": b.FlushAsyncRange(tt.off, tt.n),
				"AdviseRange":     b.AdviseRange(AccessSequential, tt.off, tt.n),
			}
			for name, err := range checks {
				if tt.ok {
					assert.NoError(t, err, name)
					continue
				}
				assert.ErrorIs(t, err, ErrRangeOutOfBounds, name)

				var rangeErr *RangeError
				if assert.True(t, errors.As(err, &rangeErr), name) {
					assert.Equal(t, int64(4096), rangeErr.Limit)
				}
			}
		})
	}
}

func TestAdvise(t *testing.T) {
	b, _ := newTestBuffer(t, 16384)

	for _, p := range []AccessPattern{AccessDefault, AccessSequential, AccessRandom, AccessWillNeed, AccessDontNeed} {
		t.Run(p.String(), func(t *testing.T) {
			assert.NoError(t, b.Advise(p))
		})
	}
}

func TestFlushDirty(t *testing.T) {
	mc := &BasicMetricsCollector{}
	b, path := newTestBuffer(t, 64*1024, WithDirtyTracking(), WithFlushWorkers(2), WithMetricsCollector(mc))

	// Create marks the header page.
	assert.Equal(t, uint64(1), b.DirtyPages())
	require.NoError(t, b.FlushDirty(t.Context()))
	assert.Equal(t, uint64(0), b.DirtyPages())

	_, err := b.Append([]byte("first"))
	require.NoError(t, err)
	_, err = b.Append(make([]byte, 3*4096))
	require.NoError(t, err)
	assert.NotZero(t, b.DirtyPages())

	require.NoError(t, b.FlushDirty(t.Context()))
	assert.Equal(t, uint64(0), b.DirtyPages())
	assert.NotZero(t, mc.GetStats().FlushBytes)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data[HeaderSize:HeaderSize+5])

	// Nothing dirty is a no-op.
	before := mc.GetStats().FlushCount
	require.NoError(t, b.FlushDirty(t.Context()))
	assert.Equal(t, before, mc.GetStats().FlushCount)
}

func TestFlushDirty_Untracked(t *testing.T) {
	b, _ := newTestBuffer(t, 4096)

	_, err := b.Append([]byte("x"))
	require.NoError(t, err)

	assert.Equal(t, uint64(0), b.DirtyPages())
	assert.NoError(t, b.FlushDirty(t.Context()))
}

func TestFlushDirty_Throttled(t *testing.T) {
	b, _ := newTestBuffer(t, 64*1024, WithDirtyTracking(), WithFlushBytesPerSec(32*1024))

	require.NoError(t, b.FlushDirty(t.Context()))

	_, err := b.Append(make([]byte, 60*1024))
	require.NoError(t, err)

	// The header page flush leaves 28KiB in the bucket; a 64KiB run at
	// 32KiB/s waits about a second for the rest.
	start := time.Now()
	require.NoError(t, b.FlushDirty(t.Context()))
	assert.Greater(t, time.Since(start), 500*time.Millisecond)
}

func TestBackgroundFlush(t *testing.T) {
	b, path := newTestBuffer(t, 16384, WithBackgroundFlush(5*time.Millisecond))

	_, err := b.Append([]byte("background"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.DirtyPages() == 0
	}, 2*time.Second, 5*time.Millisecond)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("background"), data[HeaderSize:HeaderSize+10])

	require.NoError(t, b.Close())
}

func TestPinPages(t *testing.T) {
	b, _ := newTestBuffer(t, 4096, WithPinLimit(1<<20))

	if err := b.PinPages(); err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			t.Skipf("mlock not permitted: %v", err)
		}
		require.NoError(t, err)
	}

	assert.True(t, b.Pinned())
	require.NoError(t, b.PinPages())
	assert.Equal(t, int64(4096), b.rc.PinnedBytes())

	require.NoError(t, b.UnpinPages())
	assert.False(t, b.Pinned())
	assert.Equal(t, int64(0), b.rc.PinnedBytes())
	require.NoError(t, b.UnpinPages())
}

func TestPinPages_LimitExceeded(t *testing.T) {
	b, _ := newTestBuffer(t, 8192, WithPinLimit(4096))

	err := b.PinPages()
	assert.ErrorIs(t, err, resource.ErrPinLimitExceeded)
	assert.False(t, b.Pinned())
}

func TestPinPages_SharedController(t *testing.T) {
	rc := NewResourceController(ResourceLimits{PinLimitBytes: 6000})

	a, _ := newTestBuffer(t, 4096, WithResourceController(rc))
	b, _ := newTestBuffer(t, 4096, WithResourceController(rc))

	if err := a.PinPages(); err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			t.Skipf("mlock not permitted: %v", err)
		}
		require.NoError(t, err)
	}

	assert.ErrorIs(t, b.PinPages(), resource.ErrPinLimitExceeded)

	require.NoError(t, a.Close())
	assert.Equal(t, int64(0), rc.PinnedBytes())
	assert.NoError(t, b.PinPages())
}
