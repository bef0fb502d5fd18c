package mmapappend

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicMetricsCollector(t *testing.T) {
	mc := &BasicMetricsCollector{}

	mc.RecordAppend(10, 2*time.Millisecond, nil)
	mc.RecordAppend(5, 4*time.Millisecond, errors.New("boom"))
	mc.RecordLockWait(time.Millisecond, nil)
	mc.RecordLockWait(3*time.Millisecond, ErrLockTimeout)
	mc.RecordLockWait(2*time.Millisecond, ErrClosed)
	mc.RecordFlush(4096, false, time.Millisecond, nil)
	mc.RecordFlush(4096, true, time.Millisecond, errors.New("eio"))

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.AppendCount)
	assert.Equal(t, int64(1), stats.AppendErrors)
	assert.Equal(t, int64(10), stats.AppendBytes)
	assert.Equal(t, (3 * time.Millisecond).Nanoseconds(), stats.AppendAvgNanos)
	assert.Equal(t, int64(3), stats.LockWaitCount)
	assert.Equal(t, int64(1), stats.LockTimeouts)
	assert.Equal(t, (2 * time.Millisecond).Nanoseconds(), stats.LockWaitAvgNanos)
	assert.Equal(t, int64(2), stats.FlushCount)
	assert.Equal(t, int64(1), stats.FlushAsyncCount)
	assert.Equal(t, int64(1), stats.FlushErrors)
	assert.Equal(t, int64(4096), stats.FlushBytes)
}

func TestMetrics_RecordedByBuffer(t *testing.T) {
	mc := &BasicMetricsCollector{}
	b, _ := newTestBuffer(t, 4096, WithMetricsCollector(mc))

	_, err := b.Append([]byte("abc"))
	require.NoError(t, err)
	_, err = b.Append(make([]byte, 8192))
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.NoError(t, b.FlushRange(HeaderSize, 3))

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.AppendCount)
	assert.Equal(t, int64(1), stats.AppendErrors)
	assert.Equal(t, int64(3), stats.AppendBytes)
	assert.Equal(t, int64(3), stats.LockWaitCount)
	assert.Equal(t, int64(0), stats.LockTimeouts)
	assert.Equal(t, int64(1), stats.FlushCount)
	assert.Equal(t, int64(3), stats.FlushBytes)
}

func TestLogger(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b, path := newTestBuffer(t, 4096, WithLogger(logger))

	_, err := b.Append([]byte("logged"))
	require.NoError(t, err)
	require.NoError(t, b.FlushRange(0, 4096))

	logs := out.String()
	assert.Contains(t, logs, `"msg":"header reset"`)
	assert.Contains(t, logs, `"msg":"append committed"`)
	assert.Contains(t, logs, `"msg":"flush completed"`)
	assert.Contains(t, logs, filepath.Base(path))
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(t.Context(), slog.LevelError))
	assert.NotNil(t, NewTextLogger(slog.LevelInfo))
	assert.NotNil(t, NewJSONLogger(slog.LevelInfo))
	assert.NotNil(t, NewLogger(nil))
}
