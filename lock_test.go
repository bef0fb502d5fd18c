package mmapappend

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendLock_AcquireRelease(t *testing.T) {
	b, _ := newTestBuffer(t, 4096)

	require.NoError(t, b.AcquireAppendLock(t.Context()))
	assert.True(t, b.AppendLocked())
	assert.Equal(t, uint64(os.Getpid()), b.LockHolder())

	assert.False(t, b.TryAcquireAppendLock(), "lock is not reentrant")

	require.NoError(t, b.ReleaseAppendLock())
	assert.False(t, b.AppendLocked())
	assert.Equal(t, uint64(0), b.LockHolder())
}

func TestAppendLock_ReleaseNotLocked(t *testing.T) {
	b, _ := newTestBuffer(t, 4096)
	assert.ErrorIs(t, b.ReleaseAppendLock(), ErrNotLocked)
}

func TestAppendLock_Timeout(t *testing.T) {
	b, path := newTestBuffer(t, 4096)

	mc := &BasicMetricsCollector{}
	other, err := Open(path, WithLockTimeout(20*time.Millisecond), WithMetricsCollector(mc))
	require.NoError(t, err)
	defer other.Close()

	require.True(t, b.TryAcquireAppendLock())

	start := time.Now()
	_, err = other.Append([]byte("blocked"))
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, int64(HeaderSize), other.AppendOffset())

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.LockTimeouts)
	assert.Equal(t, int64(1), stats.AppendErrors)

	require.NoError(t, b.ReleaseAppendLock())

	r, err := other.Append([]byte("free"))
	require.NoError(t, err)
	assert.Equal(t, int64(HeaderSize), r.Offset)
}

func TestAppendLock_ContextDeadline(t *testing.T) {
	b, path := newTestBuffer(t, 4096)

	other, err := Open(path)
	require.NoError(t, err)
	defer other.Close()

	require.True(t, b.TryAcquireAppendLock())
	defer b.ReleaseAppendLock()

	ctx, cancel := context.WithTimeout(t.Context(), 15*time.Millisecond)
	defer cancel()

	err = other.AcquireAppendLock(ctx)
	assert.ErrorIs(t, err, ErrLockTimeout)

	_, err = other.AppendContext(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestAppendLock_ContextCanceled(t *testing.T) {
	b, _ := newTestBuffer(t, 4096)

	require.True(t, b.TryAcquireAppendLock())
	defer b.ReleaseAppendLock()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := b.AppendContext(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAppendLock_WaitsForRelease(t *testing.T) {
	b, path := newTestBuffer(t, 4096)

	other, err := Open(path, WithLockRetryInterval(time.Millisecond))
	require.NoError(t, err)
	defer other.Close()

	require.True(t, b.TryAcquireAppendLock())

	done := make(chan Range, 1)
	go func() {
		r, err := other.Append([]byte("late"))
		assert.NoError(t, err)
		done <- r
	}()

	select {
	case <-done:
		t.Fatal("append completed while the lock was held")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, b.ReleaseAppendLock())

	select {
	case r := <-done:
		assert.Equal(t, int64(HeaderSize), r.Offset)
	case <-time.After(5 * time.Second):
		t.Fatal("append did not complete after release")
	}
}

func TestAppendLock_ExternalCriticalSection(t *testing.T) {
	b, path := newTestBuffer(t, 4096)

	other, err := Open(path, WithLockTimeout(10*time.Millisecond))
	require.NoError(t, err)
	defer other.Close()

	// Holding the lock keeps every mapping from appending.
	require.NoError(t, b.AcquireAppendLock(t.Context()))
	_, err = other.Append([]byte("x"))
	assert.ErrorIs(t, err, ErrLockTimeout)
	require.NoError(t, b.ReleaseAppendLock())

	_, err = other.Append([]byte("x"))
	assert.NoError(t, err)
}
