package mmapappend

import (
	"os"
	"time"

	"github.com/hupe1980/mmapappend/internal/fs"
	"github.com/hupe1980/mmapappend/internal/resource"
)

const (
	// DefaultLockRetryInterval is the pause between lock attempts once the
	// initial spin phase is exhausted.
	DefaultLockRetryInterval = 50 * time.Microsecond

	// DefaultFileMode is used when Create makes a new file.
	DefaultFileMode os.FileMode = 0o644

	lockSpins = 64
)

// ResourceController budgets pinned memory, flush workers and flush IO.
// A single controller may be shared by several buffers.
type ResourceController = resource.Controller

// ResourceLimits configures a ResourceController.
type ResourceLimits = resource.Config

// NewResourceController returns a controller enforcing limits.
func NewResourceController(limits ResourceLimits) *ResourceController {
	return resource.NewController(limits)
}

type options struct {
	logger            *Logger
	metricsCollector  MetricsCollector
	fs                fs.FileSystem
	fileMode          os.FileMode
	create            bool
	createSize        int64
	lockTimeout       time.Duration
	lockRetryInterval time.Duration
	dirtyTracking     bool
	flushInterval     time.Duration
	limits            ResourceLimits
	controller        *ResourceController
	populate          bool
}

func defaultOptions() options {
	return options{
		logger:            NoopLogger(),
		metricsCollector:  NoopMetricsCollector{},
		fs:                fs.Default,
		fileMode:          DefaultFileMode,
		lockRetryInterval: DefaultLockRetryInterval,
	}
}

// Option configures Open, Create and FromFile.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithCreate creates or truncates the file to size bytes and resets the
// header: the lock is cleared and the append offset set to HeaderSize.
//
// Resetting a file another process has mapped discards its view of the
// committed data, so only the file's owner should create it.
func WithCreate(size int64) Option {
	return func(o *options) {
		o.create = true
		o.createSize = size
	}
}

// WithFileMode sets the permissions used when WithCreate makes a new file.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

// WithLockTimeout bounds how long Append waits for the append lock.
// Zero (the default) waits until the lock is free.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// WithLockRetryInterval sets the pause between lock attempts after the spin
// phase. Values <= 0 keep DefaultLockRetryInterval.
func WithLockRetryInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockRetryInterval = d
		}
	}
}

// WithDirtyTracking records the pages each append touches so FlushDirty can
// write back only those pages.
func WithDirtyTracking() Option {
	return func(o *options) {
		o.dirtyTracking = true
	}
}

// WithBackgroundFlush starts a goroutine that calls FlushDirty every
// interval. It implies WithDirtyTracking.
func WithBackgroundFlush(interval time.Duration) Option {
	return func(o *options) {
		o.flushInterval = interval
		if interval > 0 {
			o.dirtyTracking = true
		}
	}
}

// WithFlushBytesPerSec throttles FlushDirty write-back. Zero is unlimited.
// Ignored when WithResourceController is given.
func WithFlushBytesPerSec(n int64) Option {
	return func(o *options) {
		o.limits.FlushBytesPerSec = n
	}
}

// WithFlushWorkers sets how many dirty runs FlushDirty syncs concurrently.
// Ignored when WithResourceController is given.
func WithFlushWorkers(n int) Option {
	return func(o *options) {
		o.limits.MaxFlushWorkers = int64(n)
	}
}

// WithPinLimit caps the bytes PinPages may lock. Zero is unlimited.
// Ignored when WithResourceController is given.
func WithPinLimit(n int64) Option {
	return func(o *options) {
		o.limits.PinLimitBytes = n
	}
}

// WithResourceController shares rc with other buffers instead of creating a
// private controller from the flush and pin limits.
func WithResourceController(rc *ResourceController) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithPopulate pre-faults the whole mapping at open (MAP_POPULATE on Linux).
func WithPopulate() Option {
	return func(o *options) {
		o.populate = true
	}
}

func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fs = fsys
	}
}
