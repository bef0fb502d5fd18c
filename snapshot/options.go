package snapshot

import (
	"runtime"

	"github.com/hupe1980/mmapappend"
)

const (
	// DefaultBlockSize is the uncompressed size of each block.
	DefaultBlockSize = 256 * 1024
	// DefaultMaxDataLength bounds the bytes Load allocates for one snapshot.
	DefaultMaxDataLength = 4 << 30
)

type options struct {
	compression Compression
	blockSize   int
	workers     int
	overwrite   bool
	logger      *mmapappend.Logger
	bufferOpts  []mmapappend.Option
	controller  *mmapappend.ResourceController
	maxData     int64
}

func defaultOptions() options {
	return options{
		compression: CompressionZSTD,
		blockSize:   DefaultBlockSize,
		workers:     runtime.GOMAXPROCS(0),
		logger:      mmapappend.NoopLogger(),
		maxData:     DefaultMaxDataLength,
	}
}

// Option configures Export and Restore.
type Option func(*options)

// WithCompression sets the block compression. Default: CompressionZSTD.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithBlockSize sets the uncompressed block size.
func WithBlockSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.blockSize = n
		}
	}
}

// WithWorkers limits how many blocks are compressed or decompressed at once.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithOverwrite lets Export replace an existing snapshot of the same name.
func WithOverwrite() Option {
	return func(o *options) {
		o.overwrite = true
	}
}

// WithLogger sets the logger.
func WithLogger(l *mmapappend.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBufferOptions passes options to mmapappend.Create when restoring.
func WithBufferOptions(opts ...mmapappend.Option) Option {
	return func(o *options) {
		o.bufferOpts = append(o.bufferOpts, opts...)
	}
}

// WithMaxDataLength sets the largest snapshot Load accepts. Restore is
// bounded by the size of the buffer it creates instead.
func WithMaxDataLength(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxData = n
		}
	}
}

// WithResourceController throttles the data upload of Export with rc's
// flush IO limit, sharing the budget with the buffers that use rc.
func WithResourceController(rc *mmapappend.ResourceController) Option {
	return func(o *options) {
		o.controller = rc
	}
}
