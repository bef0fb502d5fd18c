package mmapappend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/mmapappend/internal/dirty"
	"github.com/hupe1980/mmapappend/internal/header"
	"github.com/hupe1980/mmapappend/internal/mmap"
)

// HeaderSize is the number of bytes reserved at the start of every file for
// the lock word and the append offset.
const HeaderSize = header.Size

// File is the subset of *os.File that FromFile needs.
type File interface {
	Fd() uintptr
	Stat() (os.FileInfo, error)
}

// AppendBuffer is a writable shared mapping of a file whose first HeaderSize
// bytes hold a cross-process append lock and the committed end offset.
//
// Any number of processes may map the same file and append concurrently.
// Every append is serialized through the lock word in the mapping itself, so
// appends never overlap and committed bytes are never rewritten.
//
// An AppendBuffer is safe for concurrent use by multiple goroutines.
type AppendBuffer struct {
	name   string
	m      *mmap.Mapping
	hdr    header.LockRecord
	token  uint64
	opts   options
	logger *Logger
	rc     *ResourceController
	dirty  *dirty.Tracker // nil unless dirty tracking is enabled

	flusher *flusher

	// held is set while this buffer holds the lock through AcquireAppendLock.
	held   atomic.Bool
	pinned atomic.Int64

	pinMu sync.Mutex

	// mu guards the mapping: every call that touches mapped memory holds the
	// read side, and Close holds the write side while it unmaps.
	mu        sync.RWMutex
	closed    atomic.Bool
	done      chan struct{} // closed when Close begins; wakes lock waiters
	closeOnce sync.Once
	closeErr  error
}

// Open maps an existing file read/write.
//
// The header is preserved. A zero append offset (a fresh zero-filled file)
// is initialized to HeaderSize; any other offset outside [HeaderSize, size]
// fails with ErrCorruptHeader. Pass WithCreate to create or reset the file.
func Open(path string, opts ...Option) (*AppendBuffer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	flag := os.O_RDWR
	if o.create {
		if o.createSize < HeaderSize {
			return nil, fmt.Errorf("%w: create size %d, need %d", ErrInsufficientFileSize, o.createSize, HeaderSize)
		}
		flag |= os.O_CREATE
	}

	f, err := o.fs.OpenFile(path, flag, o.fileMode)
	if err != nil {
		return nil, err
	}
	// The mapping outlives the descriptor.
	defer func() { _ = f.Close() }()

	if o.create {
		if err := f.Truncate(o.createSize); err != nil {
			return nil, ioError("truncate", 0, o.createSize, err)
		}
	}

	return newBuffer(f, path, o)
}

// Create creates or truncates path to size bytes and maps it with an empty
// committed region. It is shorthand for Open with WithCreate(size).
func Create(path string, size int64, opts ...Option) (*AppendBuffer, error) {
	return Open(path, append(opts, WithCreate(size))...)
}

// FromFile maps an already open file. The caller keeps ownership of f and may
// close it once FromFile returns.
//
// WithCreate resets the header; the file is resized only when f has a
// Truncate method.
func FromFile(f File, opts ...Option) (*AppendBuffer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	name := fmt.Sprintf("fd:%d", f.Fd())
	if n, ok := f.(interface{ Name() string }); ok {
		name = n.Name()
	}

	if o.create {
		if o.createSize < HeaderSize {
			return nil, fmt.Errorf("%w: create size %d, need %d", ErrInsufficientFileSize, o.createSize, HeaderSize)
		}
		if t, ok := f.(interface{ Truncate(int64) error }); ok {
			if err := t.Truncate(o.createSize); err != nil {
				return nil, ioError("truncate", 0, o.createSize, err)
			}
		}
	}

	return newBuffer(f, name, o)
}

func newBuffer(f File, name string, o options) (*AppendBuffer, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size < HeaderSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, need %d", ErrInsufficientFileSize, name, size, HeaderSize)
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("%w: %s is %d bytes", mmap.ErrInvalidSize, name, size)
	}

	m, err := mmap.MapFile(f, int(size), mmap.MapOptions{Writable: true, Populate: o.populate})
	if err != nil {
		return nil, ioError("map", 0, size, err)
	}

	hdr, err := header.View(m.Bytes())
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	logger := o.logger.WithPath(name)

	switch {
	case o.create:
		hdr.Reset()
		logger.Info("header reset", "size", size)
	case hdr.Init():
		logger.Info("header initialized", "size", size)
	}

	if off := hdr.AppendOffset(); off < HeaderSize || off > uint64(size) {
		_ = m.Close()
		return nil, fmt.Errorf("%w: %s append offset %d outside [%d, %d]", ErrCorruptHeader, name, off, HeaderSize, size)
	}

	rc := o.controller
	if rc == nil {
		rc = NewResourceController(o.limits)
	}

	b := &AppendBuffer{
		name:   name,
		m:      m,
		hdr:    hdr,
		token:  lockToken(),
		opts:   o,
		logger: logger,
		rc:     rc,
		done:   make(chan struct{}),
	}

	if o.dirtyTracking {
		b.dirty = dirty.New(mmap.PageSize())
		if o.create {
			b.dirty.Mark(0, HeaderSize)
		}
	}

	if o.flushInterval > 0 {
		b.flusher = newFlusher(b, o.flushInterval)
		b.flusher.start()
	}

	return b, nil
}

func lockToken() uint64 {
	if pid := os.Getpid(); pid > 0 {
		return uint64(pid)
	}
	return 1
}

// Name returns the path (or descriptor name) the buffer was opened from.
func (b *AppendBuffer) Name() string { return b.name }

// Len returns the size of the mapping, header included.
func (b *AppendBuffer) Len() int64 { return int64(b.m.Size()) }

// Bytes returns the whole mapping, header included.
//
// The slice aliases shared memory and must not be written to. It is valid
// until Close.
func (b *AppendBuffer) Bytes() []byte { return b.m.Bytes() }

// enter takes a read hold on the mapping. It fails with ErrClosed once Close
// has begun; on success the caller must call leave.
func (b *AppendBuffer) enter() error {
	b.mu.RLock()
	if b.closed.Load() {
		b.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (b *AppendBuffer) leave() { b.mu.RUnlock() }

// AppendOffset returns the end of the committed region as currently visible
// in the mapping, including appends made by other processes. It returns 0
// after Close.
func (b *AppendBuffer) AppendOffset() int64 {
	if b.enter() != nil {
		return 0
	}
	defer b.leave()
	return b.appendOffset()
}

func (b *AppendBuffer) appendOffset() int64 { return int64(b.hdr.AppendOffset()) }

// Capacity returns the number of bytes that can still be appended.
func (b *AppendBuffer) Capacity() int64 {
	c := b.Len() - b.AppendOffset()
	if c < 0 {
		return 0
	}
	return c
}

// Committed returns the committed data, excluding the header.
// Committed bytes never change, so the slice is stable until Close.
func (b *AppendBuffer) Committed() []byte {
	if b.enter() != nil {
		return nil
	}
	defer b.leave()

	data := b.m.Bytes()
	end := b.appendOffset()
	if end < HeaderSize || end > int64(len(data)) {
		return nil
	}
	return data[HeaderSize:end]
}

// Slice returns the committed bytes of r.
func (b *AppendBuffer) Slice(r Range) ([]byte, error) {
	if err := b.enter(); err != nil {
		return nil, err
	}
	defer b.leave()

	end := b.appendOffset()
	if r.Offset < HeaderSize || r.Length < 0 || r.Length > end-r.Offset {
		return nil, &RangeError{Offset: r.Offset, Length: r.Length, Limit: end}
	}
	return b.m.Bytes()[r.Offset:r.End()], nil
}

// ReadAt implements io.ReaderAt over the committed region. Offsets are
// absolute file offsets, as returned in Range.
func (b *AppendBuffer) ReadAt(p []byte, off int64) (int, error) {
	if err := b.enter(); err != nil {
		return 0, err
	}
	defer b.leave()

	end := b.appendOffset()
	if off < HeaderSize {
		return 0, &RangeError{Offset: off, Length: int64(len(p)), Limit: end}
	}
	if off >= end {
		return 0, io.EOF
	}
	n := copy(p, b.m.Bytes()[off:end])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Append commits data at the current append offset and returns where it
// landed. It waits for the append lock, bounded by WithLockTimeout.
//
// Either all of data is committed or nothing is: a failed append leaves the
// append offset untouched.
func (b *AppendBuffer) Append(data []byte) (Range, error) {
	return b.AppendContext(context.Background(), data)
}

// AppendContext is like Append but gives up waiting for the lock when ctx is
// done, returning ErrLockTimeout. A wait cut short by Close returns ErrClosed.
func (b *AppendBuffer) AppendContext(ctx context.Context, data []byte) (Range, error) {
	if err := b.enter(); err != nil {
		return Range{}, err
	}
	defer b.leave()

	if len(data) == 0 {
		return Range{Offset: b.appendOffset()}, nil
	}

	start := time.Now()
	r, err := b.append(ctx, data)
	b.opts.metricsCollector.RecordAppend(len(data), time.Since(start), err)
	b.logger.LogAppend(ctx, r, err)
	return r, err
}

func (b *AppendBuffer) append(ctx context.Context, data []byte) (Range, error) {
	n := int64(len(data))

	ctx, cancel := b.lockContext(ctx)
	defer cancel()

	if err := b.acquire(ctx); err != nil {
		return Range{Length: n}, err
	}

	size := b.Len()
	end := b.appendOffset()
	if end < HeaderSize || end > size {
		b.release()
		return Range{Length: n}, fmt.Errorf("%w: append offset %d outside [%d, %d]", ErrCorruptHeader, end, HeaderSize, size)
	}
	if n > size-end {
		b.release()
		return Range{Offset: end, Length: n}, &CapacityError{Offset: end, Requested: n, Available: size - end}
	}

	copy(b.m.Bytes()[end:end+n], data)
	b.hdr.SetAppendOffset(uint64(end + n))
	b.release()

	if b.dirty != nil {
		b.dirty.Mark(end, n)
		b.dirty.Mark(header.WordSize, header.WordSize)
	}

	return Range{Offset: end, Length: n}, nil
}

// Close stops the background flusher, writes back tracked dirty pages,
// releases a lock still held through AcquireAppendLock and unmaps the file.
// It does not flush untracked pages; call Flush first for durability.
//
// Calls running concurrently with Close finish before the file is unmapped;
// those still waiting for the append lock return ErrClosed. Close is
// idempotent.
func (b *AppendBuffer) Close() error {
	b.closeOnce.Do(func() {
		var errs []error

		if b.flusher != nil {
			b.flusher.stop()
		}

		b.closed.Store(true)
		close(b.done)

		b.mu.Lock()
		defer b.mu.Unlock()

		if b.dirty != nil {
			if err := b.flushDirty(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}

		if b.held.Swap(false) {
			b.logger.Warn("releasing append lock on close", "holder", b.hdr.Holder())
			if err := b.hdr.Release(); err != nil {
				errs = append(errs, ErrNotLocked)
			}
		}

		b.pinMu.Lock()
		if pinned := b.pinned.Swap(0); pinned > 0 {
			if err := b.m.Unpin(); err != nil {
				errs = append(errs, ioError("unpin", 0, pinned, err))
			}
			b.rc.ReleasePin(pinned)
		}
		b.pinMu.Unlock()

		if err := b.m.Close(); err != nil {
			errs = append(errs, ioError("unmap", 0, b.Len(), err))
		}

		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}

// Closed reports whether Close has been called.
func (b *AppendBuffer) Closed() bool { return b.closed.Load() }

func (b *AppendBuffer) String() string {
	if b.enter() != nil {
		return fmt.Sprintf("AppendBuffer{name=%q, closed}", b.name)
	}
	defer b.leave()
	return fmt.Sprintf("AppendBuffer{name=%q, len=%d, append_offset=%d, locked=%t}",
		b.name, b.Len(), b.appendOffset(), b.hdr.Locked())
}
