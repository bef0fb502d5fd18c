package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a memory-mapped file.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data     []byte
	size     int
	writable bool
	closed   atomic.Bool
	// unmap is the platform-specific function to unmap the memory.
	unmap func([]byte) error
}

// Open maps the file at path into memory.
// The file is mapped as read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &Mapping{data: nil, size: 0}, nil
	}
	if size < 0 {
		return nil, ErrInvalidSize
	}

	return MapFile(f, int(size), MapOptions{})
}

// MapFile maps the first size bytes of d.
// The mapping stays valid after d is closed.
func MapFile(d Descriptor, size int, opts MapOptions) (*Mapping, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Mapping{writable: opts.Writable}, nil
	}

	data, unmapFunc, err := osMap(d.Fd(), size, opts)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:     data,
		size:     size,
		writable: opts.Writable,
		unmap:    unmapFunc,
	}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Closed reports whether Close has been called.
func (m *Mapping) Closed() bool {
	return m.closed.Load()
}

// Bytes returns the underlying byte slice.
// Warning: The slice is valid only until Close() is called.
// Accessing the slice after Close() results in undefined behavior (likely a crash).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Writable reports whether the mapping was created read/write.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	return m.AdviseRange(pattern, 0, m.size)
}

// AdviseRange provides an access hint for [off, off+n).
// The range is widened to page boundaries before the syscall.
func (m *Mapping) AdviseRange(pattern AccessPattern, off, n int) error {
	data, err := m.pages(off, n)
	if err != nil || data == nil {
		return err
	}
	return osAdvise(data, pattern)
}

// Flush writes dirty pages in [off, off+n) back to the file.
// When async is true the write-back is scheduled and Flush returns immediately.
func (m *Mapping) Flush(off, n int, async bool) error {
	if !m.writable {
		return ErrReadOnly
	}
	data, err := m.pages(off, n)
	if err != nil || data == nil {
		return err
	}
	return osFlush(data, async)
}

// Pin locks the mapped pages in physical memory.
func (m *Mapping) Pin() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osPin(m.data)
}

// Unpin releases pages locked by Pin.
func (m *Mapping) Unpin() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osUnpin(m.data)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// pages returns the page-aligned sub-slice covering [off, off+n).
func (m *Mapping) pages(off, n int) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 || off+n > m.size {
		return nil, ErrOutOfBounds
	}
	if n == 0 || m.data == nil {
		return nil, nil
	}
	start, end := AlignRange(off, n, m.size)
	return m.data[start:end], nil
}

// PageSize returns the OS page size.
func PageSize() int {
	return os.Getpagesize()
}

// AlignRange widens [off, off+n) to page boundaries, clamped to limit.
func AlignRange(off, n, limit int) (start, end int) {
	page := PageSize()
	start = off - off%page
	end = off + n
	if rem := end % page; rem != 0 {
		end += page - rem
	}
	if end > limit {
		end = limit
	}
	return start, end
}
