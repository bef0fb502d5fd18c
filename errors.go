package mmapappend

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFileSize is returned when the file cannot hold the header.
	ErrInsufficientFileSize = errors.New("mmapappend: file smaller than header")
	// ErrCapacityExceeded is returned when an append would overflow the mapping.
	ErrCapacityExceeded = errors.New("mmapappend: capacity exceeded")
	// ErrRangeOutOfBounds is returned when a flush or advise range exceeds the mapping.
	ErrRangeOutOfBounds = errors.New("mmapappend: range out of bounds")
	// ErrLockTimeout is returned when the append lock could not be acquired in time.
	ErrLockTimeout = errors.New("mmapappend: append lock timeout")
	// ErrNotLocked is returned when releasing an append lock that is not held.
	ErrNotLocked = errors.New("mmapappend: append lock not held")
	// ErrClosed is returned when using a closed buffer.
	ErrClosed = errors.New("mmapappend: buffer is closed")
	// ErrCorruptHeader is returned when the mapped append offset is outside [HeaderSize, Len].
	ErrCorruptHeader = errors.New("mmapappend: corrupt header")
)

// CapacityError describes an append that does not fit.
//
// It matches ErrCapacityExceeded with errors.Is.
type CapacityError struct {
	Offset    int64 // append offset observed under the lock
	Requested int64
	Available int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("mmapappend: capacity exceeded: append of %d bytes at offset %d, %d available",
		e.Requested, e.Offset, e.Available)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// RangeError describes a byte range that does not fit the mapping.
//
// It matches ErrRangeOutOfBounds with errors.Is.
type RangeError struct {
	Offset int64
	Length int64
	Limit  int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("mmapappend: range [%d, +%d) out of bounds for length %d", e.Offset, e.Length, e.Limit)
}

func (e *RangeError) Is(target error) bool { return target == ErrRangeOutOfBounds }

// IOError wraps a failed map, flush, advise or pin syscall.
//
// The original OS error can be accessed via errors.Unwrap.
type IOError struct {
	Op     string
	Offset int64
	Length int64
	cause  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("mmapappend: %s [%d, +%d): %v", e.Op, e.Offset, e.Length, e.cause)
}

func (e *IOError) Unwrap() error { return e.cause }

func ioError(op string, off, n int64, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Offset: off, Length: n, cause: err}
}
