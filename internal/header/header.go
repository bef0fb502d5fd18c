// Package header implements the lock record stored in the first bytes of an
// append buffer file.
//
// Layout (host byte order, little-endian on every supported target):
//
//	[0, 8)   lock word      0 = unlocked, nonzero = held
//	[8, 16)  append offset  end of committed data, >= Size
//
// Both words are accessed only through sync/atomic on the mapped address, so
// every process mapping the file observes the same state. Go's atomics are
// sequentially consistent: a release (store 0) publishes every write the
// holder made to the mapping before it.
package header

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

const (
	// WordSize is the width of each header field, fixed for file portability.
	WordSize = 8
	// Size is the number of reserved header bytes at the start of the file.
	Size = 2 * WordSize

	lockOffset   = 0
	appendOffset = WordSize
)

var (
	// ErrTooSmall is returned when the region cannot hold the header.
	ErrTooSmall = errors.New("header: region smaller than header")
	// ErrUnaligned is returned when the region start is not 8-byte aligned.
	ErrUnaligned = errors.New("header: region not 8-byte aligned")
	// ErrNotLocked is returned when releasing a record that is not held.
	ErrNotLocked = errors.New("header: lock record is not held")
)

// LockRecord is a view into a mapped header. It holds pointers into the
// mapping and must not be used after the mapping is unmapped.
type LockRecord struct {
	lock *uint64
	end  *uint64
}

// View returns the lock record at the start of region.
func View(region []byte) (LockRecord, error) {
	if len(region) < Size {
		return LockRecord{}, ErrTooSmall
	}
	base := unsafe.Pointer(&region[0])
	if uintptr(base)%WordSize != 0 {
		return LockRecord{}, ErrUnaligned
	}
	return LockRecord{
		lock: (*uint64)(unsafe.Pointer(&region[lockOffset])),
		end:  (*uint64)(unsafe.Pointer(&region[appendOffset])),
	}, nil
}

// TryAcquire transitions the lock word from 0 to token.
// token must be nonzero. The lock is not reentrant.
func (r LockRecord) TryAcquire(token uint64) bool {
	if token == 0 {
		token = 1
	}
	return atomic.CompareAndSwapUint64(r.lock, 0, token)
}

// Release transitions the lock word back to 0.
func (r LockRecord) Release() error {
	if atomic.SwapUint64(r.lock, 0) == 0 {
		return ErrNotLocked
	}
	return nil
}

// Holder returns the token of the current holder, or 0 if unlocked.
func (r LockRecord) Holder() uint64 {
	return atomic.LoadUint64(r.lock)
}

// Locked reports whether any holder owns the lock.
func (r LockRecord) Locked() bool {
	return r.Holder() != 0
}

// AppendOffset returns the committed end as currently visible in the mapping.
func (r LockRecord) AppendOffset() uint64 {
	return atomic.LoadUint64(r.end)
}

// SetAppendOffset publishes a new committed end. Callers must hold the lock.
func (r LockRecord) SetAppendOffset(v uint64) {
	atomic.StoreUint64(r.end, v)
}

// Init sets an all-zero append offset to Size.
// It reports whether this call performed the initialization; racing
// initializers agree on the result.
func (r LockRecord) Init() bool {
	return atomic.CompareAndSwapUint64(r.end, 0, Size)
}

// Reset clears the lock and truncates the committed region to empty.
// Only safe when no other holder is mapping the file.
func (r LockRecord) Reset() {
	atomic.StoreUint64(r.lock, 0)
	atomic.StoreUint64(r.end, Size)
}
