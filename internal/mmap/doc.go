// Package mmap provides the raw memory-mapping primitive used by the append buffer.
//
// # Overview
//
// A [Mapping] owns one mapped view of a file. It exposes the mapped bytes and
// the handful of OS operations the buffer needs on them:
//
//   - [MapFile] maps a descriptor read/write (MAP_SHARED) or read-only
//   - [Mapping.Flush] forces (msync MS_SYNC) or schedules (MS_ASYNC) write-back
//   - [Mapping.AdviseRange] forwards an access hint (madvise)
//   - [Mapping.Pin] / [Mapping.Unpin] lock pages in RAM (mlock / munlock)
//
// [Open] maps a whole file read-only and is used by the local blob store.
//
// # Usage
//
//	f, _ := os.OpenFile("data.bin", os.O_RDWR, 0)
//	m, err := mmap.MapFile(f, size, mmap.MapOptions{Writable: true})
//	if err != nil { ... }
//	defer m.Close()
//
//	copy(m.Bytes()[off:], payload)
//	_ = m.Flush(off, len(payload), false)
//
// Ranged operations are widened to page boundaries before the syscall, so
// callers may pass arbitrary byte ranges. Bounds are checked against the
// requested range, not the widened one.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2), madvise(2), mlock(2)
//   - Windows: CreateFileMapping/MapViewOfFile, FlushViewOfFile, VirtualLock (advise is a no-op)
//
// # Thread Safety
//
// Mapping is safe for concurrent use. Close is idempotent and protected by
// atomic operations. However, callers must ensure no goroutines access
// Bytes() after Close() returns.
package mmap
