// Package mmapappend provides an append-only buffer over a memory-mapped file
// that many processes can append to at once.
//
// The first HeaderSize bytes of the file are reserved:
//
//	[0, 8)   lock word      0 = free, otherwise the holder's process ID
//	[8, 16)  append offset  end of committed data
//
// Both words live in the shared mapping and are only touched with atomic
// operations, so every process that maps the file agrees on who may append
// and where the next append lands. Data below the append offset is never
// rewritten.
//
// # Quick Start
//
//	buf, err := mmapappend.Create("events.buf", 64<<20,
//	    mmapappend.WithLockTimeout(250*time.Millisecond),
//	)
//	if err != nil {
//	    return err
//	}
//	defer buf.Close()
//
//	r, err := buf.Append([]byte("hello"))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(r) // [16, 21)
//
//	// Make it durable.
//	if err := buf.FlushRange(r.Offset, r.Length); err != nil {
//	    return err
//	}
//
// Another process opens the same file with Open, which preserves the header,
// and appends through its own mapping.
//
// # Durability
//
// Appends become visible to other mappings immediately but reach the disk
// only when the kernel writes the pages back. Flush and FlushRange force a
// synchronous write-back; FlushAsync schedules one. With WithDirtyTracking
// the buffer records the pages each append touches and FlushDirty writes
// back just those. WithBackgroundFlush runs FlushDirty on a ticker.
//
// # Locking
//
// The lock is a spin lock with no owner check and no stale-holder recovery:
// a process that dies while appending leaves the lock set. Bound waits with
// WithLockTimeout or a context deadline, and inspect LockHolder when a wait
// gives up.
//
// # Configuration
//
// Options can also be loaded from YAML with LoadConfig and applied with
// OpenConfig.
package mmapappend
