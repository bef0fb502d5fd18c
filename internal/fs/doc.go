// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync/truncate and its OS descriptor
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("buffer.bin", fs.Fault{FailOnTruncate: true})
//	ffs.AddRule(".upload", fs.Fault{WriteBudget: 1 << 10})
//
// Rules match by substring of the file name; the most recently added
// matching rule applies.
//
// File exposes Fd so that the append buffer can map it; the mapping outlives
// the File, which may be closed right after mapping.
//
// Operations take no context.Context; the syscalls behind them cannot be
// interrupted.
package fs
