// Package dirty tracks which pages of a mapping this process has written to
// since they were last flushed.
package dirty

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Run is a contiguous byte range made of whole pages.
type Run struct {
	Offset int64
	Length int64
}

// End returns the exclusive end offset of the run.
func (r Run) End() int64 { return r.Offset + r.Length }

// Tracker is a page-granular dirty set. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	pages    *roaring.Bitmap
	pageSize int64
}

// New creates a tracker for pages of pageSize bytes.
func New(pageSize int) *Tracker {
	if pageSize <= 0 {
		pageSize = 4096
	}
	return &Tracker{
		pages:    roaring.New(),
		pageSize: int64(pageSize),
	}
}

// Mark records [off, off+n) as dirty.
func (t *Tracker) Mark(off, n int64) {
	if n <= 0 || off < 0 {
		return
	}
	first := uint64(off / t.pageSize)
	last := uint64((off + n - 1) / t.pageSize)

	t.mu.Lock()
	t.pages.AddRange(first, last+1)
	t.mu.Unlock()
}

// Pages returns the number of dirty pages.
func (t *Tracker) Pages() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pages.GetCardinality()
}

func (t *Tracker) coalesce(snapshot *roaring.Bitmap) []Run {
	var runs []Run
	it := snapshot.Iterator()
	var start, prev uint32
	open := false
	for it.HasNext() {
		p := it.Next()
		if open && p == prev+1 {
			prev = p
			continue
		}
		if open {
			runs = append(runs, t.run(start, prev))
		}
		start, prev, open = p, p, true
	}
	if open {
		runs = append(runs, t.run(start, prev))
	}
	return runs
}

// Take returns the dirty set coalesced into maximal runs of adjacent pages,
// in ascending order, and empties the set in one step. Pages marked after
// Take are reported by the next call.
func (t *Tracker) Take() []Run {
	t.mu.Lock()
	snapshot := t.pages
	t.pages = roaring.New()
	t.mu.Unlock()

	return t.coalesce(snapshot)
}

func (t *Tracker) run(first, last uint32) Run {
	return Run{
		Offset: int64(first) * t.pageSize,
		Length: int64(last-first+1) * t.pageSize,
	}
}
