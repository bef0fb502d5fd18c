package mmapappend

import "fmt"

// Range is a span of committed bytes, in absolute file offsets.
type Range struct {
	Offset int64
	Length int64
}

// End returns the exclusive end offset.
func (r Range) End() int64 { return r.Offset + r.Length }

// Empty reports whether the range has no bytes.
func (r Range) Empty() bool { return r.Length == 0 }

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.End())
}
