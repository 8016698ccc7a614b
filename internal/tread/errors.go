package tread

import "errors"

// ErrOutOfMemory is returned when the OS block allocator refuses a
// request, or the soft byte ceiling is exceeded.
var ErrOutOfMemory = errors.New("tread: out of memory")

// ErrOversizeAlloc is a distinct sentinel from ErrOutOfMemory, for a
// request larger than a single block can ever hold; such a request
// fails cleanly rather than being truncated to fit.
var ErrOversizeAlloc = errors.New("tread: allocation exceeds block size")

// ErrInvalidPointer is returned by Realloc when the old pointer does not
// resolve to a live cell this arena tracks.
var ErrInvalidPointer = errors.New("tread: invalid pointer")

// Fault is raised (via panic) for a collector invariant violation — a
// bug in the barrier or classifier, not a recoverable condition.
type Fault struct {
	Reason string
}

func (f *Fault) Error() string { return "tread: invariant violation: " + f.Reason }

func fault(reason string) {
	panic(&Fault{Reason: reason})
}
