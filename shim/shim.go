// Package shim exposes the collector through the classic malloc/free
// call shape, for code migrating off a C allocator one translation unit
// at a time rather than adopting Heap directly.
package shim

import (
	"sync"
	"unsafe"

	"github.com/kstephens/treadmill"
)

var (
	defaultOnce sync.Once
	defaultHeap *treadmill.Heap
)

func heap() *treadmill.Heap {
	defaultOnce.Do(func() {
		defaultHeap = treadmill.New(treadmill.DefaultConfig())
	})
	return defaultHeap
}

// Init replaces the package-level default heap, for callers that want
// non-default tuning. It must be called before the first Malloc/Calloc
// if the defaults are unsuitable; calling it afterward only affects
// subsequent allocations; memory already handed out remains valid.
func Init(cfg treadmill.Config) {
	defaultOnce.Do(func() {})
	defaultHeap = treadmill.New(cfg)
}

// Malloc returns size bytes of zeroed, collected memory, or nil if size
// is zero or the allocation could not be satisfied.
func Malloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	ptr, err := heap().Alloc(size)
	if err != nil {
		return nil
	}
	return ptr
}

// Calloc returns zeroed memory for n elements of the given size, or nil
// on overflow or allocation failure. Every allocation the heap returns
// is already zeroed, so this differs from Malloc only in the size
// computation and overflow check.
func Calloc(n, size uintptr) unsafe.Pointer {
	if n == 0 || size == 0 {
		return nil
	}
	total := n * size
	if total/n != size {
		return nil
	}
	return Malloc(total)
}

// Realloc resizes the allocation at ptr to size bytes, preserving the
// lesser of the old and new sizes. A nil ptr behaves like Malloc; a
// zero size frees ptr and returns nil.
func Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	next, err := heap().Realloc(ptr, size)
	if err != nil {
		return nil
	}
	return next
}

// Free explicitly returns memory obtained from Malloc/Calloc/Realloc.
func Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	heap().Free(ptr)
}

// GCFull runs an immediate synchronous full collection cycle rather
// than waiting for memory pressure to trigger one incrementally.
func GCFull() {
	heap().GCFull()
}
