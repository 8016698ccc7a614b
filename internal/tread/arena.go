// Package tread implements the treadmill: the per-size-class circular
// free list, its owning blocks, and the conservative pointer classifier
// that ties them to raw machine words.
package tread

import (
	"math/bits"
	"sync"
	"unsafe"

	"github.com/kstephens/treadmill/internal/colorperm"
	"github.com/kstephens/treadmill/internal/osalloc"
	"github.com/kstephens/treadmill/internal/pagemap"
)

// minCellSize is the smallest size class handed out; every request is
// rounded up to a power of two no smaller than this, mirroring the
// small-size-class rounding done by general-purpose allocators so a
// handful of Types can service an arbitrary spread of request sizes.
const minCellSize = 16

// Arena owns the OS block allocator, the page-use bitmap, and the
// registry of live blocks and types needed to go from a raw address back
// to the cell (if any) that owns it.
type Arena struct {
	mu sync.Mutex

	blockSize uintptr
	os        osBlocks
	pagemap   *pagemap.Map

	types  map[uintptr]*Type
	blocks map[uintptr]*Block // keyed by block-aligned base address

	// EndOfBlockIsInterior and EndOfCellIsInterior independently control
	// whether an address one-past-the-end of a block, or one-past-the-end
	// of a cell, is treated as a valid interior pointer into the
	// preceding region rather than rejected. Both default false; setting
	// either true tolerates the common "p = base + len; for (; p > base;
	// )" idiom that briefly holds an address past the allocation.
	EndOfBlockIsInterior bool
	EndOfCellIsInterior  bool

	// rootScan is invoked once at the end of every flip, after scan/top
	// are repositioned but before bottom is finalized, so every pointer
	// reachable from a root gets a chance to pull its target out of
	// WHITE before the flip completes. Wired by the top-level Heap to
	// internal/root's Scanner; left nil (a no-op) when Arena is used on
	// its own, e.g. in this package's tests.
	rootScan func()
}

// SetRootScanner installs the callback Flip invokes to mark everything
// reachable from the registered roots.
func (a *Arena) SetRootScanner(fn func()) { a.rootScan = fn }

func (a *Arena) scanRoots() {
	if a.rootScan != nil {
		a.rootScan()
	}
}

// NewArena creates an Arena backing allocations with blockSize-aligned
// OS blocks, a soft byte ceiling, and a per-size free-block cache of
// minFreeBlocks.
func NewArena(blockSize uintptr, ceiling uintptr, minFreeBlocks int) *Arena {
	a := &Arena{
		blockSize: blockSize,
		os:        osalloc.New(blockSize, minFreeBlocks, ceiling),
		types:     make(map[uintptr]*Type),
		blocks:    make(map[uintptr]*Block),
	}
	pageSize := uintptr(4096)
	// A 4GiB span covers a generously large single-process heap while
	// keeping the bitmap itself small (128KiB at this page size); a
	// real deployment would size this from the OS's actual address
	// space layout.
	a.pagemap = pagemap.New(0, 1<<32, pageSize)
	return a
}

// sizeClass rounds size up to the smallest power of two no smaller than
// minCellSize.
func sizeClass(size uintptr) uintptr {
	if size < minCellSize {
		return minCellSize
	}
	return uintptr(1) << bits.Len(uint(size-1))
}

// GetType returns the Type servicing requests of the given size,
// creating it on first use.
func (a *Arena) GetType(size uintptr) *Type {
	cls := sizeClass(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.types[cls]
	if !ok {
		t = newType(a, cls)
		a.types[cls] = t
	}
	return t
}

// obtainBlock asks the OS allocator for one more blockSize-aligned
// region and wraps it for t.
func (a *Arena) obtainBlock(t *Type) (*Block, error) {
	mem, err := a.os.AllocAligned(a.blockSize)
	if err != nil {
		return nil, err
	}

	b := newBlock(t, mem)
	t.attachBlock(b)

	a.mu.Lock()
	a.blocks[b.base] = b
	a.mu.Unlock()

	for p := b.base; p < b.base+mem.Size; p += a.pageSize() {
		a.pagemap.MarkUsed(p)
	}
	return b, nil
}

func (a *Arena) pageSize() uintptr { return a.pagemap.PageSize() }

// AllCounts sums the per-color cell counts across every size class, for
// heap-wide memory-pressure decisions and stats dumps.
func (a *Arena) AllCounts() [colorperm.Black + 1]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	var sum [colorperm.Black + 1]int
	for _, t := range a.types {
		c := t.Tread.Counts()
		for i := range sum {
			sum[i] += c[i]
		}
	}
	return sum
}

// maybeReclaim returns a block to the OS once at least one cell has been
// parceled from it and every cell it parceled is WHITE: the block holds
// nothing live, so it is pulled out of circulation rather than left
// cluttering the type's block list.
func (a *Arena) maybeReclaim(b *Block) {
	if len(b.cells) == 0 {
		return
	}
	if b.counts[colorperm.White] != len(b.cells) {
		return
	}

	b.owner.Tread.reclaimBlockCells(b.cells)
	b.owner.detachBlock(b)

	a.mu.Lock()
	delete(a.blocks, b.base)
	a.mu.Unlock()

	a.pagemap.MarkUnusedRange(b.base, b.mem.Size)
	a.os.FreeAligned(b.mem)
	b.state = BlockReclaimable
}

// GCFull drives every type's treadmill to quiescence and sweeps every
// block that ends up entirely WHITE back to the OS. Unlike Alloc's
// incremental scan step, this performs unbounded work before
// returning (port of _tm_gc_full_inner/_tm_gc_full_type_inner).
func (a *Arena) GCFull() {
	a.mu.Lock()
	types := make([]*Type, 0, len(a.types))
	for _, t := range a.types {
		types = append(types, t)
	}
	a.mu.Unlock()

	for _, t := range types {
		t.Tread.GCFull()
		t.sweepBlocks()
	}
}

// ScanningCell returns the cell currently being scanned by whichever
// type's treadmill is mid-Scan, or nil if none is. Only one type can be
// mid-scan at a time since allocation and full collection (the callers
// of Scan) are serialized by the owning Heap.
func (a *Arena) ScanningCell() *Cell {
	a.mu.Lock()
	types := make([]*Type, 0, len(a.types))
	for _, t := range a.types {
		types = append(types, t)
	}
	a.mu.Unlock()

	for _, t := range types {
		if c := t.Tread.Scanning(); c != nil {
			return c
		}
	}
	return nil
}

func (a *Arena) blockFor(addr uintptr) *Block {
	base := addr &^ (a.blockSize - 1)
	a.mu.Lock()
	b := a.blocks[base]
	a.mu.Unlock()
	return b
}

// Classify resolves a raw machine word to the cell it points into, if
// any. It rejects words that fall on unused pages, inside untyped or
// unknown blocks, before the first parceled cell, at or past the parcel
// cursor, or that land in a free (WHITE) cell.
func (a *Arena) Classify(word uintptr) (*Cell, bool) {
	if word == 0 {
		return nil, false
	}

	p := word
	if a.EndOfBlockIsInterior && p&(a.blockSize-1) == 0 {
		// An exact block boundary is treated as one past the end of the
		// previous block.
		p--
	}

	if !a.pagemap.InUse(p) {
		return nil, false
	}

	b := a.blockFor(p)
	if b == nil {
		return nil, false
	}

	if p < b.PayloadBegin() || p >= b.ParcelCursor() {
		return nil, false
	}

	offset := p - b.base
	idx := offset / b.cellSize
	if within := offset % b.cellSize; within == 0 && a.EndOfCellIsInterior && idx > 0 {
		// An exact cell boundary is treated as one past the previous
		// cell, the same accommodation EndOfBlockIsInterior makes at
		// the block's outer edge.
		idx--
	}

	c := b.cellAt(idx)
	if c == nil {
		return nil, false
	}
	if b.owner.Tread.Color(c) == colorperm.White {
		return nil, false
	}
	return c, true
}

// MarkCandidate classifies word and, if it resolves to a cell, marks it
// reachable on that cell's treadmill. Called while scanning a live
// payload for interior pointers, and as the root scanner's per-word
// callback.
func (a *Arena) MarkCandidate(word uintptr) {
	c, ok := a.Classify(word)
	if !ok {
		return
	}
	c.block.owner.Tread.Mark(c)
}

// Alloc returns size bytes of zeroed memory tracked by the collector, or
// ErrOutOfMemory / ErrOversizeAlloc.
func (a *Arena) Alloc(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, nil
	}
	if sizeClass(size) > a.blockSize {
		return nil, ErrOversizeAlloc
	}

	t := a.GetType(size)
	c := t.Tread.Allocate()
	if c == nil {
		return nil, ErrOutOfMemory
	}

	ptr := unsafe.Pointer(c.payload)
	zero(ptr, t.Size)
	return ptr, nil
}

// AllocType allocates directly from t, skipping the size-class lookup
// Alloc performs, for a caller that already resolved its Type via
// GetType (e.g. a cached Descriptor reused across repeated
// same-size allocations).
func (a *Arena) AllocType(t *Type) (unsafe.Pointer, error) {
	c := t.Tread.Allocate()
	if c == nil {
		return nil, ErrOutOfMemory
	}
	ptr := unsafe.Pointer(c.payload)
	zero(ptr, t.Size)
	return ptr, nil
}

// Realloc resizes the allocation at ptr to size bytes, preserving
// min(size, old size) bytes of content (port of _tm_realloc_inner). A
// nil ptr behaves like Alloc; a zero size frees ptr and returns nil.
func (a *Arena) Realloc(ptr unsafe.Pointer, size uintptr) (unsafe.Pointer, error) {
	if ptr == nil {
		return a.Alloc(size)
	}
	if size == 0 {
		a.Free(ptr)
		return nil, nil
	}

	c, ok := a.Classify(uintptr(ptr))
	if !ok {
		return nil, ErrInvalidPointer
	}
	oldType := c.block.owner

	if sizeClass(size) == oldType.Size {
		// Same size class: the existing cell already has room: reuse it
		// in place rather than churning a new allocation.
		return ptr, nil
	}

	newPtr, err := a.Alloc(size)
	if err != nil {
		return nil, err
	}

	copySize := oldType.Size
	if size < copySize {
		copySize = size
	}
	src := unsafe.Slice((*byte)(ptr), copySize)
	dst := unsafe.Slice((*byte)(newPtr), copySize)
	copy(dst, src)

	a.Free(ptr)
	return newPtr, nil
}

// Free explicitly returns a cell obtained from Alloc. Collected
// garbage never needs to call this; it exists for mutator code that
// knows an object's lifetime precisely.
func (a *Arena) Free(ptr unsafe.Pointer) {
	c, ok := a.Classify(uintptr(ptr))
	if !ok {
		return
	}
	c.block.owner.Tread.Free(c)
}

func zero(ptr unsafe.Pointer, size uintptr) {
	b := unsafe.Slice((*byte)(ptr), size)
	for i := range b {
		b[i] = 0
	}
}
