package treadmill

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/kstephens/treadmill/internal/colorperm"
)

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BlockSize = 4096
	return New(cfg)
}

func TestAllocProducesDistinctZeroedRegions(t *testing.T) {
	h := newTestHeap(t)

	p1, err := h.Alloc(24)
	assert.NoError(t, err)
	p2, err := h.Alloc(24)
	assert.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestOversizeAllocationFailsCleanly(t *testing.T) {
	h := newTestHeap(t)
	_, err := h.Alloc(1 << 24)
	assert.ErrorIs(t, err, ErrOversizeAlloc)
}

func TestConsListSurvivesAcrossAllocationPressure(t *testing.T) {
	h := newTestHeap(t)

	type node struct {
		next unsafe.Pointer
		val  int
	}

	headPtr, err := h.Alloc(unsafe.Sizeof(node{}))
	assert.NoError(t, err)
	head := (*node)(headPtr)
	head.val = 1

	h.AddRoot("head", uintptr(unsafe.Pointer(&headPtr)), uintptr(unsafe.Pointer(&headPtr))+unsafe.Sizeof(headPtr))

	cur := headPtr
	for i := 0; i < 64; i++ {
		next, err := h.Alloc(unsafe.Sizeof(node{}))
		assert.NoError(t, err)
		(*node)(cur).next = next
		h.WriteBarrierPure(uintptr(cur))
		cur = next
	}

	// Force enough garbage to have been generated that, were the live
	// chain not protected, the allocator would have reused its memory.
	for i := 0; i < 4096; i++ {
		_, err := h.Alloc(16)
		assert.NoError(t, err)
	}

	assert.Equal(t, 1, head.val)

	h.GCFull()
	assert.Equal(t, 1, head.val)

	for _, p := range []unsafe.Pointer{headPtr, cur} {
		c, ok := h.arena.Classify(uintptr(p))
		assert.True(t, ok, "a rooted cell must survive a full collection")
		assert.Equal(t, colorperm.Black, c.Color(), "a surviving cell should have converged to BLACK")
	}
}

func TestExplicitFreeThenReallocateGetsZeroedMemory(t *testing.T) {
	h := newTestHeap(t)

	p, err := h.Alloc(16)
	assert.NoError(t, err)
	b := unsafe.Slice((*byte)(p), 16)
	for i := range b {
		b[i] = 0xFF
	}

	h.Free(p)

	p2, err := h.Alloc(16)
	assert.NoError(t, err)
	b2 := unsafe.Slice((*byte)(p2), 16)
	for _, v := range b2 {
		assert.Equal(t, byte(0), v)
	}
}

func TestCallbackRootStillScannedAfterAntiRootSplit(t *testing.T) {
	h := newTestHeap(t)
	var frame [32]uintptr
	lo := uintptr(unsafe.Pointer(&frame[0]))
	h.AddRoot("stack", lo, lo+unsafe.Sizeof(frame))
	h.RemoveRoot("popped-frame", lo+8*unsafe.Sizeof(frame[0]), lo+16*unsafe.Sizeof(frame[0]))

	var marked []uintptr
	h.AddRootCallback("probe", func() {
		// A callback root always runs; used here only to prove the
		// scanner still executes callbacks after a range is split.
		marked = append(marked, 1)
	})

	h.arena.SetRootScanner(h.scanner.ScanAll)
	h.scanner.ScanAll()

	assert.Len(t, marked, 1)
}

// TestAntiRootExcludedCellIsReclaimed verifies that a cell only
// reachable through a root range later excluded by an anti-root is
// actually collected, not just that the scanner skips the excluded
// addresses.
func TestAntiRootExcludedCellIsReclaimed(t *testing.T) {
	h := newTestHeap(t)

	p, err := h.Alloc(16)
	assert.NoError(t, err)

	slot := p
	slotAddr := uintptr(unsafe.Pointer(&slot))

	h.AddRoot("frame", slotAddr, slotAddr+unsafe.Sizeof(slot))
	h.RemoveRoot("popped-frame", slotAddr, slotAddr+unsafe.Sizeof(slot))

	h.GCFull()

	_, ok := h.arena.Classify(uintptr(p))
	assert.False(t, ok, "a cell only reachable through an excluded root range must be reclaimed")
}

func TestAllocDescReusesTheResolvedSizeClass(t *testing.T) {
	h := newTestHeap(t)

	d := h.Describe(24)
	p1, err := h.AllocDesc(d)
	assert.NoError(t, err)
	p2, err := h.AllocDesc(d)
	assert.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestDumpDOTProducesGraphvizOutput(t *testing.T) {
	h := newTestHeap(t)
	_, err := h.Alloc(24)
	assert.NoError(t, err)

	var buf bytes.Buffer
	assert.NoError(t, h.DumpDOT(&buf))
	assert.Contains(t, buf.String(), "digraph heap {")
}

func TestBlockReclaimedToFreeListAfterFullCollection(t *testing.T) {
	h := newTestHeap(t)

	const n = 64
	for i := 0; i < n; i++ {
		_, err := h.Alloc(16)
		assert.NoError(t, err)
	}

	typ := h.arena.GetType(16)
	assert.Greater(t, len(typ.BlockList()), 0)

	h.GCFull()

	assert.Empty(t, typ.BlockList(), "every block should be reclaimed once nothing roots its cells")
}

func TestNoAdditionalBlocksNeededAfterFirstFullCollection(t *testing.T) {
	h := newTestHeap(t)

	const n = 64
	for i := 0; i < n; i++ {
		_, err := h.Alloc(16)
		assert.NoError(t, err)
	}

	typ := h.arena.GetType(16)
	firstRound := len(typ.BlockList())
	assert.Greater(t, firstRound, 0)

	h.GCFull()
	assert.Empty(t, typ.BlockList())

	for i := 0; i < n; i++ {
		_, err := h.Alloc(16)
		assert.NoError(t, err)
	}

	assert.Equal(t, firstRound, len(typ.BlockList()),
		"the second round should reclaim the same number of blocks as the first, reusing the freed OS cache rather than growing further")
}

func TestGCFullConvergesToNoGreyOrEcruCells(t *testing.T) {
	h := newTestHeap(t)

	for i := 0; i < 200; i++ {
		_, err := h.Alloc(16)
		assert.NoError(t, err)
	}

	h.GCFull()

	snap := h.Stats()
	assert.Zero(t, snap.Counts[colorperm.Grey])
	assert.Zero(t, snap.Counts[colorperm.Ecru])
}

func TestTotalsTrackAllocsAndFrees(t *testing.T) {
	h := newTestHeap(t)
	p, _ := h.Alloc(16)
	h.Free(p)

	allocs, frees := h.Totals()
	assert.Equal(t, uint64(1), allocs)
	assert.Equal(t, uint64(1), frees)
}
