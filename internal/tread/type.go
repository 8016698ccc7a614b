package tread

import "github.com/kstephens/treadmill/internal/osalloc"

// Type owns every block and cell of one distinct size. At most one of
// its blocks is being actively parceled at a
// time (parcelFromBlock); when that block is exhausted a new one is
// requested from the Arena's OS block allocator.
type Type struct {
	arena *Arena
	Size  uintptr

	blocks          []*Block
	parcelFromBlock *Block

	Tread *Treadmill

	allocsSinceSweep int
}

func newType(a *Arena, size uintptr) *Type {
	t := &Type{arena: a, Size: size}
	t.Tread = newTreadmill(t)
	return t
}

// parcelSome carves up to n new WHITE cells, requesting fresh blocks from
// the Arena as needed, and reports how many were actually carved (fewer
// than n, or zero, on OS refusal).
func (t *Type) parcelSome(n int) int {
	added := 0
	for added < n {
		if t.parcelFromBlock == nil || t.parcelFromBlock.Exhausted() {
			b, err := t.arena.obtainBlock(t)
			if err != nil {
				break
			}
			t.parcelFromBlock = b
		}

		c := t.parcelFromBlock.parcelOne()
		if c == nil {
			// Exhausted mid-loop (shouldn't happen given the check
			// above, but keep the state machine honest).
			t.parcelFromBlock = nil
			continue
		}

		t.arena.pagemap.MarkUsed(c.payload)
		t.Tread.addWhite(c)
		added++

		if t.parcelFromBlock.Exhausted() {
			t.parcelFromBlock = nil
		}
	}
	return added
}

// sweepBlocks offers every block this type owns to the arena's reclaim
// check, for a full collection that needs to return now-all-WHITE
// blocks to the OS immediately rather than waiting for the next
// Free to trigger the same check incidentally.
func (t *Type) sweepBlocks() {
	for _, b := range append([]*Block(nil), t.blocks...) {
		t.arena.maybeReclaim(b)
	}
}

// detachBlock removes b from this type's block list, e.g. when it has
// become fully reclaimable.
func (t *Type) detachBlock(b *Block) {
	for i, cand := range t.blocks {
		if cand == b {
			t.blocks = append(t.blocks[:i], t.blocks[i+1:]...)
			break
		}
	}
	if t.parcelFromBlock == b {
		t.parcelFromBlock = nil
	}
}

func (t *Type) attachBlock(b *Block) {
	t.blocks = append(t.blocks, b)
}

// Counts returns the current per-color cell counts for this type,
// summed from its treadmill.
func (t *Type) Counts() [4]int { return t.Tread.counts }

// BlockList returns the type's live blocks, for tests and stats.
func (t *Type) BlockList() []*Block { return t.blocks }

// osBlocks is a narrow view the Arena uses so it doesn't need to reach
// into osalloc directly when obtaining a block for a type.
type osBlocks interface {
	AllocAligned(size uintptr) (*osalloc.Block, error)
	FreeAligned(b *osalloc.Block)
}
