package tread

import (
	"github.com/kstephens/treadmill/internal/colorperm"
	"github.com/kstephens/treadmill/internal/osalloc"
)

// BlockState is a block's position in its lifecycle: uninitialized ->
// live -> reclaimable -> returned to the OS. "parceling" and "live" are
// collapsed here: a block is simply live from the moment it is
// obtained, and is either the type's current parcel source or not.
type BlockState int

const (
	BlockLive BlockState = iota
	BlockReclaimable
)

// Block is an aligned region parceled into uniformly sized cells
// belonging to one Type.
type Block struct {
	owner *Type
	state BlockState

	mem      *osalloc.Block
	base     uintptr // == uintptr(mem.Ptr), cached for arithmetic
	cellSize uintptr
	capacity uintptr // mem.Size / cellSize

	parceled uintptr // number of cells carved so far; parcel cursor = base + parceled*cellSize
	cells    []*Cell // index i is the cell at base + i*cellSize

	counts [colorperm.Black + 1]int // per-color cell counts, for invariant 2
}

func newBlock(owner *Type, mem *osalloc.Block) *Block {
	cellSize := owner.Size
	return &Block{
		owner:    owner,
		mem:      mem,
		base:     uintptr(mem.Ptr),
		cellSize: cellSize,
		capacity: mem.Size / cellSize,
		cells:    make([]*Cell, 0, mem.Size/cellSize),
	}
}

// PayloadBegin is the first byte of the block's cell arena.
func (b *Block) PayloadBegin() uintptr { return b.base }

// ParcelCursor is the address just past the last carved cell; addresses
// at or beyond it have never been handed to any cell.
func (b *Block) ParcelCursor() uintptr { return b.base + b.parceled*b.cellSize }

// Total returns the number of cells parceled from this block so far.
func (b *Block) Total() int { return len(b.cells) }

// Exhausted reports whether every cell the block can ever hold has been
// parceled.
func (b *Block) Exhausted() bool { return b.parceled >= b.capacity }

// cellAt returns the cell at arena index idx, or nil if idx is out of the
// parceled range.
func (b *Block) cellAt(idx uintptr) *Cell {
	if idx >= uintptr(len(b.cells)) {
		return nil
	}
	return b.cells[idx]
}

// parcelOne carves one new WHITE cell from the block's unused suffix.
// The cell is returned unlinked; the caller adds it to the owning
// type's treadmill.
func (b *Block) parcelOne() *Cell {
	if b.Exhausted() {
		return nil
	}
	idx := b.parceled
	payload := b.base + idx*b.cellSize
	c := &Cell{block: b, payload: payload}
	c.prev, c.next = c, c

	b.parceled++
	b.cells = append(b.cells, c)

	return c
}
