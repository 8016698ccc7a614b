package tread

import "github.com/kstephens/treadmill/internal/colorperm"

// Cell is the smallest allocatable unit: a small header plus a
// fixed-size payload. The color is carried as an explicit tag
// (physColor) rather than stolen from a pointer's low bits, trading two
// words of overhead for a representation that doesn't need pointer
// tagging tricks.
//
// Every Cell belongs to exactly one circular, doubly linked list (its
// type's Treadmill) at all times, including the instant it is parceled —
// Block.parcelOne makes a freshly parceled cell a singleton list of one,
// and Treadmill.addWhite then splices it into the treadmill.
type Cell struct {
	prev, next *Cell
	physColor  colorperm.Physical

	block   *Block
	payload uintptr // address of the cell's data, inside block's arena
}

// Payload returns the address the mutator sees for this cell.
func (c *Cell) Payload() uintptr { return c.payload }

// Block returns the cell's owning block.
func (c *Cell) Block() *Block { return c.block }

// Color returns the cell's current logical color.
func (c *Cell) Color() colorperm.Color { return c.block.owner.Tread.Color(c) }

// MarkMutated reschedules the cell for rescanning if the write barrier
// observed it being stored into while BLACK.
func (c *Cell) MarkMutated() { c.block.owner.Tread.Mutation(c) }

// listInsert splices p in immediately after l.
func listInsert(l, p *Cell) {
	p.next = l.next
	p.prev = l
	l.next.prev = p
	l.next = p
}

// listAppend splices p in immediately before l (i.e. at the end of l's
// list, viewed with l as the notional head).
func listAppend(l, p *Cell) {
	listInsert(l.prev, p)
}

// listRemove unlinks p, leaving it a self-referential singleton.
func listRemove(p *Cell) {
	p.next.prev = p.prev
	p.prev.next = p.next
	p.next = p
	p.prev = p
}
