package tread

import "github.com/kstephens/treadmill/internal/colorperm"

// Treadmill is the per-type circular list with four region cursors and
// four rotating color indices — the heart of allocation, marking, and
// flipping.
//
// Each Treadmill owns an independent color permutation table. A single
// table shared across every type's treadmill only stays correct if every
// type flips in lockstep; since types flip independently as memory
// pressure is evaluated per type, a shared table would silently
// reinterpret another type's BLACK cells the moment any one type flips.
// Per-type tables avoid that cross-type corruption.
type Treadmill struct {
	owner *Type
	table *colorperm.Table

	free, bottom, top, scan *Cell
	counts                  [colorperm.Black + 1]int

	// allocColor is always BLACK: a flip-based design has no separate
	// sweep-phase allocation color.
	allocColor colorperm.Color

	// scanning names the cell whose payload Scan is currently walking,
	// so the write barrier can tell a mutation of that exact cell apart
	// from an ordinary GREY mutation that will simply be picked up when
	// its turn to scan comes around.
	scanning *Cell
}

func newTreadmill(owner *Type) *Treadmill {
	return &Treadmill{
		owner:      owner,
		table:      colorperm.NewTable(),
		allocColor: colorperm.Black,
	}
}

// Color returns n's current logical color.
func (t *Treadmill) Color(n *Cell) colorperm.Color {
	return t.table.ToLogical(n.physColor)
}

func (t *Treadmill) recolor(n *Cell, newColor colorperm.Color) colorperm.Color {
	old := t.Color(n)
	n.physColor = t.table.ToPhysical(newColor)
	t.counts[old]--
	t.counts[newColor]++
	n.block.counts[old]--
	n.block.counts[newColor]++
	return old
}

// Empty reports whether the treadmill has never had a cell added to it.
func (t *Treadmill) Empty() bool {
	return t.free == nil
}

// addWhite inserts a freshly parceled cell n at the bottom of WHITE.
func (t *Treadmill) addWhite(n *Cell) {
	if t.Empty() {
		n.prev, n.next = n, n
		t.free, t.bottom, t.top, t.scan = n, n, n, n
	} else {
		listAppend(t.bottom, n)
		if t.counts[colorperm.White] == 0 {
			t.free = n
		}
	}
	n.physColor = t.table.ToPhysical(colorperm.White)
	t.counts[colorperm.White]++
	n.block.counts[colorperm.White]++
}

// Allocate performs one scan step, flips if both WHITE and GREY are
// empty, requests more WHITE if still empty, and finally claims the
// cell at free. Returns nil if the type (and, transitively, the OS)
// cannot supply a cell.
func (t *Treadmill) Allocate() *Cell {
	t.Scan()

	if t.counts[colorperm.White] == 0 && t.counts[colorperm.Grey] == 0 {
		t.Flip()
	}

	if t.counts[colorperm.White] == 0 {
		t.requestWhite(1)
		if t.counts[colorperm.White] == 0 {
			return nil
		}
	}

	n := t.free
	t.free = n.next
	t.recolor(n, t.allocColor)
	return n
}

func (t *Treadmill) requestWhite(n int) int {
	return t.owner.parcelSome(n)
}

// markGrey relinks n to just after top and colors it GREY, setting scan
// if GREY was previously empty. Shared by Mark and Mutation, which
// differ only in which color they're promoting from.
func (t *Treadmill) markGrey(n *Cell) {
	if t.top == n {
		t.top = n.prev
	} else {
		listRemove(n)
		listInsert(t.top, n)
	}

	wasGreyEmpty := t.counts[colorperm.Grey] == 0
	t.recolor(n, colorperm.Grey)
	if wasGreyEmpty {
		t.scan = n
	}
}

// Mark is called with a conservatively identified cell. ECRU cells are
// drawn into GREY; WHITE is a collector error (a pointer into a free
// cell); GREY/BLACK are no-ops.
func (t *Treadmill) Mark(n *Cell) {
	switch t.Color(n) {
	case colorperm.White:
		fault("mark: conservative pointer resolved to a WHITE cell")
	case colorperm.Ecru:
		if t.bottom == n {
			t.bottom = n.next
		}
		t.markGrey(n)
	default:
		// GREY, BLACK: already reachable this epoch.
	}
}

// Scan performs one step: recoloring the cell at scan from GREY to
// BLACK, walking its payload for interior pointers, then stepping scan
// backward by one link.
func (t *Treadmill) Scan() {
	if t.scan == t.top {
		return
	}
	n := t.scan
	t.scan = n.prev
	t.recolor(n, colorperm.Black)

	t.scanning = n
	t.scanPayload(n)
	t.scanning = nil
}

// Scanning returns the cell currently mid-scanPayload, or nil if this
// treadmill isn't in the middle of a Scan call.
func (t *Treadmill) Scanning() *Cell { return t.scanning }

func (t *Treadmill) scanPayload(n *Cell) {
	scanCellWords(n.payload, n.block.cellSize, t.owner.arena.MarkCandidate)
}

// Mutation is the write barrier's treadmill hook. A BLACK cell mutated
// by the mutator is spliced back to GREY so it will be rescanned.
func (t *Treadmill) Mutation(n *Cell) {
	if t.Color(n) == colorperm.Black {
		t.markGrey(n)
	}
}

// Free colors the cell WHITE unconditionally and splices it into the
// WHITE arc, rather than aborting on a double free.
func (t *Treadmill) Free(n *Cell) {
	if t.Color(n) == colorperm.White {
		return // already free; freeing twice is a no-op
	}

	if t.free == n {
		t.free = n.next
	}
	if t.bottom == n {
		t.bottom = n.prev
	}
	if t.top == n {
		t.top = n.prev
	}
	if t.scan == n {
		t.scan = n.prev
	}
	listRemove(n)
	listAppend(t.bottom, n)

	wasWhiteEmpty := t.counts[colorperm.White] == 0
	t.recolor(n, colorperm.White)
	if wasWhiteEmpty {
		t.free = n
	}

	t.owner.arena.maybeReclaim(n.block)
}

// Flip advances the epoch: GREY and BLACK trade identities with WHITE
// and ECRU by rotating the color table, in O(1) regardless of how many
// cells are live. An empty treadmill has nothing to flip.
func (t *Treadmill) Flip() {
	if t.Empty() {
		return
	}
	t.bottom, t.top = t.top, t.bottom
	t.table.Flip()

	if t.Color(t.top) == colorperm.White {
		t.top = t.top.prev
	}
	t.scan = t.top
	t.owner.arena.scanRoots()

	if t.Color(t.bottom) == colorperm.White {
		t.bottom = t.bottom.next
	}

	if t.counts[colorperm.White] == 0 {
		t.bottom = t.scan.next
		t.free = t.bottom
	}
}

// GCFull drives the treadmill to quiescence: scan to convergence
// (every reachable cell promoted to BLACK), then flip to reclaim
// whatever is left as WHITE. The flip's own root scan may turn
// previously-confirmed BLACK cells (now ECRU again, per Flip's
// rotation) back to GREY, so the scan/flip pair repeats until a flip
// finds nothing left in ECRU: everything still standing is BLACK,
// everything else has been reclaimed to WHITE. A heap that isn't
// concurrently mutated converges within two flips, mirroring the
// original's "try this twice" full-collection pass.
func (t *Treadmill) GCFull() {
	for {
		for t.counts[colorperm.Grey] > 0 {
			t.Scan()
		}
		if t.counts[colorperm.Ecru] == 0 {
			return
		}
		t.Flip()
	}
}

// reclaimBlockCells removes every cell in cells (all WHITE, all
// belonging to one block that is being returned to the OS) from the
// treadmill's circular list, walking free/bottom/top/scan forward past
// any cursor that currently sits on a removed cell. If every remaining
// cell was in this block, the treadmill goes fully empty.
func (t *Treadmill) reclaimBlockCells(cells []*Cell) {
	if len(cells) == 0 {
		return
	}
	remove := make(map[*Cell]bool, len(cells))
	for _, c := range cells {
		remove[c] = true
	}

	advance := func(c *Cell) *Cell {
		start := c
		for remove[c] {
			c = c.next
			if c == start {
				return nil
			}
		}
		return c
	}

	t.free = advance(t.free)
	t.bottom = advance(t.bottom)
	t.top = advance(t.top)
	t.scan = advance(t.scan)

	for _, c := range cells {
		t.counts[t.Color(c)]--
		listRemove(c)
	}

	if t.free == nil {
		t.bottom, t.top, t.scan = nil, nil, nil
	}
}

// Counts returns the treadmill's logical color counts, indexed by
// colorperm.Color.
func (t *Treadmill) Counts() [colorperm.Black + 1]int { return t.counts }

// Total returns the total number of cells currently tracked.
func (t *Treadmill) Total() int {
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}

// Walk calls fn for every cell currently on the treadmill, in list order
// starting from free, for callers that want to inspect every cell and
// its color.
func (t *Treadmill) Walk(fn func(*Cell, colorperm.Color)) {
	if t.Empty() {
		return
	}
	start := t.free
	n := start
	for {
		fn(n, t.Color(n))
		n = n.next
		if n == start {
			break
		}
	}
}
