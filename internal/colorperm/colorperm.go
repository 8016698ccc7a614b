// Package colorperm implements the treadmill's color permutation: the
// constant-time rotation that ends one collection epoch and begins the
// next without rewriting a single cell header.
//
// Colors are logical (WHITE, ECRU, GREY, BLACK) but stored on cells as a
// physical index 0..3. Two tables translate between the spaces; rotating
// them on flip is what makes the flip O(1) regardless of heap size.
package colorperm

// Color is a logical color. Cell headers never store a Color directly;
// they store the physical index that Table.ToPhysical maps to it.
type Color int

const (
	White Color = iota
	Ecru
	Grey
	Black

	numColors = 4
)

func (c Color) String() string {
	switch c {
	case White:
		return "WHITE"
	case Ecru:
		return "ECRU"
	case Grey:
		return "GREY"
	case Black:
		return "BLACK"
	default:
		return "INVALID"
	}
}

// Physical is the bit pattern stored in a cell header. Its meaning changes
// across flips; Table translates it to/from the stable logical Color.
type Physical int

// Table holds the logical->physical map c and its inverse c1.
type Table struct {
	c  [numColors]Physical // logical -> physical
	c1 [numColors]Color    // physical -> logical
}

// NewTable returns the identity permutation: logical color i is stored as
// physical index i.
func NewTable() *Table {
	t := &Table{}
	for i := 0; i < numColors; i++ {
		t.c[i] = Physical(i)
		t.c1[i] = Color(i)
	}
	return t
}

// ToPhysical returns the physical bit pattern currently meaning logical.
func (t *Table) ToPhysical(logical Color) Physical {
	return t.c[logical]
}

// ToLogical returns the logical color currently meant by physical.
func (t *Table) ToLogical(physical Physical) Color {
	return t.c1[physical]
}

// Flip rotates the permutation: the previous BLACK becomes ECRU,
// previous ECRU becomes WHITE, previous GREY becomes BLACK, and the old
// WHITE is released into GREY.
func (t *Table) Flip() {
	oldWhite := t.c[White]
	oldEcru := t.c[Ecru]
	oldGrey := t.c[Grey]
	oldBlack := t.c[Black]

	t.c[Black] = oldGrey
	t.c[Grey] = oldWhite
	t.c[White] = oldEcru
	t.c[Ecru] = oldBlack

	for i := 0; i < numColors; i++ {
		t.c1[t.c[i]] = Color(i)
	}
}
