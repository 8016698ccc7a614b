package colorperm

import "testing"

func TestIdentityRoundTrip(t *testing.T) {
	tbl := NewTable()
	for c := White; c <= Black; c++ {
		if got := tbl.ToLogical(tbl.ToPhysical(c)); got != c {
			t.Fatalf("round trip %v -> %v", c, got)
		}
	}
}

func TestFlipPeriodFour(t *testing.T) {
	tbl := NewTable()
	phys := map[Color]Physical{}
	for c := White; c <= Black; c++ {
		phys[c] = tbl.ToPhysical(c)
	}

	for i := 0; i < 4; i++ {
		tbl.Flip()
	}

	for c := White; c <= Black; c++ {
		if got := tbl.ToPhysical(c); got != phys[c] {
			t.Fatalf("color %v: after 4 flips got physical %v, want %v", c, got, phys[c])
		}
	}
}

func TestFlipRotation(t *testing.T) {
	tbl := NewTable()
	blackPhys := tbl.ToPhysical(Black)
	greyPhys := tbl.ToPhysical(Grey)
	ecruPhys := tbl.ToPhysical(Ecru)
	whitePhys := tbl.ToPhysical(White)

	tbl.Flip()

	if tbl.ToLogical(blackPhys) != Ecru {
		t.Errorf("old black should now read as ecru")
	}
	if tbl.ToLogical(ecruPhys) != White {
		t.Errorf("old ecru should now read as white")
	}
	if tbl.ToLogical(greyPhys) != Black {
		t.Errorf("old grey should now read as black")
	}
	if tbl.ToLogical(whitePhys) != Grey {
		t.Errorf("old white should now read as grey")
	}
}
