package pagemap

import "testing"

func TestMarkAndInUse(t *testing.T) {
	m := New(0x1000, 16*4096, 4096)

	if m.InUse(0x1000) {
		t.Fatalf("fresh map should reject")
	}

	m.MarkUsed(0x1000)
	if !m.InUse(0x1000) {
		t.Fatalf("expected page marked used")
	}
	if !m.InUse(0x1fff) {
		t.Fatalf("expected same page (different offset) marked used")
	}
	if m.InUse(0x2000) {
		t.Fatalf("next page should not be marked")
	}
}

func TestMarkUnusedRange(t *testing.T) {
	base := uintptr(0x10000)
	m := New(base, 64*4096, 4096)

	for i := 0; i < 8; i++ {
		m.MarkUsed(base + uintptr(i)*4096)
	}
	if m.Count() != 8 {
		t.Fatalf("count = %d, want 8", m.Count())
	}

	m.MarkUnusedRange(base, 4*4096)
	if m.Count() != 4 {
		t.Fatalf("count after unmark = %d, want 4", m.Count())
	}
	if m.InUse(base) {
		t.Fatalf("first page should be unmarked")
	}
	if !m.InUse(base + 4*4096) {
		t.Fatalf("fifth page should still be marked")
	}
}

func TestOutOfRangeRejected(t *testing.T) {
	m := New(0x10000, 4096, 4096)
	if m.InUse(0) {
		t.Fatalf("address below base should reject")
	}
	if m.InUse(0x100000) {
		t.Fatalf("address far above span should reject")
	}
}
