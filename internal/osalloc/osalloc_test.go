package osalloc

import (
	"testing"
	"unsafe"
)

func TestAllocAlignedAlignment(t *testing.T) {
	a := New(4096, 2, 0)
	b, err := a.AllocAligned(256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uintptr(b.Ptr)%4096 != 0 {
		t.Fatalf("block not aligned: %p", b.Ptr)
	}
	if b.Size != 256 {
		t.Fatalf("size = %d, want 256", b.Size)
	}
}

func TestFreeListCacheReuse(t *testing.T) {
	a := New(4096, 1, 0)
	b1, _ := a.AllocAligned(4096)
	a.FreeAligned(b1)
	if a.CachedCount(4096) != 1 {
		t.Fatalf("expected one cached block")
	}

	b2, err := a.AllocAligned(4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b2.Ptr != b1.Ptr {
		t.Fatalf("expected cached block reused")
	}
	if a.CachedCount(4096) != 0 {
		t.Fatalf("cache should be drained")
	}
}

func TestFreeListCacheBounded(t *testing.T) {
	a := New(4096, 1, 0)
	b1, _ := a.AllocAligned(4096)
	b2, _ := a.AllocAligned(4096)
	a.FreeAligned(b1)
	a.FreeAligned(b2)
	if a.CachedCount(4096) != 1 {
		t.Fatalf("cache should cap at minFree=1, got %d", a.CachedCount(4096))
	}
}

func TestSoftCeiling(t *testing.T) {
	a := New(4096, 0, 8192)
	if _, err := a.AllocAligned(4096); err != nil {
		t.Fatalf("first alloc should succeed: %v", err)
	}
	if _, err := a.AllocAligned(4096); err != nil {
		t.Fatalf("second alloc should succeed: %v", err)
	}
	if _, err := a.AllocAligned(4096); err != ErrCeiling {
		t.Fatalf("third alloc should hit ceiling, got %v", err)
	}
}

func TestBlockMemoryIsUsable(t *testing.T) {
	a := New(4096, 0, 0)
	b, _ := a.AllocAligned(64)
	s := unsafe.Slice((*byte)(b.Ptr), b.Size)
	for i := range s {
		s[i] = 0xAB
	}
	for i, v := range s {
		if v != 0xAB {
			t.Fatalf("byte %d = %x, want 0xAB", i, v)
		}
	}
}
