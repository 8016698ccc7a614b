// Package barrier implements the write barrier that keeps the tri-color
// invariant intact between flips: whenever the mutator stores a pointer
// into memory the collector has already scanned, the barrier makes sure
// the store's destination and target are reconsidered before the next
// flip.
package barrier

import (
	"sync/atomic"

	"github.com/kstephens/treadmill/internal/colorperm"
	"github.com/kstephens/treadmill/internal/tread"
)

// Classifier resolves a raw address to the cell it lives in. Satisfied
// by *tread.Arena.
type Classifier interface {
	Classify(addr uintptr) (*tread.Cell, bool)
}

// Barrier wires the three write-barrier entry points to a classifier.
// StackLow/StackHigh delimit the live stack, the one region the barrier
// never needs to act on: the stack is scanned wholesale as part of every
// flip's root pass, so a store there can never leave a black cell stale.
type Barrier struct {
	classifier Classifier

	stackLow, stackHigh uintptr

	stackMutations uint64
	dataMutations  uint64
	pureMutations  uint64

	// triggerFullGC is set when the cell currently being scanned is
	// mutated before its scan finishes: a sign the allocator is
	// outrunning the collector's quantum and a full collection should
	// run instead of another incremental slice.
	triggerFullGC int32

	// scanning, if set, names the cell currently mid-scan: Pure/General
	// compare against it to decide whether a mutation is the rare
	// "mutated while being scanned" race that should trigger a full GC.
	scanning func() *tread.Cell
}

// New builds a Barrier over classifier, treating [stackLow, stackHigh)
// as the live stack range.
func New(classifier Classifier, stackLow, stackHigh uintptr) *Barrier {
	return &Barrier{classifier: classifier, stackLow: stackLow, stackHigh: stackHigh}
}

// SetScanningProbe installs the callback Pure/General use to detect
// when a mutated cell is the one currently being scanned.
func (b *Barrier) SetScanningProbe(fn func() *tread.Cell) { b.scanning = fn }

func (b *Barrier) onStack(addr uintptr) bool {
	return b.stackLow <= addr && addr < b.stackHigh
}

// Pure is the write barrier for a pointer known to point at the
// beginning of a live allocation (never 0, never an interior pointer).
// It is the cheapest entry point: skip the stack/root classification
// work the other two do and go straight to the cell.
func (b *Barrier) Pure(addr uintptr) {
	atomic.AddUint64(&b.pureMutations, 1)
	cell, ok := b.classifier.Classify(addr)
	if !ok {
		return
	}
	b.mutateNode(cell)
}

// Root is the write barrier for a pointer known to live in the stack or
// static data segment, but whose target may or may not be a heap
// pointer. Stack stores need no action: the stack scan at the next flip
// picks them up wholesale. A store into a heap cell reached through a
// root requires no action either, since root scanning doesn't run
// incrementally the way cell scanning does — it is never "half done" to
// be caught out by a stale root.
func (b *Barrier) Root(addr uintptr) {
	if b.onStack(addr) {
		atomic.AddUint64(&b.stackMutations, 1)
		return
	}
	atomic.AddUint64(&b.dataMutations, 1)
}

// General is the write barrier for a pointer of unknown provenance: it
// may be a stack slot, a static global, or a field inside a heap cell.
// It dispatches to the cell path once it has resolved which case
// applies.
func (b *Barrier) General(addr uintptr) {
	if b.onStack(addr) {
		atomic.AddUint64(&b.stackMutations, 1)
		return
	}
	cell, ok := b.classifier.Classify(addr)
	if !ok {
		atomic.AddUint64(&b.dataMutations, 1)
		return
	}
	b.mutateNode(cell)
}

func (b *Barrier) mutateNode(cell *tread.Cell) {
	if b.scanning != nil && b.scanning() == cell {
		atomic.StoreInt32(&b.triggerFullGC, 1)
	}
	if cell.Color() == colorperm.Black {
		cell.MarkMutated()
	}
}

// ConsumeTriggerFullGC reports and clears the full-GC trigger flag.
func (b *Barrier) ConsumeTriggerFullGC() bool {
	return atomic.SwapInt32(&b.triggerFullGC, 0) != 0
}

// Stats returns the barrier's mutation counters, for the stats dump.
func (b *Barrier) Stats() (stack, data, pure uint64) {
	return atomic.LoadUint64(&b.stackMutations),
		atomic.LoadUint64(&b.dataMutations),
		atomic.LoadUint64(&b.pureMutations)
}
