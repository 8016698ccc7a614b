// Package treadmill implements a conservative, incremental,
// non-moving garbage collector over Baker's treadmill algorithm: a
// circular free list per allocation size, partitioned into four color
// arcs that rotate identities in O(1) at the end of every collection
// epoch instead of being walked and relabeled cell by cell.
package treadmill

import (
	"io"
	"sync"
	"unsafe"

	"github.com/kstephens/treadmill/internal/barrier"
	"github.com/kstephens/treadmill/internal/colorperm"
	"github.com/kstephens/treadmill/internal/phase"
	"github.com/kstephens/treadmill/internal/root"
	"github.com/kstephens/treadmill/internal/stats"
	"github.com/kstephens/treadmill/internal/tread"
)

// Heap is a complete collected memory space: an arena of typed blocks,
// a root registry, a write barrier, a phase scheduler, and a stats
// collector, wired together the way a single-process embedding of the
// collector would assemble them.
type Heap struct {
	mu sync.Mutex

	arena   *tread.Arena
	roots   *root.Registry
	scanner *root.Scanner
	barrier *barrier.Barrier
	sched   *phase.Scheduler
	stats   *stats.Collector

	stackLow, stackHigh uintptr
}

// New builds a Heap from cfg.
func New(cfg Config) *Heap {
	arena := tread.NewArena(cfg.BlockSize, cfg.Ceiling, cfg.MinFreeBlocks)
	registry := root.NewRegistry()

	h := &Heap{
		arena: arena,
		roots: registry,
		sched: phase.NewScheduler(cfg.Quanta, cfg.GCThresholdNum, cfg.GCThresholdDen),
		stats: stats.New(cfg.Logger),
	}

	prev := h.sched.Phase()
	h.sched.OnEnter(func(p phase.Phase) {
		h.stats.RecordPhaseTransition(prev, p)
		prev = p
	})

	h.scanner = root.NewScanner(registry, unsafe.Sizeof(uintptr(0)), readWord, arena.MarkCandidate)
	arena.SetRootScanner(h.scanner.ScanAll)

	h.barrier = barrier.New(arena, 0, 0)
	h.barrier.SetScanningProbe(arena.ScanningCell)
	arena.EndOfBlockIsInterior = cfg.EndOfBlockIsInterior
	arena.EndOfCellIsInterior = cfg.EndOfCellIsInterior

	return h
}

func readWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

// SetStackRange tells the heap where the mutator's live stack currently
// is, so the write barrier can treat stores there as free (picked up by
// the wholesale stack scan at the next flip) instead of running the
// classifier on every stack write.
func (h *Heap) SetStackRange(low, high uintptr) error {
	if low >= high {
		return errZeroStackRange
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stackLow, h.stackHigh = low, high
	h.roots.AddRange("stack", low, high)
	h.barrier = barrier.New(h.arena, low, high)
	h.barrier.SetScanningProbe(h.arena.ScanningCell)
	return nil
}

// Alloc returns size bytes of zeroed, collector-tracked memory, or nil
// if size is zero.
func (h *Heap) Alloc(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(func() (unsafe.Pointer, error) { return h.arena.Alloc(size) })
}

// Realloc resizes the allocation at ptr to size bytes, preserving
// min(size, old size) bytes of content. A nil ptr behaves like Alloc; a
// zero size frees ptr and returns nil.
func (h *Heap) Realloc(ptr unsafe.Pointer, size uintptr) (unsafe.Pointer, error) {
	if ptr == nil {
		return h.Alloc(size)
	}
	if size == 0 {
		h.Free(ptr)
		return nil, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(func() (unsafe.Pointer, error) { return h.arena.Realloc(ptr, size) })
}

// Descriptor caches the size-class resolution Alloc otherwise repeats
// on every call, for a caller that allocates the same size repeatedly
// and wants to skip that lookup.
type Descriptor struct {
	typ *tread.Type
}

// Describe resolves size to the Type that will service it, for reuse
// with AllocDesc.
func (h *Heap) Describe(size uintptr) Descriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Descriptor{typ: h.arena.GetType(size)}
}

// AllocDesc allocates using a Type resolved by a prior call to Describe.
func (h *Heap) AllocDesc(d Descriptor) (unsafe.Pointer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(func() (unsafe.Pointer, error) { return h.arena.AllocType(d.typ) })
}

// allocLocked runs the shared post-allocation bookkeeping (phase
// pacing, stats sampling) around whichever arena call the caller needs,
// with h.mu already held.
func (h *Heap) allocLocked(do func() (unsafe.Pointer, error)) (unsafe.Pointer, error) {
	ptr, err := do()
	if err != nil {
		return nil, err
	}

	h.sched.RecordAlloc()
	h.runQuantum()
	h.stats.RecordAlloc(uintptr(ptr), h.snapshot())

	return ptr, nil
}

// Free explicitly returns memory obtained from Alloc. It is never
// required for correctness — unreachable memory is reclaimed by the
// next flip regardless — but lets a mutator with precise lifetime
// knowledge skip waiting for a collection cycle.
func (h *Heap) Free(ptr unsafe.Pointer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.arena.Free(ptr)
	h.stats.RecordFree()
}

// runQuantum advances the phase scheduler based on current memory
// pressure and the write barrier's full-GC trigger, called once per
// allocation so collection work is amortized rather than bursty.
func (h *Heap) runQuantum() {
	if h.barrier.ConsumeTriggerFullGC() {
		h.sched.ForceFull()
	}

	if h.sched.Phase() != phase.Alloc {
		// A cycle is already underway: the treadmill's own flip does the
		// actual unmark/root/scan/sweep work incrementally on every
		// Allocate() call regardless of phase label, so the scheduler's
		// job here is just to pace the labeled phases themselves, one
		// step per allocation, back around to ALLOC.
		h.sched.Advance()
		return
	}

	counts := h.arena.AllCounts()
	used := counts[colorperm.Ecru] + counts[colorperm.Grey] + counts[colorperm.Black]
	total := counts[colorperm.White] + used
	if h.sched.MemoryPressure(used, total) {
		h.sched.Advance()
	}
}

func (h *Heap) snapshot() stats.Snapshot {
	return stats.Snapshot{Counts: h.arena.AllCounts(), Phase: h.sched.Phase()}
}

// Stats returns a point-in-time snapshot of the heap's color occupancy
// and current phase, for an embedder that wants to assert on collector
// state directly rather than parsing log output.
func (h *Heap) Stats() stats.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot()
}

// WriteBarrierPure is the write barrier entry point for a pointer known
// to point at the start of a live allocation.
func (h *Heap) WriteBarrierPure(addr uintptr) { h.barrier.Pure(addr) }

// WriteBarrierRoot is the write barrier entry point for a pointer known
// to live on the stack or in static data.
func (h *Heap) WriteBarrierRoot(addr uintptr) { h.barrier.Root(addr) }

// WriteBarrier is the write barrier entry point for a pointer of
// unknown provenance.
func (h *Heap) WriteBarrier(addr uintptr) { h.barrier.General(addr) }

// AddRoot registers [low, high) as a conservatively scanned root range.
func (h *Heap) AddRoot(name string, low, high uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots.AddRange(name, low, high)
}

// AddRootCallback registers a callback root invoked once per flip.
func (h *Heap) AddRootCallback(name string, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots.AddCallback(name, fn)
}

// RemoveRoot retires [low, high) as an anti-root.
func (h *Heap) RemoveRoot(name string, low, high uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots.RemoveRange(name, low, high)
}

// MarkCandidate offers word to the classifier as a potential pointer,
// for mutator code that wants to hand the collector a value it can't
// express as a root range (e.g. a single register snapshot).
func (h *Heap) MarkCandidate(word uintptr) { h.arena.MarkCandidate(word) }

// Phase returns the scheduler's current collection phase.
func (h *Heap) Phase() phase.Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sched.Phase()
}

// ForceFull jumps the phase scheduler straight into a new collection
// cycle on the next allocation, rather than waiting for the occupancy
// threshold to trigger one.
func (h *Heap) ForceFull() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sched.ForceFull()
}

// GCFull runs a synchronous full collection cycle: every type's
// treadmill is driven to quiescence (every reachable cell promoted to
// BLACK, every unreachable cell reclaimed to WHITE, every now-empty
// block returned to the OS) before this call returns, rather than the
// incremental per-allocation work runQuantum otherwise paces out.
func (h *Heap) GCFull() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.arena.GCFull()
	h.sched.CompleteCycle()
	h.barrier.ConsumeTriggerFullGC()
}

// Totals returns the cumulative allocation and free counts.
func (h *Heap) Totals() (allocs, frees uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats.Totals()
}

// DumpDOT writes a Graphviz rendering of every size class's treadmill —
// cells styled by color, list edges, and cursor positions — to w.
func (h *Heap) DumpDOT(w io.Writer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.arena.DumpDOT(w)
}

// LogStats logs a utilization summary and the color/phase transition
// matrices accumulated so far, for a standalone binary or test harness
// that wants a one-shot dump rather than per-allocation sampling. Phase
// transitions are recorded as the scheduler makes them; nothing in the
// heap records color transitions, so that matrix logs no entries.
func (h *Heap) LogStats() {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := h.arena.AllCounts()
	h.stats.LogHeapUtilization(counts)
	h.stats.LogColorTransitions()
	h.stats.LogPhaseTransitions()
}
