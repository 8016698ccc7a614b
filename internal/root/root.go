// Package root tracks the registered root ranges and callbacks a scan
// walks at the end of every flip, along with the anti-root ranges that
// carve dead sub-regions (freed stack frames, unregistered globals) back
// out of them.
package root

import "sort"

// Range is a half-open address interval [Low, High), or — when both are
// zero — a pure callback root with no address range of its own.
type Range struct {
	Name      string
	Low, High uintptr
	Callback  func()
}

func (r Range) empty() bool { return r.Low >= r.High }

// Registry holds every live root and anti-root range.
type Registry struct {
	roots     []Range
	antiRoots []Range
}

// NewRegistry returns an empty root registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// subtract removes b from a, reporting the resulting piece(s) of a that
// survive: -1 (a was entirely consumed by b, drop it), 0 (a is
// untouched, b doesn't overlap it), 1 (a single clipped remainder in
// out[0]), or 2 (b split a into two remainders, out[0] and out[1]).
func subtract(a, b Range, out *[2]Range) int {
	if b.empty() || b.High <= a.Low || b.Low >= a.High {
		return 0
	}
	if b.Low <= a.Low && a.High <= b.High {
		return -1
	}
	if a.Low < b.Low && b.High < a.High {
		out[0] = a
		out[0].High = b.Low
		out[1] = a
		out[1].Low = b.High
		return 2
	}
	if b.Low <= a.Low {
		// b overlaps the front of a; the surviving tail starts where b ends.
		out[0] = a
		out[0].Low = b.High
		return 1
	}
	// b overlaps the back of a; the surviving head ends where b begins.
	out[0] = a
	out[0].High = b.Low
	return 1
}

// AddRange registers a root range, splitting it against every existing
// anti-root before storing it. A range entirely consumed by an
// anti-root is simply dropped — nothing to scan there.
func (r *Registry) AddRange(name string, low, high uintptr) {
	r.addRange(Range{Name: name, Low: low, High: high})
}

func (r *Registry) addRange(a Range) {
	var out [2]Range
	for _, anti := range r.antiRoots {
		switch subtract(a, anti, &out) {
		case -1:
			return
		case 0:
			// no overlap; keep scanning remaining anti-roots
		case 1:
			a = out[0]
		case 2:
			r.addRange(out[0])
			a = out[1]
		}
	}
	r.roots = append(r.roots, a)
}

// AddCallback registers a pure callback root: a function invoked once
// per scan, with no arguments, that reports its own pointers by calling
// the collector's mark entry point itself, for roots a caller can't or won't expose as a contiguous range (a
// linked free list of registers, a sparse set of globals).
func (r *Registry) AddCallback(name string, fn func()) {
	r.roots = append(r.roots, Range{Name: name, Callback: fn})
}

// RemoveCallback drops the first registered root whose name is name,
// reporting whether one was found. Matching is by name only: Go cannot
// compare func values for equality, so the callback itself plays no
// part in the match.
func (r *Registry) RemoveCallback(name string) bool {
	for i, rt := range r.roots {
		if rt.Name != "" && rt.Name == name {
			r.roots = append(r.roots[:i], r.roots[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveRange retires [low, high) as an anti-root, clipping or
// splitting every existing root range that overlaps it.
func (r *Registry) RemoveRange(name string, low, high uintptr) {
	anti := Range{Name: name, Low: low, High: high}
	r.antiRoots = append(r.antiRoots, anti)

	var kept []Range
	var out [2]Range
	for _, a := range r.roots {
		if a.empty() && a.Callback != nil {
			kept = append(kept, a)
			continue
		}
		switch subtract(a, anti, &out) {
		case -1:
			// dropped
		case 0:
			kept = append(kept, a)
		case 1:
			kept = append(kept, out[0])
		case 2:
			kept = append(kept, out[0])
			r.addRangeInto(&kept, out[1])
		}
	}
	r.roots = kept
}

// addRangeInto re-splits a newly carved range against every anti-root
// before appending it to dst, used when RemoveRange's own splitting
// produces a fragment that itself might cross another anti-root.
func (r *Registry) addRangeInto(dst *[]Range, a Range) {
	var out [2]Range
	for _, anti := range r.antiRoots {
		switch subtract(a, anti, &out) {
		case -1:
			return
		case 1:
			a = out[0]
		case 2:
			r.addRangeInto(dst, out[0])
			a = out[1]
		}
	}
	*dst = append(*dst, a)
}

// Contains reports whether ptr falls in any registered root range.
func (r *Registry) Contains(ptr uintptr) bool {
	for _, rt := range r.roots {
		if rt.Callback == nil && rt.Low <= ptr && ptr < rt.High {
			return true
		}
	}
	return false
}

// Ranges returns a stable, name-sorted snapshot of the registered root
// ranges, for the debug dump.
func (r *Registry) Ranges() []Range {
	out := append([]Range(nil), r.roots...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Scanner walks every registered root, offering each word in a range's
// span to mark, and invoking each callback root directly (the callback
// is expected to call mark itself, for data structures a flat range
// can't describe).
type Scanner struct {
	registry *Registry
	wordSize uintptr
	readWord func(addr uintptr) uintptr
	mark     func(word uintptr)
}

// NewScanner builds a Scanner over registry. readWord reads one machine
// word at addr (the mutator's live stack/globals, via unsafe); mark
// offers a candidate word to the collector's classifier.
func NewScanner(registry *Registry, wordSize uintptr, readWord func(uintptr) uintptr, mark func(uintptr)) *Scanner {
	return &Scanner{registry: registry, wordSize: wordSize, readWord: readWord, mark: mark}
}

// ScanAll walks every registered root range and invokes every callback
// root, once each, synchronously. This is the only scan granularity
// exposed: conservative root scanning is not itself interruptible the
// way block-local marking is, since a root's liveness can't be safely
// amortized across mutator resumption.
func (s *Scanner) ScanAll() {
	for _, rt := range s.registry.roots {
		if rt.Callback != nil {
			rt.Callback()
			continue
		}
		for addr := rt.Low; addr < rt.High; addr += s.wordSize {
			s.mark(s.readWord(addr))
		}
	}
}
