// Package stats collects collector counters and renders them through
// log/slog: structured, leveled logging rather than ad hoc fmt.Printf
// debugging.
package stats

import (
	"log/slog"
	"os"

	"github.com/kstephens/treadmill/internal/colorperm"
	"github.com/kstephens/treadmill/internal/phase"
)

// Sampler decides which allocations get logged to the allocation trace,
// geometrically backing off the sample rate as a run goes on: every
// allocation at first, then every 10th once 100 have been seen, then
// every 100th, settling at every 1000th. A long-running process never
// pays for dense logging of an arbitrarily large allocation count.
type Sampler struct {
	seen  uint64
	ratio uint64
}

// NewSampler returns a Sampler starting at a 1:1 ratio.
func NewSampler() *Sampler {
	return &Sampler{ratio: 1}
}

// ShouldLog reports whether the current allocation should be logged,
// and advances the sampler's internal state.
func (s *Sampler) ShouldLog() bool {
	id := s.seen
	s.seen++
	log := id%s.ratio == 0
	if s.ratio < 1000 && id/s.ratio > 100 {
		s.ratio *= 10
	}
	return log
}

// Snapshot is one point-in-time reading of a heap's color occupancy,
// logged at the sampler's cadence.
type Snapshot struct {
	Counts [colorperm.Black + 1]int
	Phase  phase.Phase
	Blocks int
}

// Collector aggregates counters across a heap's lifetime and logs them
// through a *slog.Logger.
type Collector struct {
	log *slog.Logger

	sampler *Sampler

	colorTransitions [colorperm.Black + 1][colorperm.Black + 1]uint64
	phaseTransitions [6][6]uint64 // indices 0-4 are phase.Phase, 5 is the running total row/column

	allocs, frees uint64
}

// New returns a Collector logging through log. A nil logger defaults to
// slog.Default().
func New(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{log: log, sampler: NewSampler()}
}

// NewTextLogger is a convenience constructor matching how a standalone
// binary (cmd/treadmill-dump, or a test harness) wants its own handler
// rather than inheriting the process-wide default.
func NewTextLogger(w *os.File, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// RecordColorTransition counts one cell moving from `from` to `to`.
func (c *Collector) RecordColorTransition(from, to colorperm.Color) {
	c.colorTransitions[from][to]++
}

// RecordPhaseTransition counts one scheduler step from `from` to `to`.
func (c *Collector) RecordPhaseTransition(from, to phase.Phase) {
	c.phaseTransitions[from][to]++
	c.phaseTransitions[from][5]++
	c.phaseTransitions[5][to]++
	c.phaseTransitions[5][5]++
}

// RecordAlloc logs an allocation trace line if the sampler selects it,
// and always bumps the running total.
func (c *Collector) RecordAlloc(ptr uintptr, snap Snapshot) {
	c.allocs++
	if !c.sampler.ShouldLog() {
		return
	}
	c.log.Debug("alloc",
		"id", c.allocs,
		"ptr", ptr,
		"white", snap.Counts[colorperm.White],
		"ecru", snap.Counts[colorperm.Ecru],
		"grey", snap.Counts[colorperm.Grey],
		"black", snap.Counts[colorperm.Black],
		"phase", snap.Phase.String(),
		"blocks", snap.Blocks,
	)
}

// RecordFree bumps the free counter; frees are never sampled-logged, as
// they are either mutator-explicit (rare enough to not need sampling)
// or implicit (never individually observable).
func (c *Collector) RecordFree() { c.frees++ }

// LogUtilization logs one summary line per type as structured fields
// rather than a column-aligned text table.
func (c *Collector) LogUtilization(typeSize uintptr, counts [colorperm.Black + 1]int, blocks int) {
	c.log.Info("type utilization",
		"size", typeSize,
		"white", counts[colorperm.White],
		"ecru", counts[colorperm.Ecru],
		"grey", counts[colorperm.Grey],
		"black", counts[colorperm.Black],
		"blocks", blocks,
	)
}

// LogHeapUtilization logs one summary line for the whole heap, combining
// every size class, for a one-shot dump rather than LogUtilization's
// per-type granularity.
func (c *Collector) LogHeapUtilization(counts [colorperm.Black + 1]int) {
	c.log.Info("heap utilization",
		"white", counts[colorperm.White],
		"ecru", counts[colorperm.Ecru],
		"grey", counts[colorperm.Grey],
		"black", counts[colorperm.Black],
	)
}

// LogColorTransitions logs the full from/to color transition matrix.
func (c *Collector) LogColorTransitions() {
	for from := colorperm.White; from <= colorperm.Black; from++ {
		for to := colorperm.White; to <= colorperm.Black; to++ {
			if n := c.colorTransitions[from][to]; n > 0 {
				c.log.Info("color transition", "from", from.String(), "to", to.String(), "count", n)
			}
		}
	}
}

// LogPhaseTransitions logs the full from/to phase transition matrix.
func (c *Collector) LogPhaseTransitions() {
	for from := phase.Alloc; from <= phase.Sweep; from++ {
		for to := phase.Alloc; to <= phase.Sweep; to++ {
			if n := c.phaseTransitions[from][to]; n > 0 {
				c.log.Info("phase transition", "from", from.String(), "to", to.String(), "count", n)
			}
		}
	}
}

// Totals returns the running allocation and free counts.
func (c *Collector) Totals() (allocs, frees uint64) { return c.allocs, c.frees }
