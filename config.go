package treadmill

import (
	"log/slog"

	"github.com/kstephens/treadmill/internal/phase"
)

// Config holds every tunable the collector exposes. There is no file or
// environment-variable loader: a Config is built in code and passed to
// New, the same way the original's tm_config.h compile-time constants
// would be chosen by the embedding program, not read from disk.
type Config struct {
	// BlockSize is the size of each OS-backed region handed to a Type;
	// every cell size smaller than BlockSize is serviced by carving
	// cells out of blocks of this size.
	BlockSize uintptr

	// Ceiling is a soft cap, in bytes, on cumulative memory obtained
	// from the OS allocator. Zero means unlimited.
	Ceiling uintptr

	// MinFreeBlocks bounds how many freed blocks of each size the OS
	// allocator caches for reuse before actually releasing them.
	MinFreeBlocks int

	// Quanta is the per-phase work budget handed to the phase
	// scheduler. The allocation path does not consult it; see
	// phase.Quanta.
	Quanta phase.Quanta

	// GCThresholdNum/GCThresholdDen express, as a fraction, how full the
	// heap must be before leaving ALLOC and starting a new collection
	// cycle.
	GCThresholdNum, GCThresholdDen int

	// EndOfBlockIsInterior and EndOfCellIsInterior configure the
	// classifier's treatment of addresses that land exactly on a block
	// or cell boundary; see internal/tread.Arena for the tradeoff.
	EndOfBlockIsInterior bool
	EndOfCellIsInterior  bool

	// Logger receives structured collector diagnostics. A nil Logger
	// defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config sized for general-purpose use: 8KiB
// blocks (matching the page size the original allocator assumed), no
// ceiling, a handful of cached free blocks per size, and a 3/4
// occupancy threshold before a collection cycle begins.
func DefaultConfig() Config {
	return Config{
		BlockSize:      8192,
		Ceiling:        0,
		MinFreeBlocks:  4,
		Quanta:         phase.DefaultQuanta,
		GCThresholdNum: 3,
		GCThresholdDen: 4,
	}
}
