// Command treadmill-dump drives a heap through a synthetic allocation
// workload, prints the utilization and transition statistics the
// collector accumulated (the Go-native analogue of the original's
// tm_print_stats/tm_print_color_transition_stats/tm_print_phase_transition_stats
// trio), and optionally writes a Graphviz rendering of the final
// treadmill state, the analogue of tread.c's tm_tread_render_dot.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/kstephens/treadmill"
	"github.com/kstephens/treadmill/internal/stats"
)

func main() {
	blockSize := flag.Uint64("block-size", 8192, "bytes per OS-backed block")
	allocCount := flag.Int("allocs", 100000, "number of allocations to drive through the heap")
	allocSize := flag.Uint64("alloc-size", 32, "size in bytes of each allocation")
	dotPath := flag.String("dot", "", "write a Graphviz rendering of the final treadmill state to this path (stdout if \"-\")")
	verbose := flag.Bool("v", false, "log every sampled allocation, not just the final summary")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := stats.NewTextLogger(os.Stdout, level)

	cfg := treadmill.DefaultConfig()
	cfg.BlockSize = uintptr(*blockSize)
	cfg.Logger = logger
	h := treadmill.New(cfg)

	for i := 0; i < *allocCount; i++ {
		if _, err := h.Alloc(uintptr(*allocSize)); err != nil {
			logger.Error("allocation failed", "index", i, "err", err)
			os.Exit(1)
		}
	}

	allocs, frees := h.Totals()
	logger.Info("run complete", "allocs", allocs, "frees", frees, "phase", h.Phase().String())
	h.LogStats()

	if *dotPath == "" {
		return
	}

	out := os.Stdout
	if *dotPath != "-" {
		f, err := os.Create(*dotPath)
		if err != nil {
			logger.Error("opening dot output", "path", *dotPath, "err", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	if err := h.DumpDOT(out); err != nil {
		logger.Error("rendering dot output", "err", err)
		os.Exit(1)
	}
}
