package stats

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/kstephens/treadmill/internal/colorperm"
	"github.com/kstephens/treadmill/internal/phase"
	"github.com/stretchr/testify/assert"
)

func TestSamplerLogsEveryAllocationBelowThreshold(t *testing.T) {
	s := NewSampler()
	logged := 0
	for i := 0; i < 100; i++ {
		if s.ShouldLog() {
			logged++
		}
	}
	assert.Equal(t, 100, logged)
}

func TestSamplerBacksOffGeometrically(t *testing.T) {
	s := NewSampler()
	logged := 0
	for i := 0; i < 20000; i++ {
		if s.ShouldLog() {
			logged++
		}
	}
	assert.Less(t, logged, 500)
	assert.Equal(t, uint64(1000), s.ratio)
}

func TestRecordAllocIncrementsTotal(t *testing.T) {
	var buf bytes.Buffer
	c := New(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	c.RecordAlloc(0x1000, Snapshot{Phase: phase.Alloc})
	allocs, frees := c.Totals()
	assert.Equal(t, uint64(1), allocs)
	assert.Equal(t, uint64(0), frees)
	assert.Contains(t, buf.String(), "alloc")
}

func TestColorTransitionMatrixAccumulates(t *testing.T) {
	c := New(nil)
	c.RecordColorTransition(colorperm.White, colorperm.Black)
	c.RecordColorTransition(colorperm.White, colorperm.Black)
	assert.Equal(t, uint64(2), c.colorTransitions[colorperm.White][colorperm.Black])
}
