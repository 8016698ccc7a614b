package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceCyclesThroughAllFivePhases(t *testing.T) {
	s := NewScheduler(DefaultQuanta, 3, 4)
	order := []Phase{Unmark, Root, Scan, Sweep, Alloc}
	for _, want := range order {
		s.Advance()
		assert.Equal(t, want, s.Phase())
	}
}

func TestSweepToNonSweepResetsAllocCounter(t *testing.T) {
	s := NewScheduler(DefaultQuanta, 3, 4)
	for s.Phase() != Sweep {
		s.Advance()
	}
	s.RecordAlloc()
	s.RecordAlloc()
	assert.Equal(t, 2, s.AllocSinceSweep())

	s.Advance() // Sweep -> Alloc
	assert.Equal(t, 0, s.AllocSinceSweep())
}

func TestMemoryPressureThreshold(t *testing.T) {
	s := NewScheduler(DefaultQuanta, 3, 4) // 75%
	assert.False(t, s.MemoryPressure(74, 100))
	assert.True(t, s.MemoryPressure(75, 100))
}

func TestForceFullJumpsToRootFromAnyPhase(t *testing.T) {
	s := NewScheduler(DefaultQuanta, 3, 4)
	s.ForceFull()
	assert.Equal(t, Root, s.Phase())
}

func TestOnEnterCallbackFiresOnTransition(t *testing.T) {
	s := NewScheduler(DefaultQuanta, 3, 4)
	var seen []Phase
	s.OnEnter(func(p Phase) { seen = append(seen, p) })

	s.Advance()
	s.Advance()

	assert.Equal(t, []Phase{Unmark, Root}, seen)
}
