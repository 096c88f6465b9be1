package world

import (
	"testing"

	"evocell.ai/internal/sim/genome"
	"evocell.ai/internal/sim/tuning"
)

// scenarioTuning is a small empty arena for hand-placed cells.
func scenarioTuning() tuning.Tuning {
	p := tuning.Defaults()
	p.Width = 8
	p.Height = 8
	p.Torus = true
	p.InitialPopulation = 0
	p.GenomeLength = 1
	return p
}

func newTestWorld(t *testing.T, p tuning.Tuning, seed int64) *World {
	t.Helper()
	w, err := New(Config{ID: "test", Seed: seed, Params: p})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

// placeCell injects a cell directly, the way seeding does.
func placeCell(w *World, x, y int, d Dir, energy int, g genome.Genome) *Cell {
	c := &Cell{
		ID:     w.nextCellID(),
		X:      x,
		Y:      y,
		Dir:    d,
		Energy: energy,
		Genome: g,
	}
	w.cells[c.ID] = c
	w.grid.setCell(x, y, c.ID)
	return c
}

func singleOp(op genome.Op) genome.Genome {
	return genome.Genome{genome.Encode(genome.Gene{Op: op})}
}

func mustStep(t *testing.T, w *World) TickStats {
	t.Helper()
	stats, err := w.step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	return stats
}
