package world

import (
	"fmt"

	"evocell.ai/internal/persistence/snapshot"
	"evocell.ai/internal/sim/genome"
)

// ExportSnapshot captures the complete restartable state at the current
// tick. Must run on the world loop goroutine (or before Run starts).
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.FormatVersion,
			WorldID: w.cfg.ID,
			Tick:    w.tick.Load(),
		},
		Seed:     w.cfg.Seed,
		Params:   w.cfg.Params,
		Counters: snapshot.CountersV1{NextCell: w.nextCellNum.Load()},
	}

	rngState, err := w.rngSrc.MarshalBinary()
	if err == nil {
		snap.RNG = rngState
	}

	for _, id := range w.sortedCellIDs() {
		c := w.cells[id]
		snap.Cells = append(snap.Cells, snapshot.CellV1{
			ID:         c.ID,
			X:          c.X,
			Y:          c.Y,
			Dir:        uint8(c.Dir),
			Energy:     c.Energy,
			Regs:       c.Regs,
			IP:         c.IP,
			Genome:     c.Genome.Clone(),
			Age:        c.Age,
			Generation: c.Generation,
		})
	}

	for y := 0; y < w.grid.H; y++ {
		for x := 0; x < w.grid.W; x++ {
			if t := w.grid.At(x, y); t.Kind == TileCorpse {
				snap.Corpses = append(snap.Corpses, snapshot.CorpseV1{X: x, Y: y, Energy: t.Energy})
			}
		}
	}

	return snap
}

// NewFromSnapshot reconstructs a world exactly as captured: resuming it
// continues the original run's deterministic sequence.
func NewFromSnapshot(snap snapshot.SnapshotV1) (*World, error) {
	cfg := Config{ID: snap.Header.WorldID, Seed: snap.Seed, Params: snap.Params}
	w, err := New(cfg)
	if err != nil {
		return nil, err
	}

	// Discard the seeded bootstrap state; the snapshot replaces it wholesale.
	w.grid = NewGrid(snap.Params.Width, snap.Params.Height, snap.Params.Torus)
	w.cells = map[uint64]*Cell{}
	w.tick.Store(snap.Header.Tick)
	w.nextCellNum.Store(snap.Counters.NextCell)

	if len(snap.RNG) > 0 {
		if err := w.rngSrc.UnmarshalBinary(snap.RNG); err != nil {
			return nil, fmt.Errorf("restore rng state: %w", err)
		}
	}

	for _, c := range snap.Cells {
		if w.grid.At(c.X, c.Y).Kind != TileEmpty {
			return nil, fmt.Errorf("snapshot cell %d at occupied tile (%d,%d)", c.ID, c.X, c.Y)
		}
		cell := &Cell{
			ID:         c.ID,
			X:          c.X,
			Y:          c.Y,
			Dir:        Dir(c.Dir & 3),
			Energy:     c.Energy,
			Regs:       c.Regs,
			IP:         c.IP,
			Genome:     genome.Genome(c.Genome).Clone(),
			Age:        c.Age,
			Generation: c.Generation,
		}
		w.cells[cell.ID] = cell
		w.grid.setCell(cell.X, cell.Y, cell.ID)
	}

	for _, corpse := range snap.Corpses {
		if w.grid.At(corpse.X, corpse.Y).Kind != TileEmpty {
			return nil, fmt.Errorf("snapshot corpse at occupied tile (%d,%d)", corpse.X, corpse.Y)
		}
		w.grid.setCorpse(corpse.X, corpse.Y, corpse.Energy)
	}

	if err := w.checkInvariants(); err != nil {
		return nil, fmt.Errorf("snapshot inconsistent: %w", err)
	}
	return w, nil
}
