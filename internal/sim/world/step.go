package world

import (
	"fmt"
	"sort"
)

// TickStats summarizes one committed tick.
type TickStats struct {
	Tick   uint64
	Live   int
	Births int
	Deaths int
}

// TickLogEntry is one record of the per-tick JSONL log.
type TickLogEntry struct {
	Tick   uint64 `json:"tick"`
	Live   int    `json:"live"`
	Births int    `json:"births"`
	Deaths int    `json:"deaths"`
	Digest string `json:"digest"`
}

// TickLogger is implemented in internal/persistence/log. May be nil.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// step advances the world by exactly one tick:
// collect intents -> resolve/commit -> advance. Iteration is always in
// ascending cell id, which is the conflict tie-break everywhere. An
// occupancy divergence between grid and cell map is a fatal defect.
func (w *World) step() (TickStats, error) {
	nowTick := w.tick.Load()
	stats := TickStats{Tick: nowTick}

	// CollectIntents. VM execution reads the pre-tick grid (no intent is
	// applied yet) and mutates only the executing cell.
	ids := w.sortedCellIDs()
	intents := make([]intent, 0, len(ids))
	for _, id := range ids {
		c := w.cells[id]
		if len(c.Genome) == 0 {
			continue
		}
		if in := w.execCell(c); in.kind != intentNone {
			intents = append(intents, in)
		}
	}

	// Commit phase 1: attacks, energy transfers and corpse recycling.
	// Attacks land against the pre-tick occupancy captured in the intent,
	// so a same-tick move cannot dodge a hit.
	for _, in := range intents {
		actor := w.cells[in.cell]
		if actor == nil {
			continue
		}
		switch in.kind {
		case intentAttack:
			defender := w.cells[in.target]
			if defender == nil {
				continue
			}
			e := w.cfg.Params.Energy
			if in.flag {
				// Kill bite: absorb the victim whole, leave no corpse.
				actor.Energy = capEnergy(actor.Energy+defender.Energy, e.Max)
				w.removeCell(defender, false)
				stats.Deaths++
				continue
			}
			defender.Energy -= e.AttackDamage
			actor.Energy = capEnergy(actor.Energy+e.AttackReward, e.Max)
			if defender.Energy <= 0 {
				w.removeCell(defender, true)
				stats.Deaths++
			}
		case intentGive:
			receiver := w.cells[in.target]
			if receiver == nil {
				continue
			}
			amount := in.arg
			if amount > actor.Energy {
				amount = actor.Energy
			}
			actor.Energy -= amount
			receiver.Energy = capEnergy(receiver.Energy+amount, w.cfg.Params.Energy.Max)
		case intentRecycle:
			if t := w.grid.At(in.tx, in.ty); t.Kind == TileCorpse {
				actor.Energy = capEnergy(actor.Energy+t.Energy, w.cfg.Params.Energy.Max)
				w.grid.clear(in.tx, in.ty)
			}
		}
	}

	// Commit phase 2: movement. First proposer (lowest id) wins a
	// contested tile; losers stay put. The working occupancy is updated
	// as moves commit, so a tile vacated by a lower-id cell this phase is
	// enterable by a higher-id cell.
	for _, in := range intents {
		if in.kind != intentMove {
			continue
		}
		c := w.cells[in.cell]
		if c == nil {
			continue
		}
		if w.grid.At(in.tx, in.ty).Kind != TileEmpty {
			continue
		}
		w.grid.clear(c.X, c.Y)
		w.grid.setCell(in.tx, in.ty, c.ID)
		c.X, c.Y = in.tx, in.ty
		c.Energy -= w.cfg.Params.Energy.MoveCost
	}

	// Commit phase 3: reproduction. The child goes to the first empty
	// adjacent tile scanning clockwise from the parent's orientation; if
	// none exists the fork is a silent no-op and costs nothing.
	for _, in := range intents {
		if in.kind != intentFork {
			continue
		}
		parent := w.cells[in.cell]
		if parent == nil {
			continue
		}
		e := w.cfg.Params.Energy
		if parent.Energy < e.ForkCost {
			continue
		}
		placed := false
		for i := Dir(0); i < 4 && !placed; i++ {
			d := (parent.Dir + i) & 3
			nx, ny, ok := w.grid.Ahead(parent.X, parent.Y, d)
			if !ok || w.grid.At(nx, ny).Kind != TileEmpty {
				continue
			}
			child := &Cell{
				ID:         w.nextCellID(),
				X:          nx,
				Y:          ny,
				Dir:        parent.Dir,
				Energy:     e.ChildStart,
				Genome:     w.mut.Reproduce(parent.Genome, w.rng),
				Generation: parent.Generation + 1,
			}
			w.cells[child.ID] = child
			w.grid.setCell(nx, ny, child.ID)
			parent.Energy -= e.ForkCost
			stats.Births++
			placed = true
		}
	}

	// Advance: age and metabolic upkeep for every live cell, then cull.
	// A cell exhausted by upkeep never starts another tick.
	for _, id := range w.sortedCellIDs() {
		c := w.cells[id]
		c.Age++
		c.Energy -= w.cfg.Params.Energy.MetabolicCost
		if c.Energy <= 0 || (w.cfg.Params.MaxCellAge > 0 && c.Age > w.cfg.Params.MaxCellAge) {
			w.removeCell(c, true)
			stats.Deaths++
		}
	}

	stats.Live = len(w.cells)
	w.tick.Add(1)

	if err := w.checkInvariants(); err != nil {
		return stats, fmt.Errorf("tick %d: %w", nowTick, err)
	}
	return stats, nil
}

// removeCell takes a cell off the board. With corpse set, the tile keeps
// the cell's non-negative residual energy for recycling.
func (w *World) removeCell(c *Cell, corpse bool) {
	delete(w.cells, c.ID)
	if corpse {
		residual := c.Energy
		if residual < 0 {
			residual = 0
		}
		w.grid.setCorpse(c.X, c.Y, residual)
		return
	}
	w.grid.clear(c.X, c.Y)
}

func (w *World) sortedCellIDs() []uint64 {
	ids := make([]uint64, 0, len(w.cells))
	for id := range w.cells {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// checkInvariants verifies that grid occupancy exactly mirrors the live
// cell map. A breach means a commit bug; the worker halts rather than
// publish corrupted state.
func (w *World) checkInvariants() error {
	occupied := 0
	for y := 0; y < w.grid.H; y++ {
		for x := 0; x < w.grid.W; x++ {
			t := w.grid.At(x, y)
			if t.Kind != TileCell {
				continue
			}
			occupied++
			c := w.cells[t.Cell]
			if c == nil {
				return fmt.Errorf("orphaned occupancy: tile (%d,%d) references dead cell %d", x, y, t.Cell)
			}
			if c.X != x || c.Y != y {
				return fmt.Errorf("cell %d position (%d,%d) does not match tile (%d,%d)", c.ID, c.X, c.Y, x, y)
			}
		}
	}
	if occupied != len(w.cells) {
		return fmt.Errorf("occupancy count %d != live cells %d", occupied, len(w.cells))
	}
	for _, c := range w.cells {
		if c.Energy < 0 {
			return fmt.Errorf("cell %d committed with negative energy %d", c.ID, c.Energy)
		}
	}
	return nil
}
