package world

import "evocell.ai/internal/sim/genome"

// Sense results written to the selected register.
const (
	senseEmpty  = 0
	senseWall   = 1
	senseCorpse = 2
	senseCell   = 3
	senseKin    = 4
)

// execCell runs exactly one instruction for c against the pre-tick grid
// and returns the proposed grid effect, if any. Orientation, registers,
// the instruction pointer and self-only energy changes are applied
// directly; they cannot conflict with any other cell.
func (w *World) execCell(c *Cell) intent {
	g := c.gene()
	next := c.IP + 1
	e := w.cfg.Params.Energy

	ax, ay, aheadOK := w.grid.Ahead(c.X, c.Y, c.Dir)
	ahead := Tile{Kind: TileWall}
	if aheadOK {
		ahead = w.grid.At(ax, ay)
	}

	branch := func(cond bool) {
		if cond {
			next = int(g.B1)
		} else {
			next = int(g.B2)
		}
	}

	out := intent{cell: c.ID}

	switch g.Op {
	case genome.OpNoop:

	case genome.OpTurnLeft:
		c.Dir = c.Dir.Left()
		c.Energy -= e.TurnCost
	case genome.OpTurnRight:
		c.Dir = c.Dir.Right()
		c.Energy -= e.TurnCost

	case genome.OpMove:
		if aheadOK && ahead.Kind != TileWall {
			out.kind = intentMove
			out.tx, out.ty = ax, ay
		}

	case genome.OpAttack:
		if ahead.Kind == TileCell && c.Energy >= e.AttackCost {
			c.Energy -= e.AttackCost
			out.kind = intentAttack
			out.tx, out.ty = ax, ay
			out.target = ahead.Cell
			out.flag = g.Flag
		}

	case genome.OpSense:
		v := senseWall
		switch ahead.Kind {
		case TileEmpty:
			v = senseEmpty
		case TileCorpse:
			v = senseCorpse
		case TileCell:
			v = senseCell
			if other := w.cells[ahead.Cell]; other != nil && other.Genome.Equal(c.Genome) {
				v = senseKin
			}
		}
		c.Regs[g.Arg&3] = v

	case genome.OpPhotosynthesize:
		c.Energy = capEnergy(c.Energy+e.Photosynthesis, e.Max)

	case genome.OpGiveEnergy:
		if ahead.Kind == TileCell {
			amount := int(g.Arg)
			if amount > c.Energy {
				amount = c.Energy
			}
			if amount > 0 {
				out.kind = intentGive
				out.tx, out.ty = ax, ay
				out.target = ahead.Cell
				out.arg = amount
			}
		}

	case genome.OpRecycle:
		if ahead.Kind == TileCorpse {
			out.kind = intentRecycle
			out.tx, out.ty = ax, ay
		}

	case genome.OpJump:
		next = int(g.B1)
	case genome.OpJumpIfZero:
		branch(c.Regs[g.Arg&3] == 0)
	case genome.OpJumpIfNotZero:
		branch(c.Regs[g.Arg&3] != 0)
	case genome.OpCheckEnergy:
		branch(c.Energy > int(g.Arg))

	case genome.OpCompareRegs:
		a := c.Regs[g.Arg&3]
		b := c.Regs[(g.Arg>>2)&3]
		switch {
		case a < b:
			c.Regs[0] = -1
		case a > b:
			c.Regs[0] = 1
		default:
			c.Regs[0] = 0
		}

	case genome.OpSetReg:
		var v int
		if g.Flag {
			v = c.Regs[g.B1&3]
		} else {
			v = int(int16(g.B1))
		}
		c.Regs[g.Arg&3] = v

	case genome.OpFork:
		if c.Energy >= e.ForkCost {
			out.kind = intentFork
		}
	}

	c.setIP(next)
	return out
}

func capEnergy(v, max int) int {
	if v > max {
		return max
	}
	return v
}
