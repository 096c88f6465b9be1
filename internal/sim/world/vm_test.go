package world

import (
	"testing"

	"evocell.ai/internal/sim/genome"
)

func TestVM_TurnsAndCost(t *testing.T) {
	w := newTestWorld(t, scenarioTuning(), 1)
	c := placeCell(w, 3, 3, DirUp, 100, genome.Genome{
		genome.Encode(genome.Gene{Op: genome.OpTurnLeft}),
		genome.Encode(genome.Gene{Op: genome.OpTurnRight}),
	})

	w.execCell(c)
	if c.Dir != DirLeft {
		t.Fatalf("dir after left turn = %v, want LEFT", c.Dir)
	}
	w.execCell(c)
	if c.Dir != DirUp {
		t.Fatalf("dir after right turn = %v, want UP", c.Dir)
	}
	if want := 100 - 2*w.cfg.Params.Energy.TurnCost; c.Energy != want {
		t.Errorf("energy = %d, want %d", c.Energy, want)
	}
}

func TestVM_SenseClassifiesAhead(t *testing.T) {
	p := scenarioTuning()
	p.Torus = false
	w := newTestWorld(t, p, 1)

	g := genome.Genome{genome.Encode(genome.Gene{Op: genome.OpSense, Arg: 2})}

	cases := []struct {
		name  string
		setup func(c *Cell)
		want  int
	}{
		{"empty", func(c *Cell) {}, senseEmpty},
		{"wall", func(c *Cell) { c.Dir = DirLeft }, senseWall},
		{"corpse", func(c *Cell) { w.grid.setCorpse(2, 1, 5) }, senseCorpse},
		{"stranger", func(c *Cell) {
			placeCell(w, 2, 1, DirUp, 50, singleOp(genome.OpNoop))
		}, senseCell},
		{"kin", func(c *Cell) {
			placeCell(w, 2, 1, DirUp, 50, g.Clone())
		}, senseKin},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w.reset()
			c := placeCell(w, 1, 1, DirRight, 100, g.Clone())
			tc.setup(c)
			w.execCell(c)
			if got := c.Regs[2]; got != tc.want {
				t.Fatalf("sense = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestVM_PhotosynthesizeCapsAtMax(t *testing.T) {
	w := newTestWorld(t, scenarioTuning(), 1)
	e := w.cfg.Params.Energy
	c := placeCell(w, 3, 3, DirUp, e.Max-1, singleOp(genome.OpPhotosynthesize))

	w.execCell(c)
	if c.Energy != e.Max {
		t.Fatalf("energy = %d, want capped at %d", c.Energy, e.Max)
	}
}

func TestVM_BranchesSelectTargets(t *testing.T) {
	w := newTestWorld(t, scenarioTuning(), 1)
	g := genome.Genome{
		genome.Encode(genome.Gene{Op: genome.OpJumpIfZero, Arg: 0, B1: 5, B2: 3}),
		0, 0, 0, 0, 0, 0, 0,
	}
	c := placeCell(w, 3, 3, DirUp, 100, g)

	w.execCell(c)
	if c.IP != 5 {
		t.Fatalf("IP = %d, want 5 (zero register takes B1)", c.IP)
	}

	c.IP = 0
	c.Regs[0] = 7
	w.execCell(c)
	if c.IP != 3 {
		t.Fatalf("IP = %d, want 3 (non-zero register takes B2)", c.IP)
	}
}

func TestVM_CheckEnergyBranch(t *testing.T) {
	w := newTestWorld(t, scenarioTuning(), 1)
	g := genome.Genome{
		genome.Encode(genome.Gene{Op: genome.OpCheckEnergy, Arg: 60, B1: 4, B2: 2}),
		0, 0, 0, 0, 0,
	}
	c := placeCell(w, 3, 3, DirUp, 100, g)

	w.execCell(c)
	if c.IP != 4 {
		t.Fatalf("IP = %d, want 4 (energy above threshold)", c.IP)
	}

	c.IP = 0
	c.Energy = 10
	w.execCell(c)
	if c.IP != 2 {
		t.Fatalf("IP = %d, want 2 (energy below threshold)", c.IP)
	}
}

func TestVM_SetRegLiteralAndRegister(t *testing.T) {
	w := newTestWorld(t, scenarioTuning(), 1)
	negFive := int16(-5)
	g := genome.Genome{
		// reg1 = -5 (literal, sign-extended from int16)
		genome.Encode(genome.Gene{Op: genome.OpSetReg, Arg: 1, B1: uint16(negFive)}),
		// reg2 = reg1
		genome.Encode(genome.Gene{Op: genome.OpSetReg, Flag: true, Arg: 2, B1: 1}),
	}
	c := placeCell(w, 3, 3, DirUp, 100, g)

	w.execCell(c)
	if c.Regs[1] != -5 {
		t.Fatalf("reg1 = %d, want -5", c.Regs[1])
	}
	w.execCell(c)
	if c.Regs[2] != -5 {
		t.Fatalf("reg2 = %d, want -5", c.Regs[2])
	}
}

func TestVM_CompareRegs(t *testing.T) {
	w := newTestWorld(t, scenarioTuning(), 1)
	// Compare reg1 vs reg2 (Arg = 1 | 2<<2).
	g := genome.Genome{genome.Encode(genome.Gene{Op: genome.OpCompareRegs, Arg: 1 | 2<<2})}
	c := placeCell(w, 3, 3, DirUp, 100, g)

	cases := []struct{ a, b, want int }{
		{1, 2, -1},
		{2, 1, 1},
		{3, 3, 0},
	}
	for _, tc := range cases {
		c.IP = 0
		c.Regs[1], c.Regs[2] = tc.a, tc.b
		w.execCell(c)
		if c.Regs[0] != tc.want {
			t.Fatalf("compare(%d,%d) = %d, want %d", tc.a, tc.b, c.Regs[0], tc.want)
		}
	}
}

func TestVM_IPWrapsAroundGenome(t *testing.T) {
	w := newTestWorld(t, scenarioTuning(), 1)
	c := placeCell(w, 3, 3, DirUp, 100, genome.Genome{
		genome.Encode(genome.Gene{Op: genome.OpNoop}),
		genome.Encode(genome.Gene{Op: genome.OpNoop}),
	})

	w.execCell(c)
	if c.IP != 1 {
		t.Fatalf("IP = %d, want 1", c.IP)
	}
	w.execCell(c)
	if c.IP != 0 {
		t.Fatalf("IP = %d, want wrap to 0", c.IP)
	}
}

func TestVM_AttackRequiresEnergyAndTarget(t *testing.T) {
	w := newTestWorld(t, scenarioTuning(), 1)
	e := w.cfg.Params.Energy

	// No target ahead: no intent, no cost.
	a := placeCell(w, 1, 1, DirRight, 100, singleOp(genome.OpAttack))
	if in := w.execCell(a); in.kind != intentNone {
		t.Fatalf("attack into empty produced intent %d", in.kind)
	}
	if a.Energy != 100 {
		t.Errorf("energy = %d, want 100 (no cost without a target)", a.Energy)
	}

	// Target ahead but not enough energy: no intent.
	placeCell(w, 2, 1, DirUp, 50, singleOp(genome.OpNoop))
	a.IP = 0
	a.Energy = e.AttackCost - 1
	if in := w.execCell(a); in.kind != intentNone {
		t.Fatalf("underfunded attack produced intent %d", in.kind)
	}

	// Funded attack: intent against the pre-tick occupant.
	a.IP = 0
	a.Energy = 100
	in := w.execCell(a)
	if in.kind != intentAttack {
		t.Fatalf("intent kind = %d, want attack", in.kind)
	}
	if a.Energy != 100-e.AttackCost {
		t.Errorf("energy = %d, want %d (cost paid at issue)", a.Energy, 100-e.AttackCost)
	}
}
