package world

import (
	"testing"

	"evocell.ai/internal/sim/tuning"
)

func TestDeterminism_SameSeedSameDigests(t *testing.T) {
	p := tuning.Defaults()
	p.Width = 32
	p.Height = 32
	p.InitialPopulation = 120
	cfg := Config{ID: "det", Seed: 42, Params: p}

	w1, err := New(cfg)
	if err != nil {
		t.Fatalf("world1: %v", err)
	}
	w2, err := New(cfg)
	if err != nil {
		t.Fatalf("world2: %v", err)
	}

	if d1, d2 := w1.stateDigest(), w2.stateDigest(); d1 != d2 {
		t.Fatalf("initial digest mismatch: %s vs %s", d1, d2)
	}

	for i := 0; i < 200; i++ {
		t1, d1, err := w1.StepOnce()
		if err != nil {
			t.Fatalf("world1 step %d: %v", i, err)
		}
		t2, d2, err := w2.StepOnce()
		if err != nil {
			t.Fatalf("world2 step %d: %v", i, err)
		}
		if t1 != t2 {
			t.Fatalf("tick mismatch at step %d: %d vs %d", i, t1, t2)
		}
		if d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", t1, d1, d2)
		}
	}
}

func TestDeterminism_DifferentSeedsDiverge(t *testing.T) {
	p := tuning.Defaults()
	p.Width = 32
	p.Height = 32
	p.InitialPopulation = 120

	w1 := newTestWorld(t, p, 1)
	w2 := newTestWorld(t, p, 2)

	if w1.stateDigest() == w2.stateDigest() {
		t.Fatal("different seeds produced identical initial state")
	}
}

func TestDeterminism_ResetRestoresInitialState(t *testing.T) {
	p := tuning.Defaults()
	p.Width = 32
	p.Height = 32
	p.InitialPopulation = 50
	w := newTestWorld(t, p, 7)

	initial := w.stateDigest()
	for i := 0; i < 20; i++ {
		mustStep(t, w)
	}
	if w.stateDigest() == initial {
		t.Fatal("digest unchanged after 20 ticks")
	}

	w.reset()
	if got := w.stateDigest(); got != initial {
		t.Fatalf("reset digest = %s, want %s", got, initial)
	}
}
