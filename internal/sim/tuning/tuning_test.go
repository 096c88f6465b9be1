package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if d.TickRateHz <= 0 || d.Width <= 0 || d.Height <= 0 || d.GenomeLength <= 0 {
		t.Fatalf("defaults left zero fields: %+v", d)
	}
	if d.MutationProb != 0.25 {
		t.Errorf("mutation_prob default = %v, want 0.25", d.MutationProb)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	tn := Tuning{Width: 10, Height: 12, GenomeLength: 4}
	tn.ApplyDefaults()
	if tn.Width != 10 || tn.Height != 12 || tn.GenomeLength != 4 {
		t.Fatalf("explicit values overwritten: %+v", tn)
	}
	if tn.TickRateHz == 0 || tn.Energy.Start == 0 {
		t.Fatalf("defaults not filled: %+v", tn)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Tuning)
	}{
		{"zero width", func(tn *Tuning) { tn.Width = -1 }},
		{"mutation prob above one", func(tn *Tuning) { tn.MutationProb = 1.5 }},
		{"negative mutation prob", func(tn *Tuning) { tn.MutationProb = -0.1 }},
		{"population over capacity", func(tn *Tuning) {
			tn.Width, tn.Height = 4, 4
			tn.Torus = false
			tn.InitialPopulation = 5
		}},
		{"genome over branch range", func(tn *Tuning) { tn.GenomeLength = 1<<16 + 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tn := Defaults()
			tc.mut(&tn)
			if err := tn.Validate(); err == nil {
				t.Fatalf("expected validation error for %+v", tn)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
tick_rate_hz: 10
width: 40
height: 30
torus: true
initial_population: 100
genome_length: 16
mutation_prob: 0.1
energy:
  start: 80
  fork_cost: 90
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tn, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tn.TickRateHz != 10 || tn.Width != 40 || tn.Height != 30 {
		t.Fatalf("loaded values wrong: %+v", tn)
	}
	if tn.Energy.Start != 80 || tn.Energy.ForkCost != 90 {
		t.Fatalf("nested energy values wrong: %+v", tn.Energy)
	}
	// Untouched fields take defaults.
	if tn.Energy.MoveCost != 10 || tn.MaxCellAge != 2048 {
		t.Fatalf("defaults not applied: %+v", tn)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}
