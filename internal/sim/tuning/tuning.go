package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning is the immutable parameter bundle consumed at world start.
// Zero or missing fields take defaults; Validate rejects bundles a world
// must not start with.
type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	PersistEveryTicks  int `yaml:"persist_every_ticks"`

	Width             int  `yaml:"width"`
	Height            int  `yaml:"height"`
	Torus             bool `yaml:"torus"`
	InitialPopulation int  `yaml:"initial_population"`

	GenomeLength int     `yaml:"genome_length"`
	MutationProb float64 `yaml:"mutation_prob"`

	Energy EnergyTuning `yaml:"energy"`

	MaxCellAge uint64 `yaml:"max_cell_age"`
}

// EnergyTuning holds every energy constant, in integer energy units.
type EnergyTuning struct {
	Start          int `yaml:"start"`
	Max            int `yaml:"max"`
	MetabolicCost  int `yaml:"metabolic_cost"`
	MoveCost       int `yaml:"move_cost"`
	TurnCost       int `yaml:"turn_cost"`
	AttackCost     int `yaml:"attack_cost"`
	AttackDamage   int `yaml:"attack_damage"`
	AttackReward   int `yaml:"attack_reward"`
	Photosynthesis int `yaml:"photosynthesis"`
	ForkCost       int `yaml:"fork_cost"`
	ChildStart     int `yaml:"child_start"`
}

// Defaults returns the stock parameter set.
func Defaults() Tuning {
	var t Tuning
	t.ApplyDefaults()
	return t
}

// ApplyDefaults fills zero fields in place.
func (t *Tuning) ApplyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 30
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = 1
	}
	if t.PersistEveryTicks <= 0 {
		t.PersistEveryTicks = 3000
	}
	if t.Width <= 0 {
		t.Width = 160
	}
	if t.Height <= 0 {
		t.Height = 90
	}
	if t.InitialPopulation <= 0 {
		t.InitialPopulation = 1000
	}
	if t.GenomeLength <= 0 {
		t.GenomeLength = 32
	}
	if t.MutationProb == 0 {
		t.MutationProb = 0.25
	}
	if t.MaxCellAge == 0 {
		t.MaxCellAge = 2048
	}
	e := &t.Energy
	if e.Start <= 0 {
		e.Start = 50
	}
	if e.Max <= 0 {
		e.Max = 1000
	}
	if e.MetabolicCost <= 0 {
		e.MetabolicCost = 1
	}
	if e.MoveCost <= 0 {
		e.MoveCost = 10
	}
	if e.TurnCost <= 0 {
		e.TurnCost = 5
	}
	if e.AttackCost <= 0 {
		e.AttackCost = 20
	}
	if e.AttackDamage <= 0 {
		e.AttackDamage = 40
	}
	if e.AttackReward <= 0 {
		e.AttackReward = 30
	}
	if e.Photosynthesis <= 0 {
		e.Photosynthesis = 12
	}
	if e.ForkCost <= 0 {
		e.ForkCost = 60
	}
	if e.ChildStart <= 0 {
		e.ChildStart = 50
	}
}

// Validate rejects configurations the simulation must not start with.
// Call after ApplyDefaults.
func (t Tuning) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("grid dimensions must be positive: %dx%d", t.Width, t.Height)
	}
	if t.GenomeLength <= 0 {
		return fmt.Errorf("genome_length must be positive: %d", t.GenomeLength)
	}
	if t.GenomeLength > 1<<16 {
		return fmt.Errorf("genome_length %d exceeds encodable branch range", t.GenomeLength)
	}
	if t.MutationProb < 0 || t.MutationProb > 1 {
		return fmt.Errorf("mutation_prob %v outside [0,1]", t.MutationProb)
	}
	capacity := t.Width * t.Height
	if !t.Torus {
		// Wall border consumes the outer ring.
		capacity = (t.Width - 2) * (t.Height - 2)
	}
	if t.InitialPopulation > capacity {
		return fmt.Errorf("initial_population %d exceeds grid capacity %d", t.InitialPopulation, capacity)
	}
	if t.InitialPopulation < 0 {
		return fmt.Errorf("initial_population must not be negative: %d", t.InitialPopulation)
	}
	return nil
}

// Load reads a tuning.yaml, applies defaults and validates.
func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}
