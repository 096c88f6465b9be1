package multisim

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the worlds.yaml shape: a set of independent worlds run side
// by side in one process, each with its own seed and optional geometry
// overrides on top of the shared tuning.
type Config struct {
	DefaultWorldID string      `yaml:"default_world_id"`
	Worlds         []WorldSpec `yaml:"worlds"`
}

// WorldSpec describes one world. Zero-valued override fields inherit the
// base tuning.
type WorldSpec struct {
	ID   string `yaml:"id"`
	Seed int64  `yaml:"seed"`

	Width             int `yaml:"width,omitempty"`
	Height            int `yaml:"height,omitempty"`
	InitialPopulation int `yaml:"initial_population,omitempty"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultWorldID: "MAIN",
		Worlds: []WorldSpec{
			{ID: "MAIN", Seed: 1},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if len(c.Worlds) == 0 {
		*c = defaults()
	}
	if strings.TrimSpace(c.DefaultWorldID) == "" {
		c.DefaultWorldID = c.Worlds[0].ID
	}
}

func (c Config) Validate() error {
	if len(c.Worlds) == 0 {
		return fmt.Errorf("worlds must not be empty")
	}
	seen := map[string]bool{}
	for _, w := range c.Worlds {
		if strings.TrimSpace(w.ID) == "" {
			return fmt.Errorf("world id must not be empty")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate world id: %s", w.ID)
		}
		seen[w.ID] = true
		if w.Width < 0 || w.Height < 0 || w.InitialPopulation < 0 {
			return fmt.Errorf("world %s has negative override", w.ID)
		}
	}
	if !seen[c.DefaultWorldID] {
		return fmt.Errorf("default_world_id %q not found in worlds", c.DefaultWorldID)
	}
	return nil
}

func (c Config) WorldSpecByID(id string) (WorldSpec, bool) {
	for _, w := range c.Worlds {
		if w.ID == id {
			return w, true
		}
	}
	return WorldSpec{}, false
}
