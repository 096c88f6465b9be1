package world

import (
	"fmt"

	"evocell.ai/internal/sim/tuning"
)

// Config is the immutable parameter bundle a world is constructed with.
// New validates it and refuses to build a world from an inconsistent one;
// nothing here is consulted from outside the world loop afterwards.
type Config struct {
	ID   string
	Seed int64

	Params tuning.Tuning
}

func (c Config) validate() error {
	if c.ID == "" {
		return fmt.Errorf("empty world id")
	}
	if c.Params.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive: %d", c.Params.TickRateHz)
	}
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("world %s: %w", c.ID, err)
	}
	return nil
}
