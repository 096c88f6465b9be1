// Package multisim supervises several independent worlds in one process.
// Worlds never interact; the manager only routes observers and admin
// requests to the right loop.
package multisim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"evocell.ai/internal/sim/world"
)

// Runtime pairs a world with the spec it was built from.
type Runtime struct {
	Spec  WorldSpec
	World *world.World
}

type Manager struct {
	mu sync.RWMutex

	runtimes  map[string]*Runtime
	defaultID string

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	runErrs chan error

	started bool
}

func NewManager(cfg Config, runtimes map[string]*Runtime) (*Manager, error) {
	if len(runtimes) == 0 {
		return nil, fmt.Errorf("empty runtimes")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, spec := range cfg.Worlds {
		rt := runtimes[spec.ID]
		if rt == nil || rt.World == nil {
			return nil, fmt.Errorf("missing runtime for world %s", spec.ID)
		}
	}
	return &Manager{
		runtimes:  runtimes,
		defaultID: cfg.DefaultWorldID,
		runErrs:   make(chan error, len(runtimes)),
	}, nil
}

// Start launches one loop goroutine per world.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("manager already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	for _, rt := range m.runtimes {
		rt := rt
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := rt.World.Run(runCtx); err != nil && runCtx.Err() == nil {
				select {
				case m.runErrs <- fmt.Errorf("world %s: %w", rt.Spec.ID, err):
				default:
				}
			}
		}()
	}
	m.started = true
	return nil
}

// Stop cancels all world loops and waits for them to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Err reports the first world loop failure, if any, without blocking.
func (m *Manager) Err() error {
	select {
	case err := <-m.runErrs:
		return err
	default:
		return nil
	}
}

func (m *Manager) WorldIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Runtime(id string) *Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runtimes[id]
}

// Pick resolves a world preference to a live runtime, falling back to
// the default world for an empty or unknown preference.
func (m *Manager) Pick(pref string) *Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := strings.TrimSpace(pref)
	if p != "" {
		if rt := m.runtimes[p]; rt != nil {
			return rt
		}
	}
	return m.runtimes[m.defaultID]
}

// Has reports whether id names a configured world.
func (m *Manager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.runtimes[id]
	return ok
}
