package world

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"evocell.ai/internal/persistence/snapshot"
	"evocell.ai/internal/protocol"
	"evocell.ai/internal/sim/genome"
)

// World is a single-threaded authoritative simulation. All state must be
// accessed only from the world loop goroutine; the channels exposed below
// are the only way in.
type World struct {
	cfg  Config
	grid *Grid

	cells map[uint64]*Cell

	rngSrc *rand.PCG
	rng    *rand.Rand
	mut    genome.Mutator

	tick        atomic.Uint64
	nextCellNum atomic.Uint64

	stop    chan struct{}
	control chan command

	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	inspectReq    chan inspectReq

	observers map[string]chan []byte

	paused bool

	// Optional tick log (may be nil). Implemented in internal/persistence/log.
	tickLogger TickLogger

	// Optional snapshot sink (may be nil). Snapshot file writing is
	// off-thread; a full sink drops the snapshot rather than block.
	snapshotSink chan<- snapshot.SnapshotV1
}

// ObserverJoinRequest subscribes a snapshot consumer. Out receives
// marshaled protocol.SnapshotMsg frames; delivery is drop-oldest and
// never blocks the tick loop.
type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte
}

type inspectReq struct {
	X, Y int
	Resp chan InspectResult
}

// InspectResult is the reply to a cell inspection request.
type InspectResult struct {
	OK   bool
	Cell protocol.CellDetail
}

type cmdKind int

const (
	cmdTogglePause cmdKind = iota + 1
	cmdReset
	cmdSetTickRate
)

type command struct {
	kind cmdKind
	hz   int
}

// New builds a world from a validated config and seeds the initial
// population deterministically from the config seed.
func New(cfg Config) (*World, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	w := &World{
		cfg:           cfg,
		stop:          make(chan struct{}),
		control:       make(chan command, 8),
		observerJoin:  make(chan ObserverJoinRequest, 8),
		observerLeave: make(chan string, 8),
		inspectReq:    make(chan inspectReq, 8),
		observers:     map[string]chan []byte{},
	}
	w.reset()
	return w, nil
}

// reset rebuilds grid, cells and RNG from the seed. Also the initial
// construction path.
func (w *World) reset() {
	p := w.cfg.Params
	w.grid = NewGrid(p.Width, p.Height, p.Torus)
	w.cells = map[uint64]*Cell{}
	w.rngSrc = rand.NewPCG(uint64(w.cfg.Seed), 0)
	w.rng = rand.New(w.rngSrc)
	w.mut = genome.Mutator{Probability: p.MutationProb}
	w.tick.Store(0)
	w.nextCellNum.Store(0)
	w.seedPopulation()
}

func (w *World) seedPopulation() {
	p := w.cfg.Params
	for i := 0; i < p.InitialPopulation; i++ {
		// Rejection sampling; Validate guarantees the population fits.
		for {
			x := w.rng.IntN(p.Width)
			y := w.rng.IntN(p.Height)
			if w.grid.At(x, y).Kind != TileEmpty {
				continue
			}
			c := &Cell{
				ID:     w.nextCellID(),
				X:      x,
				Y:      y,
				Dir:    Dir(w.rng.IntN(4)),
				Energy: p.Energy.Start,
				Genome: genome.RandomGenome(w.rng, p.GenomeLength),
			}
			w.cells[c.ID] = c
			w.grid.setCell(x, y, c.ID)
			break
		}
	}
}

func (w *World) nextCellID() uint64 { return w.nextCellNum.Add(1) }

// Run owns the tick loop until the context is canceled, Stop is called,
// or an internal invariant breach makes continuing unsafe. A stop request
// always lands between ticks: the in-flight tick commits fully first.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.Params.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case cmd := <-w.control:
			switch cmd.kind {
			case cmdTogglePause:
				w.paused = !w.paused
			case cmdReset:
				w.reset()
			case cmdSetTickRate:
				if cmd.hz > 0 {
					ticker.Reset(time.Second / time.Duration(cmd.hz))
				}
			}
		case req := <-w.observerJoin:
			w.observers[req.SessionID] = req.Out
		case id := <-w.observerLeave:
			delete(w.observers, id)
		case req := <-w.inspectReq:
			req.Resp <- w.inspectAt(req.X, req.Y)
		case <-ticker.C:
			if w.paused {
				continue
			}
			stats, err := w.step()
			if err != nil {
				return fmt.Errorf("world %s halted: %w", w.cfg.ID, err)
			}
			w.publish(stats)
		}
	}
}

// Stop requests a cooperative halt after the in-flight tick.
func (w *World) Stop() { close(w.stop) }

// TogglePause pauses or resumes stepping; the loop keeps serving
// observer and inspection traffic while paused.
func (w *World) TogglePause() { w.control <- command{kind: cmdTogglePause} }

// Reset regenerates the world from its seed.
func (w *World) Reset() { w.control <- command{kind: cmdReset} }

// SetTickRate retargets the loop at hz ticks per second.
func (w *World) SetTickRate(hz int) { w.control <- command{kind: cmdSetTickRate, hz: hz} }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

// CurrentTick is safe from any goroutine.
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string     { return w.cfg.ID }
func (w *World) Config() Config { return w.cfg }

// SetTickLogger must be called before Run.
func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

// SetSnapshotSink must be called before Run.
func (w *World) SetSnapshotSink(sink chan<- snapshot.SnapshotV1) { w.snapshotSink = sink }

// RequestInspect asks the world loop for a full dump of the cell at
// (x, y). It is the only cross-goroutine read of live state and goes
// through the loop like every other request.
func (w *World) RequestInspect(ctx context.Context, x, y int) (InspectResult, error) {
	req := inspectReq{X: x, Y: y, Resp: make(chan InspectResult, 1)}
	select {
	case w.inspectReq <- req:
	case <-ctx.Done():
		return InspectResult{}, ctx.Err()
	case <-w.stop:
		return InspectResult{}, fmt.Errorf("world %s stopped", w.cfg.ID)
	}
	select {
	case res := <-req.Resp:
		return res, nil
	case <-ctx.Done():
		return InspectResult{}, ctx.Err()
	}
}

func (w *World) inspectAt(x, y int) InspectResult {
	t := w.grid.At(x, y)
	if t.Kind != TileCell {
		return InspectResult{}
	}
	c := w.cells[t.Cell]
	if c == nil {
		return InspectResult{}
	}
	return InspectResult{OK: true, Cell: protocol.CellDetail{
		CellSummary: cellSummary(c),
		IP:          c.IP,
		Regs:        c.Regs,
		Genome:      c.Genome.Hex(),
	}}
}

// publish fans the committed tick out: JSONL log, observer snapshots,
// persistence snapshots. Nothing here may block the loop.
func (w *World) publish(stats TickStats) {
	nowTick := stats.Tick

	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:   nowTick,
			Live:   stats.Live,
			Births: stats.Births,
			Deaths: stats.Deaths,
			Digest: w.stateDigest(),
		})
	}

	if every := uint64(w.cfg.Params.SnapshotEveryTicks); every > 0 && len(w.observers) > 0 && nowTick%every == 0 {
		if b, err := json.Marshal(w.buildSnapshotMsg()); err == nil {
			for _, out := range w.observers {
				sendLatest(out, b)
			}
		}
	}

	if every := uint64(w.cfg.Params.PersistEveryTicks); w.snapshotSink != nil && every > 0 && nowTick != 0 && nowTick%every == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot():
		default:
			// Drop if the sink is backed up.
		}
	}
}

// sendLatest delivers b without ever blocking: when the subscriber lags,
// its oldest frame is dropped first. Ticks therefore reach a subscriber
// in non-decreasing order, with gaps under pressure.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func (w *World) buildSnapshotMsg() protocol.SnapshotMsg {
	msg := protocol.SnapshotMsg{
		Type:            protocol.TypeSnapshot,
		ProtocolVersion: protocol.Version,
		WorldID:         w.cfg.ID,
		Tick:            w.tick.Load(),
		Width:           w.grid.W,
		Height:          w.grid.H,
		Torus:           w.grid.Torus,
		Cells:           make([]protocol.CellSummary, 0, len(w.cells)),
	}
	for _, id := range w.sortedCellIDs() {
		msg.Cells = append(msg.Cells, cellSummary(w.cells[id]))
	}
	for y := 0; y < w.grid.H; y++ {
		for x := 0; x < w.grid.W; x++ {
			if t := w.grid.At(x, y); t.Kind == TileCorpse {
				msg.Corpses = append(msg.Corpses, protocol.CorpseRef{Pos: [2]int{x, y}, Energy: t.Energy})
			}
		}
	}
	return msg
}

func cellSummary(c *Cell) protocol.CellSummary {
	return protocol.CellSummary{
		ID:         c.ID,
		Pos:        [2]int{c.X, c.Y},
		Dir:        int(c.Dir),
		Energy:     c.Energy,
		Age:        c.Age,
		Generation: c.Generation,
	}
}

// StepOnce advances the world by a single tick with the same ordering
// semantics as Run. Primarily for deterministic replays and tests; must
// not be mixed with a running loop.
func (w *World) StepOnce() (tick uint64, digest string, err error) {
	tick = w.tick.Load()
	if _, err = w.step(); err != nil {
		return tick, "", err
	}
	return tick, w.stateDigest(), nil
}
