package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"evocell.ai/internal/persistence/indexdb"
	persistlog "evocell.ai/internal/persistence/log"
	"evocell.ai/internal/persistence/snapshot"
	"evocell.ai/internal/sim/multisim"
	"evocell.ai/internal/sim/tuning"
	"evocell.ai/internal/sim/world"
	"evocell.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		worldsPath = flag.String("worlds", "", "worlds.yaml path (default: <configs>/worlds.yaml if present)")
		tuningPath = flag.String("tuning", "", "tuning.yaml path (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Int64("seed", 1337, "seed for worlds without an explicit one")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick/snapshot index")
		loadLatest = flag.Bool("load_latest_snapshot", true, "resume each world from its latest snapshot if present")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	wp := strings.TrimSpace(*worldsPath)
	if wp == "" {
		candidate := filepath.Join(*configDir, "worlds.yaml")
		if _, err := os.Stat(candidate); err == nil {
			wp = candidate
		}
	}
	mcfg, err := multisim.Load(wp)
	if err != nil {
		logger.Fatalf("load worlds config: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	runtimes := map[string]*multisim.Runtime{}
	var closers []func()
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	for _, spec := range mcfg.Worlds {
		worldDir := filepath.Join(*dataDir, "worlds", spec.ID)
		snapDir := filepath.Join(worldDir, "snapshots")
		_ = os.MkdirAll(snapDir, 0o755)

		w, err := buildWorld(spec, tune, *seed, snapDir, *loadLatest, logger)
		if err != nil {
			logger.Fatalf("world %s: %v", spec.ID, err)
		}

		tickLog := persistlog.NewTickLogger(worldDir)
		closers = append(closers, func() { _ = tickLog.Close() })
		w.SetTickLogger(multiTickLogger{jsonl: tickLog, idx: idx, worldID: spec.ID})

		snapCh := make(chan snapshot.SnapshotV1, 2)
		w.SetSnapshotSink(snapCh)
		go snapshotWriter(ctx, snapCh, snapDir, idx, logger)

		runtimes[spec.ID] = &multisim.Runtime{Spec: spec, World: w}
	}

	mgr, err := multisim.NewManager(mcfg, runtimes)
	if err != nil {
		logger.Fatalf("manager: %v", err)
	}
	if err := mgr.Start(ctx); err != nil {
		logger.Fatalf("start worlds: %v", err)
	}
	defer mgr.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "# HELP evocell_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE evocell_world_tick gauge\n")
		for _, id := range mgr.WorldIDs() {
			rt := mgr.Runtime(id)
			fmt.Fprintf(rw, "evocell_world_tick{world=%q} %d\n", id, rt.World.CurrentTick())
		}
	})
	mux.HandleFunc("/v1/worlds", func(rw http.ResponseWriter, r *http.Request) {
		type ref struct {
			WorldID string `json:"world_id"`
			Tick    uint64 `json:"tick"`
			Width   int    `json:"width"`
			Height  int    `json:"height"`
		}
		out := []ref{}
		for _, id := range mgr.WorldIDs() {
			rt := mgr.Runtime(id)
			cfg := rt.World.Config()
			out = append(out, ref{
				WorldID: id,
				Tick:    rt.World.CurrentTick(),
				Width:   cfg.Params.Width,
				Height:  cfg.Params.Height,
			})
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(out)
	})
	mux.HandleFunc("/admin/v1/pause", adminWorldHandler(mgr, func(w *world.World, _ url.Values) { w.TogglePause() }))
	mux.HandleFunc("/admin/v1/reset", adminWorldHandler(mgr, func(w *world.World, _ url.Values) { w.Reset() }))
	mux.HandleFunc("/admin/v1/tickrate", adminWorldHandler(mgr, func(w *world.World, q url.Values) {
		if hz, err := strconv.Atoi(q.Get("hz")); err == nil && hz > 0 {
			w.SetTickRate(hz)
		}
	}))
	mux.HandleFunc("/v1/ws", ws.NewServer(mgr, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (%d worlds)", *addr, len(runtimes))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	if err := mgr.Err(); err != nil {
		logger.Fatalf("world loop: %v", err)
	}
}

// buildWorld resumes from the latest snapshot when allowed, otherwise
// starts fresh from tuning plus per-world overrides.
func buildWorld(spec multisim.WorldSpec, base tuning.Tuning, fallbackSeed int64, snapDir string, loadLatest bool, logger *log.Logger) (*world.World, error) {
	if loadLatest {
		path, err := snapshot.LatestFor(snapDir, spec.ID)
		if err != nil {
			return nil, fmt.Errorf("scan snapshots: %w", err)
		}
		if path != "" {
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return nil, fmt.Errorf("read snapshot: %w", err)
			}
			w, err := world.NewFromSnapshot(snap)
			if err != nil {
				return nil, fmt.Errorf("import snapshot: %w", err)
			}
			logger.Printf("world %s resumed from %s tick=%d", spec.ID, filepath.Base(path), w.CurrentTick())
			return w, nil
		}
	}

	params := base
	if spec.Width > 0 {
		params.Width = spec.Width
	}
	if spec.Height > 0 {
		params.Height = spec.Height
	}
	if spec.InitialPopulation > 0 {
		params.InitialPopulation = spec.InitialPopulation
	}
	params.ApplyDefaults()

	s := spec.Seed
	if s == 0 {
		s = fallbackSeed
	}
	return world.New(world.Config{ID: spec.ID, Seed: s, Params: params})
}

func snapshotWriter(ctx context.Context, snapCh <-chan snapshot.SnapshotV1, snapDir string, idx *indexdb.SQLiteIndex, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapCh:
			path, err := snapshot.WriteSnapshot(snapDir, snap)
			if err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		}
	}
}

func adminWorldHandler(mgr *multisim.Manager, apply func(*world.World, url.Values)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		id := strings.TrimSpace(q.Get("world"))
		rt := mgr.Pick(id)
		if rt == nil || (id != "" && !mgr.Has(id)) {
			http.Error(rw, "unknown world", http.StatusNotFound)
			return
		}
		apply(rt.World, q)
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "world_id": rt.Spec.ID})
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiTickLogger struct {
	jsonl   *persistlog.TickLogger
	idx     *indexdb.SQLiteIndex
	worldID string
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.jsonl != nil {
		_ = m.jsonl.WriteTick(entry)
	}
	if m.idx != nil {
		_ = m.idx.WriteTick(m.worldID, entry)
	}
	return nil
}
