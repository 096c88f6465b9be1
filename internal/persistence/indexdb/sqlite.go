// Package indexdb maintains a queryable sqlite index over the tick logs
// and snapshot files. It is derived state: losing it costs queries, not
// history, so writes are best-effort and never block the simulation.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"evocell.ai/internal/persistence/snapshot"
	"evocell.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	worldID  string
	tick     world.TickLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	WorldID string
	Tick    uint64
	Path    string
	Seed    int64
	Cells   int
	Corpses int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Generous buffer so a slow disk absorbs tick bursts before drops start.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			live INTEGER NOT NULL,
			births INTEGER NOT NULL,
			deaths INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (world_id, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_world_live ON ticks(world_id, live);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			cells INTEGER NOT NULL,
			corpses INTEGER NOT NULL,
			PRIMARY KEY (world_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteTick enqueues a tick row. Drops under pressure; the JSONL log is
// the source of truth.
func (s *SQLiteIndex) WriteTick(worldID string, entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, worldID: worldID, tick: entry}:
	default:
	}
	return nil
}

// RecordSnapshot enqueues a snapshot file row.
func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		WorldID: snap.Header.WorldID,
		Tick:    snap.Header.Tick,
		Path:    path,
		Seed:    snap.Seed,
		Cells:   len(snap.Cells),
		Corpses: len(snap.Corpses),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
	}
}

// TickRange is a summary row returned by query helpers.
type TickRange struct {
	Tick   uint64 `json:"tick"`
	Live   int    `json:"live"`
	Births int    `json:"births"`
	Deaths int    `json:"deaths"`
	Digest string `json:"digest"`
}

// QueryTicks returns indexed tick rows for a world in [from, to].
func (s *SQLiteIndex) QueryTicks(ctx context.Context, worldID string, from, to uint64) ([]TickRange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick, live, births, deaths, digest FROM ticks
		 WHERE world_id = ? AND tick BETWEEN ? AND ? ORDER BY tick`,
		worldID, int64(from), int64(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TickRange
	for rows.Next() {
		var r TickRange
		var t int64
		if err := rows.Scan(&t, &r.Live, &r.Births, &r.Deaths, &r.Digest); err != nil {
			return nil, err
		}
		r.Tick = uint64(t)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest indexed snapshot path and tick for a
// world; ok is false when none is recorded.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context, worldID string) (path string, tick uint64, ok bool, err error) {
	var t int64
	err = s.db.QueryRowContext(ctx,
		`SELECT path, tick FROM snapshots WHERE world_id = ? ORDER BY tick DESC LIMIT 1`,
		worldID).Scan(&path, &t)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return path, uint64(t), true, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(world_id,tick,digest,live,births,deaths,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(world_id,tick,path,seed,cells,corpses) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			if insertTick == nil {
				continue
			}
			b, _ := json.Marshal(r.tick)
			if _, err := tx.Stmt(insertTick).Exec(
				r.worldID,
				int64(r.tick.Tick),
				r.tick.Digest,
				r.tick.Live,
				r.tick.Births,
				r.tick.Deaths,
				string(b),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			if insertSnapshot == nil {
				continue
			}
			sn := r.snapshot
			if _, err := tx.Stmt(insertSnapshot).Exec(
				sn.WorldID,
				int64(sn.Tick),
				sn.Path,
				sn.Seed,
				sn.Cells,
				sn.Corpses,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
