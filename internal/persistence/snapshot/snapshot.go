// Package snapshot reads and writes world checkpoint files.
//
// File layout: one JSON header line (version, world id, tick), then a
// zstd-compressed gob stream holding the full SnapshotV1. The plaintext
// header lets tooling list snapshots without decompressing anything.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"evocell.ai/internal/sim/tuning"
)

const FormatVersion = 1

// Header is the uncompressed first line of a snapshot file.
type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// CellV1 is the persisted form of one live cell.
type CellV1 struct {
	ID         uint64
	X, Y       int
	Dir        uint8
	Energy     int
	Regs       [4]int
	IP         int
	Genome     []uint64
	Age        uint64
	Generation uint64
}

// CorpseV1 is the persisted form of one corpse tile.
type CorpseV1 struct {
	X, Y   int
	Energy int
}

// CountersV1 carries monotonic allocators that must survive a restart.
type CountersV1 struct {
	NextCell uint64
}

// SnapshotV1 is a complete, restartable world state. RNG holds the
// serialized PCG state so a resumed run continues the same random
// sequence.
type SnapshotV1 struct {
	Header   Header
	Seed     int64
	Params   tuning.Tuning
	Cells    []CellV1
	Corpses  []CorpseV1
	Counters CountersV1
	RNG      []byte
}

// FileName returns the canonical snapshot file name for a world and tick.
func FileName(worldID string, tick uint64) string {
	return fmt.Sprintf("%s-%012d.snap.zst", worldID, tick)
}

// WriteSnapshot atomically writes snap to dir, via a temp file rename.
func WriteSnapshot(dir string, snap SnapshotV1) (string, error) {
	if snap.Header.Version == 0 {
		snap.Header.Version = FormatVersion
	}
	path := filepath.Join(dir, FileName(snap.Header.WorldID, snap.Header.Tick))
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp)

	if err := writeTo(f, snap); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}

func writeTo(f *os.File, snap SnapshotV1) error {
	bw := bufio.NewWriter(f)

	hdr, err := json.Marshal(snap.Header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	bw.Write(hdr)
	bw.WriteByte('\n')

	zw, err := zstd.NewWriter(bw)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return bw.Flush()
}

// ReadHeader reads only the plaintext header line.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return Header{}, fmt.Errorf("parse header: %w", err)
	}
	return h, nil
}

// ReadSnapshot loads a full snapshot file.
func ReadSnapshot(path string) (SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return SnapshotV1{}, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return SnapshotV1{}, fmt.Errorf("parse header: %w", err)
	}
	if h.Version != FormatVersion {
		return SnapshotV1{}, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	zr, err := zstd.NewReader(br)
	if err != nil {
		return SnapshotV1{}, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	var snap SnapshotV1
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return SnapshotV1{}, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.Header = h
	return snap, nil
}

// LatestFor returns the snapshot path with the highest tick for worldID
// in dir, or "" when none exists.
func LatestFor(dir, worldID string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	prefix := worldID + "-"
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, prefix) && strings.HasSuffix(n, ".snap.zst") {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	// Zero-padded tick makes lexicographic order tick order.
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
