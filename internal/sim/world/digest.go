package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// stateDigest hashes everything that feeds future ticks: tick counter,
// seed, id counter, every tile and every cell's full VM state including
// its genome. Two runs from the same seed must produce identical digests
// at every tick; a divergence is a determinism bug.
func (w *World) stateDigest() string {
	h := sha256.New()
	var buf [8]byte

	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	i64 := func(v int) { u64(uint64(int64(v))) }

	u64(w.tick.Load())
	u64(uint64(w.cfg.Seed))
	u64(w.nextCellNum.Load())
	i64(w.grid.W)
	i64(w.grid.H)

	for y := 0; y < w.grid.H; y++ {
		for x := 0; x < w.grid.W; x++ {
			t := w.grid.At(x, y)
			u64(uint64(t.Kind))
			u64(t.Cell)
			i64(t.Energy)
		}
	}

	for _, id := range w.sortedCellIDs() {
		c := w.cells[id]
		u64(c.ID)
		i64(c.X)
		i64(c.Y)
		u64(uint64(c.Dir))
		i64(c.Energy)
		i64(c.IP)
		u64(c.Age)
		u64(c.Generation)
		for _, r := range c.Regs {
			i64(r)
		}
		i64(len(c.Genome))
		for _, wrd := range c.Genome {
			u64(wrd)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
