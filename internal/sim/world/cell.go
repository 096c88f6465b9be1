package world

import "evocell.ai/internal/sim/genome"

// Dir is one of the four facing directions, ordered clockwise so that
// turning right is +1 mod 4.
type Dir uint8

const (
	DirUp Dir = iota
	DirRight
	DirDown
	DirLeft
)

var (
	dirDX = [4]int{0, 1, 0, -1}
	dirDY = [4]int{-1, 0, 1, 0}

	dirNames = [4]string{"UP", "RIGHT", "DOWN", "LEFT"}
)

func (d Dir) String() string { return dirNames[d&3] }

// Left returns the direction after a counter-clockwise quarter turn.
func (d Dir) Left() Dir { return (d + 3) & 3 }

// Right returns the direction after a clockwise quarter turn.
func (d Dir) Right() Dir { return (d + 1) & 3 }

// Cell is one live agent. It is owned by the world loop; the VM mutates
// only its own cell, every cross-cell or grid effect goes through an
// intent.
type Cell struct {
	ID  uint64
	X   int
	Y   int
	Dir Dir

	Energy int
	Regs   [4]int
	IP     int

	Genome genome.Genome

	Age        uint64
	Generation uint64
}

// gene returns the decoded instruction at the current IP.
func (c *Cell) gene() genome.Gene {
	return genome.Decode(c.Genome[c.IP])
}

// setIP wraps the instruction pointer modulo genome length.
func (c *Cell) setIP(n int) {
	if l := len(c.Genome); l > 0 {
		c.IP = ((n % l) + l) % l
	} else {
		c.IP = 0
	}
}
