package genome

import (
	"fmt"
	"math/rand/v2"
)

// Op is the closed instruction set of the cell VM. Adding an instruction
// means extending this enum and the VM dispatch, nothing else.
type Op uint8

const (
	OpNoop Op = iota
	OpTurnLeft
	OpTurnRight
	OpMove
	OpAttack
	OpSense
	OpPhotosynthesize
	OpGiveEnergy
	OpRecycle
	OpJump
	OpJumpIfZero
	OpJumpIfNotZero
	OpCheckEnergy
	OpCompareRegs
	OpSetReg
	OpFork

	opCount
)

// OpCount is the number of valid opcodes.
const OpCount = int(opCount)

var opNames = [...]string{
	OpNoop:            "NOOP",
	OpTurnLeft:        "TURN_LEFT",
	OpTurnRight:       "TURN_RIGHT",
	OpMove:            "MOVE",
	OpAttack:          "ATTACK",
	OpSense:           "SENSE",
	OpPhotosynthesize: "PHOTOSYNTHESIZE",
	OpGiveEnergy:      "GIVE_ENERGY",
	OpRecycle:         "RECYCLE",
	OpJump:            "JUMP",
	OpJumpIfZero:      "JUMP_IF_ZERO",
	OpJumpIfNotZero:   "JUMP_IF_NOT_ZERO",
	OpCheckEnergy:     "CHECK_ENERGY",
	OpCompareRegs:     "COMPARE_REGS",
	OpSetReg:          "SET_REG",
	OpFork:            "FORK",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("OP_%d", uint8(o))
}

// Gene is one decoded instruction.
//
// Arg is a small operand (register selector or literal depending on the
// opcode), Flag alters operand interpretation for some ops (e.g. SET_REG
// reads a register instead of a literal; ATTACK with Flag is a kill bite).
// B1/B2 are branch targets for control-flow ops; the VM wraps them modulo
// genome length.
type Gene struct {
	Op   Op
	Flag bool
	Arg  uint16
	B1   uint16
	B2   uint16
}

// Word layout: op(8) | flag(8) | arg(16) | b1(16) | b2(16).
const (
	shiftOp   = 56
	shiftFlag = 48
	shiftArg  = 32
	shiftB1   = 16
)

// Encode packs a gene into its 64-bit wire form. Encode and Decode are
// inverse over the legal instruction space.
func Encode(g Gene) uint64 {
	w := uint64(g.Op) << shiftOp
	if g.Flag {
		w |= 1 << shiftFlag
	}
	w |= uint64(g.Arg) << shiftArg
	w |= uint64(g.B1) << shiftB1
	w |= uint64(g.B2)
	return w
}

// Decode unpacks a 64-bit word into a gene. Decode is total: a word whose
// opcode byte falls outside the declared range decodes to NOOP, so a
// mutated gene is always a structurally valid instruction.
func Decode(w uint64) Gene {
	op := Op(w >> shiftOp)
	if int(op) >= OpCount {
		op = OpNoop
	}
	return Gene{
		Op:   op,
		Flag: (w>>shiftFlag)&0xff != 0,
		Arg:  uint16(w >> shiftArg),
		B1:   uint16(w >> shiftB1),
		B2:   uint16(w),
	}
}

// Genome is an ordered, bounded sequence of encoded genes. It is owned by
// exactly one cell; reproduction copies it.
type Genome []uint64

// Clone returns an independent copy.
func (g Genome) Clone() Genome {
	out := make(Genome, len(g))
	copy(out, g)
	return out
}

// Equal reports whether two genomes are identical gene for gene.
func (g Genome) Equal(other Genome) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if g[i] != other[i] {
			return false
		}
	}
	return true
}

// Hex renders the genome as fixed-width hex words for wire transfer.
func (g Genome) Hex() []string {
	out := make([]string, len(g))
	for i, w := range g {
		out[i] = fmt.Sprintf("%016x", w)
	}
	return out
}

// RandomGene samples one uniformly random valid gene. Branch targets are
// sampled within [0, genomeLen).
func RandomGene(r *rand.Rand, genomeLen int) uint64 {
	if genomeLen <= 0 {
		genomeLen = 1
	}
	g := Gene{
		Op:   Op(r.IntN(OpCount)),
		Flag: r.IntN(2) == 1,
		Arg:  uint16(r.IntN(1 << 16)),
		B1:   uint16(r.IntN(genomeLen)),
		B2:   uint16(r.IntN(genomeLen)),
	}
	return Encode(g)
}

// RandomGenome builds a fresh genome of the given length.
func RandomGenome(r *rand.Rand, length int) Genome {
	g := make(Genome, length)
	for i := range g {
		g[i] = RandomGene(r, length)
	}
	return g
}
