package world

// intentKind enumerates the grid-touching effects a VM step can propose.
// Pure register/orientation ops never produce an intent.
type intentKind uint8

const (
	intentNone intentKind = iota
	intentMove
	intentAttack
	intentGive
	intentRecycle
	intentFork
)

// intent is a proposed, not-yet-committed effect of one VM step. It is
// purely descriptive: nothing shared is touched until the commit phase
// applies it, which is what lets the scheduler resolve conflicts by cell
// id order instead of locking.
type intent struct {
	cell uint64
	kind intentKind

	// Target tile for move/attack/give/recycle.
	tx, ty int
	// Pre-tick occupant of the target tile for attack/give.
	target uint64

	// Kill-bite for attack.
	flag bool
	// Energy amount for give.
	arg int
}
