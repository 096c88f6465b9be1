package protocol

// SubscribeMsg is the client handshake. WorldID selects a world; empty
// lets the server pick.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocol_version"`
	WorldID         string `json:"world_id,omitempty"`
}

// CellSummary is the per-cell projection carried in every snapshot.
type CellSummary struct {
	ID         uint64 `json:"id"`
	Pos        [2]int `json:"pos"`
	Dir        int    `json:"dir"`
	Energy     int    `json:"energy"`
	Age        uint64 `json:"age"`
	Generation uint64 `json:"generation"`
}

// CorpseRef marks a recyclable corpse tile.
type CorpseRef struct {
	Pos    [2]int `json:"pos"`
	Energy int    `json:"energy"`
}

// SnapshotMsg is a full, immutable view of one committed tick.
type SnapshotMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion int           `json:"protocol_version"`
	WorldID         string        `json:"world_id"`
	Tick            uint64        `json:"tick"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	Torus           bool          `json:"torus"`
	Cells           []CellSummary `json:"cells"`
	Corpses         []CorpseRef   `json:"corpses,omitempty"`
}

// InspectMsg asks for the full VM state of the cell on a tile.
type InspectMsg struct {
	Type string `json:"type"`
	Pos  [2]int `json:"pos"`
}

// CellDetail extends the summary with the VM internals, genome included.
// Genome words travel as fixed-width hex strings; uint64 does not survive
// JSON number encoding.
type CellDetail struct {
	CellSummary
	IP     int      `json:"ip"`
	Regs   [4]int   `json:"regs"`
	Genome []string `json:"genome"`
}

// CellMsg answers an INSPECT. Found is false when the tile holds no cell;
// Cell is then omitted.
type CellMsg struct {
	Type  string      `json:"type"`
	Tick  uint64      `json:"tick"`
	Found bool        `json:"found"`
	Cell  *CellDetail `json:"cell,omitempty"`
}

// ErrorMsg reports a protocol-level failure. Fatal errors are followed by
// a close.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
