package protocol

// Stable error codes sent in ErrorMsg. Clients branch on the code, never
// on the human-readable message.
const (
	ErrBadMessage        = "BAD_MESSAGE"
	ErrBadVersion        = "BAD_VERSION"
	ErrUnknownWorld      = "UNKNOWN_WORLD"
	ErrNotSubscribed     = "NOT_SUBSCRIBED"
	ErrOutOfBounds       = "OUT_OF_BOUNDS"
	ErrInternal          = "INTERNAL"
	ErrAlreadySubscribed = "ALREADY_SUBSCRIBED"
)

var knownCodes = map[string]bool{
	ErrBadMessage:        true,
	ErrBadVersion:        true,
	ErrUnknownWorld:      true,
	ErrNotSubscribed:     true,
	ErrOutOfBounds:       true,
	ErrInternal:          true,
	ErrAlreadySubscribed: true,
}

// IsKnownCode reports whether code is part of the protocol.
func IsKnownCode(code string) bool { return knownCodes[code] }

// NewError builds a ready-to-send ErrorMsg.
func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Code: code, Message: message}
}
