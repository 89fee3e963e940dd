package hub

import "time"

// Tuning constants from the collaboration contract.
const (
	PingInterval           = 15 * time.Second
	MaxParticipants        = 50
	MaxMessagesPerWindow   = 20
	RateLimitWindow        = 1 * time.Second
	MaxWarnings            = 3
	PresenceTimeout        = 30 * time.Second
	EmptyRoomTTL           = 30 * time.Minute
	ConnectionStaleTimeout = 90 * time.Second
	MaxMessageSize         = 1 << 20 // 1 MiB
)

// participantPalette is the fixed rotation of presence colors; colorIndex
// cycles through it modulo its length so it never overflows.
var participantPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#fffac8", "#800000",
	"#aaffc3", "#808000", "#ffd8b1", "#000075", "#808080",
}

// Participant is one connected room member's presence state.
type Participant struct {
	ID        string
	Name      string
	Color     string
	UserID    *string
	Role      *string
	CursorX   float64
	CursorY   float64
	HasCursor bool
	Selection []string
	LastSeen  time.Time
}

// Room is one document's live collaboration state.
type Room struct {
	DiagramID    string
	Version      int64
	Participants map[string]*Participant // participantID -> participant
}

// rateWindow tracks a connection's fixed 1s message-rate window, which
// restarts once it has aged out.
type rateWindow struct {
	windowStart time.Time
	count       int
}

// connState is everything the hub tracks per live connection.
type connState struct {
	conn          Connection
	participantID string
	diagramID     string // "" when not in a room
	userID        *string
	role          *string
	lastActivity  time.Time
	window        rateWindow
	warnings      int
	stopPing      chan struct{}
}
