package hub

// Connection abstracts the underlying bidirectional framed transport (C8).
// The hub only ever calls these four methods; it never touches sockets,
// frames, or handshake details directly.
type Connection interface {
	// Send enqueues msg for delivery. It must not block the caller for
	// long: a full or slow outbound queue should return an error quickly
	// so the hub can skip this peer for the current broadcast rather than
	// stall the room.
	Send(msg string) error

	// Close closes the connection, optionally carrying a status code and
	// human-readable reason (both advisory; an adapter may ignore them).
	Close(code int, reason string) error

	// IsOpen reports whether the connection can still accept sends.
	IsOpen() bool

	// Identity returns the authenticated identity established at
	// handshake time, or (nil, nil) for an anonymous connection.
	Identity() (userID *string, role *string)
}

// Close codes used by the hub. CloseGoingAway matches the normal-closure
// code the transport surface uses for a graceful server shutdown.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
)
