package hub

import (
	"fmt"
	"time"

	"github.com/evalgo-org/diagramhub/message"
)

// CheckRateLimit enforces a MAX_MESSAGES-per-WINDOW_MS budget per
// connection; the window restarts once it has aged out. It returns true if
// the caller should process the message normally. The first MaxWarnings
// overages each send a RATE_LIMIT_WARNING; the overage after those makes
// the hub send RATE_LIMIT_EXCEEDED, close the connection, and release its
// state.
func (h *Hub) CheckRateLimit(conn Connection) bool {
	h.mu.Lock()
	state, ok := h.connections[conn]
	if !ok {
		h.mu.Unlock()
		return false
	}

	now := time.Now()
	if now.Sub(state.window.windowStart) >= RateLimitWindow {
		state.window.windowStart = now
		state.window.count = 0
	}
	state.window.count++

	if state.window.count <= MaxMessagesPerWindow {
		h.mu.Unlock()
		return true
	}

	state.warnings++
	warnings := state.warnings
	h.mu.Unlock()

	if warnings > MaxWarnings {
		h.sendTo(conn, message.NewError(message.CodeRateLimitExceeded, "rate limit exceeded"))
		_ = conn.Close(CloseNormal, "rate limit exceeded")
		h.Disconnect(conn)
		return false
	}

	h.sendTo(conn, message.NewError(message.CodeRateLimitWarning, fmt.Sprintf("Rate limit warning (%d/%d)", warnings, MaxWarnings)))
	return false
}
