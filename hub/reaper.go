package hub

import (
	"time"

	"github.com/evalgo-org/diagramhub/message"
)

// CleanupInactive runs one pass of the three-stage presence/room/connection
// reaper. Callers run this on a PRESENCE_TIMEOUT/2 ticker.
func (h *Hub) CleanupInactive() {
	h.reapStalePresence()
	h.reapEmptyRooms()
	h.reapStaleConnections()
}

// reapStalePresence drops participants whose presence has not been
// refreshed within PresenceTimeout, broadcasting participant_left.
func (h *Hub) reapStalePresence() {
	now := time.Now()

	type departure struct {
		diagramID     string
		participantID string
		peers         []Connection
	}
	var departures []departure

	h.mu.Lock()
	for diagramID, room := range h.rooms {
		for participantID, p := range room.Participants {
			if now.Sub(p.LastSeen) > PresenceTimeout {
				delete(room.Participants, participantID)
				departures = append(departures, departure{
					diagramID:     diagramID,
					participantID: participantID,
					peers:         h.peerConnsLocked(diagramID, nil),
				})
			}
		}
		if len(room.Participants) == 0 {
			if _, already := h.emptyRoomTimestamps[diagramID]; !already {
				h.emptyRoomTimestamps[diagramID] = now
			}
		}
	}
	h.mu.Unlock()

	for _, d := range departures {
		h.broadcastTo(d.peers, message.NewParticipantLeft(d.participantID))
	}
}

// reapEmptyRooms deletes rooms that have been empty for longer than
// EmptyRoomTTL.
func (h *Hub) reapEmptyRooms() {
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	for diagramID, emptyAt := range h.emptyRoomTimestamps {
		if now.Sub(emptyAt) > EmptyRoomTTL {
			delete(h.rooms, diagramID)
			delete(h.roomConnections, diagramID)
			delete(h.emptyRoomTimestamps, diagramID)
		}
	}
}

// reapStaleConnections disconnects connections that have been silent
// longer than ConnectionStaleTimeout or whose transport reports not-open,
// freeing their ping timers via the normal Disconnect path.
func (h *Hub) reapStaleConnections() {
	now := time.Now()

	h.mu.Lock()
	var stale []Connection
	for conn, state := range h.connections {
		if now.Sub(state.lastActivity) > ConnectionStaleTimeout || !conn.IsOpen() {
			stale = append(stale, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range stale {
		h.Disconnect(conn)
	}
}

// RunReaper launches a background goroutine that calls CleanupInactive on
// a PresenceTimeout/2 cadence until stop is closed.
func (h *Hub) RunReaper(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(PresenceTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.CleanupInactive()
			}
		}
	}()
}
