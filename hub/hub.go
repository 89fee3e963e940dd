// Package hub implements the per-document collaboration room server (C7)
// and the external sync bridge (C9) that lets a non-hub write notify any
// open room. All state-mutating operations on rooms and roomConnections
// run under a single coarse mutex; per-op work is small enough that finer
// locking would not pay for its complexity.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/evalgo-org/diagramhub/diagramspec"
	"github.com/evalgo-org/diagramhub/message"
	"github.com/sirupsen/logrus"
)

// Hub owns every room and connection in the process.
type Hub struct {
	mu sync.Mutex

	rooms               map[string]*Room
	connections         map[Connection]*connState
	roomConnections     map[string]map[Connection]bool
	emptyRoomTimestamps map[string]time.Time
	colorIndex          int

	logger *logrus.Entry

	nextParticipantID int
}

// New creates an empty Hub.
func New(logger *logrus.Entry) *Hub {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		rooms:               make(map[string]*Room),
		connections:         make(map[Connection]*connState),
		roomConnections:     make(map[string]map[Connection]bool),
		emptyRoomTimestamps: make(map[string]time.Time),
		logger:              logger.WithField("component", "hub"),
	}
}

// Register allocates a participant id for a newly accepted connection and
// starts its periodic pong emitter. It does not join any room.
func (h *Hub) Register(conn Connection) string {
	h.mu.Lock()
	userID, role := conn.Identity()
	h.nextParticipantID++
	participantID := fmt.Sprintf("p-%d", h.nextParticipantID)

	state := &connState{
		conn:          conn,
		participantID: participantID,
		userID:        userID,
		role:          role,
		lastActivity:  time.Now(),
		stopPing:      make(chan struct{}),
	}
	h.connections[conn] = state
	h.mu.Unlock()

	go h.runPingLoop(conn, state.stopPing)
	return participantID
}

func (h *Hub) runPingLoop(conn Connection, stop chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !conn.IsOpen() {
				return
			}
			h.sendTo(conn, message.NewPong())
		}
	}
}

// Disconnect stops a connection's ping emitter, leaves its room if any,
// and drops its connection state.
func (h *Hub) Disconnect(conn Connection) {
	h.LeaveRoom(conn)

	h.mu.Lock()
	state, ok := h.connections[conn]
	if ok {
		delete(h.connections, conn)
	}
	h.mu.Unlock()

	if ok {
		close(state.stopPing)
	}
}

// JoinRoom admits conn into diagramId's room, creating the room lazily.
// If the connection was already in a different room, it leaves that room
// first.
func (h *Hub) JoinRoom(conn Connection, diagramID, name string) error {
	h.mu.Lock()
	state, ok := h.connections[conn]
	if !ok {
		h.mu.Unlock()
		return errNotRegistered
	}
	if state.diagramID != "" && state.diagramID != diagramID {
		h.mu.Unlock()
		h.LeaveRoom(conn)
		h.mu.Lock()
	}

	room, exists := h.rooms[diagramID]
	if !exists {
		room = &Room{DiagramID: diagramID, Participants: make(map[string]*Participant)}
		h.rooms[diagramID] = room
	}
	if len(room.Participants) >= MaxParticipants {
		h.mu.Unlock()
		h.sendTo(conn, message.NewError(message.CodeRoomFull, "room is full"))
		return errRoomFull
	}

	if name == "" {
		name = "Anonymous"
	}
	color := participantPalette[h.colorIndex%len(participantPalette)]
	h.colorIndex++

	participant := &Participant{
		ID:       state.participantID,
		Name:     name,
		Color:    color,
		UserID:   state.userID,
		Role:     state.role,
		LastSeen: time.Now(),
	}
	room.Participants[participant.ID] = participant

	if conns, ok := h.roomConnections[diagramID]; ok {
		conns[conn] = true
	} else {
		h.roomConnections[diagramID] = map[Connection]bool{conn: true}
	}
	state.diagramID = diagramID
	delete(h.emptyRoomTimestamps, diagramID)

	snapshot := h.snapshotLocked(room)
	peers := h.peerConnsLocked(diagramID, conn)
	h.mu.Unlock()

	h.sendTo(conn, message.NewJoined(toMessageParticipant(participant), snapshot))
	h.broadcastTo(peers, message.NewParticipantJoined(toMessageParticipant(participant)))
	return nil
}

// LeaveRoom removes conn's participant from its current room, if any.
func (h *Hub) LeaveRoom(conn Connection) {
	h.mu.Lock()
	state, ok := h.connections[conn]
	if !ok || state.diagramID == "" {
		h.mu.Unlock()
		return
	}
	diagramID := state.diagramID
	room, ok := h.rooms[diagramID]
	if !ok {
		state.diagramID = ""
		h.mu.Unlock()
		return
	}

	participantID := state.participantID
	delete(room.Participants, participantID)
	if conns, ok := h.roomConnections[diagramID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.roomConnections, diagramID)
		}
	}
	state.diagramID = ""

	empty := len(room.Participants) == 0
	if empty {
		h.emptyRoomTimestamps[diagramID] = time.Now()
	}
	peers := h.peerConnsLocked(diagramID, nil)
	h.mu.Unlock()

	h.broadcastTo(peers, message.NewParticipantLeft(participantID))
}

// UpdateCursor updates a participant's cursor and relays it to the rest of
// the room. Cursor/selection updates are latest-wins and not version
// ordered.
func (h *Hub) UpdateCursor(conn Connection, x, y float64) {
	h.mu.Lock()
	state, ok := h.connections[conn]
	if !ok || state.diagramID == "" {
		h.mu.Unlock()
		return
	}
	room := h.rooms[state.diagramID]
	p, ok := room.Participants[state.participantID]
	if !ok {
		h.mu.Unlock()
		return
	}
	p.CursorX, p.CursorY, p.HasCursor = x, y, true
	p.LastSeen = time.Now()
	peers := h.peerConnsLocked(state.diagramID, conn)
	participantID := p.ID
	h.mu.Unlock()

	h.broadcastTo(peers, message.NewCursorUpdate(participantID, x, y))
}

// UpdateSelection updates a participant's selected node ids and relays it
// to the rest of the room.
func (h *Hub) UpdateSelection(conn Connection, nodeIDs []string) {
	h.mu.Lock()
	state, ok := h.connections[conn]
	if !ok || state.diagramID == "" {
		h.mu.Unlock()
		return
	}
	room := h.rooms[state.diagramID]
	p, ok := room.Participants[state.participantID]
	if !ok {
		h.mu.Unlock()
		return
	}
	p.Selection = nodeIDs
	p.LastSeen = time.Now()
	peers := h.peerConnsLocked(state.diagramID, conn)
	participantID := p.ID
	h.mu.Unlock()

	h.broadcastTo(peers, message.NewSelectionUpdate(participantID, nodeIDs))
}

// HandleChanges validates the room's version against baseVersion. On a
// match it bumps the room version and broadcasts to the whole room
// (including the sender, as an ordering barrier/ack). On a mismatch it
// replies only to the sender with a conflict frame and makes no change.
func (h *Hub) HandleChanges(conn Connection, changes []message.DiagramChange, baseVersion int64) error {
	h.mu.Lock()
	state, ok := h.connections[conn]
	if !ok {
		h.mu.Unlock()
		return errNotRegistered
	}
	if state.diagramID == "" {
		h.mu.Unlock()
		return errNotInRoom
	}
	room := h.rooms[state.diagramID]

	if baseVersion != room.Version {
		current := room.Version
		h.mu.Unlock()
		h.sendTo(conn, message.NewConflict(current))
		return nil
	}

	room.Version++
	newVersion := room.Version
	author := state.participantID
	all := h.allConnsLocked(state.diagramID)
	h.mu.Unlock()

	h.broadcastTo(all, message.NewChanges(changes, author, newVersion))
	return nil
}

// BroadcastSync is the C9 entry point: after a successful non-hub write to
// a diagram, notify any open room. If newVersion is nil the hub's own
// counter is incremented instead of aligning to storage's version.
// Diagrams with no room are silently skipped.
func (h *Hub) BroadcastSync(diagramID string, spec *diagramspec.Spec, newVersion *int64) {
	h.mu.Lock()
	room, ok := h.rooms[diagramID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if newVersion != nil {
		room.Version = *newVersion
	} else {
		room.Version++
	}
	version := room.Version
	all := h.allConnsLocked(diagramID)
	h.mu.Unlock()

	h.broadcastTo(all, message.NewSync(spec, version))
}

// CanWrite reports whether conn may submit mutating changes: it must carry
// an authenticated userId and a role other than viewer.
func (h *Hub) CanWrite(conn Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.connections[conn]
	if !ok || state.userID == nil || *state.userID == "" {
		return false
	}
	return state.role == nil || *state.role != "viewer"
}

// UpdateActivity stamps lastActivity for stale-connection reaping. Called
// on every received message regardless of type.
func (h *Hub) UpdateActivity(conn Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if state, ok := h.connections[conn]; ok {
		state.lastActivity = time.Now()
	}
}

// CloseAll sends a shutdown error to every connection, closes them with a
// normal-closure code, and clears all hub state.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	conns := make([]Connection, 0, len(h.connections))
	stops := make([]chan struct{}, 0, len(h.connections))
	for conn, state := range h.connections {
		conns = append(conns, conn)
		stops = append(stops, state.stopPing)
	}
	h.rooms = make(map[string]*Room)
	h.roomConnections = make(map[string]map[Connection]bool)
	h.connections = make(map[Connection]*connState)
	h.emptyRoomTimestamps = make(map[string]time.Time)
	h.mu.Unlock()

	for _, stop := range stops {
		close(stop)
	}
	for _, conn := range conns {
		h.sendTo(conn, message.NewError(message.CodeServerShutdown, reason))
		_ = conn.Close(CloseGoingAway, reason)
	}
}

// peerConnsLocked returns every connection in diagramId's room other than
// exclude (which may be nil to include everyone). Must be called with mu
// held; the returned slice is safe to use after unlocking.
func (h *Hub) peerConnsLocked(diagramID string, exclude Connection) []Connection {
	conns, ok := h.roomConnections[diagramID]
	if !ok {
		return nil
	}
	out := make([]Connection, 0, len(conns))
	for c := range conns {
		if c != exclude {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) allConnsLocked(diagramID string) []Connection {
	return h.peerConnsLocked(diagramID, nil)
}

func (h *Hub) snapshotLocked(room *Room) message.RoomSnapshot {
	participants := make([]message.Participant, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, toMessageParticipant(p))
	}
	return message.RoomSnapshot{DiagramID: room.DiagramID, Version: room.Version, Participants: participants}
}

func toMessageParticipant(p *Participant) message.Participant {
	return message.Participant{ID: p.ID, Name: p.Name, Color: p.Color, UserID: p.UserID, Role: p.Role}
}

// sendTo marshals v and sends it to a single connection, logging (not
// panicking) on a send failure — a slow or closed peer never blocks the
// caller.
func (h *Hub) sendTo(conn Connection, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("marshal outbound message")
		return
	}
	if err := conn.Send(string(data)); err != nil {
		h.logger.WithError(err).Debug("dropping message to slow or closed peer")
	}
}

// broadcastTo sends v to every connection in conns, skipping (and logging)
// any peer whose send fails rather than blocking the rest of the room.
func (h *Hub) broadcastTo(conns []Connection, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("marshal outbound message")
		return
	}
	encoded := string(data)
	for _, conn := range conns {
		if err := conn.Send(encoded); err != nil {
			h.logger.WithError(err).Debug("dropping broadcast to slow or closed peer")
		}
	}
}
