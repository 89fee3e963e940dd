package message

import "github.com/evalgo-org/diagramhub/diagramspec"

// Participant describes one connected room member as broadcast to peers.
type Participant struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	UserID *string `json:"userId,omitempty"`
	Role   *string `json:"role,omitempty"`
}

// RoomSnapshot is the full room state sent to a joiner.
type RoomSnapshot struct {
	DiagramID    string            `json:"diagramId"`
	Version      int64             `json:"version"`
	Participants []Participant     `json:"participants"`
}

// Joined is the response to a successful join.
type Joined struct {
	Type        ServerType   `json:"type"`
	Participant Participant  `json:"participant"`
	Room        RoomSnapshot `json:"room"`
}

func NewJoined(self Participant, room RoomSnapshot) Joined {
	return Joined{Type: ServerJoined, Participant: self, Room: room}
}

// ParticipantJoined is broadcast to the rest of the room.
type ParticipantJoined struct {
	Type        ServerType  `json:"type"`
	Participant Participant `json:"participant"`
}

func NewParticipantJoined(p Participant) ParticipantJoined {
	return ParticipantJoined{Type: ServerParticipantJoined, Participant: p}
}

// ParticipantLeft is broadcast when a member leaves or is reaped.
type ParticipantLeft struct {
	Type          ServerType `json:"type"`
	ParticipantID string     `json:"participantId"`
}

func NewParticipantLeft(id string) ParticipantLeft {
	return ParticipantLeft{Type: ServerParticipantLeft, ParticipantID: id}
}

// CursorUpdate relays a peer's latest pointer position.
type CursorUpdate struct {
	Type          ServerType `json:"type"`
	ParticipantID string     `json:"participantId"`
	X             float64    `json:"x"`
	Y             float64    `json:"y"`
}

func NewCursorUpdate(participantID string, x, y float64) CursorUpdate {
	return CursorUpdate{Type: ServerCursorUpdate, ParticipantID: participantID, X: x, Y: y}
}

// SelectionUpdate relays a peer's latest node selection.
type SelectionUpdate struct {
	Type          ServerType `json:"type"`
	ParticipantID string     `json:"participantId"`
	NodeIDs       []string   `json:"nodeIds"`
}

func NewSelectionUpdate(participantID string, nodeIDs []string) SelectionUpdate {
	return SelectionUpdate{Type: ServerSelectionUpdate, ParticipantID: participantID, NodeIDs: nodeIDs}
}

// Changes is the accepted-and-broadcast form of a change message, sent to
// the whole room including the author as an ordering barrier.
type Changes struct {
	Type    ServerType      `json:"type"`
	Changes []DiagramChange `json:"changes"`
	Author  string          `json:"author"`
	Version int64           `json:"version"`
}

func NewChanges(changes []DiagramChange, author string, version int64) Changes {
	return Changes{Type: ServerChanges, Changes: changes, Author: author, Version: version}
}

// Sync is pushed by the external sync bridge (C9) after a non-hub write.
type Sync struct {
	Type    ServerType        `json:"type"`
	Spec    *diagramspec.Spec `json:"spec"`
	Version int64             `json:"version"`
}

func NewSync(spec *diagramspec.Spec, version int64) Sync {
	return Sync{Type: ServerSync, Spec: spec, Version: version}
}

// Conflict is sent only to the submitter of a stale change.
type Conflict struct {
	Type           ServerType `json:"type"`
	Message        string     `json:"message"`
	CurrentVersion int64      `json:"currentVersion"`
}

func NewConflict(currentVersion int64) Conflict {
	return Conflict{Type: ServerConflict, Message: "version conflict", CurrentVersion: currentVersion}
}

// ErrorFrame is sent for any protocol- or boundary-level failure.
type ErrorFrame struct {
	Type    ServerType `json:"type"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
}

func NewError(code, msg string) ErrorFrame {
	return ErrorFrame{Type: ServerError, Code: code, Message: msg}
}

// Pong answers a client ping and is also emitted on the server's own
// periodic cadence.
type Pong struct {
	Type ServerType `json:"type"`
}

func NewPong() Pong {
	return Pong{Type: ServerPong}
}
