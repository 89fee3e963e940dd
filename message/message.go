// Package message implements the tagged-union client/server message
// schemas exchanged over a collaboration room connection, and their
// boundary validation. A validation failure never touches room state; it
// always yields a plain error the caller turns into an error frame.
package message

import (
	"encoding/json"
	"fmt"
)

// ClientType enumerates the client→server message tags.
type ClientType string

const (
	ClientJoin      ClientType = "join"
	ClientLeave     ClientType = "leave"
	ClientCursor    ClientType = "cursor"
	ClientSelection ClientType = "selection"
	ClientChange    ClientType = "change"
	ClientPing      ClientType = "ping"
)

// ServerType enumerates the server→client message tags.
type ServerType string

const (
	ServerJoined             ServerType = "joined"
	ServerParticipantJoined  ServerType = "participant_joined"
	ServerParticipantLeft    ServerType = "participant_left"
	ServerCursorUpdate       ServerType = "cursor_update"
	ServerSelectionUpdate    ServerType = "selection_update"
	ServerChanges            ServerType = "changes"
	ServerSync               ServerType = "sync"
	ServerConflict           ServerType = "conflict"
	ServerError              ServerType = "error"
	ServerPong               ServerType = "pong"
)

// Error codes the hub attaches to ServerError frames.
const (
	CodeNotRegistered      = "NOT_REGISTERED"
	CodeNotInRoom          = "NOT_IN_ROOM"
	CodeRoomFull           = "ROOM_FULL"
	CodeInvalidJSON        = "INVALID_JSON"
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeInvalidChangeData  = "INVALID_CHANGE_DATA"
	CodeTooManyChanges     = "TOO_MANY_CHANGES"
	CodeMessageTooLarge    = "MESSAGE_TOO_LARGE"
	CodeRateLimitWarning   = "RATE_LIMIT_WARNING"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeServerShutdown     = "SERVER_SHUTDOWN"
	CodeInternalError      = "INTERNAL_ERROR"
)

const (
	maxNameLen       = 100
	maxDiagramIDLen  = 100
	minCursorCoord   = -1_000_000
	maxCursorCoord   = 1_000_000
	maxSelectionIDs  = 100
	maxSelectionLen  = 100
	maxChangesLen    = 100
	maxAddNodePerMsg = 100
	maxAddEdgePerMsg = 500
)

// ClientMessage is the decoded, validated form of any client→server frame.
// Exactly one of the typed fields is populated, matching Type.
type ClientMessage struct {
	Type      ClientType
	Join      *Join
	Cursor    *Cursor
	Selection *Selection
	Change    *Change
}

type Join struct {
	DiagramID string `json:"diagramId"`
	Name      string `json:"name"`
}

type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Selection struct {
	NodeIDs []string `json:"nodeIds"`
}

type Change struct {
	Changes     []DiagramChange `json:"changes"`
	BaseVersion int64           `json:"baseVersion"`
}

// Decode parses a raw inbound frame and validates it against its schema.
// On any failure it returns a plain error describing the violation; the
// caller is responsible for turning that into an error frame with the
// appropriate code (typically INVALID_JSON or INVALID_MESSAGE).
func Decode(raw []byte) (*ClientMessage, error) {
	var tagged struct {
		Type ClientType `json:"type"`
	}
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	switch tagged.Type {
	case ClientJoin:
		var body struct {
			DiagramID string `json:"diagramId"`
			Name      string `json:"name"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("invalid join payload: %w", err)
		}
		if l := len(body.DiagramID); l < 1 || l > maxDiagramIDLen {
			return nil, fmt.Errorf("join: diagramId must be 1..%d characters", maxDiagramIDLen)
		}
		if body.Name == "" {
			body.Name = "Anonymous"
		}
		if len(body.Name) > maxNameLen {
			return nil, fmt.Errorf("join: name must be at most %d characters", maxNameLen)
		}
		return &ClientMessage{Type: ClientJoin, Join: &Join{DiagramID: body.DiagramID, Name: body.Name}}, nil

	case ClientLeave, ClientPing:
		return &ClientMessage{Type: tagged.Type}, nil

	case ClientCursor:
		var body struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("invalid cursor payload: %w", err)
		}
		if body.X < minCursorCoord || body.X > maxCursorCoord || body.Y < minCursorCoord || body.Y > maxCursorCoord {
			return nil, fmt.Errorf("cursor: coordinates must be within [%d, %d]", minCursorCoord, maxCursorCoord)
		}
		return &ClientMessage{Type: ClientCursor, Cursor: &Cursor{X: body.X, Y: body.Y}}, nil

	case ClientSelection:
		var body struct {
			NodeIDs []string `json:"nodeIds"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("invalid selection payload: %w", err)
		}
		if len(body.NodeIDs) > maxSelectionIDs {
			return nil, fmt.Errorf("selection: at most %d nodeIds allowed", maxSelectionIDs)
		}
		for _, id := range body.NodeIDs {
			if len(id) > maxSelectionLen {
				return nil, fmt.Errorf("selection: nodeId %q exceeds %d characters", id, maxSelectionLen)
			}
		}
		return &ClientMessage{Type: ClientSelection, Selection: &Selection{NodeIDs: body.NodeIDs}}, nil

	case ClientChange:
		var body struct {
			Changes     []json.RawMessage `json:"changes"`
			BaseVersion int64             `json:"baseVersion"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("invalid change payload: %w", err)
		}
		if body.BaseVersion < 0 {
			return nil, fmt.Errorf("change: baseVersion must be >= 0")
		}
		if len(body.Changes) > maxChangesLen {
			return nil, fmt.Errorf("change: at most %d changes per message", maxChangesLen)
		}

		changes := make([]DiagramChange, 0, len(body.Changes))
		var addNodeCount, addEdgeCount int
		for _, raw := range body.Changes {
			c, err := decodeDiagramChange(raw)
			if err != nil {
				return nil, err
			}
			switch c.Action {
			case ActionAddNode:
				addNodeCount++
			case ActionAddEdge:
				addEdgeCount++
			}
			changes = append(changes, *c)
		}
		if addNodeCount > maxAddNodePerMsg {
			return nil, fmt.Errorf("change: at most %d add_node changes per message", maxAddNodePerMsg)
		}
		if addEdgeCount > maxAddEdgePerMsg {
			return nil, fmt.Errorf("change: at most %d add_edge changes per message", maxAddEdgePerMsg)
		}

		return &ClientMessage{Type: ClientChange, Change: &Change{Changes: changes, BaseVersion: body.BaseVersion}}, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", tagged.Type)
	}
}
