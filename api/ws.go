package api

import (
	"encoding/json"
	"net/http"

	"github.com/evalgo-org/diagramhub/hub"
	"github.com/evalgo-org/diagramhub/message"
	"github.com/evalgo-org/diagramhub/transport"
	"github.com/labstack/echo/v4"
)

// handleWebSocket upgrades the request to a WebSocket, authenticates it per
// spec §6.1 (optional token query param; invalid ⇒ 401, missing ⇒
// anonymous), registers it with the hub, and drives its read loop until the
// connection closes.
func (s *Server) handleWebSocket(c echo.Context) error {
	var userID, role *string
	if token := c.QueryParam("token"); token != "" && s.verifier != nil {
		var err error
		userID, role, err = s.verifier.Verify(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	adapter := transport.New(conn, userID, role, s.logger)
	s.hub.Register(adapter)
	defer s.hub.Disconnect(adapter)

	diagramID := c.Param("id")

	for {
		raw, err := adapter.ReadMessage()
		if err != nil {
			return nil
		}

		s.hub.UpdateActivity(adapter)
		if !s.hub.CheckRateLimit(adapter) {
			continue
		}

		msg, err := message.Decode(raw)
		if err != nil {
			sendError(adapter, message.CodeInvalidMessage, err.Error())
			continue
		}

		s.dispatch(adapter, diagramID, msg)
	}
}

func (s *Server) dispatch(conn hub.Connection, diagramID string, msg *message.ClientMessage) {
	switch msg.Type {
	case message.ClientJoin:
		if err := s.hub.JoinRoom(conn, diagramID, msg.Join.Name); err != nil {
			s.logger.WithError(err).Debug("join room rejected")
		}

	case message.ClientLeave:
		s.hub.LeaveRoom(conn)

	case message.ClientCursor:
		s.hub.UpdateCursor(conn, msg.Cursor.X, msg.Cursor.Y)

	case message.ClientSelection:
		s.hub.UpdateSelection(conn, msg.Selection.NodeIDs)

	case message.ClientChange:
		if !s.hub.CanWrite(conn) {
			sendError(conn, message.CodeInvalidMessage, "connection is not permitted to write changes")
			return
		}
		if err := s.hub.HandleChanges(conn, msg.Change.Changes, msg.Change.BaseVersion); err != nil {
			s.logger.WithError(err).Debug("handle changes rejected")
		}

	case message.ClientPing:
		sendFrame(conn, message.NewPong())
	}
}

// sendError sends an error frame directly, bypassing the hub — used for
// boundary failures (undecodable frames, refused writes) the hub never sees.
func sendError(conn hub.Connection, code, msg string) {
	sendFrame(conn, message.NewError(code, msg))
}

func sendFrame(conn hub.Connection, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = conn.Send(string(data))
}
