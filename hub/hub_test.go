package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/evalgo-org/diagramhub/message"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	mu       sync.Mutex
	open     bool
	sent     []string
	closed   bool
	closeErr error
	userID   *string
	role     *string
}

func newMockConn() *mockConn {
	return &mockConn{open: true}
}

func (m *mockConn) Send(msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return errClosedConn
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockConn) Close(code int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.closed = true
	return nil
}

func (m *mockConn) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *mockConn) Identity() (*string, *string) {
	return m.userID, m.role
}

func (m *mockConn) lastFrameType() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	var tagged struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal([]byte(m.sent[len(m.sent)-1]), &tagged)
	return tagged.Type
}

func (m *mockConn) framesOfType(t string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.sent {
		var tagged struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(s), &tagged)
		if tagged.Type == t {
			count++
		}
	}
	return count
}

var errClosedConn = &connClosedError{}

type connClosedError struct{}

func (e *connClosedError) Error() string { return "connection closed" }

func TestJoinRoomSendsJoinedAndBroadcastsToOthers(t *testing.T) {
	h := New(nil)
	a := newMockConn()
	b := newMockConn()

	h.Register(a)
	h.Register(b)

	require.NoError(t, h.JoinRoom(a, "d1", "Alice"))
	require.Equal(t, "joined", a.lastFrameType())

	require.NoError(t, h.JoinRoom(b, "d1", "Bob"))
	require.Equal(t, "joined", b.lastFrameType())
	require.Equal(t, 1, a.framesOfType("participant_joined"))
}

func TestJoinRoomRejectsWhenFull(t *testing.T) {
	h := New(nil)
	for i := 0; i < MaxParticipants; i++ {
		conn := newMockConn()
		h.Register(conn)
		require.NoError(t, h.JoinRoom(conn, "full-room", "member"))
	}

	overflow := newMockConn()
	h.Register(overflow)
	err := h.JoinRoom(overflow, "full-room", "latecomer")
	require.Error(t, err)
	require.Equal(t, "error", overflow.lastFrameType())
}

func TestHandleChangesVersionGating(t *testing.T) {
	h := New(nil)
	c := newMockConn()
	d := newMockConn()
	h.Register(c)
	h.Register(d)
	require.NoError(t, h.JoinRoom(c, "room-x", "C"))
	require.NoError(t, h.JoinRoom(d, "room-x", "D"))

	changes := []message.DiagramChange{{Action: message.ActionAddNode, AddNode: nil}}

	require.NoError(t, h.HandleChanges(c, changes, 0))
	require.Equal(t, "changes", c.lastFrameType())
	require.Equal(t, "changes", d.lastFrameType())

	require.NoError(t, h.HandleChanges(d, changes, 0))
	require.Equal(t, "conflict", d.lastFrameType())
	require.Equal(t, 1, c.framesOfType("changes"))
}

func TestCanWriteRequiresUserIDAndNonViewerRole(t *testing.T) {
	h := New(nil)

	anon := newMockConn()
	h.Register(anon)
	require.False(t, h.CanWrite(anon))

	viewerRole := "viewer"
	uid := "alice"
	viewer := newMockConn()
	viewer.userID = &uid
	viewer.role = &viewerRole
	h.Register(viewer)
	require.False(t, h.CanWrite(viewer))

	editorRole := "user"
	editor := newMockConn()
	editor.userID = &uid
	editor.role = &editorRole
	h.Register(editor)
	require.True(t, h.CanWrite(editor))
}

func TestCheckRateLimitWarnsThenExceeds(t *testing.T) {
	h := New(nil)
	conn := newMockConn()
	h.Register(conn)

	for i := 0; i < MaxMessagesPerWindow; i++ {
		require.True(t, h.CheckRateLimit(conn))
	}

	for i := 0; i < MaxWarnings; i++ {
		allowed := h.CheckRateLimit(conn)
		require.False(t, allowed)
		require.Equal(t, "error", conn.lastFrameType())
	}

	require.True(t, conn.IsOpen())

	allowed := h.CheckRateLimit(conn)
	require.False(t, allowed)
	require.False(t, conn.IsOpen())
}

func TestLeaveRoomBroadcastsParticipantLeft(t *testing.T) {
	h := New(nil)
	a := newMockConn()
	b := newMockConn()
	h.Register(a)
	h.Register(b)
	require.NoError(t, h.JoinRoom(a, "room-y", "A"))
	require.NoError(t, h.JoinRoom(b, "room-y", "B"))

	h.LeaveRoom(a)
	require.Equal(t, 1, b.framesOfType("participant_left"))
}

func TestDisconnectStopsPingEmitterAndLeavesRoom(t *testing.T) {
	h := New(nil)
	a := newMockConn()
	b := newMockConn()
	h.Register(a)
	h.Register(b)
	require.NoError(t, h.JoinRoom(a, "room-z", "A"))
	require.NoError(t, h.JoinRoom(b, "room-z", "B"))

	h.mu.Lock()
	stop := h.connections[a].stopPing
	h.mu.Unlock()

	h.Disconnect(a)
	require.Equal(t, 1, b.framesOfType("participant_left"))
	select {
	case <-stop:
	default:
		t.Fatal("ping emitter stop channel was not closed")
	}
}
