package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestAdapterSendAndReceive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverReceived := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		uid := "alice"
		role := "user"
		adapter := New(conn, &uid, &role, nil)

		require.NoError(t, adapter.Send("hello from server"))

		msg, err := adapter.ReadMessage()
		require.NoError(t, err)
		serverReceived <- string(msg)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	_, data, err := clientConn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "hello from server", string(data))

	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte("hello from client")))

	select {
	case got := <-serverReceived:
		require.Equal(t, "hello from client", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive message")
	}
}

func TestAdapterIdentityAndClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	done := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		uid := "bob"
		role := "viewer"
		adapter := New(conn, &uid, &role, nil)

		gotUID, gotRole := adapter.Identity()
		require.Equal(t, &uid, gotUID)
		require.Equal(t, &role, gotRole)

		require.True(t, adapter.IsOpen())
		require.NoError(t, adapter.Close(websocket.CloseNormalClosure, "done"))
		require.False(t, adapter.IsOpen())

		err = adapter.Send("should fail")
		require.Error(t, err)
		close(done)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server handler")
	}
}

func TestAdapterSendQueueFullReturnsError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	resultCh := make(chan error, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		adapter := New(conn, nil, nil, nil)

		var lastErr error
		for i := 0; i < sendQueueSize+10; i++ {
			lastErr = adapter.Send("filler")
		}
		resultCh <- lastErr
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	select {
	case lastErr := <-resultCh:
		require.Error(t, lastErr)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
