package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evalgo-org/diagramhub/hub"
	"github.com/evalgo-org/diagramhub/quota"
	"github.com/evalgo-org/diagramhub/storage"
	"github.com/evalgo-org/diagramhub/thumbnail"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "diagramhub.db")
	store, err := storage.Open(dbPath, quota.NewGuard(quota.DefaultLimits()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	thumbs, err := thumbnail.New(t.TempDir(), nil)
	require.NoError(t, err)

	roomHub := hub.New(nil)
	srv := New(DefaultConfig(), store, quota.NewGuard(quota.DefaultLimits()), thumbs, roomHub, nil, nil)
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "healthy", body.Status)
}

func TestCreateAndGetDiagram(t *testing.T) {
	_, ts := newTestServer(t)

	createBody := `{"name":"Test Diagram","project":"proj-a","spec":{"type":"flowchart","theme":"light","nodes":[{"id":"a","label":"A"}],"edges":[]}}`
	resp, err := http.Post(ts.URL+"/api/diagrams", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created storage.Diagram
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	getResp, err := http.Get(ts.URL + "/api/diagrams/" + created.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestCreateDiagramRejectsInvalidSpec(t *testing.T) {
	_, ts := newTestServer(t)

	createBody := `{"name":"Bad","project":"proj-a","spec":{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[{"from":"a","to":"missing"}]}}`
	resp, err := http.Post(ts.URL+"/api/diagrams", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateDiagramOptimisticConflict(t *testing.T) {
	_, ts := newTestServer(t)

	createBody := `{"name":"D","project":"p","spec":{"type":"flowchart","nodes":[],"edges":[]}}`
	resp, err := http.Post(ts.URL+"/api/diagrams", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	var created storage.Diagram
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	staleVersion := int64(999)
	updateBody, _ := json.Marshal(updateDiagramRequest{
		Spec:        json.RawMessage(`{"type":"flowchart","nodes":[],"edges":[]}`),
		Message:     "stale update",
		BaseVersion: &staleVersion,
	})
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/diagrams/"+created.ID, bytes.NewReader(updateBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	updateResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer updateResp.Body.Close()
	require.Equal(t, http.StatusConflict, updateResp.StatusCode)
}

func TestWebSocketJoinRoom(t *testing.T) {
	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/diagram-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","diagramId":"diagram-1","name":"Alice"}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var tagged struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &tagged))
	require.Equal(t, "joined", tagged.Type)
}
