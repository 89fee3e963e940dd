package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeJoinDefaultsName(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"join","diagramId":"d1"}`))
	require.NoError(t, err)
	require.Equal(t, ClientJoin, msg.Type)
	require.Equal(t, "Anonymous", msg.Join.Name)
}

func TestDecodeJoinRejectsEmptyDiagramID(t *testing.T) {
	_, err := Decode([]byte(`{"type":"join","diagramId":""}`))
	require.Error(t, err)
}

func TestDecodeCursorBounds(t *testing.T) {
	_, err := Decode([]byte(`{"type":"cursor","x":0,"y":0}`))
	require.NoError(t, err)

	_, err = Decode([]byte(`{"type":"cursor","x":2000000,"y":0}`))
	require.Error(t, err)
}

func TestDecodeSelectionTooManyIDs(t *testing.T) {
	ids := make([]string, 0, 101)
	for i := 0; i < 101; i++ {
		ids = append(ids, "n")
	}
	raw, err := json.Marshal(map[string]interface{}{"type": "selection", "nodeIds": ids})
	require.NoError(t, err)
	_, err = Decode(raw)
	require.Error(t, err)
}

func TestDecodeChangeAddNode(t *testing.T) {
	raw := []byte(`{"type":"change","baseVersion":0,"changes":[
		{"action":"add_node","data":{"id":"a","label":"A"}}
	]}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, msg.Change.Changes, 1)
	require.Equal(t, ActionAddNode, msg.Change.Changes[0].Action)
	require.Equal(t, "a", msg.Change.Changes[0].AddNode.ID)
}

func TestDecodeChangeUpdateNodeRequiresAtLeastOneField(t *testing.T) {
	raw := []byte(`{"type":"change","baseVersion":0,"changes":[
		{"action":"update_node","target":"a","data":{}}
	]}`)
	_, err := Decode(raw)
	require.Error(t, err)
}

func TestDecodeChangeUpdateNodeRejectsUnknownField(t *testing.T) {
	raw := []byte(`{"type":"change","baseVersion":0,"changes":[
		{"action":"update_node","target":"a","data":{"bogus":1}}
	]}`)
	_, err := Decode(raw)
	require.Error(t, err)
}

func TestDecodeChangeTooManyAddNode(t *testing.T) {
	entries := make([]map[string]interface{}, 0, 101)
	for i := 0; i < 101; i++ {
		entries = append(entries, map[string]interface{}{
			"action": "add_node",
			"data":   map[string]interface{}{"id": "n", "label": "N"},
		})
	}
	raw, err := json.Marshal(map[string]interface{}{"type": "change", "baseVersion": 0, "changes": entries})
	require.NoError(t, err)
	_, err = Decode(raw)
	require.Error(t, err)
}

func TestDecodeChangeStyleUpdate(t *testing.T) {
	raw := []byte(`{"type":"change","baseVersion":0,"changes":[
		{"action":"update_style","data":{"theme":"dark"}}
	]}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, msg.Change.Changes[0].UpdateStyle.Theme)
}

func TestDecodeChangeStyleUpdateRejectsInvalidColor(t *testing.T) {
	raw := []byte(`{"type":"change","baseVersion":0,"changes":[
		{"action":"update_style","data":{"nodeColor":"not-a-color"}}
	]}`)
	_, err := Decode(raw)
	require.Error(t, err)
}

func TestDecodeUnknownTypeRejected(t *testing.T) {
	_, err := Decode([]byte(`{"type":"bogus"}`))
	require.Error(t, err)
}

func TestDecodeInvalidJSONRejected(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
}

