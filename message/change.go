package message

import (
	"encoding/json"
	"fmt"

	"github.com/evalgo-org/diagramhub/diagramspec"
)

// Action enumerates the DiagramChange discriminant values.
type Action string

const (
	ActionAddNode     Action = "add_node"
	ActionUpdateNode  Action = "update_node"
	ActionRemoveNode  Action = "remove_node"
	ActionAddEdge     Action = "add_edge"
	ActionUpdateEdge  Action = "update_edge"
	ActionRemoveEdge  Action = "remove_edge"
	ActionUpdateStyle Action = "update_style"
)

const maxTargetLen = 100

// DiagramChange is one entry of a change message's changes array. Exactly
// one of the typed payload fields is populated, matching Action.
type DiagramChange struct {
	Action Action

	AddNode    *diagramspec.Node
	UpdateNode *NodeUpdate
	RemoveNode *Target

	AddEdge    *diagramspec.Edge
	UpdateEdge *EdgeUpdate
	RemoveEdge *Target

	UpdateStyle *StyleUpdate
}

// Target names the node or edge id a mutation applies to.
type Target struct {
	ID string
}

// NodeUpdate is a partial node patch: at least one field must be set.
type NodeUpdate struct {
	Target string
	Fields map[string]json.RawMessage
}

// EdgeUpdate is a partial edge patch: at least one field must be set.
type EdgeUpdate struct {
	Target string
	Fields map[string]json.RawMessage
}

// StyleUpdate carries the document-level style fields a client may change
// together; at least one must be set.
type StyleUpdate struct {
	Theme           *diagramspec.Theme
	NodeColor       *string
	EdgeColor       *string
	BackgroundColor *string
}

var nodeUpdateFields = map[string]bool{
	"label": true, "type": true, "color": true, "details": true,
	"position": true, "width": true, "height": true, "stereotype": true,
	"swimlane": true, "attributes": true, "methods": true,
}

var edgeUpdateFields = map[string]bool{
	"label": true, "style": true, "color": true, "from": true, "to": true,
}

func decodeDiagramChange(raw json.RawMessage) (*DiagramChange, error) {
	var tagged struct {
		Action Action          `json:"action"`
		Target string          `json:"target"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, fmt.Errorf("invalid change entry: %w", err)
	}

	switch tagged.Action {
	case ActionAddNode:
		var node diagramspec.Node
		if err := json.Unmarshal(tagged.Data, &node); err != nil {
			return nil, fmt.Errorf("add_node: invalid data: %w", err)
		}
		if node.ID == "" || node.Label == "" {
			return nil, fmt.Errorf("add_node: data requires id and label")
		}
		return &DiagramChange{Action: ActionAddNode, AddNode: &node}, nil

	case ActionUpdateNode:
		if err := validateTarget(tagged.Target); err != nil {
			return nil, fmt.Errorf("update_node: %w", err)
		}
		fields, err := partialFields(tagged.Data, nodeUpdateFields, "update_node")
		if err != nil {
			return nil, err
		}
		return &DiagramChange{Action: ActionUpdateNode, UpdateNode: &NodeUpdate{Target: tagged.Target, Fields: fields}}, nil

	case ActionRemoveNode:
		if err := validateTarget(tagged.Target); err != nil {
			return nil, fmt.Errorf("remove_node: %w", err)
		}
		return &DiagramChange{Action: ActionRemoveNode, RemoveNode: &Target{ID: tagged.Target}}, nil

	case ActionAddEdge:
		var edge diagramspec.Edge
		if err := json.Unmarshal(tagged.Data, &edge); err != nil {
			return nil, fmt.Errorf("add_edge: invalid data: %w", err)
		}
		if edge.ID == "" || edge.From == "" || edge.To == "" {
			return nil, fmt.Errorf("add_edge: data requires id, from, and to")
		}
		return &DiagramChange{Action: ActionAddEdge, AddEdge: &edge}, nil

	case ActionUpdateEdge:
		if err := validateTarget(tagged.Target); err != nil {
			return nil, fmt.Errorf("update_edge: %w", err)
		}
		fields, err := partialFields(tagged.Data, edgeUpdateFields, "update_edge")
		if err != nil {
			return nil, err
		}
		return &DiagramChange{Action: ActionUpdateEdge, UpdateEdge: &EdgeUpdate{Target: tagged.Target, Fields: fields}}, nil

	case ActionRemoveEdge:
		if err := validateTarget(tagged.Target); err != nil {
			return nil, fmt.Errorf("remove_edge: %w", err)
		}
		return &DiagramChange{Action: ActionRemoveEdge, RemoveEdge: &Target{ID: tagged.Target}}, nil

	case ActionUpdateStyle:
		style, err := decodeStyleUpdate(tagged.Data)
		if err != nil {
			return nil, err
		}
		return &DiagramChange{Action: ActionUpdateStyle, UpdateStyle: style}, nil

	default:
		return nil, fmt.Errorf("unknown change action %q", tagged.Action)
	}
}

func validateTarget(target string) error {
	if l := len(target); l < 1 || l > maxTargetLen {
		return fmt.Errorf("target must be 1..%d characters", maxTargetLen)
	}
	return nil
}

func partialFields(data json.RawMessage, allowed map[string]bool, context string) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: invalid data: %w", context, err)
	}
	for key := range raw {
		if !allowed[key] {
			return nil, fmt.Errorf("%s: unknown field %q", context, key)
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: data must set at least one field", context)
	}
	return raw, nil
}

func decodeStyleUpdate(data json.RawMessage) (*StyleUpdate, error) {
	var body struct {
		Theme           *diagramspec.Theme `json:"theme"`
		NodeColor       *string            `json:"nodeColor"`
		EdgeColor       *string            `json:"edgeColor"`
		BackgroundColor *string            `json:"backgroundColor"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("update_style: invalid data: %w", err)
	}
	if body.Theme == nil && body.NodeColor == nil && body.EdgeColor == nil && body.BackgroundColor == nil {
		return nil, fmt.Errorf("update_style: data must set at least one field")
	}
	if body.Theme != nil && !diagramspec.IsValidTheme(*body.Theme) {
		return nil, fmt.Errorf("update_style: invalid theme %q", *body.Theme)
	}
	for _, c := range []*string{body.NodeColor, body.EdgeColor, body.BackgroundColor} {
		if c != nil && !diagramspec.IsValidColor(*c) {
			return nil, fmt.Errorf("update_style: invalid color %q", *c)
		}
	}
	return &StyleUpdate{Theme: body.Theme, NodeColor: body.NodeColor, EdgeColor: body.EdgeColor, BackgroundColor: body.BackgroundColor}, nil
}
