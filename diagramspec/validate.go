package diagramspec

import (
	"encoding/json"
	"fmt"
)

// ParseStrict decodes and validates raw as a Spec. Any structural or
// referential-integrity violation aborts with a *ValidationError; nothing
// is returned on failure.
func ParseStrict(raw []byte) (*Spec, error) {
	spec, issues, err := decode(raw)
	if err != nil {
		return nil, &ValidationError{Issues: []Issue{newIssue("$", "invalid JSON: %v", err)}}
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	spec.Valid = true
	return spec, nil
}

// ParseLenient decodes raw the same way but never fails on validation
// issues: Valid is set to false and Issues carries the reasons, so legacy
// rows written under older rules can still be read. Decode (invalid JSON)
// failures are still returned as an error — there's no tree to return.
func ParseLenient(raw []byte) (*Spec, error) {
	spec, issues, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode spec: %w", err)
	}
	spec.Valid = len(issues) == 0
	spec.Issues = issueStrings(issues)
	return spec, nil
}

func issueStrings(issues []Issue) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, len(issues))
	for i, iss := range issues {
		out[i] = iss.String()
	}
	return out
}

// decode unmarshals raw into a Spec and runs all bounds/referential checks,
// returning the accumulated issues without aborting early so every problem
// in a document is reported at once.
func decode(raw []byte) (*Spec, []Issue, error) {
	var spec Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, nil, err
	}

	var issues []Issue

	if !validTypes[spec.SpecType] {
		issues = append(issues, newIssue("$.type", "unknown diagram type %q", spec.SpecType))
	}
	if spec.Theme != "" && !validThemes[spec.Theme] {
		issues = append(issues, newIssue("$.theme", "unknown theme %q", spec.Theme))
	}

	if len(spec.Nodes) > MaxNodes {
		issues = append(issues, newIssue("$.nodes", "at most %d nodes allowed, got %d", MaxNodes, len(spec.Nodes)))
	}
	if len(spec.Edges) > MaxEdges {
		issues = append(issues, newIssue("$.edges", "at most %d edges allowed, got %d", MaxEdges, len(spec.Edges)))
	}
	if len(spec.Groups) > MaxGroups {
		issues = append(issues, newIssue("$.groups", "at most %d groups allowed, got %d", MaxGroups, len(spec.Groups)))
	}
	if len(spec.Messages) > MaxMessages {
		issues = append(issues, newIssue("$.messages", "at most %d messages allowed, got %d", MaxMessages, len(spec.Messages)))
	}
	if len(spec.Relationships) > MaxRelationships {
		issues = append(issues, newIssue("$.relationships", "at most %d relationships allowed, got %d", MaxRelationships, len(spec.Relationships)))
	}

	nodeIDs := make(map[string]bool, len(spec.Nodes))
	for i, n := range spec.Nodes {
		path := fmt.Sprintf("$.nodes[%d]", i)
		if l := len(n.ID); l == 0 || l > MaxNodeIDLen {
			issues = append(issues, newIssue(path+".id", "must be 1..%d chars", MaxNodeIDLen))
		} else if nodeIDs[n.ID] {
			issues = append(issues, newIssue(path+".id", "duplicate node id %q", n.ID))
		}
		nodeIDs[n.ID] = true

		if l := len(n.Label); l == 0 || l > MaxLabelLen {
			issues = append(issues, newIssue(path+".label", "must be 1..%d chars", MaxLabelLen))
		}
		if len(n.Details) > MaxDetailsLen {
			issues = append(issues, newIssue(path+".details", "at most %d chars", MaxDetailsLen))
		}
		if !isValidColor(n.Color) {
			issues = append(issues, newIssue(path+".color", "invalid color %q", n.Color))
		}
		if n.Position != nil {
			if n.Position.X < MinCoord || n.Position.X > MaxCoord {
				issues = append(issues, newIssue(path+".position.x", "must be in [%d,%d]", MinCoord, MaxCoord))
			}
			if n.Position.Y < MinCoord || n.Position.Y > MaxCoord {
				issues = append(issues, newIssue(path+".position.y", "must be in [%d,%d]", MinCoord, MaxCoord))
			}
		}
		if n.Width != nil && (*n.Width < MinSize || *n.Width > MaxSize) {
			issues = append(issues, newIssue(path+".width", "must be in [%d,%d]", MinSize, MaxSize))
		}
		if n.Height != nil && (*n.Height < MinSize || *n.Height > MaxSize) {
			issues = append(issues, newIssue(path+".height", "must be in [%d,%d]", MinSize, MaxSize))
		}
		if len(n.Attributes) > MaxAttributes {
			issues = append(issues, newIssue(path+".attributes", "at most %d entries", MaxAttributes))
		}
		if len(n.Methods) > MaxMethods {
			issues = append(issues, newIssue(path+".methods", "at most %d entries", MaxMethods))
		}
	}

	for i, e := range spec.Edges {
		path := fmt.Sprintf("$.edges[%d]", i)
		if !nodeIDs[e.From] {
			issues = append(issues, newIssue(path+".from", "unknown node id %q", e.From))
		}
		if !nodeIDs[e.To] {
			issues = append(issues, newIssue(path+".to", "unknown node id %q", e.To))
		}
		if e.Style != "" && !validEdgeStyles[EdgeStyle(e.Style)] {
			issues = append(issues, newIssue(path+".style", "unknown style %q", e.Style))
		}
		if !isValidColor(e.Color) {
			issues = append(issues, newIssue(path+".color", "invalid color %q", e.Color))
		}
	}

	for i, g := range spec.Groups {
		path := fmt.Sprintf("$.groups[%d]", i)
		if len(g.NodeIDs) > MaxGroupNodeIDs {
			issues = append(issues, newIssue(path+".nodeIds", "at most %d entries", MaxGroupNodeIDs))
		}
		for _, id := range g.NodeIDs {
			if !nodeIDs[id] {
				issues = append(issues, newIssue(path+".nodeIds", "unknown node id %q", id))
			}
		}
		if !isValidColor(g.Color) {
			issues = append(issues, newIssue(path+".color", "invalid color %q", g.Color))
		}
	}

	if spec.SpecType == TypeSequence {
		for i, m := range spec.Messages {
			path := fmt.Sprintf("$.messages[%d]", i)
			if !nodeIDs[m.From] {
				issues = append(issues, newIssue(path+".from", "unknown node id %q", m.From))
			}
			if !nodeIDs[m.To] {
				issues = append(issues, newIssue(path+".to", "unknown node id %q", m.To))
			}
			if !validMessageTypes[SequenceMessageType(m.Type)] {
				issues = append(issues, newIssue(path+".type", "unknown message type %q", m.Type))
			}
			if m.Order < 0 || m.Order > MaxSequenceOrder {
				issues = append(issues, newIssue(path+".order", "must be in [0,%d]", MaxSequenceOrder))
			}
		}
	}

	if spec.SpecType == TypeER {
		for i, r := range spec.Relationships {
			path := fmt.Sprintf("$.relationships[%d]", i)
			if !nodeIDs[r.Entity1] {
				issues = append(issues, newIssue(path+".entity1", "unknown node id %q", r.Entity1))
			}
			if !nodeIDs[r.Entity2] {
				issues = append(issues, newIssue(path+".entity2", "unknown node id %q", r.Entity2))
			}
			if !validCardinalities[Cardinality(r.Cardinality)] {
				issues = append(issues, newIssue(path+".cardinality", "unknown cardinality %q", r.Cardinality))
			}
			if r.Participation1 != "" && !validParticipations[Participation(r.Participation1)] {
				issues = append(issues, newIssue(path+".participation1", "unknown participation %q", r.Participation1))
			}
			if r.Participation2 != "" && !validParticipations[Participation(r.Participation2)] {
				issues = append(issues, newIssue(path+".participation2", "unknown participation %q", r.Participation2))
			}
		}
	}

	return &spec, issues, nil
}

// Serialize round-trips a Spec back to its canonical JSON encoding, used by
// the storage engine before handing bytes to quota.Guard and to the SQL
// layer.
func Serialize(spec *Spec) ([]byte, error) {
	return json.Marshal(spec)
}
