// Package diffengine computes typed, deterministic change-sets between two
// diagram specs for timeline rendering and changelog text. It performs no
// I/O and holds no state.
package diffengine

import (
	"fmt"

	"github.com/evalgo-org/diagramhub/diagramspec"
)

// ChangeKind enumerates how an entity changed between two specs.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Removed  ChangeKind = "removed"
	Modified ChangeKind = "modified"
)

// FieldDelta is a single field's before/after values, only emitted when
// they differ.
type FieldDelta struct {
	Field  string      `json:"field"`
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

// NodeDiff describes one node's change.
type NodeDiff struct {
	ID     string       `json:"id"`
	Kind   ChangeKind   `json:"kind"`
	Fields []FieldDelta `json:"fields,omitempty"`
}

// EdgeDiff describes one edge's change, identified by from->to.
type EdgeDiff struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Kind   ChangeKind   `json:"kind"`
	Fields []FieldDelta `json:"fields,omitempty"`
}

// GroupDiff describes one group's change.
type GroupDiff struct {
	ID     string       `json:"id"`
	Kind   ChangeKind   `json:"kind"`
	Fields []FieldDelta `json:"fields,omitempty"`
}

// Diff is the full change-set between two specs.
type Diff struct {
	Nodes  []NodeDiff   `json:"nodes,omitempty"`
	Edges  []EdgeDiff   `json:"edges,omitempty"`
	Groups []GroupDiff  `json:"groups,omitempty"`
	Meta   []FieldDelta `json:"meta,omitempty"`
}

// IsEmpty reports whether the two specs produced no observable difference.
func (d Diff) IsEmpty() bool {
	return len(d.Nodes) == 0 && len(d.Edges) == 0 && len(d.Groups) == 0 && len(d.Meta) == 0
}

// Compute returns the typed difference from "before" to "after". Either
// argument may be nil, treated as an empty spec.
func Compute(before, after *diagramspec.Spec) Diff {
	var diff Diff

	diff.Meta = diffMeta(before, after)
	diff.Nodes = diffNodes(specNodes(before), specNodes(after))
	diff.Edges = diffEdges(specEdges(before), specEdges(after))
	diff.Groups = diffGroups(specGroups(before), specGroups(after))

	return diff
}

func specNodes(s *diagramspec.Spec) []diagramspec.Node {
	if s == nil {
		return nil
	}
	return s.Nodes
}

func specEdges(s *diagramspec.Spec) []diagramspec.Edge {
	if s == nil {
		return nil
	}
	return s.Edges
}

func specGroups(s *diagramspec.Spec) []diagramspec.Group {
	if s == nil {
		return nil
	}
	return s.Groups
}

func diffMeta(before, after *diagramspec.Spec) []FieldDelta {
	var deltas []FieldDelta
	beforeType, afterType := specType(before), specType(after)
	if beforeType != afterType {
		deltas = append(deltas, FieldDelta{Field: "type", Before: beforeType, After: afterType})
	}
	beforeTheme, afterTheme := specTheme(before), specTheme(after)
	if beforeTheme != afterTheme {
		deltas = append(deltas, FieldDelta{Field: "theme", Before: beforeTheme, After: afterTheme})
	}
	return deltas
}

func specType(s *diagramspec.Spec) diagramspec.Type {
	if s == nil {
		return ""
	}
	return s.SpecType
}

func specTheme(s *diagramspec.Spec) diagramspec.Theme {
	if s == nil {
		return ""
	}
	return s.Theme
}

func diffNodes(before, after []diagramspec.Node) []NodeDiff {
	beforeByID := make(map[string]diagramspec.Node, len(before))
	for _, n := range before {
		beforeByID[n.ID] = n
	}
	afterByID := make(map[string]diagramspec.Node, len(after))
	for _, n := range after {
		afterByID[n.ID] = n
	}

	var diffs []NodeDiff
	for _, n := range before {
		if _, ok := afterByID[n.ID]; !ok {
			diffs = append(diffs, NodeDiff{ID: n.ID, Kind: Removed})
		}
	}
	for _, n := range after {
		prev, existed := beforeByID[n.ID]
		if !existed {
			diffs = append(diffs, NodeDiff{ID: n.ID, Kind: Added})
			continue
		}
		if fields := nodeFieldDeltas(prev, n); len(fields) > 0 {
			diffs = append(diffs, NodeDiff{ID: n.ID, Kind: Modified, Fields: fields})
		}
	}
	return diffs
}

func nodeFieldDeltas(before, after diagramspec.Node) []FieldDelta {
	var deltas []FieldDelta
	if before.Label != after.Label {
		deltas = append(deltas, FieldDelta{Field: "label", Before: before.Label, After: after.Label})
	}
	if before.Type != after.Type {
		deltas = append(deltas, FieldDelta{Field: "type", Before: before.Type, After: after.Type})
	}
	if before.Color != after.Color {
		deltas = append(deltas, FieldDelta{Field: "color", Before: before.Color, After: after.Color})
	}
	if before.Details != after.Details {
		deltas = append(deltas, FieldDelta{Field: "details", Before: before.Details, After: after.Details})
	}
	if !positionsEqual(before.Position, after.Position) {
		deltas = append(deltas, FieldDelta{Field: "position", Before: before.Position, After: after.Position})
	}
	if !float64PtrEqual(before.Width, after.Width) || !float64PtrEqual(before.Height, after.Height) {
		deltas = append(deltas, FieldDelta{
			Field:  "size",
			Before: fmt.Sprintf("%v x %v", derefFloat(before.Width), derefFloat(before.Height)),
			After:  fmt.Sprintf("%v x %v", derefFloat(after.Width), derefFloat(after.Height)),
		})
	}
	return deltas
}

func diffEdges(before, after []diagramspec.Edge) []EdgeDiff {
	key := func(e diagramspec.Edge) string { return e.From + "->" + e.To }

	beforeByKey := make(map[string]diagramspec.Edge, len(before))
	for _, e := range before {
		beforeByKey[key(e)] = e
	}
	afterByKey := make(map[string]diagramspec.Edge, len(after))
	for _, e := range after {
		afterByKey[key(e)] = e
	}

	var diffs []EdgeDiff
	for _, e := range before {
		if _, ok := afterByKey[key(e)]; !ok {
			diffs = append(diffs, EdgeDiff{From: e.From, To: e.To, Kind: Removed})
		}
	}
	for _, e := range after {
		prev, existed := beforeByKey[key(e)]
		if !existed {
			diffs = append(diffs, EdgeDiff{From: e.From, To: e.To, Kind: Added})
			continue
		}
		var fields []FieldDelta
		if prev.Label != e.Label {
			fields = append(fields, FieldDelta{Field: "label", Before: prev.Label, After: e.Label})
		}
		if prev.Style != e.Style {
			fields = append(fields, FieldDelta{Field: "style", Before: prev.Style, After: e.Style})
		}
		if prev.Color != e.Color {
			fields = append(fields, FieldDelta{Field: "color", Before: prev.Color, After: e.Color})
		}
		if len(fields) > 0 {
			diffs = append(diffs, EdgeDiff{From: e.From, To: e.To, Kind: Modified, Fields: fields})
		}
	}
	return diffs
}

func diffGroups(before, after []diagramspec.Group) []GroupDiff {
	beforeByID := make(map[string]diagramspec.Group, len(before))
	for _, g := range before {
		beforeByID[g.ID] = g
	}
	afterByID := make(map[string]diagramspec.Group, len(after))
	for _, g := range after {
		afterByID[g.ID] = g
	}

	var diffs []GroupDiff
	for _, g := range before {
		if _, ok := afterByID[g.ID]; !ok {
			diffs = append(diffs, GroupDiff{ID: g.ID, Kind: Removed})
		}
	}
	for _, g := range after {
		prev, existed := beforeByID[g.ID]
		if !existed {
			diffs = append(diffs, GroupDiff{ID: g.ID, Kind: Added})
			continue
		}
		var fields []FieldDelta
		if prev.Label != g.Label {
			fields = append(fields, FieldDelta{Field: "label", Before: prev.Label, After: g.Label})
		}
		if !stringSlicesEqual(prev.NodeIDs, g.NodeIDs) {
			fields = append(fields, FieldDelta{Field: "nodeIds", Before: prev.NodeIDs, After: g.NodeIDs})
		}
		if prev.Color != g.Color {
			fields = append(fields, FieldDelta{Field: "color", Before: prev.Color, After: g.Color})
		}
		if len(fields) > 0 {
			diffs = append(diffs, GroupDiff{ID: g.ID, Kind: Modified, Fields: fields})
		}
	}
	return diffs
}

func positionsEqual(a, b *diagramspec.Position) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func float64PtrEqual(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
