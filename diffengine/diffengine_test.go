package diffengine

import (
	"testing"

	"github.com/evalgo-org/diagramhub/diagramspec"
	"github.com/stretchr/testify/require"
)

func spec(t *testing.T, raw string) *diagramspec.Spec {
	t.Helper()
	s, err := diagramspec.ParseStrict([]byte(raw))
	require.NoError(t, err)
	return s
}

func TestComputeDetectsAddedAndRemovedNodes(t *testing.T) {
	before := spec(t, `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[]}`)
	after := spec(t, `{"type":"flowchart","nodes":[{"id":"b","label":"B"}],"edges":[]}`)

	diff := Compute(before, after)
	require.Len(t, diff.Nodes, 2)

	var kinds []ChangeKind
	for _, n := range diff.Nodes {
		kinds = append(kinds, n.Kind)
	}
	require.Contains(t, kinds, Added)
	require.Contains(t, kinds, Removed)
}

func TestComputeDetectsModifiedNodeLabel(t *testing.T) {
	before := spec(t, `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[]}`)
	after := spec(t, `{"type":"flowchart","nodes":[{"id":"a","label":"A renamed"}],"edges":[]}`)

	diff := Compute(before, after)
	require.Len(t, diff.Nodes, 1)
	require.Equal(t, Modified, diff.Nodes[0].Kind)
	require.Equal(t, "label", diff.Nodes[0].Fields[0].Field)
}

func TestComputeEdgeIdentityByFromTo(t *testing.T) {
	before := spec(t, `{"type":"flowchart","nodes":[{"id":"a","label":"A"},{"id":"b","label":"B"}],"edges":[{"id":"e1","from":"a","to":"b"}]}`)
	after := spec(t, `{"type":"flowchart","nodes":[{"id":"a","label":"A"},{"id":"b","label":"B"}],"edges":[{"id":"e1","from":"a","to":"b","label":"renamed"}]}`)

	diff := Compute(before, after)
	require.Len(t, diff.Edges, 1)
	require.Equal(t, Modified, diff.Edges[0].Kind)
	require.Equal(t, "a", diff.Edges[0].From)
	require.Equal(t, "b", diff.Edges[0].To)
}

func TestComputeMetaThemeChange(t *testing.T) {
	before := spec(t, `{"type":"flowchart","theme":"light","nodes":[{"id":"a","label":"A"}],"edges":[]}`)
	after := spec(t, `{"type":"flowchart","theme":"dark","nodes":[{"id":"a","label":"A"}],"edges":[]}`)

	diff := Compute(before, after)
	require.Len(t, diff.Meta, 1)
	require.Equal(t, "theme", diff.Meta[0].Field)
}

func TestComputeNoChangesIsEmpty(t *testing.T) {
	before := spec(t, `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[]}`)
	after := spec(t, `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[]}`)

	diff := Compute(before, after)
	require.True(t, diff.IsEmpty())
}

func TestComputeHandlesNilBefore(t *testing.T) {
	after := spec(t, `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[]}`)
	diff := Compute(nil, after)
	require.Len(t, diff.Nodes, 1)
	require.Equal(t, Added, diff.Nodes[0].Kind)
}
