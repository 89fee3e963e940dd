package quota

import (
	"testing"

	"github.com/evalgo-org/diagramhub/diagramspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSpecEnforcesCaps(t *testing.T) {
	g := NewGuard(Limits{
		MaxSpecSizeBytes:   1000,
		MaxNodesPerDiagram: 2,
		MaxEdgesPerDiagram: 10,
	})

	spec := &diagramspec.Spec{
		Nodes: []diagramspec.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}
	raw := []byte(`{"small":"payload"}`)

	err := g.CheckSpec(raw, spec)
	require.Error(t, err)
	var exc *Exceeded
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "nodes", exc.Resource)
}

func TestCheckOwnerCountAnonymousUnlimited(t *testing.T) {
	g := NewGuard(Limits{MaxDiagramsPerUser: 1})
	require.NoError(t, g.CheckOwnerCount("", 10000))
}

func TestCheckOwnerCountEnforced(t *testing.T) {
	g := NewGuard(Limits{MaxDiagramsPerUser: 5})
	require.NoError(t, g.CheckOwnerCount("alice", 4))
	err := g.CheckOwnerCount("alice", 5)
	require.Error(t, err)
}
