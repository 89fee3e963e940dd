package diagramspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrict(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "minimal valid flowchart",
			raw:  `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[]}`,
		},
		{
			name: "edge references unknown node",
			raw:  `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[{"from":"a","to":"missing"}]}`,
			wantErr: true,
		},
		{
			name:    "unknown diagram type",
			raw:     `{"type":"bogus","nodes":[],"edges":[]}`,
			wantErr: true,
		},
		{
			name:    "invalid color",
			raw:     `{"type":"flowchart","nodes":[{"id":"a","label":"A","color":"not-a-color"}],"edges":[]}`,
			wantErr: true,
		},
		{
			name: "named css color accepted",
			raw:  `{"type":"flowchart","nodes":[{"id":"a","label":"A","color":"CornflowerBlue"}],"edges":[]}`,
		},
		{
			name: "group referencing valid node",
			raw:  `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[],"groups":[{"id":"g1","label":"G","nodeIds":["a"]}]}`,
		},
		{
			name:    "group referencing unknown node",
			raw:     `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[],"groups":[{"id":"g1","label":"G","nodeIds":["missing"]}]}`,
			wantErr: true,
		},
		{
			name: "sequence message endpoints validated only for sequence type",
			raw:  `{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[],"messages":[{"from":"missing","to":"a","label":"x","type":"sync","order":0}]}`,
		},
		{
			name:    "sequence message with unknown endpoint rejected",
			raw:     `{"type":"sequence","nodes":[{"id":"a","label":"A"}],"edges":[],"messages":[{"from":"missing","to":"a","label":"x","type":"sync","order":0}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseStrict([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.NotEmpty(t, ve.Issues)
				return
			}
			require.NoError(t, err)
			assert.True(t, spec.Valid)
		})
	}
}

func TestParseLenientNeverFails(t *testing.T) {
	raw := `{"type":"bogus","nodes":[],"edges":[]}`
	spec, err := ParseLenient([]byte(raw))
	require.NoError(t, err)
	assert.False(t, spec.Valid)
	assert.NotEmpty(t, spec.Issues)
}

func TestParseLenientInvalidJSONStillErrors(t *testing.T) {
	_, err := ParseLenient([]byte(`not json`))
	require.Error(t, err)
}

func TestSerializeRoundTrip(t *testing.T) {
	spec, err := ParseStrict([]byte(`{"type":"flowchart","nodes":[{"id":"a","label":"A"}],"edges":[]}`))
	require.NoError(t, err)

	raw, err := Serialize(spec)
	require.NoError(t, err)

	roundTripped, err := ParseStrict(raw)
	require.NoError(t, err)
	assert.Equal(t, spec.SpecType, roundTripped.SpecType)
	assert.Equal(t, len(spec.Nodes), len(roundTripped.Nodes))
}

func TestDuplicateNodeIDRejected(t *testing.T) {
	raw := `{"type":"flowchart","nodes":[{"id":"a","label":"A"},{"id":"a","label":"B"}],"edges":[]}`
	_, err := ParseStrict([]byte(raw))
	require.Error(t, err)
}
