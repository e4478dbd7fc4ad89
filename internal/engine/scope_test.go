package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/pkg/schema"
)

func TestFilterByScope_NilScopeIsIdentity(t *testing.T) {
	records := []*schema.Initiative{
		{ID: "a"}, {ID: "b"},
	}

	out := FilterByScope(records, nil)
	assert.True(t, &records[0] == &out[0], "nil scope must return the input slice itself")
	assert.Len(t, out, 2)
}

func TestFilterByScope_Membership(t *testing.T) {
	records := []*schema.Initiative{
		{ID: "a", AssetClass: "Equities", WorkType: "Research", Owner: "dana"},
		{ID: "b", AssetClass: "Bonds", WorkType: "Research", Owner: "dana"},
		{ID: "c", AssetClass: "Equities", WorkType: "Ops", Owner: "lee"},
		{ID: "d", AssetClass: "Equities", WorkType: "Research", Owner: "lee"},
	}

	tests := []struct {
		name  string
		scope schema.ScopeFilter
		want  []string
	}{
		{
			name:  "single asset class",
			scope: schema.ScopeFilter{AssetClasses: []string{"Equities"}},
			want:  []string{"a", "c", "d"},
		},
		{
			name:  "multiple values are a set",
			scope: schema.ScopeFilter{AssetClasses: []string{"Bonds", "Equities"}},
			want:  []string{"a", "b", "c", "d"},
		},
		{
			name: "filters are anded",
			scope: schema.ScopeFilter{
				AssetClasses: []string{"Equities"},
				WorkTypes:    []string{"Research"},
				Owners:       []string{"dana"},
			},
			want: []string{"a"},
		},
		{
			name:  "empty sub-filter matches everything",
			scope: schema.ScopeFilter{Owners: []string{"lee"}},
			want:  []string{"c", "d"},
		},
		{
			name:  "no match yields empty set",
			scope: schema.ScopeFilter{Owners: []string{"nobody"}},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FilterByScope(records, &tt.scope)
			ids := make([]string, 0, len(out))
			for _, rec := range out {
				ids = append(ids, rec.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestScopeFilter_UnknownKeysAreMalformed(t *testing.T) {
	var scope schema.ScopeFilter
	raw := `{"asset_classes": ["Equities"], "priorities": ["High"], "regions": ["EMEA"]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &scope))

	err := scope.Validate()
	require.Error(t, err)

	var serr *schema.StewardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeScopeFilter, serr.Code)
	assert.Contains(t, serr.Message, "priorities")
	assert.Contains(t, serr.Message, "regions")
}

func TestScopeFilter_KnownKeysValidate(t *testing.T) {
	var scope schema.ScopeFilter
	raw := `{"asset_classes": ["Equities"], "work_types": [], "owners": ["dana"]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &scope))
	assert.NoError(t, scope.Validate())
}
