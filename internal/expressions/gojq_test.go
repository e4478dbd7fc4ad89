package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/pkg/schema"
)

func TestGoJQEngine_Name(t *testing.T) {
	assert.Equal(t, "jq", NewGoJQEngine().Name())
}

func TestGoJQEngine_Evaluate(t *testing.T) {
	e := NewGoJQEngine()

	env := map[string]any{"initiative": map[string]any{
		"status":        "At Risk",
		"actual_effort": 12.0,
	}}

	tests := []struct {
		name       string
		expression string
		want       any
	}{
		{"string equality", `.initiative.status == "At Risk"`, true},
		{"numeric comparison", `.initiative.actual_effort > 10`, true},
		{"field access", `.initiative.status`, "At Risk"},
		{"missing field is null", `.initiative.nope`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tt.expression, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestGoJQEngine_MultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), `.initiative.tags[]`, map[string]any{
		"initiative": map[string]any{"tags": []any{"core", "emea"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"core", "emea"}, out)
}

func TestGoJQEngine_ParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), `.initiative |`, nil)
	require.Error(t, err)
	serr, ok := err.(*schema.StewardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, serr.Code)
}

func TestGoJQEngine_EnvironBlocked(t *testing.T) {
	e := NewGoJQEngine()
	t.Setenv("STEWARD_SECRET", "hunter2")

	out, err := e.Evaluate(context.Background(), `env.STEWARD_SECRET`, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQEngine_CachesCompiledCode(t *testing.T) {
	e := NewGoJQEngine()

	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), `.initiative`, nil)
		require.NoError(t, err)
	}
	assert.Len(t, e.cache, 1)
}
