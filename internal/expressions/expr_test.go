package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/pkg/schema"
)

func TestExprEngine_Name(t *testing.T) {
	assert.Equal(t, "expr", NewExprEngine().Name())
}

func TestExprEngine_Evaluate(t *testing.T) {
	e := NewExprEngine()

	env := map[string]any{"initiative": map[string]any{
		"title":         "Rebalance EMEA book",
		"actual_effort": 12.0,
	}}

	tests := []struct {
		name       string
		expression string
		want       any
	}{
		{"numeric comparison", `initiative.actual_effort > 10`, true},
		{"string helper", `initiative.title startsWith "Rebalance"`, true},
		{"nil coalescing on undefined", `unknown ?? "fallback"`, "fallback"},
		{"arithmetic", `initiative.actual_effort * 2`, 24.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tt.expression, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExprEngine_CompileError(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), `1 +* 2`, nil)
	require.Error(t, err)
	serr, ok := err.(*schema.StewardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, serr.Code)
}

func TestExprEngine_EmptyExpression(t *testing.T) {
	_, err := NewExprEngine().Evaluate(context.Background(), "", nil)
	require.Error(t, err)
}

func TestExprEngine_CachesCompiledPrograms(t *testing.T) {
	e := NewExprEngine()
	env := map[string]any{"initiative": map[string]any{"actual_effort": 1.0}}

	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), `initiative.actual_effort > 0`, env)
		require.NoError(t, err)
	}
	assert.Len(t, e.cache, 1)
}
