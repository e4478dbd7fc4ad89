package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from Status
		want Status
	}{
		{StatusNotStarted, StatusInProgress},
		{StatusInProgress, StatusAtRisk},
		{StatusAtRisk, StatusDone},
		{StatusDone, StatusDone},
		{StatusObsolete, StatusObsolete},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			next, ok := NextStatus(tt.from)
			require.True(t, ok)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestNextStatusUnknown(t *testing.T) {
	_, ok := NextStatus("Paused")
	assert.False(t, ok)
}

func TestInitiativeClone(t *testing.T) {
	orig := &Initiative{
		ID:       "init-1",
		Title:    "Rebalance EMEA book",
		Status:   StatusInProgress,
		Comments: []Comment{{ID: "c1", Text: "kickoff"}},
	}

	clone := orig.Clone()
	require.Equal(t, orig, clone)

	clone.Status = StatusDone
	clone.Comments[0].Text = "edited"
	clone.Comments = append(clone.Comments, Comment{ID: "c2"})

	assert.Equal(t, StatusInProgress, orig.Status)
	assert.Equal(t, "kickoff", orig.Comments[0].Text)
	assert.Len(t, orig.Comments, 1)
}

func TestInitiativeCloneNil(t *testing.T) {
	var rec *Initiative
	assert.Nil(t, rec.Clone())
}

func TestAppendLogRingBuffer(t *testing.T) {
	wf := &Workflow{}
	for i := 0; i < ExecutionLogCap+3; i++ {
		wf.AppendLog(ExecutionLog{ID: fmt.Sprintf("run-%d", i)})
	}

	require.Len(t, wf.ExecutionLog, ExecutionLogCap)
	assert.Equal(t, "run-3", wf.ExecutionLog[0].ID, "oldest entries evicted first")
	assert.Equal(t, fmt.Sprintf("run-%d", ExecutionLogCap+2), wf.ExecutionLog[ExecutionLogCap-1].ID)
}

func TestScopeFilterUnmarshalCapturesUnknownKeys(t *testing.T) {
	var scope ScopeFilter
	err := json.Unmarshal([]byte(`{
		"asset_classes": ["Equities"],
		"regions": ["EMEA"],
		"priorities": ["High"]
	}`), &scope)
	require.NoError(t, err)

	assert.Equal(t, []string{"Equities"}, scope.AssetClasses)

	verr := scope.Validate()
	require.Error(t, verr)
	serr, ok := verr.(*StewardError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeScopeFilter, serr.Code)
	assert.Contains(t, serr.Message, "priorities")
	assert.Contains(t, serr.Message, "regions")
}

func TestScopeFilterValidateKnownKeys(t *testing.T) {
	var scope ScopeFilter
	require.NoError(t, json.Unmarshal([]byte(`{
		"asset_classes": ["Equities"],
		"work_types": ["Rebalancing"],
		"owners": ["maria"]
	}`), &scope))
	assert.NoError(t, scope.Validate())

	var nilScope *ScopeFilter
	assert.NoError(t, nilScope.Validate())
}

func TestStewardErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeNotFound, "workflow missing")
	assert.Equal(t, "[NOT_FOUND] workflow missing", err.Error())

	err = err.WithWorkflow("wf-1")
	assert.Equal(t, "[NOT_FOUND] workflow wf-1: workflow missing", err.Error())
}

func TestStewardErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewErrorf(ErrCodeStore, "save failed").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestWorkflowJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	wf := &Workflow{
		ID:      "wf-1",
		Name:    "escalate overdue",
		Trigger: TriggerOnSchedule,
		Scope:   &ScopeFilter{AssetClasses: []string{"Equities"}},
		Condition: &ConditionNode{
			Type: CondAnd,
			Children: []ConditionNode{
				{Type: CondDueDatePassed},
				{Type: CondStatusNotEquals, Value: "Done"},
			},
		},
		Action:    ActionNode{Type: ActionSetStatus, Value: "At Risk"},
		Enabled:   true,
		CreatedAt: now,
	}

	data, err := json.Marshal(wf)
	require.NoError(t, err)

	var got Workflow
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, wf.Name, got.Name)
	assert.Equal(t, CondAnd, got.Condition.Type)
	require.Len(t, got.Condition.Children, 2)
	assert.Equal(t, "Done", got.Condition.Children[1].Value)
	assert.Equal(t, []string{"Equities"}, got.Scope.AssetClasses)
}
