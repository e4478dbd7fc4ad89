package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/pkg/schema"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	seq := 0
	return &Runner{
		Evaluator: newTestEvaluator(t),
		Applier:   newTestApplier(),
		Clock:     func() time.Time { return testNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("run-%d", seq)
		},
	}
}

func TestRunner_OverdueEscalation(t *testing.T) {
	r := newTestRunner(t)

	wf := &schema.Workflow{
		ID:   "wf-1",
		Name: "Overdue escalation",
		Condition: &schema.ConditionNode{
			Type: schema.CondAnd,
			Children: []schema.ConditionNode{
				{Type: schema.CondDueDatePassed},
				{Type: schema.CondStatusNotEquals, Value: "Done"},
			},
		},
		Action: schema.ActionNode{Type: schema.ActionSetStatus, Value: "At Risk"},
	}

	records := []*schema.Initiative{
		{ID: "a", Title: "Overdue one", Status: schema.StatusInProgress, Eta: "2026-03-01"},
		{ID: "b", Title: "On time", Status: schema.StatusInProgress, Eta: "2026-04-01"},
		{ID: "c", Title: "Overdue but done", Status: schema.StatusDone, Eta: "2026-03-01"},
	}

	entry := r.Execute(context.Background(), wf, records, nil)

	assert.Equal(t, "wf-1", entry.WorkflowID)
	assert.Equal(t, testNow, entry.Timestamp)
	assert.Equal(t, []string{"a"}, entry.InitiativesAffected)
	assert.Equal(t, []string{`Applied set_status to "Overdue one"`}, entry.ActionsTaken)
	assert.Empty(t, entry.Errors)

	assert.Equal(t, schema.StatusAtRisk, records[0].Status)
	assert.Equal(t, schema.StatusInProgress, records[1].Status)
	assert.Equal(t, schema.StatusDone, records[2].Status)
}

func TestRunner_PerRecordErrorIsolation(t *testing.T) {
	r := newTestRunner(t)

	wf := &schema.Workflow{
		ID:     "wf-2",
		Name:   "Advance everything",
		Action: schema.ActionNode{Type: schema.ActionTransitionStatus},
	}

	records := []*schema.Initiative{
		{ID: "a", Title: "First", Status: schema.StatusNotStarted},
		{ID: "b", Title: "Broken", Status: "Bogus"},
		{ID: "c", Title: "Third", Status: schema.StatusInProgress},
	}

	entry := r.Execute(context.Background(), wf, records, nil)

	assert.Equal(t, []string{"a", "c"}, entry.InitiativesAffected)
	require.Len(t, entry.Errors, 1)
	assert.Contains(t, entry.Errors[0], "Error processing Broken:")

	// The failure in the middle never blocks the records after it.
	assert.Equal(t, schema.StatusInProgress, records[0].Status)
	assert.Equal(t, schema.StatusAtRisk, records[2].Status)
}

func TestRunner_PartialActionFailureKeepsCompletedLines(t *testing.T) {
	r := newTestRunner(t)

	wf := &schema.Workflow{
		ID:   "wf-partial",
		Name: "Escalate then advance",
		Action: schema.ActionNode{
			Type: schema.ActionExecuteMultiple,
			Actions: []schema.ActionNode{
				{Type: schema.ActionSetPriority, Value: "High"},
				{Type: schema.ActionTransitionStatus},
			},
		},
	}
	records := []*schema.Initiative{
		{ID: "a", Title: "Half done", Status: "Bogus", Priority: "Low"},
	}

	entry := r.Execute(context.Background(), wf, records, nil)

	// The leaf that completed before the failure stays in the log; the
	// record lands in errors, not in affected.
	assert.Equal(t, []string{`Applied set_priority to "Half done"`}, entry.ActionsTaken)
	require.Len(t, entry.Errors, 1)
	assert.Contains(t, entry.Errors[0], "Error processing Half done:")
	assert.Empty(t, entry.InitiativesAffected)
	assert.Equal(t, "High", records[0].Priority, "completed sibling keeps its effect")
}

func TestRunner_MalformedScopeAbortsRun(t *testing.T) {
	r := newTestRunner(t)

	var scope schema.ScopeFilter
	require.NoError(t, json.Unmarshal([]byte(`{"regions": ["EMEA"]}`), &scope))

	wf := &schema.Workflow{
		ID:     "wf-3",
		Name:   "Bad scope",
		Scope:  &scope,
		Action: schema.ActionNode{Type: schema.ActionSetStatus, Value: "Done"},
	}

	records := []*schema.Initiative{
		{ID: "a", Title: "Untouched", Status: schema.StatusInProgress},
	}

	entry := r.Execute(context.Background(), wf, records, nil)

	require.Len(t, entry.Errors, 1)
	assert.Contains(t, entry.Errors[0], "regions")
	assert.Empty(t, entry.InitiativesAffected)
	assert.Empty(t, entry.ActionsTaken)
	assert.Equal(t, schema.StatusInProgress, records[0].Status, "no record is touched on a fatal scope error")
}

func TestRunner_ScopeNarrowsBeforeCondition(t *testing.T) {
	r := newTestRunner(t)

	wf := &schema.Workflow{
		ID:        "wf-4",
		Name:      "Equities only",
		Scope:     &schema.ScopeFilter{AssetClasses: []string{"Equities"}},
		Condition: &schema.ConditionNode{Type: schema.CondStatusEquals, Value: "In Progress"},
		Action:    schema.ActionNode{Type: schema.ActionSetPriority, Value: "High"},
	}

	records := []*schema.Initiative{
		{ID: "a", Title: "In scope", AssetClass: "Equities", Status: schema.StatusInProgress, Priority: "Low"},
		{ID: "b", Title: "Out of scope", AssetClass: "Bonds", Status: schema.StatusInProgress, Priority: "Low"},
	}

	entry := r.Execute(context.Background(), wf, records, nil)

	assert.Equal(t, []string{"a"}, entry.InitiativesAffected)
	assert.Equal(t, "High", records[0].Priority)
	assert.Equal(t, "Low", records[1].Priority)
}

func TestRunner_ChangeCallbackFiresBeforeMutation(t *testing.T) {
	r := newTestRunner(t)

	wf := &schema.Workflow{
		ID:     "wf-5",
		Name:   "Escalate",
		Action: schema.ActionNode{Type: schema.ActionSetStatus, Value: "At Risk"},
	}
	records := []*schema.Initiative{
		{ID: "a", Title: "Watch me", Status: schema.StatusInProgress},
	}

	var seenOld, seenCurrent any
	onChange := func(rec *schema.Initiative, field string, oldValue, newValue any) {
		seenOld = oldValue
		seenCurrent = string(rec.Status)
	}

	r.Execute(context.Background(), wf, records, onChange)

	assert.Equal(t, "In Progress", seenOld)
	assert.Equal(t, "In Progress", seenCurrent, "callback observes the record before the write")
	assert.Equal(t, schema.StatusAtRisk, records[0].Status)
}

func TestRunner_IdempotentSecondRun(t *testing.T) {
	r := newTestRunner(t)

	wf := &schema.Workflow{
		ID:        "wf-6",
		Name:      "Escalate overdue",
		Condition: &schema.ConditionNode{Type: schema.CondDueDatePassed},
		Action:    schema.ActionNode{Type: schema.ActionSetStatus, Value: "At Risk"},
	}
	records := []*schema.Initiative{
		{ID: "a", Title: "Overdue", Status: schema.StatusInProgress, Eta: "2026-03-01"},
	}

	var changes int
	onChange := func(*schema.Initiative, string, any, any) { changes++ }

	r.Execute(context.Background(), wf, records, onChange)
	require.Equal(t, 1, changes)

	r.Execute(context.Background(), wf, records, onChange)
	assert.Equal(t, 1, changes, "second run finds the value in place and fires no change")
}
