package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/pkg/schema"
)

type changeRecord struct {
	field    string
	oldValue any
	newValue any
}

func changeCollector(changes *[]changeRecord) schema.RecordChange {
	return func(rec *schema.Initiative, field string, oldValue, newValue any) {
		*changes = append(*changes, changeRecord{field, oldValue, newValue})
	}
}

func newTestApplier() *Applier {
	seq := 0
	return &Applier{
		Clock: func() time.Time { return testNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("comment-%d", seq)
		},
	}
}

func TestApplier_SetStatusIdempotent(t *testing.T) {
	ap := newTestApplier()
	rec := &schema.Initiative{ID: "init-1", Status: schema.StatusInProgress}
	node := &schema.ActionNode{Type: schema.ActionSetStatus, Value: "At Risk"}

	var changes []changeRecord
	applied, err := ap.Apply(context.Background(), node, rec, changeCollector(&changes))
	require.NoError(t, err)
	assert.Equal(t, []schema.ActionType{schema.ActionSetStatus}, applied)
	assert.Equal(t, schema.StatusAtRisk, rec.Status)
	require.Len(t, changes, 1)
	assert.Equal(t, changeRecord{"status", "In Progress", "At Risk"}, changes[0])

	// Second application finds the value in place: no change callback.
	changes = nil
	_, err = ap.Apply(context.Background(), node, rec, changeCollector(&changes))
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, schema.StatusAtRisk, rec.Status)
}

func TestApplier_TransitionStatus(t *testing.T) {
	ap := newTestApplier()
	node := &schema.ActionNode{Type: schema.ActionTransitionStatus}

	tests := []struct {
		from schema.Status
		want schema.Status
	}{
		{schema.StatusNotStarted, schema.StatusInProgress},
		{schema.StatusInProgress, schema.StatusAtRisk},
		{schema.StatusAtRisk, schema.StatusDone},
		{schema.StatusDone, schema.StatusDone},
		{schema.StatusObsolete, schema.StatusObsolete},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			rec := &schema.Initiative{Status: tt.from}
			_, err := ap.Apply(context.Background(), node, rec, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Status)
		})
	}
}

func TestApplier_TransitionUnknownStatusFails(t *testing.T) {
	ap := newTestApplier()
	rec := &schema.Initiative{ID: "init-2", Status: "Bogus"}
	node := &schema.ActionNode{Type: schema.ActionTransitionStatus}

	var changes []changeRecord
	_, err := ap.Apply(context.Background(), node, rec, changeCollector(&changes))
	require.Error(t, err)

	var serr *schema.StewardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeActionExecution, serr.Code)
	assert.Empty(t, changes)
	assert.Equal(t, schema.Status("Bogus"), rec.Status)
}

func TestApplier_TerminalTransitionFiresNoChange(t *testing.T) {
	ap := newTestApplier()
	rec := &schema.Initiative{Status: schema.StatusDone}

	var changes []changeRecord
	_, err := ap.Apply(context.Background(),
		&schema.ActionNode{Type: schema.ActionTransitionStatus}, rec, changeCollector(&changes))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestApplier_ScalarLeaves(t *testing.T) {
	ap := newTestApplier()
	rec := &schema.Initiative{Priority: "Low", Eta: "2026-01-01", EstimatedEffort: 10}

	var changes []changeRecord
	collect := changeCollector(&changes)

	_, err := ap.Apply(context.Background(),
		&schema.ActionNode{Type: schema.ActionSetPriority, Value: "High"}, rec, collect)
	require.NoError(t, err)

	_, err = ap.Apply(context.Background(),
		&schema.ActionNode{Type: schema.ActionUpdateEta, Value: "2026-06-30"}, rec, collect)
	require.NoError(t, err)

	_, err = ap.Apply(context.Background(),
		&schema.ActionNode{Type: schema.ActionUpdateEffort, Value: 24.0}, rec, collect)
	require.NoError(t, err)

	assert.Equal(t, "High", rec.Priority)
	assert.Equal(t, "2026-06-30", rec.Eta)
	assert.Equal(t, 24.0, rec.EstimatedEffort)
	require.Len(t, changes, 3)
	assert.Equal(t, changeRecord{"priority", "Low", "High"}, changes[0])
	assert.Equal(t, changeRecord{"eta", "2026-01-01", "2026-06-30"}, changes[1])
	assert.Equal(t, changeRecord{"estimated_effort", 10.0, 24.0}, changes[2])
}

func TestApplier_UpdateEffortRejectsNonNumeric(t *testing.T) {
	ap := newTestApplier()
	rec := &schema.Initiative{EstimatedEffort: 10}

	_, err := ap.Apply(context.Background(),
		&schema.ActionNode{Type: schema.ActionUpdateEffort, Value: "a lot"}, rec, nil)
	require.Error(t, err)
	assert.Equal(t, 10.0, rec.EstimatedEffort)
}

func TestApplier_SetAtRiskAndAlias(t *testing.T) {
	ap := newTestApplier()

	for _, actionType := range []schema.ActionType{schema.ActionSetAtRisk, schema.ActionRequireRiskLog} {
		t.Run(string(actionType), func(t *testing.T) {
			rec := &schema.Initiative{Status: schema.StatusInProgress}
			_, err := ap.Apply(context.Background(), &schema.ActionNode{Type: actionType}, rec, nil)
			require.NoError(t, err)
			assert.Equal(t, schema.StatusAtRisk, rec.Status)
		})
	}
}

func TestApplier_SetAtRiskSkipsDocumentedRiskLog(t *testing.T) {
	ap := newTestApplier()

	tests := []struct {
		name    string
		riskLog string
		want    schema.Status
	}{
		{"documented log keeps status", "mitigation documented 2026-08-01", schema.StatusInProgress},
		{"whitespace log still escalates", "   \t\n", schema.StatusAtRisk},
		{"blank log escalates", "", schema.StatusAtRisk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &schema.Initiative{Status: schema.StatusInProgress, RiskActionLog: tt.riskLog}

			var changes []changeRecord
			_, err := ap.Apply(context.Background(),
				&schema.ActionNode{Type: schema.ActionSetAtRisk}, rec, changeCollector(&changes))
			require.NoError(t, err)

			assert.Equal(t, tt.want, rec.Status)
			if tt.want == schema.StatusInProgress {
				assert.Empty(t, changes, "no change callback when the log is populated")
			} else {
				require.Len(t, changes, 1)
				assert.Equal(t, changeRecord{"status", "In Progress", "At Risk"}, changes[0])
			}
		})
	}
}

func TestApplier_CreateComment(t *testing.T) {
	ap := newTestApplier()
	rec := &schema.Initiative{ID: "init-3"}
	node := &schema.ActionNode{Type: schema.ActionCreateComment, Message: "ETA has slipped"}

	var changes []changeRecord
	_, err := ap.Apply(context.Background(), node, rec, changeCollector(&changes))
	require.NoError(t, err)

	require.Len(t, rec.Comments, 1)
	comment := rec.Comments[0]
	assert.Equal(t, "comment-1", comment.ID)
	assert.Equal(t, "[Automated] ETA has slipped", comment.Text)
	assert.Equal(t, "system", comment.AuthorID)
	assert.Equal(t, testNow, comment.Timestamp)
	assert.Empty(t, changes, "comment appends are not field changes")

	// Comments are not deduplicated: a second run appends again.
	_, err = ap.Apply(context.Background(), node, rec, nil)
	require.NoError(t, err)
	assert.Len(t, rec.Comments, 2)
}

func TestApplier_NotificationsDoNotMutate(t *testing.T) {
	ap := newTestApplier()
	rec := &schema.Initiative{ID: "init-4", Owner: "dana", Status: schema.StatusInProgress}
	before := rec.Clone()

	var changes []changeRecord
	for _, node := range []schema.ActionNode{
		{Type: schema.ActionNotifyOwner, Message: "please review"},
		{Type: schema.ActionNotifySlack, Channel: "#portfolio", Message: "heads up"},
	} {
		applied, err := ap.Apply(context.Background(), &node, rec, changeCollector(&changes))
		require.NoError(t, err)
		assert.Len(t, applied, 1)
	}

	assert.Equal(t, before, rec)
	assert.Empty(t, changes)
}

func TestApplier_ExecuteMultipleOrderAndAbort(t *testing.T) {
	ap := newTestApplier()

	t.Run("ordered side effects", func(t *testing.T) {
		rec := &schema.Initiative{ID: "init-5", Priority: "Low"}
		node := &schema.ActionNode{
			Type: schema.ActionExecuteMultiple,
			Actions: []schema.ActionNode{
				{Type: schema.ActionSetPriority, Value: "High"},
				{Type: schema.ActionCreateComment, Message: "escalated"},
			},
		}

		var changes []changeRecord
		applied, err := ap.Apply(context.Background(), node, rec, changeCollector(&changes))
		require.NoError(t, err)
		assert.Equal(t, []schema.ActionType{schema.ActionSetPriority, schema.ActionCreateComment}, applied)
		require.Len(t, changes, 1)
		assert.Equal(t, "priority", changes[0].field)
		assert.Len(t, rec.Comments, 1)
	})

	t.Run("abort on first failure", func(t *testing.T) {
		rec := &schema.Initiative{ID: "init-6", Status: "Bogus", Priority: "Low"}
		node := &schema.ActionNode{
			Type: schema.ActionExecuteMultiple,
			Actions: []schema.ActionNode{
				{Type: schema.ActionSetPriority, Value: "High"},
				{Type: schema.ActionTransitionStatus},
				{Type: schema.ActionCreateComment, Message: "never reached"},
			},
		}

		applied, err := ap.Apply(context.Background(), node, rec, nil)
		require.Error(t, err)
		assert.Equal(t, []schema.ActionType{schema.ActionSetPriority}, applied)
		assert.Equal(t, "High", rec.Priority, "completed siblings keep their effect")
		assert.Empty(t, rec.Comments, "siblings after the failure never run")
	})
}

func TestApplier_UnknownActionTypeFails(t *testing.T) {
	ap := newTestApplier()
	rec := &schema.Initiative{ID: "init-7"}

	_, err := ap.Apply(context.Background(), &schema.ActionNode{Type: "archive"}, rec, nil)
	require.Error(t, err)

	var serr *schema.StewardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeActionExecution, serr.Code)
}
