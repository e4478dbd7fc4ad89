package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// Runner drives a single workflow over a batch of initiatives: validate and
// apply the scope filter, evaluate the condition tree per record, and apply
// the action tree to the records that match. Records are processed
// sequentially and failures are isolated: one record's action error is
// logged and the run moves on to the next record.
//
// Execute does not check Enabled; callers decide which workflows to run so
// a disabled workflow can still be dry-run against live data.
type Runner struct {
	Evaluator *Evaluator
	Applier   *Applier
	Logger    *slog.Logger

	// Clock and NewID stamp the produced execution log entry. Both default
	// to their obvious implementations when nil.
	Clock func() time.Time
	NewID func() string
}

// Execute runs the workflow against the given records and returns the
// execution log entry describing the run. The onChange callback is invoked
// for every field-level mutation, before the field is written.
//
// ActionsTaken carries one line per executed action leaf. When a record's
// action tree fails partway through, the lines for leaves that completed
// before the failure stay in ActionsTaken next to the record's error entry;
// the record itself is not counted as affected.
//
// A malformed scope filter is fatal to the whole run: no record is touched
// and the log carries the scope error as its only entry.
func (r *Runner) Execute(ctx context.Context, wf *schema.Workflow, records []*schema.Initiative, onChange schema.RecordChange) *schema.ExecutionLog {
	entry := &schema.ExecutionLog{
		ID:         r.newID(),
		WorkflowID: wf.ID,
		Timestamp:  r.now(),
	}

	if wf.Scope != nil {
		if err := wf.Scope.Validate(); err != nil {
			entry.Errors = append(entry.Errors, err.Error())
			r.log(slog.LevelWarn, "workflow run aborted by scope filter", wf, "error", err.Error())
			return entry
		}
	}

	scoped := FilterByScope(records, wf.Scope)

	for _, rec := range scoped {
		if err := ctx.Err(); err != nil {
			entry.Errors = append(entry.Errors, fmt.Sprintf("Error processing %s: %s", rec.Title, err.Error()))
			break
		}

		if !r.Evaluator.Evaluate(ctx, wf.Condition, rec) {
			continue
		}

		applied, err := r.Applier.Apply(ctx, &wf.Action, rec, onChange)
		for _, actionType := range applied {
			entry.ActionsTaken = append(entry.ActionsTaken,
				fmt.Sprintf("Applied %s to %q", string(actionType), rec.Title))
		}
		if err != nil {
			entry.Errors = append(entry.Errors, fmt.Sprintf("Error processing %s: %s", rec.Title, err.Error()))
			r.log(slog.LevelWarn, "action failed for initiative", wf,
				"initiative_id", rec.ID, "error", err.Error())
			continue
		}

		entry.InitiativesAffected = append(entry.InitiativesAffected, rec.ID)
	}

	r.log(slog.LevelInfo, "workflow run complete", wf,
		"scoped", len(scoped),
		"affected", len(entry.InitiativesAffected),
		"errors", len(entry.Errors),
	)
	return entry
}

func (r *Runner) log(level slog.Level, msg string, wf *schema.Workflow, args ...any) {
	if r.Logger == nil {
		return
	}
	attrs := append([]any{"workflow_id", wf.ID, "workflow_name", wf.Name}, args...)
	r.Logger.Log(context.Background(), level, msg, attrs...)
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return schema.NewID()
}
