package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// Applier executes an action tree against a single initiative. Mutating
// leaves are idempotent: a leaf whose target field already holds the desired
// value is a no-op and fires no change callback. When a field does change,
// the change callback fires before the mutation so the observer sees both
// the old and the new value.
type Applier struct {
	// Clock timestamps generated comments. Defaults to time.Now when nil.
	Clock func() time.Time

	// NewID mints comment IDs. Defaults to uuid.NewString when nil.
	NewID func() string

	// Logger receives notification actions. Notifications never mutate the
	// record; they only emit a structured log line.
	Logger *slog.Logger
}

// Apply walks the action tree in order and returns the leaf action types
// that executed. ExecuteMultiple runs its children sequentially and aborts
// on the first failing child; the returned slice still carries the leaves
// that completed before the failure.
func (ap *Applier) Apply(ctx context.Context, node *schema.ActionNode, rec *schema.Initiative, onChange schema.RecordChange) ([]schema.ActionType, error) {
	if node == nil {
		return nil, nil
	}

	if node.Type == schema.ActionExecuteMultiple {
		var applied []schema.ActionType
		for i := range node.Actions {
			childApplied, err := ap.Apply(ctx, &node.Actions[i], rec, onChange)
			applied = append(applied, childApplied...)
			if err != nil {
				return applied, err
			}
		}
		return applied, nil
	}

	if err := ap.applyLeaf(ctx, node, rec, onChange); err != nil {
		return nil, err
	}
	return []schema.ActionType{node.Type}, nil
}

func (ap *Applier) applyLeaf(ctx context.Context, node *schema.ActionNode, rec *schema.Initiative, onChange schema.RecordChange) error {
	switch node.Type {
	case schema.ActionSetStatus:
		return ap.setStatus(rec, schema.Status(toString(node.Value)), onChange)

	case schema.ActionTransitionStatus:
		next, ok := schema.NextStatus(rec.Status)
		if !ok {
			return schema.NewErrorf(schema.ErrCodeActionExecution,
				"cannot transition from unknown status %q", string(rec.Status)).
				WithDetails(map[string]any{"initiative_id": rec.ID, "status": string(rec.Status)})
		}
		return ap.setStatus(rec, next, onChange)

	case schema.ActionSetPriority:
		setField(rec, onChange, "priority", &rec.Priority, toString(node.Value))
		return nil

	case schema.ActionSetAtRisk, schema.ActionRequireRiskLog:
		// Escalates only when no risk action has been documented. A record
		// with a populated log keeps its current status.
		if strings.TrimSpace(rec.RiskActionLog) != "" {
			return nil
		}
		return ap.setStatus(rec, schema.StatusAtRisk, onChange)

	case schema.ActionNotifyOwner:
		ap.notify("notify owner", "owner", rec.Owner, rec, node.Message)
		return nil

	case schema.ActionNotifySlack:
		ap.notify("notify slack channel", "channel", node.Channel, rec, node.Message)
		return nil

	case schema.ActionCreateComment:
		// Comments append on every matching run; repeat escalations stay
		// visible in the trail rather than being deduplicated.
		rec.Comments = append(rec.Comments, schema.Comment{
			ID:        ap.newID(),
			Text:      "[Automated] " + node.Message,
			AuthorID:  "system",
			Timestamp: ap.now(),
		})
		return nil

	case schema.ActionUpdateEta:
		setField(rec, onChange, "eta", &rec.Eta, toString(node.Value))
		return nil

	case schema.ActionUpdateEffort:
		value, ok := toFloat64(node.Value)
		if !ok {
			return schema.NewErrorf(schema.ErrCodeActionExecution,
				"update_effort requires a numeric value, got %T", node.Value).
				WithDetails(map[string]any{"initiative_id": rec.ID})
		}
		setField(rec, onChange, "estimated_effort", &rec.EstimatedEffort, value)
		return nil

	default:
		return schema.NewErrorf(schema.ErrCodeActionExecution,
			"unknown action type %q", string(node.Type)).
			WithDetails(map[string]any{"initiative_id": rec.ID})
	}
}

func (ap *Applier) setStatus(rec *schema.Initiative, next schema.Status, onChange schema.RecordChange) error {
	if rec.Status == next {
		return nil
	}
	if onChange != nil {
		onChange(rec, "status", string(rec.Status), string(next))
	}
	rec.Status = next
	return nil
}

func (ap *Applier) notify(msg, targetKey, target string, rec *schema.Initiative, body string) {
	if ap.Logger == nil {
		return
	}
	ap.Logger.Info(msg,
		targetKey, target,
		"initiative_id", rec.ID,
		"initiative_title", rec.Title,
		"message", body,
	)
}

func (ap *Applier) now() time.Time {
	if ap.Clock != nil {
		return ap.Clock()
	}
	return time.Now()
}

func (ap *Applier) newID() string {
	if ap.NewID != nil {
		return ap.NewID()
	}
	return schema.NewID()
}

// setField applies the idempotent write protocol shared by all scalar
// mutations: skip when the value is already in place, otherwise report the
// change and then write it.
func setField[T comparable](rec *schema.Initiative, onChange schema.RecordChange, field string, target *T, value T) {
	if *target == value {
		return
	}
	if onChange != nil {
		onChange(rec, field, *target, value)
	}
	*target = value
}
