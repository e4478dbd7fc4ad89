package expressions

import (
	"context"

	"github.com/stewardhq/steward/pkg/schema"
)

// Engine evaluates a user-authored expression against an initiative
// environment. Three implementations: CEL (default), Expr, and GoJQ.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Set bundles the three engines and selects by language tag.
type Set struct {
	cel  *CELEngine
	expr *ExprEngine
	jq   *GoJQEngine
}

// NewSet creates a Set with all three engines initialized.
func NewSet() (*Set, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Set{
		cel:  celEngine,
		expr: NewExprEngine(),
		jq:   NewGoJQEngine(),
	}, nil
}

// Engine returns the engine for the given language tag. An empty language
// selects CEL.
func (s *Set) Engine(language string) (Engine, error) {
	switch language {
	case "", "cel":
		return s.cel, nil
	case "expr":
		return s.expr, nil
	case "jq":
		return s.jq, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression language %q", language)
	}
}

// InitiativeEnv builds the evaluation environment for expression condition
// leaves. All engines see the same shape: a single top-level "initiative"
// object with flat scalar fields. Numbers are float64 so jq and expr agree.
func InitiativeEnv(rec *schema.Initiative) map[string]any {
	fields := map[string]any{
		"id":               rec.ID,
		"title":            rec.Title,
		"status":           string(rec.Status),
		"priority":         rec.Priority,
		"owner":            rec.Owner,
		"asset_class":      rec.AssetClass,
		"work_type":        rec.WorkType,
		"eta":              rec.Eta,
		"estimated_effort": rec.EstimatedEffort,
		"actual_effort":    rec.ActualEffort,
		"risk_action_log":  rec.RiskActionLog,
		"comment_count":    float64(len(rec.Comments)),
		"last_updated":     rec.LastUpdated.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	return map[string]any{"initiative": fields}
}
