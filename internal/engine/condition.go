package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stewardhq/steward/internal/expressions"
	"github.com/stewardhq/steward/pkg/schema"
)

// Evaluator walks a condition tree against a single initiative. Evaluation
// is fail-closed: an unknown condition tag, a bad expression, or a
// non-boolean expression result all yield false rather than an error, so a
// broken condition can never cause a mutation.
type Evaluator struct {
	// Clock supplies "now" for the date and staleness conditions. Defaults
	// to time.Now when nil.
	Clock func() time.Time

	// Engines resolves the expression leaf languages. A nil set makes every
	// expression leaf evaluate to false.
	Engines *expressions.Set

	// Logger, when set, records evaluation failures at debug level.
	Logger *slog.Logger
}

// Evaluate returns whether the initiative satisfies the condition tree.
// A nil node is vacuously true (the workflow applies to every scoped record).
func (ev *Evaluator) Evaluate(ctx context.Context, node *schema.ConditionNode, rec *schema.Initiative) bool {
	if node == nil {
		return true
	}

	switch node.Type {
	case schema.CondAnd:
		for i := range node.Children {
			if !ev.Evaluate(ctx, &node.Children[i], rec) {
				return false
			}
		}
		return true

	case schema.CondOr:
		for i := range node.Children {
			if ev.Evaluate(ctx, &node.Children[i], rec) {
				return true
			}
		}
		return false

	case schema.CondDueDatePassed:
		return rec.Eta != "" && rec.Eta < ev.today()

	case schema.CondDueDateWithinDays:
		if rec.Eta == "" {
			return false
		}
		today := ev.today()
		return rec.Eta >= today && rec.Eta <= addDays(today, node.Days)

	case schema.CondLastUpdatedOlderThan:
		if rec.LastUpdated.IsZero() {
			return false
		}
		cutoff := ev.now().Add(-time.Duration(node.Days) * 24 * time.Hour)
		return rec.LastUpdated.Before(cutoff)

	case schema.CondStatusEquals:
		return string(rec.Status) == toString(node.Value)

	case schema.CondStatusNotEquals:
		return string(rec.Status) != toString(node.Value)

	case schema.CondActualEffortGreater:
		threshold, ok := toFloat64(node.Value)
		return ok && rec.ActualEffort > threshold

	case schema.CondActualEffortPctOfEst:
		if rec.EstimatedEffort == 0 {
			return false
		}
		return (rec.ActualEffort/rec.EstimatedEffort)*100 >= node.Percentage

	case schema.CondEffortVarianceExceeds:
		threshold, ok := toFloat64(node.Value)
		if !ok {
			return false
		}
		variance := rec.EstimatedEffort - rec.ActualEffort
		if variance < 0 {
			variance = -variance
		}
		return variance > threshold

	case schema.CondPriorityEquals:
		return rec.Priority == toString(node.Value)

	case schema.CondRiskActionLogEmpty:
		return strings.TrimSpace(rec.RiskActionLog) == ""

	case schema.CondOwnerEquals:
		return rec.Owner == toString(node.Value)

	case schema.CondAssetClassEquals:
		return rec.AssetClass == toString(node.Value)

	case schema.CondExpression:
		return ev.evaluateExpression(ctx, node, rec)

	default:
		ev.debug("unknown condition type", "type", string(node.Type), "initiative_id", rec.ID)
		return false
	}
}

// evaluateExpression runs an expression leaf through the configured engine
// set. Any failure along the way (no engines, unknown language, evaluation
// error, non-boolean result) evaluates to false.
func (ev *Evaluator) evaluateExpression(ctx context.Context, node *schema.ConditionNode, rec *schema.Initiative) bool {
	if ev.Engines == nil {
		ev.debug("expression condition without engine set", "initiative_id", rec.ID)
		return false
	}

	engine, err := ev.Engines.Engine(node.Language)
	if err != nil {
		ev.debug("expression language lookup failed", "language", node.Language, "error", err.Error())
		return false
	}

	out, err := engine.Evaluate(ctx, node.Expression, expressions.InitiativeEnv(rec))
	if err != nil {
		ev.debug("expression evaluation failed",
			"language", engine.Name(), "initiative_id", rec.ID, "error", err.Error())
		return false
	}

	result, ok := out.(bool)
	if !ok {
		ev.debug("expression result is not boolean",
			"language", engine.Name(), "initiative_id", rec.ID, "result", fmt.Sprintf("%T", out))
		return false
	}
	return result
}

func (ev *Evaluator) now() time.Time {
	if ev.Clock != nil {
		return ev.Clock()
	}
	return time.Now()
}

// today returns the current date as YYYY-MM-DD. ETA values use the same
// format, so plain string comparison orders dates correctly.
func (ev *Evaluator) today() string {
	return ev.now().Format("2006-01-02")
}

func (ev *Evaluator) debug(msg string, args ...any) {
	if ev.Logger != nil {
		ev.Logger.Debug(msg, args...)
	}
}

// addDays shifts a YYYY-MM-DD date forward. An unparseable date comes back
// unchanged, which makes the surrounding range check fail closed.
func addDays(date string, days int) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format("2006-01-02")
}

// toString coerces a condition value to a comparable string.
func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toFloat64 coerces JSON-decoded numeric values. JSON numbers arrive as
// float64, but hand-built trees may carry ints.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
