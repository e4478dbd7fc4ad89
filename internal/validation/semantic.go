package validation

import (
	"encoding/json"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/stewardhq/steward/pkg/schema"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var knownConditions = map[schema.ConditionType]struct{}{
	schema.CondDueDatePassed:         {},
	schema.CondDueDateWithinDays:     {},
	schema.CondLastUpdatedOlderThan:  {},
	schema.CondStatusEquals:          {},
	schema.CondStatusNotEquals:       {},
	schema.CondActualEffortGreater:   {},
	schema.CondActualEffortPctOfEst:  {},
	schema.CondEffortVarianceExceeds: {},
	schema.CondPriorityEquals:        {},
	schema.CondRiskActionLogEmpty:    {},
	schema.CondOwnerEquals:           {},
	schema.CondAssetClassEquals:      {},
	schema.CondExpression:            {},
	schema.CondAnd:                   {},
	schema.CondOr:                    {},
}

var knownActions = map[schema.ActionType]struct{}{
	schema.ActionSetStatus:        {},
	schema.ActionTransitionStatus: {},
	schema.ActionSetPriority:      {},
	schema.ActionSetAtRisk:        {},
	schema.ActionRequireRiskLog:   {},
	schema.ActionNotifyOwner:      {},
	schema.ActionNotifySlack:      {},
	schema.ActionCreateComment:    {},
	schema.ActionUpdateEta:        {},
	schema.ActionUpdateEffort:     {},
	schema.ActionExecuteMultiple:  {},
}

// validateSemantics covers the rules JSON Schema cannot express: tag sets,
// per-tag required fields, cron schedules, and the system flag guard.
func validateSemantics(wf *schema.Workflow) error {
	if wf.System || wf.ReadOnly {
		return schema.NewError(schema.ErrCodeValidation,
			"user-defined workflows cannot set the system or read_only flags")
	}

	if wf.Trigger == schema.TriggerOnSchedule && len(wf.TriggerConfig) > 0 {
		var cfg struct {
			Schedule string `json:"schedule"`
		}
		if err := json.Unmarshal(wf.TriggerConfig, &cfg); err != nil {
			return schema.NewError(schema.ErrCodeValidation, "trigger_config is not valid JSON").WithCause(err)
		}
		if cfg.Schedule != "" {
			if _, err := cronParser.Parse(cfg.Schedule); err != nil {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"invalid cron schedule %q", cfg.Schedule).WithCause(err)
			}
		}
	}

	if wf.Condition != nil {
		if err := validateCondition(wf.Condition, "condition"); err != nil {
			return err
		}
	}
	return validateAction(&wf.Action, "action")
}

func validateCondition(node *schema.ConditionNode, path string) error {
	if _, ok := knownConditions[node.Type]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"%s: unknown condition type %q", path, string(node.Type))
	}

	switch node.Type {
	case schema.CondExpression:
		if node.Expression == "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: expression condition requires an expression", path)
		}
	case schema.CondStatusEquals, schema.CondStatusNotEquals, schema.CondPriorityEquals,
		schema.CondOwnerEquals, schema.CondAssetClassEquals,
		schema.CondActualEffortGreater, schema.CondEffortVarianceExceeds:
		if node.Value == nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: condition %q requires a value", path, string(node.Type))
		}
	}

	for i := range node.Children {
		child := &node.Children[i]
		if err := validateCondition(child, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(node *schema.ActionNode, path string) error {
	if _, ok := knownActions[node.Type]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"%s: unknown action type %q", path, string(node.Type))
	}

	switch node.Type {
	case schema.ActionExecuteMultiple:
		if len(node.Actions) == 0 {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: execute_multiple requires at least one sub-action", path)
		}
		for i := range node.Actions {
			child := &node.Actions[i]
			if err := validateAction(child, fmt.Sprintf("%s.actions[%d]", path, i)); err != nil {
				return err
			}
		}
	case schema.ActionSetStatus:
		s, ok := node.Value.(string)
		if !ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: set_status requires a string value", path)
		}
		if _, known := schema.NextStatus(schema.Status(s)); !known {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: unknown status %q", path, s)
		}
	case schema.ActionSetPriority, schema.ActionUpdateEta, schema.ActionUpdateEffort:
		if node.Value == nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: action %q requires a value", path, string(node.Type))
		}
	case schema.ActionNotifySlack:
		if node.Channel == "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: notify_slack_channel requires a channel", path)
		}
	case schema.ActionCreateComment:
		if node.Message == "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: create_comment requires a message", path)
		}
	}
	return nil
}
