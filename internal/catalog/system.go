package catalog

import (
	"strings"
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// Stable identifiers for the built-in rules. Callers may hold on to these
// across restarts; the rules themselves are rebuilt on every catalog read.
const (
	SystemRuleOverdue  = "system-overdue-escalation"
	SystemRuleStale    = "system-stale-reminder"
	SystemRuleRiskLog  = "system-risk-log-enforcement"
	systemRulePrefix   = "system-"
	systemRuleAuthorID = "system"
)

// SystemRules returns the built-in rules, generated fresh. They are never
// persisted: regeneration at read time means a new release can change their
// behavior without a data migration. All are enabled and read-only.
func SystemRules(now time.Time) []*schema.Workflow {
	return []*schema.Workflow{
		{
			ID:          SystemRuleOverdue,
			Name:        "Overdue escalation",
			Description: "Flags initiatives whose ETA has passed and are not finished.",
			Trigger:     schema.TriggerOnSchedule,
			Condition: &schema.ConditionNode{
				Type: schema.CondAnd,
				Children: []schema.ConditionNode{
					{Type: schema.CondDueDatePassed},
					{Type: schema.CondStatusNotEquals, Value: string(schema.StatusDone)},
					{Type: schema.CondStatusNotEquals, Value: string(schema.StatusObsolete)},
				},
			},
			Action: schema.ActionNode{
				Type: schema.ActionExecuteMultiple,
				Actions: []schema.ActionNode{
					{Type: schema.ActionSetStatus, Value: string(schema.StatusAtRisk)},
					{Type: schema.ActionCreateComment, Message: "This initiative is past its ETA and has been flagged At Risk."},
				},
			},
			Enabled:   true,
			System:    true,
			ReadOnly:  true,
			CreatedBy: systemRuleAuthorID,
			CreatedAt: now,
		},
		{
			ID:          SystemRuleStale,
			Name:        "Stale initiative reminder",
			Description: "Nudges owners of in-progress initiatives untouched for two weeks.",
			Trigger:     schema.TriggerOnSchedule,
			Condition: &schema.ConditionNode{
				Type: schema.CondAnd,
				Children: []schema.ConditionNode{
					{Type: schema.CondLastUpdatedOlderThan, Days: 14},
					{Type: schema.CondStatusEquals, Value: string(schema.StatusInProgress)},
				},
			},
			Action: schema.ActionNode{
				Type:    schema.ActionNotifyOwner,
				Message: "This initiative has not been updated in 14 days.",
			},
			Enabled:   true,
			System:    true,
			ReadOnly:  true,
			CreatedBy: systemRuleAuthorID,
			CreatedAt: now,
		},
		{
			ID:          SystemRuleRiskLog,
			Name:        "Risk action log enforcement",
			Description: "At Risk initiatives must carry a risk action log entry.",
			Trigger:     schema.TriggerOnStatusChange,
			Condition: &schema.ConditionNode{
				Type: schema.CondAnd,
				Children: []schema.ConditionNode{
					{Type: schema.CondStatusEquals, Value: string(schema.StatusAtRisk)},
					{Type: schema.CondRiskActionLogEmpty},
				},
			},
			Action: schema.ActionNode{
				Type: schema.ActionExecuteMultiple,
				Actions: []schema.ActionNode{
					{Type: schema.ActionCreateComment, Message: "This initiative is At Risk but has no risk action log."},
					{Type: schema.ActionNotifyOwner, Message: "Please add a risk action log entry."},
				},
			},
			Enabled:   true,
			System:    true,
			ReadOnly:  true,
			CreatedBy: systemRuleAuthorID,
			CreatedAt: now,
		},
	}
}

// IsSystemID reports whether an ID belongs to the built-in rule namespace.
func IsSystemID(id string) bool {
	return strings.HasPrefix(id, systemRulePrefix)
}
