package schema

import (
	"encoding/json"
	"sort"
	"time"
)

// TriggerType enumerates the events that can start a workflow run.
// The engine itself never interprets triggers; the dispatcher does.
type TriggerType string

const (
	TriggerOnSchedule     TriggerType = "on_schedule"
	TriggerOnFieldChange  TriggerType = "on_field_change"
	TriggerOnStatusChange TriggerType = "on_status_change"
	TriggerOnEtaChange    TriggerType = "on_eta_change"
	TriggerOnEffortChange TriggerType = "on_effort_change"
	TriggerOnConditionMet TriggerType = "on_condition_met"
	TriggerOnCreate       TriggerType = "on_create"
)

// Workflow is an automation rule: trigger + optional scope + optional
// condition tree + action tree. Custom workflows are persisted; system
// rules are synthesized fresh on every catalog read and never stored.
type Workflow struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Trigger       TriggerType     `json:"trigger"`
	TriggerConfig json.RawMessage `json:"trigger_config,omitempty"` // opaque to the engine, consumed by the dispatcher
	Scope         *ScopeFilter    `json:"scope,omitempty"`
	Condition     *ConditionNode  `json:"condition,omitempty"`
	Action        ActionNode      `json:"action"`
	Enabled       bool            `json:"enabled"`
	System        bool            `json:"system"`
	ReadOnly      bool            `json:"read_only"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	LastRun       *time.Time      `json:"last_run,omitempty"`
	RunCount      int             `json:"run_count"`
	ExecutionLog  []ExecutionLog  `json:"execution_log,omitempty"`
}

// ExecutionLogCap bounds the per-workflow execution log ring buffer.
const ExecutionLogCap = 10

// AppendLog appends an execution log entry, evicting the oldest entries
// in FIFO order once the buffer holds ExecutionLogCap entries.
func (w *Workflow) AppendLog(entry ExecutionLog) {
	w.ExecutionLog = append(w.ExecutionLog, entry)
	if n := len(w.ExecutionLog); n > ExecutionLogCap {
		w.ExecutionLog = w.ExecutionLog[n-ExecutionLogCap:]
	}
}

// ScopeFilter narrows which initiatives a workflow considers before its
// condition tree runs. All present sub-filters are ANDed; each is satisfied
// when the record's value is a member of the given set.
type ScopeFilter struct {
	AssetClasses []string `json:"asset_classes,omitempty"`
	WorkTypes    []string `json:"work_types,omitempty"`
	Owners       []string `json:"owners,omitempty"`

	// unknown collects unrecognized filter keys seen during unmarshalling.
	// A scope carrying unknown keys is malformed and fails the whole run.
	unknown []string
}

func (s *ScopeFilter) UnmarshalJSON(data []byte) error {
	type plain ScopeFilter
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = ScopeFilter(p)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		switch key {
		case "asset_classes", "work_types", "owners":
		default:
			s.unknown = append(s.unknown, key)
		}
	}
	sort.Strings(s.unknown)
	return nil
}

// Validate reports whether the scope is well-formed. Unknown filter keys
// are fatal to the run that uses them.
func (s *ScopeFilter) Validate() error {
	if s == nil || len(s.unknown) == 0 {
		return nil
	}
	return NewErrorf(ErrCodeScopeFilter, "unknown scope filter keys: %v", s.unknown).
		WithDetails(map[string]any{"keys": s.unknown})
}

// ConditionType is the closed tag set of condition tree nodes. Unrecognized
// tags evaluate to false (fail-closed), never to an error.
type ConditionType string

const (
	CondDueDatePassed         ConditionType = "due_date_passed"
	CondDueDateWithinDays     ConditionType = "due_date_within_days"
	CondLastUpdatedOlderThan  ConditionType = "last_updated_older_than"
	CondStatusEquals          ConditionType = "status_equals"
	CondStatusNotEquals       ConditionType = "status_not_equals"
	CondActualEffortGreater   ConditionType = "actual_effort_greater_than"
	CondActualEffortPctOfEst  ConditionType = "actual_effort_percentage_of_estimated"
	CondEffortVarianceExceeds ConditionType = "effort_variance_exceeds"
	CondPriorityEquals        ConditionType = "priority_equals"
	CondRiskActionLogEmpty    ConditionType = "risk_action_log_empty"
	CondOwnerEquals           ConditionType = "owner_equals"
	CondAssetClassEquals      ConditionType = "asset_class_equals"
	CondExpression            ConditionType = "expression"
	CondAnd                   ConditionType = "and"
	CondOr                    ConditionType = "or"
)

// ConditionNode is a recursive boolean expression over an initiative's
// fields. Leaves compare a single field; and/or combine children. Trees are
// built top-down by the workflow builder, so cycles cannot occur.
type ConditionNode struct {
	Type       ConditionType   `json:"type"`
	Value      any             `json:"value,omitempty"`      // comparison operand for *_equals / *_greater_than / variance leaves
	Days       int             `json:"days,omitempty"`       // due_date_within_days, last_updated_older_than
	Percentage float64         `json:"percentage,omitempty"` // actual_effort_percentage_of_estimated
	Language   string          `json:"language,omitempty"`   // expression leaves: cel (default), expr, jq
	Expression string          `json:"expression,omitempty"` // expression leaves
	Children   []ConditionNode `json:"children,omitempty"`   // and / or
}

// ActionType is the closed tag set of action tree nodes.
type ActionType string

const (
	ActionSetStatus        ActionType = "set_status"
	ActionTransitionStatus ActionType = "transition_status"
	ActionSetPriority      ActionType = "set_priority"
	ActionSetAtRisk        ActionType = "set_at_risk"
	ActionRequireRiskLog   ActionType = "require_risk_action_log" // alias of set_at_risk
	ActionNotifyOwner      ActionType = "notify_owner"
	ActionNotifySlack      ActionType = "notify_slack_channel"
	ActionCreateComment    ActionType = "create_comment"
	ActionUpdateEta        ActionType = "update_eta"
	ActionUpdateEffort     ActionType = "update_effort"
	ActionExecuteMultiple  ActionType = "execute_multiple"
)

// ActionNode is a recursive mutation program over one initiative.
// execute_multiple runs its sub-actions in array order against the same
// record; a sub-action failure aborts the remaining siblings.
type ActionNode struct {
	Type    ActionType   `json:"type"`
	Value   any          `json:"value,omitempty"`   // set_status, set_priority, update_eta, update_effort
	Channel string       `json:"channel,omitempty"` // notify_slack_channel
	Message string       `json:"message,omitempty"` // create_comment
	Actions []ActionNode `json:"actions,omitempty"` // execute_multiple
}

// ExecutionLog is the per-run record of which initiatives were affected,
// what was done, and what failed. Immutable after the runner returns it.
type ExecutionLog struct {
	ID                  string    `json:"id"`
	WorkflowID          string    `json:"workflow_id"`
	Timestamp           time.Time `json:"timestamp"`
	InitiativesAffected []string  `json:"initiatives_affected"`
	ActionsTaken        []string  `json:"actions_taken"`
	Errors              []string  `json:"errors"`
}
