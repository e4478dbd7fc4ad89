package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stewardhq/steward/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for workflow definition validation.
// Embedded as a constant to avoid filesystem dependencies. The bookkeeping
// fields (run stats, execution log) are accepted so a round-tripped catalog
// document validates too.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stewardhq.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "trigger", "action"],
  "properties": {
    "id": { "type": "string" },
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": { "type": "string" },
    "trigger": {
      "type": "string",
      "enum": ["on_schedule", "on_field_change", "on_status_change", "on_eta_change", "on_effort_change", "on_condition_met", "on_create"]
    },
    "trigger_config": { "type": "object" },
    "scope": {
      "type": "object",
      "properties": {
        "asset_classes": { "type": "array", "items": { "type": "string" } },
        "work_types": { "type": "array", "items": { "type": "string" } },
        "owners": { "type": "array", "items": { "type": "string" } }
      },
      "additionalProperties": false
    },
    "condition": { "$ref": "#/$defs/condition" },
    "action": { "$ref": "#/$defs/action" },
    "enabled": { "type": "boolean" },
    "system": { "type": "boolean" },
    "read_only": { "type": "boolean" },
    "created_by": { "type": "string" },
    "created_at": { "type": "string" },
    "last_run": { "type": "string" },
    "run_count": { "type": "integer", "minimum": 0 },
    "execution_log": { "type": "array" }
  },
  "additionalProperties": false,
  "$defs": {
    "condition": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "minLength": 1
        },
        "value": {},
        "days": { "type": "integer", "minimum": 0 },
        "percentage": { "type": "number", "minimum": 0 },
        "language": {
          "type": "string",
          "enum": ["cel", "expr", "jq"]
        },
        "expression": { "type": "string" },
        "children": {
          "type": "array",
          "items": { "$ref": "#/$defs/condition" }
        }
      },
      "additionalProperties": false
    },
    "action": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "minLength": 1
        },
        "value": {},
        "channel": { "type": "string" },
        "message": { "type": "string" },
        "actions": {
          "type": "array",
          "items": { "$ref": "#/$defs/action" }
        }
      },
      "additionalProperties": false
    }
  }
}`

// Validator checks a workflow document before it enters the catalog. The
// JSON Schema pass catches structural problems; the semantic pass (see
// semantic.go) catches everything the schema cannot express.
type Validator struct {
	workflowSchema *jsonschema.Schema
}

// NewValidator creates a Validator with the workflow schema pre-compiled.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://stewardhq.dev/schemas/workflow.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	wfSchema, err := c.Compile("https://stewardhq.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &Validator{workflowSchema: wfSchema}, nil
}

// Validate runs both passes over a workflow.
func (v *Validator) Validate(wf *schema.Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}

	doc, err := toJSONValue(wf)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow").WithCause(err)
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		return toStewardError(err)
	}

	return validateSemantics(wf)
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toStewardError converts a jsonschema.ValidationError into a StewardError
// with clear, actionable messages.
func toStewardError(err error) *schema.StewardError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
