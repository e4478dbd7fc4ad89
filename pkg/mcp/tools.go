package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stewardhq/steward/internal/logging"
	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/pkg/schema"
)

// handleDefine validates and persists a new custom rule.
func (s *StewardServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, errResult := s.parseWorkflow(req, "workflow")
	if errResult != nil {
		return errResult, nil
	}

	if err := s.catalog.Create(ctx, wf); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create workflow: %v", err)), nil
	}

	return marshalResult(map[string]any{
		"workflow_id": wf.ID,
		"name":        wf.Name,
		"enabled":     wf.Enabled,
	})
}

// handleCatalog lists the merged rule set, system rules first.
func (s *StewardServer) handleCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.WorkflowFilter{}
	if trigger := req.GetString("trigger", ""); trigger != "" {
		filter.Trigger = schema.TriggerType(trigger)
	}
	if args := req.GetArguments(); args != nil {
		if _, ok := args["enabled"]; ok {
			enabled := req.GetBool("enabled", true)
			filter.Enabled = &enabled
		}
	}

	workflows, err := s.catalog.Merged(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("catalog query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

// handleUpdate replaces a custom rule's definition.
func (s *StewardServer) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	wf, errResult := s.parseWorkflow(req, "workflow")
	if errResult != nil {
		return errResult, nil
	}

	updated, updateErr := s.catalog.Update(ctx, workflowID, wf)
	if updateErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update workflow: %v", updateErr)), nil
	}
	return marshalResult(updated)
}

// handleToggle enables or disables a custom rule.
func (s *StewardServer) handleToggle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	enabled, err := req.RequireBool("enabled")
	if err != nil {
		return mcp.NewToolResultError("enabled is required"), nil
	}

	updated, toggleErr := s.catalog.Toggle(ctx, workflowID, enabled)
	if toggleErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to toggle workflow: %v", toggleErr)), nil
	}
	return marshalResult(map[string]any{
		"workflow_id": updated.ID,
		"enabled":     updated.Enabled,
	})
}

// handleDuplicate copies a custom rule under a new ID.
func (s *StewardServer) handleDuplicate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	dup, dupErr := s.catalog.Duplicate(ctx, workflowID)
	if dupErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to duplicate workflow: %v", dupErr)), nil
	}
	return marshalResult(map[string]any{
		"workflow_id": dup.ID,
		"name":        dup.Name,
		"enabled":     dup.Enabled,
	})
}

// handleDelete removes a custom rule.
func (s *StewardServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	if delErr := s.catalog.Delete(ctx, workflowID); delErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete workflow: %v", delErr)), nil
	}
	return marshalResult(map[string]any{
		"workflow_id": workflowID,
		"deleted":     true,
	})
}

// handleTest runs a rule against the current initiatives. Mutations are
// applied and persisted; for custom rules the run is folded into the rule's
// stats like any dispatcher-driven run.
func (s *StewardServer) handleTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	wf, getErr := s.catalog.Get(ctx, workflowID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", getErr)), nil
	}

	records, listErr := s.store.ListInitiatives(ctx)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list initiatives: %v", listErr)), nil
	}

	ctx = logging.WithWorkflowID(ctx, wf.ID)
	ctx = logging.WithTrigger(ctx, string(wf.Trigger))

	byID := make(map[string]*schema.Initiative, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	onChange := store.AuditRecorder(ctx, s.store, wf.ID, s.logger)
	entry := s.runner.Execute(ctx, wf, records, onChange)

	for _, id := range entry.InitiativesAffected {
		rec, ok := byID[id]
		if !ok {
			continue
		}
		if saveErr := s.store.SaveInitiative(ctx, rec); saveErr != nil {
			s.logger.Error("failed to persist initiative",
				"initiative_id", id, "error", saveErr.Error())
		}
	}

	if recErr := s.catalog.RecordRun(ctx, wf, entry); recErr != nil {
		s.logger.Error("failed to record run",
			"workflow_id", wf.ID, "error", recErr.Error())
	}

	return marshalResult(map[string]any{
		"workflow_id":          wf.ID,
		"affected_count":       len(entry.InitiativesAffected),
		"initiatives_affected": entry.InitiativesAffected,
		"actions_taken":        entry.ActionsTaken,
		"errors":               entry.Errors,
	})
}

// handleLogs returns a rule's recent execution log entries.
func (s *StewardServer) handleLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	wf, getErr := s.catalog.Get(ctx, workflowID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", getErr)), nil
	}

	logs := wf.ExecutionLog
	if logs == nil {
		logs = []schema.ExecutionLog{}
	}
	return marshalResult(map[string]any{
		"workflow_id": wf.ID,
		"run_count":   wf.RunCount,
		"last_run":    wf.LastRun,
		"logs":        logs,
	})
}

// parseWorkflow decodes an object argument into a workflow and validates it.
func (s *StewardServer) parseWorkflow(req mcp.CallToolRequest, key string) (*schema.Workflow, *mcp.CallToolResult) {
	raw := mcp.ParseStringMap(req, key, nil)
	if raw == nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("%s is required", key))
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid %s: %v", key, err))
	}
	wf := &schema.Workflow{}
	if err := json.Unmarshal(data, wf); err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid %s: %v", key, err))
	}

	if err := s.validator.Validate(wf); err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("workflow validation failed: %v", err))
	}
	return wf, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
