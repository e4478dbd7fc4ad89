package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// AuditRecorder adapts a Store into the engine's change callback: every
// field-level mutation a workflow run produces becomes one audit entry.
// Recording is best-effort; a failed insert is logged and the run goes on,
// because the audit trail must never block a mutation.
func AuditRecorder(ctx context.Context, s Store, workflowID string, logger *slog.Logger) schema.RecordChange {
	return func(rec *schema.Initiative, field string, oldValue, newValue any) {
		entry := &AuditEntry{
			InitiativeID: rec.ID,
			Field:        field,
			OldValue:     auditValue(oldValue),
			NewValue:     auditValue(newValue),
			WorkflowID:   workflowID,
			Actor:        "system",
			Timestamp:    time.Now().UTC(),
		}
		if err := s.AppendAudit(ctx, entry); err != nil && logger != nil {
			logger.Warn("audit append failed",
				"initiative_id", rec.ID,
				"field", field,
				"workflow_id", workflowID,
				"error", err.Error(),
			)
		}
	}
}

func auditValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
