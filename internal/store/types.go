package store

import "time"

// AuditEntry is one field-level change applied to an initiative, recorded
// before the mutation lands. WorkflowID ties the change back to the run that
// produced it.
type AuditEntry struct {
	ID           int64     `json:"id"`
	InitiativeID string    `json:"initiative_id"`
	Field        string    `json:"field"`
	OldValue     string    `json:"old_value"`
	NewValue     string    `json:"new_value"`
	WorkflowID   string    `json:"workflow_id"`
	Actor        string    `json:"actor"`
	Timestamp    time.Time `json:"timestamp"`
}

// AuditFilter narrows ListAudit. Zero values mean "no constraint"; entries
// come back newest first.
type AuditFilter struct {
	InitiativeID string
	WorkflowID   string
	Field        string
	Limit        int
}
