package store

import (
	"context"
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// Store persists custom workflows, initiative documents, and the field-level
// audit trail. System rules never pass through a Store; they are synthesized
// by the catalog on every read.
type Store interface {
	// Workflow definitions.
	CreateWorkflow(ctx context.Context, wf *schema.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) (*schema.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Initiative documents.
	SaveInitiative(ctx context.Context, rec *schema.Initiative) error
	GetInitiative(ctx context.Context, id string) (*schema.Initiative, error)
	ListInitiatives(ctx context.Context) ([]*schema.Initiative, error)
	DeleteInitiative(ctx context.Context, id string) error

	// Audit trail.
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// Close releases the underlying database handle.
	Close() error
}

// WorkflowFilter narrows ListWorkflows. Zero values mean "no constraint".
type WorkflowFilter struct {
	Enabled *bool
	Trigger schema.TriggerType
	Limit   int
	Offset  int
}

// WorkflowUpdate is a partial update of a stored workflow. Nil fields are
// left untouched. Definition replaces the whole stored document; the
// bookkeeping fields (Enabled, LastRun, RunCount, ExecutionLog) update
// individual columns.
type WorkflowUpdate struct {
	Definition   *schema.Workflow
	Enabled      *bool
	LastRun      *time.Time
	RunCount     *int
	ExecutionLog []schema.ExecutionLog
}

// IsZero reports whether the update would change nothing.
func (u WorkflowUpdate) IsZero() bool {
	return u.Definition == nil && u.Enabled == nil && u.LastRun == nil &&
		u.RunCount == nil && u.ExecutionLog == nil
}
