package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/pkg/schema"
)

// Catalog is the single read/write surface for workflow rules. Reads merge
// the generated system rules (always first) with the custom rules persisted
// in the store. Every mutation that would touch a system rule is rejected;
// the built-ins cannot be edited, toggled, deleted, or duplicated.
type Catalog struct {
	store  store.Store
	logger *slog.Logger
	clock  func() time.Time
}

// New creates a catalog over the given store.
func New(s store.Store, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  s,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (c *Catalog) WithClock(clock func() time.Time) *Catalog {
	c.clock = clock
	return c
}

// Merged returns system rules followed by the stored custom rules. System
// rules come first so callers that execute in catalog order apply the
// built-in policies before user policies.
func (c *Catalog) Merged(ctx context.Context, filter store.WorkflowFilter) ([]*schema.Workflow, error) {
	custom, err := c.store.ListWorkflows(ctx, filter)
	if err != nil {
		return nil, err
	}

	merged := make([]*schema.Workflow, 0, 3+len(custom))
	for _, wf := range SystemRules(c.clock()) {
		if filter.Enabled != nil && *filter.Enabled != wf.Enabled {
			continue
		}
		if filter.Trigger != "" && filter.Trigger != wf.Trigger {
			continue
		}
		merged = append(merged, wf)
	}
	return append(merged, custom...), nil
}

// Get returns a single rule by ID, system or custom.
func (c *Catalog) Get(ctx context.Context, id string) (*schema.Workflow, error) {
	if IsSystemID(id) {
		for _, wf := range SystemRules(c.clock()) {
			if wf.ID == id {
				return wf, nil
			}
		}
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	return c.store.GetWorkflow(ctx, id)
}

// Create persists a new custom rule. IDs in the system namespace are
// reserved.
func (c *Catalog) Create(ctx context.Context, wf *schema.Workflow) error {
	if wf.ID == "" {
		wf.ID = schema.NewID()
	}
	if IsSystemID(wf.ID) || wf.System {
		return schema.NewError(schema.ErrCodeSystemRule, "system rules cannot be created").
			WithWorkflow(wf.ID)
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = c.clock()
	}
	if err := c.store.CreateWorkflow(ctx, wf); err != nil {
		return err
	}
	c.log("workflow created", wf.ID, wf.Name)
	return nil
}

// Update replaces a custom rule's definition. Bookkeeping fields (run
// stats, execution log) are preserved from the stored copy.
func (c *Catalog) Update(ctx context.Context, id string, wf *schema.Workflow) (*schema.Workflow, error) {
	if IsSystemID(id) {
		return nil, schema.NewError(schema.ErrCodeSystemRule, "system rules are read-only and cannot be edited").
			WithWorkflow(id)
	}
	current, err := c.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	wf.ID = id
	wf.System = false
	wf.ReadOnly = false
	wf.CreatedBy = current.CreatedBy
	wf.CreatedAt = current.CreatedAt
	wf.LastRun = current.LastRun
	wf.RunCount = current.RunCount
	wf.ExecutionLog = current.ExecutionLog

	updated, err := c.store.UpdateWorkflow(ctx, id, store.WorkflowUpdate{Definition: wf})
	if err != nil {
		return nil, err
	}
	c.log("workflow updated", id, wf.Name)
	return updated, nil
}

// Toggle flips or sets a custom rule's enabled flag.
func (c *Catalog) Toggle(ctx context.Context, id string, enabled bool) (*schema.Workflow, error) {
	if IsSystemID(id) {
		return nil, schema.NewError(schema.ErrCodeSystemRule, "system rules are always enabled and cannot be toggled").
			WithWorkflow(id)
	}
	updated, err := c.store.UpdateWorkflow(ctx, id, store.WorkflowUpdate{Enabled: &enabled})
	if err != nil {
		return nil, err
	}
	c.log("workflow toggled", id, updated.Name, "enabled", enabled)
	return updated, nil
}

// Delete removes a custom rule.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if IsSystemID(id) {
		return schema.NewError(schema.ErrCodeSystemRule, "system rules cannot be deleted").
			WithWorkflow(id)
	}
	if err := c.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	c.log("workflow deleted", id, "")
	return nil
}

// Duplicate copies a custom rule under a new ID. The copy starts disabled
// with fresh run stats so it cannot fire before someone reviews it.
func (c *Catalog) Duplicate(ctx context.Context, id string) (*schema.Workflow, error) {
	if IsSystemID(id) {
		return nil, schema.NewError(schema.ErrCodeSystemRule, "system rules cannot be duplicated").
			WithWorkflow(id)
	}
	src, err := c.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	copyWf := *src
	copyWf.ID = schema.NewID()
	copyWf.Name = src.Name + " (copy)"
	copyWf.Enabled = false
	copyWf.CreatedAt = c.clock()
	copyWf.LastRun = nil
	copyWf.RunCount = 0
	copyWf.ExecutionLog = nil

	if err := c.store.CreateWorkflow(ctx, &copyWf); err != nil {
		return nil, err
	}
	c.log("workflow duplicated", copyWf.ID, copyWf.Name, "source_id", id)
	return &copyWf, nil
}

// RecordRun folds an execution log entry into a rule's run stats. System
// rules have no persisted state, so their runs leave no trace here.
func (c *Catalog) RecordRun(ctx context.Context, wf *schema.Workflow, entry *schema.ExecutionLog) error {
	if wf.System {
		return nil
	}

	wf.AppendLog(*entry)
	wf.RunCount++
	lastRun := entry.Timestamp
	wf.LastRun = &lastRun

	runCount := wf.RunCount
	_, err := c.store.UpdateWorkflow(ctx, wf.ID, store.WorkflowUpdate{
		LastRun:      &lastRun,
		RunCount:     &runCount,
		ExecutionLog: wf.ExecutionLog,
	})
	return err
}

func (c *Catalog) log(msg, id, name string, args ...any) {
	if c.logger == nil {
		return
	}
	attrs := append([]any{"workflow_id", id, "workflow_name", name}, args...)
	c.logger.Info(msg, attrs...)
}
