package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stewardhq/steward/internal/logging"
	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/pkg/schema"
)

// Source is the interface the dispatcher uses to read the merged rule set
// and fold run results back in. Satisfied by the catalog (avoids import cycle).
type Source interface {
	Merged(ctx context.Context, filter store.WorkflowFilter) ([]*schema.Workflow, error)
	RecordRun(ctx context.Context, wf *schema.Workflow, entry *schema.ExecutionLog) error
}

// WorkflowRunner executes one workflow over a batch of initiatives.
// Satisfied by the engine runner.
type WorkflowRunner interface {
	Execute(ctx context.Context, wf *schema.Workflow, records []*schema.Initiative, onChange schema.RecordChange) *schema.ExecutionLog
}

// scheduleConfig is the trigger_config payload of on_schedule workflows.
// An empty schedule means "run on every tick".
type scheduleConfig struct {
	Schedule string `json:"schedule"`
}

// fieldChangeConfig is the trigger_config payload of on_field_change
// workflows. An empty field list matches any change.
type fieldChangeConfig struct {
	Fields []string `json:"fields"`
}

// Dispatcher connects workflow triggers to the runner. Scheduled workflows
// run off a 60s ticker; change-driven workflows run when the application
// reports a record create or update through NotifyCreate / NotifyChange.
type Dispatcher struct {
	store  store.Store
	source Source
	runner WorkflowRunner
	parser cron.Parser
	logger *slog.Logger
	clock  func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	// inflightMu guards both maps: inflight (dedup of currently executing
	// workflow IDs) and nextRun (armed cron fire times). Tick is exported,
	// so a caller-driven tick can overlap the background loop.
	inflightMu sync.Mutex
	inflight   map[string]struct{}
	nextRun    map[string]time.Time

	interval time.Duration
}

// NewDispatcher creates a Dispatcher. interval is the scheduler tick; zero
// means the 60s default.
func NewDispatcher(s store.Store, source Source, runner WorkflowRunner, logger *slog.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Dispatcher{
		store:    s,
		source:   source,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		clock:    time.Now,
		inflight: make(map[string]struct{}),
		nextRun:  make(map[string]time.Time),
		interval: interval,
	}
}

// WithClock overrides the time source, for tests.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock
	return d
}

// Start launches the background scheduling loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.done != nil {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.loop(runCtx)
	d.logger.Info("trigger dispatcher started", "interval", d.interval.String())
	return nil
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	d.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Stop gracefully shuts down the dispatcher.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel == nil {
		return nil
	}

	d.cancel()
	<-d.done
	d.cancel = nil
	d.done = nil

	d.logger.Info("trigger dispatcher stopped")
	return nil
}

// Tick runs all enabled scheduled workflows that are due. Exported so tests
// and the CLI can drive the dispatcher without the background loop.
func (d *Dispatcher) Tick(ctx context.Context) {
	enabled := true
	workflows, err := d.source.Merged(ctx, store.WorkflowFilter{
		Enabled: &enabled,
		Trigger: schema.TriggerOnSchedule,
	})
	if err != nil {
		d.logger.Error("failed to list scheduled workflows", slog.String("error", err.Error()))
		return
	}

	now := d.clock()
	for _, wf := range workflows {
		if !d.due(wf, now) {
			continue
		}
		if !d.tryAcquire(wf.ID) {
			continue // already running (dedup)
		}
		d.runBatch(ctx, wf)
		d.release(wf.ID)
	}
}

// due decides whether a scheduled workflow should fire at the given instant
// and arms its next run. Workflows without a cron schedule fire every tick.
func (d *Dispatcher) due(wf *schema.Workflow, now time.Time) bool {
	var cfg scheduleConfig
	if len(wf.TriggerConfig) > 0 {
		if err := json.Unmarshal(wf.TriggerConfig, &cfg); err != nil {
			d.logger.Warn("malformed trigger config",
				slog.String("workflow_id", wf.ID), slog.String("error", err.Error()))
			return false
		}
	}
	if cfg.Schedule == "" {
		return true
	}

	schedule, err := d.parser.Parse(cfg.Schedule)
	if err != nil {
		d.logger.Warn("invalid cron schedule",
			slog.String("workflow_id", wf.ID),
			slog.String("schedule", cfg.Schedule),
			slog.String("error", err.Error()))
		return false
	}

	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()

	next, armed := d.nextRun[wf.ID]
	if !armed {
		// First sighting: arm the schedule without firing.
		d.nextRun[wf.ID] = schedule.Next(now)
		return false
	}
	if now.Before(next) {
		return false
	}
	d.nextRun[wf.ID] = schedule.Next(now)
	return true
}

// NotifyCreate runs all on_create workflows against a newly created record.
func (d *Dispatcher) NotifyCreate(ctx context.Context, rec *schema.Initiative) error {
	ctx = logging.WithInitiativeID(ctx, rec.ID)
	return d.dispatchChange(ctx, rec, nil)
}

// NotifyChange diffs two versions of a record and runs every change-driven
// workflow whose trigger matches the fields that moved. before is the
// record prior to the edit, after the record as saved.
func (d *Dispatcher) NotifyChange(ctx context.Context, before, after *schema.Initiative) error {
	changed := diffFields(before, after)
	if len(changed) == 0 {
		return nil
	}
	ctx = logging.WithInitiativeID(ctx, after.ID)
	return d.dispatchChange(ctx, after, changed)
}

// dispatchChange runs the matching change-driven workflows against a single
// record. changed == nil means the record was just created.
func (d *Dispatcher) dispatchChange(ctx context.Context, rec *schema.Initiative, changed []string) error {
	enabled := true
	workflows, err := d.source.Merged(ctx, store.WorkflowFilter{Enabled: &enabled})
	if err != nil {
		return err
	}

	for _, wf := range workflows {
		if !d.triggerMatches(wf, changed) {
			continue
		}
		if !d.tryAcquire(wf.ID) {
			continue
		}
		d.run(ctx, wf, []*schema.Initiative{rec})
		d.release(wf.ID)
	}
	return nil
}

// triggerMatches decides whether a workflow's trigger fires for the given
// changed field set (nil = record creation).
func (d *Dispatcher) triggerMatches(wf *schema.Workflow, changed []string) bool {
	if changed == nil {
		return wf.Trigger == schema.TriggerOnCreate
	}

	switch wf.Trigger {
	case schema.TriggerOnStatusChange:
		return slices.Contains(changed, "status")
	case schema.TriggerOnEtaChange:
		return slices.Contains(changed, "eta")
	case schema.TriggerOnEffortChange:
		return slices.Contains(changed, "estimated_effort") || slices.Contains(changed, "actual_effort")
	case schema.TriggerOnConditionMet:
		return true
	case schema.TriggerOnFieldChange:
		var cfg fieldChangeConfig
		if len(wf.TriggerConfig) > 0 {
			if err := json.Unmarshal(wf.TriggerConfig, &cfg); err != nil {
				d.logger.Warn("malformed trigger config",
					slog.String("workflow_id", wf.ID), slog.String("error", err.Error()))
				return false
			}
		}
		if len(cfg.Fields) == 0 {
			return true
		}
		for _, f := range cfg.Fields {
			if slices.Contains(changed, f) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// runBatch executes a workflow against the full initiative set.
func (d *Dispatcher) runBatch(ctx context.Context, wf *schema.Workflow) {
	records, err := d.store.ListInitiatives(ctx)
	if err != nil {
		d.logger.Error("failed to list initiatives",
			slog.String("workflow_id", wf.ID), slog.String("error", err.Error()))
		return
	}
	d.run(ctx, wf, records)
}

// run executes a workflow, persists the affected records, and folds the run
// into the workflow's stats.
func (d *Dispatcher) run(ctx context.Context, wf *schema.Workflow, records []*schema.Initiative) {
	ctx = logging.WithWorkflowID(ctx, wf.ID)
	ctx = logging.WithTrigger(ctx, string(wf.Trigger))

	byID := make(map[string]*schema.Initiative, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	onChange := store.AuditRecorder(ctx, d.store, wf.ID, d.logger)
	entry := d.runner.Execute(ctx, wf, records, onChange)

	now := d.clock()
	for _, id := range entry.InitiativesAffected {
		rec, ok := byID[id]
		if !ok {
			continue
		}
		rec.LastUpdated = now
		if err := d.store.SaveInitiative(ctx, rec); err != nil {
			d.logger.Error("failed to persist initiative",
				slog.String("initiative_id", id), slog.String("error", err.Error()))
		}
	}

	if err := d.source.RecordRun(ctx, wf, entry); err != nil {
		d.logger.Error("failed to record run",
			slog.String("workflow_id", wf.ID), slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) tryAcquire(id string) bool {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	if _, ok := d.inflight[id]; ok {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	delete(d.inflight, id)
}

// diffFields lists the initiative fields that differ between two versions,
// using the same field names the audit trail records.
func diffFields(before, after *schema.Initiative) []string {
	var changed []string
	if before.Status != after.Status {
		changed = append(changed, "status")
	}
	if before.Eta != after.Eta {
		changed = append(changed, "eta")
	}
	if before.EstimatedEffort != after.EstimatedEffort {
		changed = append(changed, "estimated_effort")
	}
	if before.ActualEffort != after.ActualEffort {
		changed = append(changed, "actual_effort")
	}
	if before.Priority != after.Priority {
		changed = append(changed, "priority")
	}
	if before.Owner != after.Owner {
		changed = append(changed, "owner")
	}
	if before.Title != after.Title {
		changed = append(changed, "title")
	}
	if before.AssetClass != after.AssetClass {
		changed = append(changed, "asset_class")
	}
	if before.WorkType != after.WorkType {
		changed = append(changed, "work_type")
	}
	if before.RiskActionLog != after.RiskActionLog {
		changed = append(changed, "risk_action_log")
	}
	return changed
}
