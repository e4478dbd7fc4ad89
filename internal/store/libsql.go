package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/stewardhq/steward/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	if wf.System {
		return schema.NewError(schema.ErrCodeSystemRule, "system rules are never persisted")
	}
	def, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	execLog, err := json.Marshal(logOrEmpty(wf.ExecutionLog))
	if err != nil {
		return fmt.Errorf("marshal execution log: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, trigger, definition, enabled, created_by, created_at, last_run, run_count, execution_log)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, string(wf.Trigger), string(def), boolInt(wf.Enabled),
		nullStr(wf.CreatedBy), timeOrNow(wf.CreatedAt), nullTime(wf.LastRun), wf.RunCount, string(execLog),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.ID).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	var (
		defJSON, execJSON string
		enabled           int
		runCount          int
		lastRun           sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT definition, enabled, last_run, run_count, execution_log FROM workflows WHERE id = ?`, id,
	).Scan(&defJSON, &enabled, &lastRun, &runCount, &execJSON)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	return hydrateWorkflow(defJSON, enabled, lastRun, runCount, execJSON)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	var where []string
	var args []any

	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolInt(*filter.Enabled))
	}
	if filter.Trigger != "" {
		where = append(where, "trigger = ?")
		args = append(args, string(filter.Trigger))
	}

	query := `SELECT definition, enabled, last_run, run_count, execution_log FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*schema.Workflow
	for rows.Next() {
		var (
			defJSON, execJSON string
			enabled, runCount int
			lastRun           sql.NullTime
		)
		if err := rows.Scan(&defJSON, &enabled, &lastRun, &runCount, &execJSON); err != nil {
			return nil, err
		}
		wf, err := hydrateWorkflow(defJSON, enabled, lastRun, runCount, execJSON)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) (*schema.Workflow, error) {
	var sets []string
	var args []any

	if update.Definition != nil {
		def, err := json.Marshal(update.Definition)
		if err != nil {
			return nil, fmt.Errorf("marshal workflow: %w", err)
		}
		sets = append(sets, "definition = ?", "name = ?", "trigger = ?")
		args = append(args, string(def), update.Definition.Name, string(update.Definition.Trigger))
	}
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRun != nil {
		sets = append(sets, "last_run = ?")
		args = append(args, *update.LastRun)
	}
	if update.RunCount != nil {
		sets = append(sets, "run_count = ?")
		args = append(args, *update.RunCount)
	}
	if update.ExecutionLog != nil {
		execLog, err := json.Marshal(update.ExecutionLog)
		if err != nil {
			return nil, fmt.Errorf("marshal execution log: %w", err)
		}
		sets = append(sets, "execution_log = ?")
		args = append(args, string(execLog))
	}
	if len(sets) == 0 {
		return s.GetWorkflow(ctx, id)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := checkRowsAffected(res, "workflow", id); err != nil {
		return nil, err
	}
	return s.GetWorkflow(ctx, id)
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// hydrateWorkflow rebuilds a workflow from its stored document plus the
// bookkeeping columns. The columns win over whatever the document carries,
// so RecordRun updates are visible without rewriting the document.
func hydrateWorkflow(defJSON string, enabled int, lastRun sql.NullTime, runCount int, execJSON string) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	if err := json.Unmarshal([]byte(defJSON), wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}
	wf.Enabled = enabled != 0
	wf.RunCount = runCount
	if lastRun.Valid {
		t := lastRun.Time
		wf.LastRun = &t
	}
	if execJSON != "" {
		if err := json.Unmarshal([]byte(execJSON), &wf.ExecutionLog); err != nil {
			return nil, fmt.Errorf("unmarshal execution log: %w", err)
		}
	}
	return wf, nil
}

// --- Initiatives ---

func (s *LibSQLStore) SaveInitiative(ctx context.Context, rec *schema.Initiative) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal initiative: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO initiatives (id, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET document=excluded.document, updated_at=excluded.updated_at`,
		rec.ID, string(doc), timeOrNow(rec.LastUpdated),
	)
	return err
}

func (s *LibSQLStore) GetInitiative(ctx context.Context, id string) (*schema.Initiative, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM initiatives WHERE id = ?`, id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("initiative", id)
	}
	if err != nil {
		return nil, err
	}
	rec := &schema.Initiative{}
	if err := json.Unmarshal([]byte(doc), rec); err != nil {
		return nil, fmt.Errorf("unmarshal initiative: %w", err)
	}
	return rec, nil
}

func (s *LibSQLStore) ListInitiatives(ctx context.Context) ([]*schema.Initiative, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM initiatives ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*schema.Initiative
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		rec := &schema.Initiative{}
		if err := json.Unmarshal([]byte(doc), rec); err != nil {
			return nil, fmt.Errorf("unmarshal initiative: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *LibSQLStore) DeleteInitiative(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM initiatives WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "initiative", id)
}

// --- Audit ---

func (s *LibSQLStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	actor := entry.Actor
	if actor == "" {
		actor = "system"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (initiative_id, field, old_value, new_value, workflow_id, actor, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.InitiativeID, entry.Field, entry.OldValue, entry.NewValue,
		nullStr(entry.WorkflowID), actor, timeOrNow(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (s *LibSQLStore) ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	var where []string
	var args []any

	if filter.InitiativeID != "" {
		where = append(where, "initiative_id = ?")
		args = append(args, filter.InitiativeID)
	}
	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Field != "" {
		where = append(where, "field = ?")
		args = append(args, filter.Field)
	}

	query := `SELECT id, initiative_id, field, old_value, new_value, workflow_id, actor, timestamp FROM audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var workflowID sql.NullString
		if err := rows.Scan(&e.ID, &e.InitiativeID, &e.Field, &e.OldValue, &e.NewValue,
			&workflowID, &e.Actor, &e.Timestamp); err != nil {
			return nil, err
		}
		e.WorkflowID = workflowID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.StewardError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func logOrEmpty(entries []schema.ExecutionLog) []schema.ExecutionLog {
	if entries == nil {
		return []schema.ExecutionLog{}
	}
	return entries
}

var _ Store = (*LibSQLStore)(nil)
