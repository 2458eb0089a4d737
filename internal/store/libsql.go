package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/lexhub/agentrun/pkg/schema"
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

// --- Agent definitions ---

func (s *LibSQLStore) CreateDefinition(ctx context.Context, def *AgentDefinition) error {
	caps, err := marshalSliceOrNil(def.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_definitions (id, org_id, name, description, agent_type, icon, status, capabilities, config, trigger_type, schedule_cron, visibility_scope, created_at, updated_at, last_run_at, next_run_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.OrgID, def.Name, nullStr(def.Description), def.AgentType, nullStr(def.Icon),
		string(def.Status), caps, nullRaw(def.Config), string(def.TriggerType),
		nullStr(def.ScheduleCron), nullStr(def.VisibilityScope),
		timeOrNow(def.CreatedAt), timeOrNow(def.UpdatedAt), nullTime(def.LastRunAt), nullTime(def.NextRunAt),
	)
	return err
}

const definitionColumns = `id, org_id, name, description, agent_type, icon, status, capabilities, config, trigger_type, schedule_cron, visibility_scope, created_at, updated_at, last_run_at, next_run_at`

func (s *LibSQLStore) GetDefinition(ctx context.Context, id string) (*AgentDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM agent_definitions WHERE id = ?`, id)
	def, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("agent", id)
	}
	return def, err
}

func (s *LibSQLStore) GetDefinitionForOrg(ctx context.Context, orgID, id string) (*AgentDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM agent_definitions WHERE id = ? AND org_id = ?`, id, orgID)
	def, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("agent", id)
	}
	return def, err
}

func (s *LibSQLStore) ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]*AgentDefinition, error) {
	var where []string
	var args []any

	if filter.OrgID != "" {
		where = append(where, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.TriggerType != nil {
		where = append(where, "trigger_type = ?")
		args = append(args, string(*filter.TriggerType))
	}

	query := `SELECT ` + definitionColumns + ` FROM agent_definitions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*AgentDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *LibSQLStore) UpdateDefinitionSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	var sets []string
	var args []any

	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE agent_definitions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", id)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (*AgentDefinition, error) {
	def := &AgentDefinition{}
	var (
		desc, icon, caps, config, cron, scope sql.NullString
		status, trigger                       string
		lastRun, nextRun                      sql.NullTime
	)
	if err := row.Scan(&def.ID, &def.OrgID, &def.Name, &desc, &def.AgentType, &icon,
		&status, &caps, &config, &trigger, &cron, &scope,
		&def.CreatedAt, &def.UpdatedAt, &lastRun, &nextRun); err != nil {
		return nil, err
	}
	def.Description = desc.String
	def.Icon = icon.String
	def.Status = schema.AgentStatus(status)
	def.TriggerType = schema.TriggerType(trigger)
	def.ScheduleCron = cron.String
	def.VisibilityScope = scope.String
	def.Config = rawOrNil(config)
	if caps.Valid && caps.String != "" {
		if err := json.Unmarshal([]byte(caps.String), &def.Capabilities); err != nil {
			return nil, fmt.Errorf("unmarshal capabilities: %w", err)
		}
	}
	if lastRun.Valid {
		def.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		def.NextRunAt = &nextRun.Time
	}
	return def, nil
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *AgentRun) error {
	input, err := marshalMapOrDefault(run.InputData)
	if err != nil {
		return fmt.Errorf("marshal input_data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_runs (id, agent_id, matter_id, triggered_by, status, input_data, output_data, config_overrides, error, created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AgentID, nullStr(run.MatterID), nullStr(run.TriggeredBy),
		string(run.Status), string(input), nullRaw(run.OutputData), nullRaw(run.Overrides),
		nullStr(run.Error), timeOrNow(run.CreatedAt), nullTime(run.StartedAt), nullTime(run.CompletedAt),
	)
	return err
}

const runColumns = `id, agent_id, matter_id, triggered_by, status, input_data, output_data, config_overrides, error, created_at, started_at, completed_at`

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*AgentRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM agent_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	return run, err
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.OutputData != nil {
		sets = append(sets, "output_data = ?")
		args = append(args, string(update.OutputData))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE agent_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*AgentRun, error) {
	var where []string
	var args []any

	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.MatterID != "" {
		where = append(where, "matter_id = ?")
		args = append(args, filter.MatterID)
	}
	if filter.TriggeredBy != "" {
		where = append(where, "triggered_by = ?")
		args = append(args, filter.TriggeredBy)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM agent_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
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

	var runs []*AgentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row scanner) (*AgentRun, error) {
	run := &AgentRun{}
	var (
		matterID, triggeredBy, errMsg sql.NullString
		inputJSON, outputJSON, ovJSON sql.NullString
		status                        string
		startedAt, completedAt        sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.AgentID, &matterID, &triggeredBy, &status,
		&inputJSON, &outputJSON, &ovJSON, &errMsg,
		&run.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	run.MatterID = matterID.String
	run.TriggeredBy = triggeredBy.String
	run.Status = schema.RunStatus(status)
	run.Error = errMsg.String
	if inputJSON.Valid && inputJSON.String != "" {
		_ = json.Unmarshal([]byte(inputJSON.String), &run.InputData)
	}
	run.OutputData = rawOrNil(outputJSON)
	run.Overrides = rawOrNil(ovJSON)
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// --- Tasks ---

func (s *LibSQLStore) CreateTask(ctx context.Context, task *AgentTask) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_tasks (id, run_id, position, task_name, status, output, error, created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.RunID, task.Position, task.TaskName, string(task.Status),
		nullRaw(task.Output), nullStr(task.Error),
		timeOrNow(task.CreatedAt), nullTime(task.StartedAt), nullTime(task.CompletedAt),
	)
	return err
}

const taskColumns = `id, run_id, position, task_name, status, output, error, created_at, started_at, completed_at`

func (s *LibSQLStore) GetTask(ctx context.Context, id string) (*AgentTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM agent_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("task", id)
	}
	return task, err
}

func (s *LibSQLStore) UpdateTask(ctx context.Context, id string, update TaskUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, string(update.Output))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE agent_tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "task", id)
}

func (s *LibSQLStore) ListTasks(ctx context.Context, runID string) ([]*AgentTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM agent_tasks WHERE run_id = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*AgentTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *LibSQLStore) SkipPendingTasks(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agent_tasks SET status = ?, completed_at = CURRENT_TIMESTAMP
		 WHERE run_id = ? AND status IN (?, ?)`,
		string(schema.TaskStatusSkipped), runID,
		string(schema.TaskStatusPending), string(schema.TaskStatusRunning),
	)
	return err
}

func scanTask(row scanner) (*AgentTask, error) {
	task := &AgentTask{}
	var (
		outputJSON, errMsg     sql.NullString
		status                 string
		startedAt, completedAt sql.NullTime
	)
	if err := row.Scan(&task.ID, &task.RunID, &task.Position, &task.TaskName, &status,
		&outputJSON, &errMsg, &task.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	task.Status = schema.TaskStatus(status)
	task.Output = rawOrNil(outputJSON)
	task.Error = errMsg.String
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return task, nil
}

// --- Matter events ---

func (s *LibSQLStore) CreateEvent(ctx context.Context, event *MatterEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO matter_events (id, matter_id, title, event_date, event_type, is_deadline, is_completed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.MatterID, event.Title, event.EventDate, event.EventType,
		boolInt(event.IsDeadline), boolInt(event.IsCompleted), timeOrNow(event.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) ListEvents(ctx context.Context, filter EventFilter) ([]*MatterEvent, error) {
	var where []string
	var args []any

	if filter.MatterID != "" {
		where = append(where, "matter_id = ?")
		args = append(args, filter.MatterID)
	}
	if filter.DeadlineOnly {
		where = append(where, "is_deadline = 1")
	}
	if filter.Incomplete {
		where = append(where, "is_completed = 0")
	}
	if filter.DateOnBefore != "" {
		where = append(where, "event_date <= ?")
		args = append(args, filter.DateOnBefore)
	}

	query := `SELECT id, matter_id, title, event_date, event_type, is_deadline, is_completed, created_at FROM matter_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY event_date ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*MatterEvent
	for rows.Next() {
		e := &MatterEvent{}
		var isDeadline, isCompleted int
		if err := rows.Scan(&e.ID, &e.MatterID, &e.Title, &e.EventDate, &e.EventType,
			&isDeadline, &isCompleted, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.IsDeadline = isDeadline != 0
		e.IsCompleted = isCompleted != 0
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Matter sources ---

func (s *LibSQLStore) ListSources(ctx context.Context, matterID string, limit int) ([]*MatterSource, error) {
	query := `SELECT id, matter_id, source_name, summary, created_at FROM matter_sources WHERE matter_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, matterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*MatterSource
	for rows.Next() {
		src := &MatterSource{}
		var summary sql.NullString
		if err := rows.Scan(&src.ID, &src.MatterID, &src.SourceName, &summary, &src.CreatedAt); err != nil {
			return nil, err
		}
		src.Summary = summary.String
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// --- Matter team ---

func (s *LibSQLStore) ListTeamUserIDs(ctx context.Context, matterID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM matter_team WHERE matter_id = ?`, matterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Notifications ---

func (s *LibSQLStore) CreateNotification(ctx context.Context, n *Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, message, priority, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Message, n.Priority, boolInt(n.Read), timeOrNow(n.CreatedAt),
	)
	return err
}

// --- Document templates ---

func (s *LibSQLStore) GetTemplate(ctx context.Context, id string) (*DocumentTemplate, error) {
	t := &DocumentTemplate{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, content, created_at FROM document_templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Content, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("document_template", id)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.AgentError {
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

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalSliceOrNil(s []string) (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}
