package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/netsweep/internal/constants"
)

// SQLiteLedger implements Ledger using SQLite for persistence.
type SQLiteLedger struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteLedger opens (creating if needed) the ledger database in dir.
func NewSQLiteLedger(dir string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	dbPath := filepath.Join(dir, constants.LedgerFileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}, nil
}

// Path returns the database file path.
func (s *SQLiteLedger) Path() string { return s.dbPath }

// SavePlan stores a plan and its runs in one transaction.
func (s *SQLiteLedger) SavePlan(ctx context.Context, plan Plan, runs []Run) (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = s.now().UTC()
	}
	if plan.ConfigHash == "" {
		plan.ConfigHash = ConfigHash(plan.Config)
	}
	if err := validatePlan(plan, runs); err != nil {
		return Plan{}, fmt.Errorf("invalid plan: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM plans WHERE id = ?`, plan.ID).Scan(&exists)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to check plan: %w", err)
	}
	if exists > 0 {
		return Plan{}, fmt.Errorf("plan %s already exists", plan.ID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (id, name, source, config_hash, config, run_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.Name, nullString(plan.Source), plan.ConfigHash, string(plan.Config),
		plan.RunCount, formatTime(plan.CreatedAt))
	if err != nil {
		return Plan{}, fmt.Errorf("failed to insert plan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO runs (plan_id, run_index, experiment, repeat_index, label, spec,
			status, metrics, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to prepare run insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range runs {
		status := r.Status
		if status == "" {
			status = StatusPending
		}
		metrics, err := encodeMetrics(r.Metrics)
		if err != nil {
			return Plan{}, fmt.Errorf("run %d: %w", r.Index, err)
		}
		if _, err := stmt.ExecContext(ctx,
			plan.ID, r.Index, r.Experiment, r.Repeat, r.Label, string(r.Spec),
			string(status), metrics, nullString(r.Error),
			nullTime(r.StartedAt), nullTime(r.FinishedAt)); err != nil {
			return Plan{}, fmt.Errorf("failed to insert run %d: %w", r.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Plan{}, fmt.Errorf("failed to commit plan: %w", err)
	}
	return plan, nil
}

// GetPlan retrieves a plan by ID. Returns nil if not found.
func (s *SQLiteLedger) GetPlan(ctx context.Context, id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, config_hash, config, run_count, created_at
		FROM plans WHERE id = ?`, id)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %s: %w", id, err)
	}
	return &plan, nil
}

// ListPlans returns all plans, newest first.
func (s *SQLiteLedger) ListPlans(ctx context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source, config_hash, config, run_count, created_at
		FROM plans ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// DeletePlan removes a plan and, through the foreign key, its runs.
func (s *SQLiteLedger) DeletePlan(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("plan not found: %s", id)
	}
	return nil
}

// ListRuns returns a plan's runs in index order, optionally filtered by status.
func (s *SQLiteLedger) ListRuns(ctx context.Context, planID string, status RunStatus) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT plan_id, run_index, experiment, repeat_index, label, spec,
			status, metrics, error, started_at, finished_at
		FROM runs WHERE plan_id = ?`
	args := []any{planID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY run_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of runs in each status.
func (s *SQLiteLedger) CountRuns(ctx context.Context, planID string) (map[RunStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM runs WHERE plan_id = ? GROUP BY status`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan run count: %w", err)
		}
		counts[RunStatus(status)] = n
	}
	return counts, rows.Err()
}

// MarkRunning moves a run to running. Any earlier outcome is cleared.
func (s *SQLiteLedger) MarkRunning(ctx context.Context, planID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, metrics = NULL, error = NULL, started_at = ?, finished_at = NULL
		WHERE plan_id = ? AND run_index = ?`,
		string(StatusRunning), formatTime(s.now().UTC()), planID, index)
	if err != nil {
		return fmt.Errorf("failed to mark run %d running: %w", index, err)
	}
	return requireRow(res, planID, index)
}

// RecordResult stores a run's outcome.
func (s *SQLiteLedger) RecordResult(ctx context.Context, planID string, index int, out Outcome) error {
	if out.Status != StatusDone && out.Status != StatusFailed {
		return fmt.Errorf("outcome status must be done or failed, got %q", out.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metrics, err := encodeMetrics(out.Metrics)
	if err != nil {
		return fmt.Errorf("run %d: %w", index, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, metrics = ?, error = ?, finished_at = ?
		WHERE plan_id = ? AND run_index = ?`,
		string(out.Status), metrics, nullString(out.Error), formatTime(s.now().UTC()), planID, index)
	if err != nil {
		return fmt.Errorf("failed to record result for run %d: %w", index, err)
	}
	return requireRow(res, planID, index)
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (Plan, error) {
	var (
		plan      Plan
		source    sql.NullString
		config    string
		createdAt string
	)
	if err := row.Scan(&plan.ID, &plan.Name, &source, &plan.ConfigHash, &config, &plan.RunCount, &createdAt); err != nil {
		return Plan{}, err
	}
	plan.Source = source.String
	plan.Config = json.RawMessage(config)
	t, err := parseTime(createdAt)
	if err != nil {
		return Plan{}, err
	}
	plan.CreatedAt = t
	return plan, nil
}

func scanRun(row scanner) (Run, error) {
	var (
		r                   Run
		spec, status        string
		metrics, errText    sql.NullString
		startedAt, finished sql.NullString
	)
	if err := row.Scan(&r.PlanID, &r.Index, &r.Experiment, &r.Repeat, &r.Label, &spec,
		&status, &metrics, &errText, &startedAt, &finished); err != nil {
		return Run{}, err
	}
	r.Spec = json.RawMessage(spec)
	r.Status = RunStatus(status)
	r.Error = errText.String

	if metrics.Valid {
		if err := json.Unmarshal([]byte(metrics.String), &r.Metrics); err != nil {
			return Run{}, fmt.Errorf("run %d metrics: %w", r.Index, err)
		}
	}

	var err error
	if r.StartedAt, err = parseNullTime(startedAt); err != nil {
		return Run{}, err
	}
	if r.FinishedAt, err = parseNullTime(finished); err != nil {
		return Run{}, err
	}
	return r, nil
}

func requireRow(res sql.Result, planID string, index int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %d of plan %s not found", index, planID)
	}
	return nil
}

func encodeMetrics(m map[string]float64) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding metrics: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
