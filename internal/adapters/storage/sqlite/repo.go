// Package sqlite implements the authoritative store on a local SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/habitaworks/habita/internal/app"
	"github.com/habitaworks/habita/internal/domain"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Repository persists the workforce domain in SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (creating when missing) the database at path.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database, used by tests and the
// embedded single-binary mode.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS workers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'worker',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS work_items (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			priority TEXT NOT NULL,
			scheduled_start TEXT NOT NULL,
			scheduled_end TEXT NOT NULL,
			actual_start TEXT,
			actual_end TEXT,
			subtasks_json TEXT NOT NULL DEFAULT '[]',
			costs_json TEXT NOT NULL DEFAULT '[]',
			assignees_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attendance (
			worker_id TEXT NOT NULL,
			day TEXT NOT NULL,
			check_in TEXT,
			check_out TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (worker_id, day),
			FOREIGN KEY(worker_id) REFERENCES workers(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_status_actual_end ON work_items(status, actual_end);`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_worker_open ON attendance(worker_id, check_out);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

const workItemColumns = `id, title, description, category, status, priority, scheduled_start, scheduled_end, actual_start, actual_end, subtasks_json, costs_json, assignees_json, created_at, updated_at`

// CreateWorkItem inserts a work item.
func (r *Repository) CreateWorkItem(ctx context.Context, item domain.WorkItem) error {
	subtasks, costs, assignees, err := encodeWorkItemJSON(item)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO work_items(`+workItemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Title, item.Description, item.Category, string(item.Status), string(item.Priority),
		ts(item.ScheduledStart), ts(item.ScheduledEnd), nullableTS(item.ActualStart), nullableTS(item.ActualEnd),
		subtasks, costs, assignees, ts(item.CreatedAt), ts(item.UpdatedAt))
	return err
}

// UpdateWorkItem replaces a stored work item.
func (r *Repository) UpdateWorkItem(ctx context.Context, item domain.WorkItem) error {
	subtasks, costs, assignees, err := encodeWorkItemJSON(item)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE work_items
		SET title = ?, description = ?, category = ?, status = ?, priority = ?,
			scheduled_start = ?, scheduled_end = ?, actual_start = ?, actual_end = ?,
			subtasks_json = ?, costs_json = ?, assignees_json = ?, updated_at = ?
		WHERE id = ?
	`, item.Title, item.Description, item.Category, string(item.Status), string(item.Priority),
		ts(item.ScheduledStart), ts(item.ScheduledEnd), nullableTS(item.ActualStart), nullableTS(item.ActualEnd),
		subtasks, costs, assignees, ts(item.UpdatedAt), item.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetWorkItem returns one work item.
func (r *Repository) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+workItemColumns+` FROM work_items WHERE id = ?
	`, id)
	return scanWorkItem(row)
}

// ListWorkItems returns items matching the filter, newest first. The
// assignee filter matches in Go because assignees are a JSON column.
func (r *Repository) ListWorkItems(ctx context.Context, filter app.WorkItemFilter) ([]domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		if filter.AssignedTo != "" && !item.AssignedTo(filter.AssignedTo) {
			continue
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DeleteWorkItem removes a work item permanently.
func (r *Repository) DeleteWorkItem(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListCompletedBetween returns completed items whose actual end falls inside
// the window, ordered ascending. Timestamps are stored as second-precision
// RFC3339 UTC strings, so lexicographic comparison matches chronological
// order.
func (r *Repository) ListCompletedBetween(ctx context.Context, start, end time.Time) ([]domain.WorkItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+workItemColumns+` FROM work_items
		WHERE status = ? AND actual_end IS NOT NULL AND actual_end >= ? AND actual_end <= ?
		ORDER BY actual_end ASC, id ASC
	`, string(domain.StatusCompleted), ts(start), ts(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// CreateWorker inserts a roster member.
func (r *Repository) CreateWorker(ctx context.Context, w domain.Worker) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workers(id, name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, w.ID, w.Name, string(w.Role), ts(w.CreatedAt), ts(w.UpdatedAt))
	return err
}

// GetWorker returns one roster member.
func (r *Repository) GetWorker(ctx context.Context, id string) (domain.Worker, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, role, created_at, updated_at FROM workers WHERE id = ?
	`, id)
	var (
		w          domain.Worker
		role       string
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(&w.ID, &w.Name, &role, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Worker{}, app.ErrNotFound
		}
		return domain.Worker{}, err
	}
	w.Role = domain.Role(role)
	w.CreatedAt = parseTS(createdRaw)
	w.UpdatedAt = parseTS(updatedRaw)
	return w, nil
}

// ListWorkers returns the roster ordered by name.
func (r *Repository) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, role, created_at, updated_at FROM workers ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Worker
	for rows.Next() {
		var (
			w          domain.Worker
			role       string
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&w.ID, &w.Name, &role, &createdRaw, &updatedRaw); err != nil {
			return nil, err
		}
		w.Role = domain.Role(role)
		w.CreatedAt = parseTS(createdRaw)
		w.UpdatedAt = parseTS(updatedRaw)
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetAttendance returns the worker's record for one day, nil when absent.
func (r *Repository) GetAttendance(ctx context.Context, workerID string, day time.Time) (*domain.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT worker_id, day, check_in, check_out, updated_at
		FROM attendance WHERE worker_id = ? AND day = ?
	`, workerID, dayKey(day))
	rec, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// GetOpenAttendance returns the worker's open session from any day, nil when
// everything is closed.
func (r *Repository) GetOpenAttendance(ctx context.Context, workerID string) (*domain.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT worker_id, day, check_in, check_out, updated_at
		FROM attendance
		WHERE worker_id = ? AND check_in IS NOT NULL AND check_out IS NULL
		ORDER BY day DESC LIMIT 1
	`, workerID)
	rec, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// SaveAttendance upserts the (worker, day) record.
func (r *Repository) SaveAttendance(ctx context.Context, rec domain.AttendanceRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance(worker_id, day, check_in, check_out, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, day) DO UPDATE SET
			check_in = excluded.check_in,
			check_out = excluded.check_out,
			updated_at = excluded.updated_at
	`, rec.WorkerID, dayKey(rec.Day), nullableTS(rec.CheckIn), nullableTS(rec.CheckOut), ts(rec.UpdatedAt))
	return err
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(s scanner) (domain.WorkItem, error) {
	var (
		item         domain.WorkItem
		status       string
		priority     string
		schedStart   string
		schedEnd     string
		actualStart  sql.NullString
		actualEnd    sql.NullString
		subtasksRaw  string
		costsRaw     string
		assigneesRaw string
		createdRaw   string
		updatedRaw   string
	)
	if err := s.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.Category,
		&status,
		&priority,
		&schedStart,
		&schedEnd,
		&actualStart,
		&actualEnd,
		&subtasksRaw,
		&costsRaw,
		&assigneesRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkItem{}, app.ErrNotFound
		}
		return domain.WorkItem{}, err
	}
	item.Status = domain.Status(status)
	item.Priority = domain.Priority(priority)
	item.ScheduledStart = parseTS(schedStart)
	item.ScheduledEnd = parseTS(schedEnd)
	item.ActualStart = parseNullTS(actualStart)
	item.ActualEnd = parseNullTS(actualEnd)
	if err := json.Unmarshal([]byte(orEmptyArray(subtasksRaw)), &item.Subtasks); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode subtasks_json: %w", err)
	}
	if err := json.Unmarshal([]byte(orEmptyArray(costsRaw)), &item.CostEntries); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode costs_json: %w", err)
	}
	if err := json.Unmarshal([]byte(orEmptyArray(assigneesRaw)), &item.AssignedWorkerIDs); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode assignees_json: %w", err)
	}
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	return item, nil
}

func scanAttendance(s scanner) (domain.AttendanceRecord, error) {
	var (
		rec        domain.AttendanceRecord
		dayRaw     string
		checkIn    sql.NullString
		checkOut   sql.NullString
		updatedRaw string
	)
	if err := s.Scan(&rec.WorkerID, &dayRaw, &checkIn, &checkOut, &updatedRaw); err != nil {
		return domain.AttendanceRecord{}, err
	}
	day, err := time.ParseInLocation("2006-01-02", dayRaw, time.UTC)
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("decode attendance day: %w", err)
	}
	rec.Day = day
	rec.CheckIn = parseNullTS(checkIn)
	rec.CheckOut = parseNullTS(checkOut)
	rec.UpdatedAt = parseTS(updatedRaw)
	return rec, nil
}

func encodeWorkItemJSON(item domain.WorkItem) (string, string, string, error) {
	subtasks, err := json.Marshal(emptyIfNilSubtasks(item.Subtasks))
	if err != nil {
		return "", "", "", fmt.Errorf("encode subtasks_json: %w", err)
	}
	costs, err := json.Marshal(emptyIfNilCosts(item.CostEntries))
	if err != nil {
		return "", "", "", fmt.Errorf("encode costs_json: %w", err)
	}
	assignees, err := json.Marshal(item.AssignedWorkerIDs)
	if err != nil {
		return "", "", "", fmt.Errorf("encode assignees_json: %w", err)
	}
	return string(subtasks), string(costs), string(assignees), nil
}

func emptyIfNilSubtasks(in []domain.Subtask) []domain.Subtask {
	if in == nil {
		return []domain.Subtask{}
	}
	return in
}

func emptyIfNilCosts(in []domain.CostEntry) []domain.CostEntry {
	if in == nil {
		return []domain.CostEntry{}
	}
	return in
}

func orEmptyArray(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "[]"
	}
	return raw
}

func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	parsed := parseTS(v.String)
	return &parsed
}

func dayKey(day time.Time) string {
	return day.UTC().Format("2006-01-02")
}
