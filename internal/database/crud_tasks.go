// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vodhive/vodhive/internal/models"
)

// ErrTaskNotFound is returned when a task id does not exist.
var ErrTaskNotFound = errors.New("database: task not found")

const taskColumns = `id, kind, status, priority, config, progress, checkpoint,
	last_error, created_at, started_at, paused_at, completed_at`

// TaskFilter selects task listings.
type TaskFilter struct {
	Status models.TaskStatus
	Kind   models.TaskKind
	Limit  int
	Offset int
}

// InsertTask persists a new task. A zero ID gets a fresh UUID.
func (db *DB) InsertTask(ctx context.Context, t *models.Task) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	cfg, prog, cp, err := marshalTaskBlobs(t)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Kind), string(t.Status), t.Priority, cfg, prog, cp, t.LastError,
		t.CreatedAt, nullTimePtr(t.StartedAt), nullTimePtr(t.PausedAt), nullTimePtr(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// UpdateTask writes back all mutable task fields.
func (db *DB) UpdateTask(ctx context.Context, t *models.Task) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	cfg, prog, cp, err := marshalTaskBlobs(t)
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, `
		UPDATE tasks SET kind = ?, status = ?, priority = ?, config = ?, progress = ?,
			checkpoint = ?, last_error = ?, started_at = ?, paused_at = ?, completed_at = ?
		WHERE id = ?`,
		string(t.Kind), string(t.Status), t.Priority, cfg, prog, cp, t.LastError,
		nullTimePtr(t.StartedAt), nullTimePtr(t.PausedAt), nullTimePtr(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// GetTask fetches one task by id.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// ListTasks returns tasks newest-first.
func (db *DB) ListTasks(ctx context.Context, f TaskFilter) ([]*models.Task, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var clauses []string
	var args []interface{}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(f.Kind))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks ` + buildWhereClause(clauses) +
		` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// NextPendingTask returns the highest-priority, oldest pending task, or
// ErrTaskNotFound when the queue is empty.
func (db *DB) NextPendingTask(ctx context.Context) (*models.Task, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ?
		 ORDER BY priority DESC, created_at ASC, id LIMIT 1`, string(models.TaskPending))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// CountRunningTasks returns how many tasks are currently running.
func (db *DB) CountRunningTasks(ctx context.Context) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = ?`, string(models.TaskRunning)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count running tasks: %w", err)
	}
	return n, nil
}

// DeleteTasksBefore removes terminal tasks that completed before the cutoff,
// along with their collect logs. Returns the number of tasks removed.
func (db *DB) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	terminal := []interface{}{
		string(models.TaskCompleted), string(models.TaskFailed), string(models.TaskCancelled),
	}

	var removed int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		args := append(append([]interface{}{}, terminal...), cutoff)
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM collect_logs WHERE task_id IN (
				SELECT id FROM tasks
				WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
			)`, args...); err != nil {
			return fmt.Errorf("failed to prune collect logs: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			DELETE FROM tasks
			WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
			args...)
		if err != nil {
			return fmt.Errorf("failed to prune tasks: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return int(removed), err
}

func marshalTaskBlobs(t *models.Task) (cfg, prog string, cp interface{}, err error) {
	b, err := json.Marshal(t.Config)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal task config: %w", err)
	}
	cfg = string(b)

	b, err = json.Marshal(t.Progress)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal task progress: %w", err)
	}
	prog = string(b)

	if t.Checkpoint == nil {
		return cfg, prog, nil, nil
	}
	b, err = json.Marshal(t.Checkpoint)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal task checkpoint: %w", err)
	}
	return cfg, prog, string(b), nil
}

func scanTask(s rowScanner) (*models.Task, error) {
	var t models.Task
	var kind, status, cfg, prog string
	var cp sql.NullString
	var started, paused, completed sql.NullTime

	err := s.Scan(&t.ID, &kind, &status, &t.Priority, &cfg, &prog, &cp,
		&t.LastError, &t.CreatedAt, &started, &paused, &completed)
	if err != nil {
		return nil, err
	}

	t.Kind = models.TaskKind(kind)
	t.Status = models.TaskStatus(status)
	if started.Valid {
		t.StartedAt = &started.Time
	}
	if paused.Valid {
		t.PausedAt = &paused.Time
	}
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	if err := json.Unmarshal([]byte(cfg), &t.Config); err != nil {
		return nil, fmt.Errorf("corrupt config for task %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(prog), &t.Progress); err != nil {
		return nil, fmt.Errorf("corrupt progress for task %s: %w", t.ID, err)
	}
	if cp.Valid && cp.String != "" {
		t.Checkpoint = &models.TaskCheckpoint{}
		if err := json.Unmarshal([]byte(cp.String), t.Checkpoint); err != nil {
			return nil, fmt.Errorf("corrupt checkpoint for task %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

func nullTimePtr(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
