// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package tasks manages collection task lifecycle: creation, the status
// state machine, progress snapshots, checkpoints and retention.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/models"
)

// ErrInvalidTransition is returned for a status change the state machine
// forbids, such as resuming a completed task.
var ErrInvalidTransition = errors.New("tasks: invalid status transition")

// ErrTaskAlreadyRunning is returned when a claim would violate the
// one-running-task rule.
var ErrTaskAlreadyRunning = errors.New("tasks: another task is already running")

// ErrTaskTerminal is returned when a progress update targets a task that
// already reached a terminal state, typically a cancel landing between the
// engine's page-boundary checks.
var ErrTaskTerminal = errors.New("tasks: task is in a terminal state")

// Store is the persistence surface the manager needs. *database.DB
// satisfies it.
type Store interface {
	InsertTask(ctx context.Context, t *models.Task) error
	UpdateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, f database.TaskFilter) ([]*models.Task, error)
	NextPendingTask(ctx context.Context) (*models.Task, error)
	CountRunningTasks(ctx context.Context) (int, error)
	DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Manager owns task rows. Claim and status updates are serialized under a
// single mutex so concurrent dispatchers cannot double-run a task.
type Manager struct {
	mu    sync.Mutex
	store Store
}

// New builds a Manager.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// Create validates and persists a new pending task.
func (m *Manager) Create(ctx context.Context, kind models.TaskKind, priority int, cfg models.TaskConfig) (*models.Task, error) {
	switch kind {
	case models.TaskKindFull, models.TaskKindIncremental, models.TaskKindCategory,
		models.TaskKindSource, models.TaskKindShorts:
	default:
		return nil, fmt.Errorf("tasks: unknown kind %q", kind)
	}
	if priority < 1 || priority > 10 {
		priority = 5
	}
	if cfg.PageStart <= 0 {
		cfg.PageStart = 1
	}
	if cfg.PageEnd == 0 {
		cfg.PageEnd = -1 // all pages
	}

	t := &models.Task{
		Kind:     kind,
		Status:   models.TaskPending,
		Priority: priority,
		Config:   cfg,
	}
	if err := m.store.InsertTask(ctx, t); err != nil {
		return nil, err
	}

	logging.Info().
		Str("task_id", t.ID).
		Str("kind", string(kind)).
		Int("priority", priority).
		Msg("Collection task created")
	return t, nil
}

// Get fetches one task.
func (m *Manager) Get(ctx context.Context, id string) (*models.Task, error) {
	return m.store.GetTask(ctx, id)
}

// List returns tasks matching the filter, newest first.
func (m *Manager) List(ctx context.Context, f database.TaskFilter) ([]*models.Task, error) {
	return m.store.ListTasks(ctx, f)
}

// ClaimNext atomically promotes the best pending task to running. Returns
// database.ErrTaskNotFound when the queue is empty and
// ErrTaskAlreadyRunning while another task holds the slot.
func (m *Manager) ClaimNext(ctx context.Context) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	running, err := m.store.CountRunningTasks(ctx)
	if err != nil {
		return nil, err
	}
	if running > 0 {
		return nil, ErrTaskAlreadyRunning
	}

	t, err := m.store.NextPendingTask(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	t.Status = models.TaskRunning
	t.StartedAt = &now
	if err := m.store.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateStatus applies a state machine transition.
func (m *Manager) UpdateStatus(ctx context.Context, id string, next models.TaskStatus, lastError string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(ctx, id, next, lastError)
}

// Pause suspends a running task. The engine writes its checkpoint
// separately via UpdateProgress before pausing.
func (m *Manager) Pause(ctx context.Context, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(ctx, id, models.TaskPaused, "")
}

// Resume moves a paused task back to pending so the dispatcher picks it up
// and continues from its checkpoint.
func (m *Manager) Resume(ctx context.Context, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(ctx, id, models.TaskPending, "")
}

// Cancel terminates a pending, running or paused task.
func (m *Manager) Cancel(ctx context.Context, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(ctx, id, models.TaskCancelled, "")
}

// UpdateProgress persists a progress snapshot and optional checkpoint for a
// running task. Percent is clamped to [0,100]. Returns ErrTaskTerminal when
// the task already reached a terminal state.
func (m *Manager) UpdateProgress(ctx context.Context, id string, p models.TaskProgress, cp *models.TaskCheckpoint) error {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTaskTerminal, t.Status)
	}
	return m.saveProgress(ctx, t, p, cp)
}

// SaveCheckpoint persists a final progress snapshot and checkpoint without
// the terminal-state guard. The engine calls it when it observes a cancel,
// so the stop position stays on the terminal row for inspection.
func (m *Manager) SaveCheckpoint(ctx context.Context, id string, p models.TaskProgress, cp *models.TaskCheckpoint) error {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	return m.saveProgress(ctx, t, p, cp)
}

func (m *Manager) saveProgress(ctx context.Context, t *models.Task, p models.TaskProgress, cp *models.TaskCheckpoint) error {
	if p.Percent < 0 {
		p.Percent = 0
	} else if p.Percent > 100 {
		p.Percent = 100
	}
	t.Progress = p
	if cp != nil {
		t.Checkpoint = cp
	}
	return m.store.UpdateTask(ctx, t)
}

// CleanupOld removes terminal tasks older than retention.
func (m *Manager) CleanupOld(ctx context.Context, retention time.Duration) (int, error) {
	removed, err := m.store.DeleteTasksBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logging.Info().Int("removed", removed).Msg("Pruned old collection tasks")
	}
	return removed, nil
}

func (m *Manager) transition(ctx context.Context, id string, next models.TaskStatus, lastError string) (*models.Task, error) {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, t.Status, next)
	}

	now := time.Now()
	prev := t.Status
	t.Status = next
	switch next {
	case models.TaskRunning:
		t.StartedAt = &now
	case models.TaskPaused:
		t.PausedAt = &now
	case models.TaskCompleted, models.TaskFailed, models.TaskCancelled:
		t.CompletedAt = &now
	}
	if lastError != "" {
		t.LastError = lastError
	}

	if err := m.store.UpdateTask(ctx, t); err != nil {
		return nil, err
	}

	logging.Info().
		Str("task_id", id).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("Task status changed")
	return t, nil
}
