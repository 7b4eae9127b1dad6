// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package collect

import (
	"context"
	"errors"
	"time"

	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/tasks"
)

// defaultPollInterval is how often the dispatcher looks for pending work.
const defaultPollInterval = 5 * time.Second

// Dispatcher polls the task queue and runs claimed tasks on the engine,
// one at a time. It runs as a supervised service.
type Dispatcher struct {
	engine  *Engine
	manager *tasks.Manager
	poll    time.Duration
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(engine *Engine, manager *tasks.Manager, poll time.Duration) *Dispatcher {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Dispatcher{engine: engine, manager: manager, poll: poll}
}

// Serve claims and executes pending tasks until the context ends.
func (d *Dispatcher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.RunNext(ctx)
		}
	}
}

// RunNext claims the best pending task and runs it to termination. An
// empty queue and an occupied running slot are quiet no-ops.
func (d *Dispatcher) RunNext(ctx context.Context) {
	task, err := d.manager.ClaimNext(ctx)
	if errors.Is(err, database.ErrTaskNotFound) || errors.Is(err, tasks.ErrTaskAlreadyRunning) {
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("Task claim failed")
		return
	}

	if err := d.engine.Run(ctx, task); err != nil {
		logging.Error().Err(err).Str("task_id", task.ID).Msg("Collection task failed")
	}
}

func (d *Dispatcher) String() string { return "collect.dispatcher" }
