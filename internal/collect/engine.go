// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package collect runs collection tasks: it walks upstream sources page by
// page, fetches detail records in batches and feeds them through the
// catalog ingest pipeline, honoring pause and cancel requests at page
// boundaries so interrupted tasks resume from their checkpoint.
package collect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vodhive/vodhive/internal/catalog"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/health"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/metrics"
	"github.com/vodhive/vodhive/internal/models"
	"github.com/vodhive/vodhive/internal/parser"
	"github.com/vodhive/vodhive/internal/tasks"
	"github.com/vodhive/vodhive/internal/upstream"
)

// Engine executes claimed collection tasks. Retries, pacing and circuit
// breaking on individual requests live in the upstream client; the engine
// decides what to fetch and what to do with the result.
type Engine struct {
	db      *database.DB
	store   *catalog.Store
	client  *upstream.Client
	manager *tasks.Manager
	health  *health.Tracker
	cfg     config.CollectConfig
}

// New builds an Engine. health may be nil; fetch outcomes are then not
// folded into source health records.
func New(db *database.DB, store *catalog.Store, client *upstream.Client, manager *tasks.Manager, health *health.Tracker, cfg config.CollectConfig) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.ProgressUpdateInterval <= 0 {
		cfg.ProgressUpdateInterval = 20
	}
	return &Engine{db: db, store: store, client: client, manager: manager, health: health, cfg: cfg}
}

// runState carries the mutable crawl position and counters for one Run.
type runState struct {
	task        *models.Task
	logs        *logBuffer
	progress    models.TaskProgress
	sourceTotal int
	halted      bool
}

// Run executes one running task to termination. It resumes from the
// task's checkpoint when present, and returns nil when the task was
// paused or cancelled mid-crawl: that is an orderly stop, not a failure.
func (e *Engine) Run(ctx context.Context, task *models.Task) (err error) {
	metrics.CollectTasksActive.Inc()
	start := time.Now()
	st := &runState{
		task:     task,
		logs:     newLogBuffer(e.db, task.ID, e.cfg.LogBufferSize, e.cfg.LogFlushInterval),
		progress: task.Progress,
	}
	defer func() {
		metrics.CollectTasksActive.Dec()
		metrics.CollectTaskDuration.Observe(time.Since(start).Seconds())
		st.logs.flush(ctx)
		if r := recover(); r != nil {
			err = fmt.Errorf("collect: task panicked: %v", r)
		}
		if err != nil {
			if _, ferr := e.manager.UpdateStatus(ctx, task.ID, models.TaskFailed, err.Error()); ferr != nil {
				logging.Error().Err(ferr).Str("task_id", task.ID).Msg("Failed to mark task failed")
			}
		}
	}()

	sources, err := e.resolveSources(ctx, task.Config.SourceIDs)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		// Nothing to crawl is a clean no-op run, not a failure.
		st.logs.info(ctx, "complete", "no usable sources", "")
		return e.finish(ctx, st)
	}
	st.sourceTotal = len(sources)

	startIdx, resumePage := 0, 0
	if cp := task.Checkpoint; cp != nil {
		startIdx, resumePage = cp.SourceIndex, cp.Page
		if startIdx >= len(sources) {
			startIdx, resumePage = 0, 0
		}
		st.logs.info(ctx, "resume",
			fmt.Sprintf("resuming at source %d page %d", startIdx, resumePage), "")
	}

	logging.Info().
		Str("task_id", task.ID).
		Str("kind", string(task.Kind)).
		Int("sources", len(sources)).
		Msg("Collection task started")

	for si := startIdx; si < len(sources); si++ {
		src := sources[si]
		firstPage := task.Config.PageStart
		if firstPage <= 0 {
			firstPage = 1
		}
		if si == startIdx && resumePage > firstPage {
			firstPage = resumePage
		}

		if err := e.crawlSource(ctx, st, si, src, firstPage); err != nil {
			return err
		}
		if st.halted || e.reachedCap(st) {
			return nil
		}
	}

	if err := e.finish(ctx, st); err != nil {
		return err
	}
	st.logs.info(ctx, "complete", fmt.Sprintf(
		"processed %d videos: %d new, %d updated, %d skipped, %d errors",
		st.progress.Processed, st.progress.New, st.progress.Updated,
		st.progress.Skipped, st.progress.Errors), "")
	return nil
}

// crawlSource walks one source's categories and pages in ascending order.
// Fetch failures on a category are logged and the crawl moves on; only
// storage errors abort the task.
func (e *Engine) crawlSource(ctx context.Context, st *runState, sourceIdx int, src *models.Source, firstPage int) error {
	st.progress.CurrentSourceID = src.ID
	st.progress.CurrentSource = src.Name
	st.logs.info(ctx, "source_start", "crawl started", src.Name)

	categories := st.task.Config.CategoryIDs
	if len(categories) == 0 {
		categories = []int{0} // all categories in one sweep
	}

	for ci, category := range categories {
		page := firstPage
		if ci > 0 {
			// The checkpoint page only applies to the category it was
			// taken in; later categories restart at the configured page.
			page = max(st.task.Config.PageStart, 1)
		}

		for {
			halted, err := e.checkControl(ctx, st, sourceIdx, page)
			if err != nil {
				return err
			}
			if halted {
				return nil
			}

			start := time.Now()
			list, err := e.client.FetchList(ctx, src, upstream.ListOptions{Page: page, TypeID: category})
			e.recordHealth(ctx, src, time.Since(start), err)
			if err != nil {
				st.progress.Errors++
				st.logs.errorf(ctx, "fetch_list",
					fmt.Sprintf("page %d: %v", page, err), src.Name)
				break
			}
			if len(list.List) == 0 {
				break
			}

			st.progress.CurrentPage = page
			st.progress.TotalPages = list.PageCount
			if err := e.processPage(ctx, st, src, list.List); err != nil {
				return err
			}
			e.updatePercent(st, sourceIdx, page, list.PageCount)
			if err := e.persistProgress(ctx, st, sourceIdx, page); err != nil {
				return err
			}
			if st.halted {
				return nil
			}

			if e.reachedCap(st) {
				st.logs.info(ctx, "cap",
					fmt.Sprintf("max videos reached at %d", st.progress.Processed), src.Name)
				return e.finishCapped(ctx, st)
			}

			page++
			if end := st.task.Config.PageEnd; end > 0 && page > end {
				break
			}
			if list.PageCount > 0 && page > list.PageCount {
				break
			}
			if e.cfg.BatchDelay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(e.cfg.BatchDelay):
				}
			}
		}
	}

	st.logs.info(ctx, "source_done", "crawl finished", src.Name)
	return nil
}

// processPage ingests one page of list rows. Detail records are fetched in
// id batches; rows whose detail fetch fails fall back to the thinner list
// payload rather than being dropped.
func (e *Engine) processPage(ctx context.Context, st *runState, src *models.Source, rows []parser.Video) error {
	details := make(map[string]parser.Video, len(rows))
	for i := 0; i < len(rows); i += e.cfg.BatchSize {
		chunk := rows[i:min(i+e.cfg.BatchSize, len(rows))]
		ids := make([]string, 0, len(chunk))
		for _, r := range chunk {
			if r.ID != "" {
				ids = append(ids, r.ID)
			}
		}

		start := time.Now()
		detail, err := e.client.FetchDetail(ctx, src, ids)
		e.recordHealth(ctx, src, time.Since(start), err)
		if err != nil {
			st.logs.errorf(ctx, "fetch_detail",
				fmt.Sprintf("batch of %d: %v", len(ids), err), src.Name)
		} else {
			for _, d := range detail.List {
				details[d.ID] = d
			}
		}

		if i+e.cfg.BatchSize < len(rows) && e.cfg.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.RequestDelay):
			}
		}
	}

	for _, row := range rows {
		pv := row
		if d, ok := details[row.ID]; ok {
			pv = d
		}

		result, v, err := e.store.Ingest(ctx, src, pv, st.task.Config.SkipExisting)
		st.progress.Processed++
		if err != nil {
			st.progress.Errors++
			st.logs.add(ctx, models.CollectLog{
				Level: "error", Action: "ingest", Message: err.Error(),
				SourceName: src.Name, VideoName: pv.Name,
			})
			continue
		}
		switch result {
		case catalog.ResultInserted:
			st.progress.New++
			st.logs.video(ctx, "insert", src.Name, v.VideoID, v.Name)
		case catalog.ResultMerged:
			st.progress.Updated++
		case catalog.ResultSkipped:
			st.progress.Skipped++
		}
		if v != nil {
			st.task.Checkpoint = &models.TaskCheckpoint{LastVideoID: v.VideoID}
		}

		// Mid-page snapshot so long pages still show live counters.
		if st.progress.Processed%e.cfg.ProgressUpdateInterval == 0 {
			if err := e.manager.UpdateProgress(ctx, st.task.ID, st.progress, nil); err != nil {
				if errors.Is(err, tasks.ErrTaskTerminal) {
					st.halted = true
					return nil
				}
				return err
			}
		}
	}
	return nil
}

// checkControl re-reads the task at a page boundary and honors pause and
// cancel requests. Pausing persists the checkpoint so Resume continues
// where the crawl stopped; a cancel also records the stop position even
// though the row is already terminal.
func (e *Engine) checkControl(ctx context.Context, st *runState, sourceIdx, page int) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	current, err := e.manager.Get(ctx, st.task.ID)
	if err != nil {
		return false, err
	}

	switch current.Status {
	case models.TaskRunning:
		return false, nil
	case models.TaskPaused:
		cp := e.checkpoint(st, sourceIdx, page)
		if err := e.manager.UpdateProgress(ctx, st.task.ID, st.progress, cp); err != nil {
			logging.Error().Err(err).Str("task_id", st.task.ID).Msg("Failed to persist pause checkpoint")
		}
		st.logs.info(ctx, "pause",
			fmt.Sprintf("paused at source %d page %d", sourceIdx, page), "")
		st.halted = true
		return true, nil
	case models.TaskCancelled:
		// The row is terminal already; record where the crawl stopped so
		// the final checkpoint is inspectable.
		if err := e.manager.SaveCheckpoint(ctx, st.task.ID, st.progress, e.checkpoint(st, sourceIdx, page)); err != nil {
			logging.Error().Err(err).Str("task_id", st.task.ID).Msg("Failed to record cancel checkpoint")
		}
		st.logs.info(ctx, "cancel",
			fmt.Sprintf("cancelled at source %d page %d", sourceIdx, page), "")
		st.halted = true
		return true, nil
	default:
		// Externally forced into a terminal state; stop quietly.
		st.halted = true
		return true, nil
	}
}

// resolveSources returns the task's explicit sources, or every currently
// usable source when the task named none.
func (e *Engine) resolveSources(ctx context.Context, ids []int64) ([]*models.Source, error) {
	if len(ids) == 0 {
		if e.health != nil {
			return e.health.HealthySources(ctx)
		}
		return e.db.ListSources(ctx, true)
	}

	all, err := e.db.ListSources(ctx, true)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []*models.Source
	for _, src := range all {
		if wanted[src.ID] {
			out = append(out, src)
		}
	}
	return out, nil
}

func (e *Engine) recordHealth(ctx context.Context, src *models.Source, elapsed time.Duration, err error) {
	if e.health != nil {
		e.health.Record(ctx, src, elapsed, err)
	}
}

// reachedCap reports whether the task hit its MaxVideos limit. The cap is
// checked after each page so the final page always completes.
func (e *Engine) reachedCap(st *runState) bool {
	limit := st.task.Config.MaxVideos
	return limit > 0 && st.progress.Processed >= limit
}

// finishCapped completes a task that stopped at its MaxVideos limit.
func (e *Engine) finishCapped(ctx context.Context, st *runState) error {
	st.halted = true
	return e.finish(ctx, st)
}

// finish marks the task completed with a full progress bar. A cancel that
// landed just before completion wins: the terminal state stays cancelled
// and finish reports success.
func (e *Engine) finish(ctx context.Context, st *runState) error {
	st.progress.Percent = 100
	if err := e.manager.UpdateProgress(ctx, st.task.ID, st.progress, nil); err != nil {
		if errors.Is(err, tasks.ErrTaskTerminal) {
			return nil
		}
		return err
	}
	if _, err := e.manager.UpdateStatus(ctx, st.task.ID, models.TaskCompleted, ""); err != nil {
		if errors.Is(err, tasks.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	return nil
}

// updatePercent estimates overall completion from the crawl position. The
// page dimension dominates within a source; sources weight equally.
func (e *Engine) updatePercent(st *runState, sourceIdx, page, totalPages int) {
	sources := st.sourceTotal
	if sources == 0 {
		sources = 1
	}
	pageFrac := 1.0
	if totalPages > 0 {
		pageFrac = float64(page) / float64(totalPages)
	}
	st.progress.Percent = (float64(sourceIdx) + pageFrac) / float64(sources) * 100
	if st.progress.Percent > 100 {
		st.progress.Percent = 100
	}
}

// persistProgress writes a progress snapshot with the next-page checkpoint
// after each completed page. A task interrupted without an orderly pause
// therefore restarts at most one page back. A cancel landing between
// boundary checks surfaces here as ErrTaskTerminal: the snapshot still
// lands on the terminal row and the crawl halts cleanly.
func (e *Engine) persistProgress(ctx context.Context, st *runState, sourceIdx, page int) error {
	cp := e.checkpoint(st, sourceIdx, page+1)
	err := e.manager.UpdateProgress(ctx, st.task.ID, st.progress, cp)
	if errors.Is(err, tasks.ErrTaskTerminal) {
		st.halted = true
		return e.manager.SaveCheckpoint(ctx, st.task.ID, st.progress, cp)
	}
	return err
}

func (e *Engine) checkpoint(st *runState, sourceIdx, page int) *models.TaskCheckpoint {
	cp := &models.TaskCheckpoint{
		SourceIndex: sourceIdx,
		Page:        page,
		Timestamp:   time.Now(),
	}
	if prev := st.task.Checkpoint; prev != nil {
		cp.LastVideoID = prev.LastVideoID
	}
	return cp
}
