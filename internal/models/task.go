// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package models

import "time"

// TaskKind selects what a collection task crawls.
type TaskKind string

const (
	TaskKindFull        TaskKind = "full"
	TaskKindIncremental TaskKind = "incremental"
	TaskKindCategory    TaskKind = "category"
	TaskKindSource      TaskKind = "source"
	TaskKindShorts      TaskKind = "shorts"
)

// TaskStatus is the collection task state machine state.
//
// Transitions: pending → running → (paused → pending | completed | failed |
// cancelled). Terminal states (completed, failed, cancelled) never
// transition again.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status never transitions again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits s → next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskRunning || next == TaskCancelled
	case TaskRunning:
		return next == TaskPaused || next == TaskCompleted ||
			next == TaskFailed || next == TaskCancelled
	case TaskPaused:
		// Resume routes through pending so the dispatcher relaunches it.
		return next == TaskPending || next == TaskCancelled
	default:
		return false
	}
}

// TaskConfig narrows what a task crawls. Zero values mean "no restriction".
type TaskConfig struct {
	// SourceIDs limits the crawl to these sources; empty means all healthy
	// sources.
	SourceIDs []int64 `json:"source_ids,omitempty"`

	// CategoryIDs limits list fetches to these upstream category ids.
	CategoryIDs []int `json:"category_ids,omitempty"`

	// PageStart is the first page (1-based). PageEnd of -1 means all pages.
	PageStart int `json:"page_start,omitempty"`
	PageEnd   int `json:"page_end,omitempty"`

	// MaxVideos caps processed videos; 0 means unlimited. Whichever of
	// PageEnd and MaxVideos fires first terminates the crawl.
	MaxVideos int `json:"max_videos,omitempty"`

	// SkipExisting skips detail fetch and merge for already-known ids.
	SkipExisting bool `json:"skip_existing,omitempty"`
}

// TaskProgress is the rolling progress snapshot persisted with the task.
type TaskProgress struct {
	CurrentSourceID int64   `json:"current_source_id,omitempty"`
	CurrentSource   string  `json:"current_source,omitempty"`
	CurrentPage     int     `json:"current_page,omitempty"`
	TotalPages      int     `json:"total_pages,omitempty"`
	Processed       int     `json:"processed"`
	New             int     `json:"new"`
	Updated         int     `json:"updated"`
	Skipped         int     `json:"skipped"`
	Errors          int     `json:"errors"`
	Percent         float64 `json:"percent"`
}

// TaskCheckpoint records where a paused or cancelled task stopped so a
// relaunch resumes without reprocessing.
type TaskCheckpoint struct {
	SourceIndex int       `json:"source_index"`
	Page        int       `json:"page"`
	LastVideoID string    `json:"last_video_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Task is a persisted collection task. Rows are owned by the task manager.
type Task struct {
	ID          string          `json:"id"`
	Kind        TaskKind        `json:"kind"`
	Status      TaskStatus      `json:"status"`
	Priority    int             `json:"priority"` // 1-10, higher runs first
	Config      TaskConfig      `json:"config"`
	Progress    TaskProgress    `json:"progress"`
	Checkpoint  *TaskCheckpoint `json:"checkpoint,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	PausedAt    *time.Time      `json:"paused_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// CollectLog is an append-only structured log entry for a task. Entries are
// buffered in memory and flushed in batches; retention is 7 days.
type CollectLog struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	Level      string    `json:"level"`
	Action     string    `json:"action"`
	Message    string    `json:"message"`
	SourceName string    `json:"source_name,omitempty"`
	VideoID    string    `json:"video_id,omitempty"`
	VideoName  string    `json:"video_name,omitempty"`
	Details    string    `json:"details,omitempty"` // JSON document
	CreatedAt  time.Time `json:"created_at"`
}
