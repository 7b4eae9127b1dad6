// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package collect

import (
	"context"
	"sync"
	"time"

	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/models"
)

// logSink persists buffered collect logs. *database.DB satisfies it.
type logSink interface {
	InsertCollectLogs(ctx context.Context, entries []*models.CollectLog) error
}

// logBuffer batches per-task collect logs so a busy crawl does not issue a
// DB write per processed video. Entries flush when the buffer fills, when
// the flush interval elapses, and at task termination.
type logBuffer struct {
	sink     logSink
	taskID   string
	size     int
	interval time.Duration

	mu        sync.Mutex
	entries   []*models.CollectLog
	lastFlush time.Time
}

func newLogBuffer(sink logSink, taskID string, size int, interval time.Duration) *logBuffer {
	if size <= 0 {
		size = 20
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &logBuffer{
		sink:      sink,
		taskID:    taskID,
		size:      size,
		interval:  interval,
		lastFlush: time.Now(),
	}
}

// add buffers one entry, flushing when the batch is due.
func (b *logBuffer) add(ctx context.Context, entry models.CollectLog) {
	entry.TaskID = b.taskID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	b.mu.Lock()
	b.entries = append(b.entries, &entry)
	due := len(b.entries) >= b.size || time.Since(b.lastFlush) >= b.interval
	b.mu.Unlock()

	if due {
		b.flush(ctx)
	}
}

func (b *logBuffer) info(ctx context.Context, action, message, sourceName string) {
	b.add(ctx, models.CollectLog{
		Level: "info", Action: action, Message: message, SourceName: sourceName,
	})
}

func (b *logBuffer) errorf(ctx context.Context, action, message, sourceName string) {
	b.add(ctx, models.CollectLog{
		Level: "error", Action: action, Message: message, SourceName: sourceName,
	})
}

func (b *logBuffer) video(ctx context.Context, action, sourceName, videoID, videoName string) {
	b.add(ctx, models.CollectLog{
		Level: "info", Action: action, SourceName: sourceName,
		VideoID: videoID, VideoName: videoName,
	})
}

// flush writes the buffered entries. Failed batches are dropped after
// logging; collect logs are diagnostics, not ledger data.
func (b *logBuffer) flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.entries) == 0 {
		b.lastFlush = time.Now()
		b.mu.Unlock()
		return
	}
	batch := b.entries
	b.entries = nil
	b.lastFlush = time.Now()
	b.mu.Unlock()

	if err := b.sink.InsertCollectLogs(ctx, batch); err != nil {
		logging.Error().Err(err).Str("task_id", b.taskID).
			Int("dropped", len(batch)).Msg("Collect log flush failed")
	}
}
