// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// Slog returns a *slog.Logger that forwards records to the global zerolog
// logger. Libraries that speak slog (the supervision tree's event hook)
// share the process's single log stream this way.
func Slog() *slog.Logger {
	return slog.New(slogBridge{})
}

// slogBridge adapts slog records onto zerolog events.
type slogBridge struct {
	fields []slog.Attr
}

func (b slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return slogToZerolog(level) >= zerolog.GlobalLevel()
}

func (b slogBridge) Handle(_ context.Context, rec slog.Record) error {
	logger := Logger()
	ev := logger.WithLevel(slogToZerolog(rec.Level))
	for _, attr := range b.fields {
		ev = appendAttr(ev, attr)
	}
	rec.Attrs(func(attr slog.Attr) bool {
		ev = appendAttr(ev, attr)
		return true
	})
	ev.Msg(rec.Message)
	return nil
}

func (b slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(b.fields)+len(attrs))
	merged = append(merged, b.fields...)
	merged = append(merged, attrs...)
	return slogBridge{fields: merged}
}

func (b slogBridge) WithGroup(string) slog.Handler { return b }

func appendAttr(ev *zerolog.Event, attr slog.Attr) *zerolog.Event {
	switch attr.Value.Kind() {
	case slog.KindString:
		return ev.Str(attr.Key, attr.Value.String())
	case slog.KindInt64:
		return ev.Int64(attr.Key, attr.Value.Int64())
	case slog.KindBool:
		return ev.Bool(attr.Key, attr.Value.Bool())
	case slog.KindDuration:
		return ev.Dur(attr.Key, attr.Value.Duration())
	case slog.KindFloat64:
		return ev.Float64(attr.Key, attr.Value.Float64())
	case slog.KindTime:
		return ev.Time(attr.Key, attr.Value.Time())
	default:
		return ev.Interface(attr.Key, attr.Value.Any())
	}
}

func slogToZerolog(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
