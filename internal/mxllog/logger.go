// Package mxllog wraps slog.Logger with the domain fields and log-call
// shapes used across the module, so packages log consistently without each
// hand-rolling the same key names.
package mxllog

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger with mxl-specific context.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the given handler. If handler is nil, uses
// a text handler to stderr at info level.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSON creates a Logger that emits JSON records at the given level.
func NewJSON(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// Noop creates a Logger that discards all output.
func Noop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)}))}
}

// WithFlow adds a flow id field to the logger.
func (l *Logger) WithFlow(id uuid.UUID) *Logger {
	return &Logger{Logger: l.Logger.With("flow", id)}
}

// WithGrain adds a grain index field to the logger.
func (l *Logger) WithGrain(index uint64) *Logger {
	return &Logger{Logger: l.Logger.With("grain", index)}
}

// WithChannel adds a channel index field to the logger.
func (l *Logger) WithChannel(channel uint32) *Logger {
	return &Logger{Logger: l.Logger.With("channel", channel)}
}

// LogPublish logs a flow creation/publication.
func (l *Logger) LogPublish(ctx context.Context, id uuid.UUID, kind string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flow publish failed", "flow", id, "kind", kind, "error", err)
	} else {
		l.InfoContext(ctx, "flow published", "flow", id, "kind", kind)
	}
}

// LogOpen logs a flow open.
func (l *Logger) LogOpen(ctx context.Context, id uuid.UUID, mode string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flow open failed", "flow", id, "mode", mode, "error", err)
	} else {
		l.DebugContext(ctx, "flow opened", "flow", id, "mode", mode)
	}
}

// LogDelete logs a flow deletion.
func (l *Logger) LogDelete(ctx context.Context, id uuid.UUID, ok bool) {
	if ok {
		l.InfoContext(ctx, "flow deleted", "flow", id)
	} else {
		l.WarnContext(ctx, "flow delete had no effect", "flow", id)
	}
}

// LogGrainCommit logs a grain commit. Call it on a logger already scoped via
// WithFlow and WithGrain so the flow and grain fields carry through.
func (l *Logger) LogGrainCommit(ctx context.Context, committedSize, grainSize uint32) {
	l.DebugContext(ctx, "grain committed", "committed", committedSize, "size", grainSize)
}

// LogChannelWrite logs a channel write. Call it on a logger already scoped
// via WithFlow and WithChannel so the flow and channel fields carry through.
func (l *Logger) LogChannelWrite(ctx context.Context, startIndex uint64, sampleCount int) {
	l.DebugContext(ctx, "channel written", "start", startIndex, "samples", sampleCount)
}

// LogGCSweep logs the outcome of a GC sweep pass.
func (l *Logger) LogGCSweep(ctx context.Context, domain string, scanned, deleted int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "gc sweep failed", "domain", domain, "scanned", scanned, "error", err)
	} else {
		l.InfoContext(ctx, "gc sweep completed", "domain", domain, "scanned", scanned, "deleted", deleted)
	}
}
