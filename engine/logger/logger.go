// Package logger holds the engine-wide structured logger. The engine is silent
// until a logger is installed with SetLogger.
package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record and reports itself disabled so callers skip
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs the logger used by every engine package. Pass nil to
// restore the silent default. Safe for concurrent use.
//
// Levels:
//   - slog.LevelDebug: per-frame diagnostics (dirty cascades, chunk counts)
//   - slog.LevelInfo: lifecycle events (resource allocation, permanent disable)
//   - slog.LevelWarn: recoverable degradation (atlas insert failure, shrunk textures)
//
// Parameters:
//   - l: the logger to install
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the currently installed logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// Component returns the installed logger tagged with a component attribute,
// e.g. Component("global_sdf").
//
// Parameters:
//   - name: the subsystem name
//
// Returns:
//   - *slog.Logger: a logger carrying component=name
func Component(name string) *slog.Logger {
	return Logger().With(slog.String("component", name))
}
