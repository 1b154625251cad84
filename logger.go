package trellis

// Logger is the structured logging interface used throughout the controller,
// scheduler and event loop. Trellis uses key-value pairs so implementing
// applications can plug in slog, logrus, zap, or anything else.
//
//	logger.Info("scheduled listener", "layer", 3, "listener", id)
type Logger interface {
	// Info logs a normal operational event (pulse start/end, cell
	// transitions, manager enter/exit).
	Info(msg string, args ...any)

	// Warn logs an unusual but non-fatal condition (a retried listener, a
	// manager exit error that was swallowed in favor of an earlier one).
	Warn(msg string, args ...any)

	// Error logs a condition that aborted a pulse (input conflict,
	// circularity, a user rule panic before rollback).
	Error(msg string, args ...any)

	// Debug logs fine-grained diagnostics (read/write set contents,
	// schedule/cancel decisions), typically disabled in production.
	Debug(msg string, args ...any)
}

// noopLogger discards everything; used as the default by a History, the
// event loops, EventBus and FSWatchSource when no Logger is given, so
// callers never need a nil check. (NewController defaults to
// NewSlogLogger instead.)
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
