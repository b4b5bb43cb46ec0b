package storage

import (
	"log/slog"
	"os"
)

// logger is the package-wide structured logger. Structural/fatal failures
// (magic mismatch, WAL corruption outside the recovery window, page id out
// of range) are logged here before being returned to the caller.
// Recoverable, per-operation errors (parse errors, plan errors, property
// type mismatches) are never logged by the library — they are the caller's
// to handle.
var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// SetLogger replaces the package logger, e.g. to route output through the
// host application's own handler.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
