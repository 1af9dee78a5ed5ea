// Package obs contains observability utilities shared by both services.
package obs

import (
	"log/slog"
	"os"
)

// Logger is the process-wide structured logger. Both binaries log JSON to
// stdout; components receive it as a field so tests can swap in a quiet one.
var Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init reconfigures the global Logger with the given level.
func Init(level slog.Level) {
	Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
