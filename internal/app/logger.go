package app

import (
	"io"
	"log/slog"
)

// newLogger builds the app's isolated slog.Logger. It never touches the
// global default logger, so two apps in one process (the test harness does
// this) keep their logs apart.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level := slog.LevelInfo
	// UnmarshalText accepts the level names the CLI validates; anything
	// else falls back to info.
	_ = level.UnmarshalText([]byte(levelStr))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "text" {
		handler = slog.NewTextHandler(outW, opts)
	} else {
		handler = slog.NewJSONHandler(outW, opts)
	}
	return slog.New(handler)
}
