package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a JSON slog logger on stdout at the provided level.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter creates a JSON slog logger writing to w. Unknown levels fall
// back to info; "silent" drops everything below error.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler)
}

// ParseLevel maps a LOG_LEVEL value onto a slog level.
func ParseLevel(level string) slog.Level {
	if strings.EqualFold(strings.TrimSpace(level), "silent") {
		return slog.LevelError
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
