// Package logging builds the slog loggers used by the chronicle command.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// New writes text records at or above level to w. Diagnostics go to stderr in the command
// so stdout stays free for state JSON and snapshots.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel accepts debug, info, warn or error. "off" and "none" return ok=false.
func ParseLevel(s string) (level slog.Level, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return 0, false, nil
	case "", "info":
		return slog.LevelInfo, true, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, false, fmt.Errorf("invalid log level %q", s)
	}
	return level, true, nil
}
