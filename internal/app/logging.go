package app

import (
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a config log level to slog. Unknown values yield info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the JSON logger writing to out. When file is set the same
// records also go to a rotated log file; the returned close func releases it.
func NewLogger(out io.Writer, level, file string) (*slog.Logger, func() error) {
	closeFn := func() error { return nil }
	if file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 7,
			MaxAge:     14, // days
			Compress:   true,
		}
		out = io.MultiWriter(out, rotated)
		closeFn = rotated.Close
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
	return logger, closeFn
}
