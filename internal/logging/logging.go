// Package logging builds the slog logger shared by every component and adds
// the SUCCESS and FAILURE levels the pipeline reports item outcomes with.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Extra levels. FAILURE shares WARN's severity but keeps its own name so an
// expected miss (non-200, empty page) reads differently from a real warning.
const (
	LevelSuccess = slog.LevelInfo + 2
	LevelFailure = slog.LevelWarn + 1
)

// New returns a logger writing to w. format is "text" or "json"; level is one of
// debug/info/warn/error.
func New(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config string to a slog level, defaulting to INFO.
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

// Success logs at LevelSuccess.
func Success(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelSuccess, msg, args...)
}

// Failure logs at LevelFailure.
func Failure(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFailure, msg, args...)
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch level {
	case LevelSuccess:
		a.Value = slog.StringValue("SUCCESS")
	case LevelFailure:
		a.Value = slog.StringValue("FAILURE")
	}
	return a
}
