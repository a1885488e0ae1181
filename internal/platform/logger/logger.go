package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a structured JSON logger using slog.
func New() *slog.Logger {
	return NewWithWriter(os.Stdout, slog.LevelInfo)
}

// NewWithWriter returns a JSON logger writing to w. Every record carries the
// service name so consent lifecycle logs can be told apart downstream.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", "cms")
}
