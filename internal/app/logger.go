package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a slog.Logger matching LOG_FORMAT: "json" for machine
// ingestion, "text" with source locations, or "pretty" (the development
// default) without them.
func NewLogger(cfg *Config) *slog.Logger {
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	case "pretty":
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
}
