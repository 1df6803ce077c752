package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/tenant-backup/internal/config"
)

// NewLogger returns the process logger for component, writing to stdout.
func NewLogger(cfg *config.Config, component string) zerolog.Logger {
	return New(os.Stdout, cfg, component)
}

// New builds a logger on w. LOG_FORMAT=console switches from JSON lines to
// zerolog's human-readable writer; an unknown LOG_LEVEL means info.
func New(w io.Writer, cfg *config.Config, component string) zerolog.Logger {
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	fields := zerolog.New(w).With().Timestamp()
	if cfg.ServiceName != "" {
		fields = fields.Str("service", cfg.ServiceName)
	}
	if component != "" {
		fields = fields.Str("component", component)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return fields.Logger().Level(level)
}
