package app

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"medroom/internal/config"
)

// NewLogger builds the process logger: JSON lines in production, a console
// writer otherwise. Unknown levels fall back to info
func NewLogger(cfg *config.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	writer := out
	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Str("service", "medroom").Logger()
}
