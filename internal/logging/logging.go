// Package logging builds the zerolog loggers shared by every component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the base logger.
type Config struct {
	Level   string
	Output  io.Writer
	Service string
}

// New returns a base logger tagged with the service name. Unknown levels
// fall back to info.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if value := strings.TrimSpace(cfg.Level); value != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(value)); err == nil {
			level = parsed
		}
	}

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = "podcaster"
	}

	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Component derives a child logger annotated with the component name.
func Component(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
