package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stdout)
	Service string    // optional service name attached to every log entry
	Version string    // optional build version attached to every log entry
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the global zerolog logger exactly once.
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		if cfg.Level != "" {
			if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
				level = parsed
			}
		} else if env := os.Getenv("FRACTAL_LOG_LEVEL"); env != "" {
			if parsed, err := zerolog.ParseLevel(env); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339Nano

		writer := cfg.Output
		if writer == nil {
			writer = os.Stdout
		}

		service := cfg.Service
		if service == "" {
			service = os.Getenv("FRACTAL_LOG_SERVICE")
			if service == "" {
				service = "fractald"
			}
		}

		version := cfg.Version
		if version == "" {
			version = os.Getenv("VERSION")
		}

		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", service).
			Str("version", version).
			Logger()
	})
}

// SetLevel changes the global level after Configure, for levels that are
// only known once configuration has loaded.
func SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}
