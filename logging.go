package sqlbind

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig configures the logger built by NewLogger.
type LogConfig struct {
	// Level is one of debug, info, warn or error. Anything else means info.
	Level string `env:"database_log_level" yaml:"level"`
	// Pretty enables human-readable console output.
	Pretty bool `env:"database_log_pretty" yaml:"pretty"`
	// Output defaults to os.Stderr.
	Output io.Writer `yaml:"-"`
}

// NewLogger builds a zerolog logger suitable for WithLogger.
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// logDuration adds the time elapsed since start to a debug event.
func logDuration(e *zerolog.Event, start time.Time) *zerolog.Event {
	return e.Dur("elapsed", time.Since(start))
}

// closeLogged closes c and logs a failure instead of returning it. It is
// meant for cleanup paths that already have an error to report.
func closeLogged(logger zerolog.Logger, c io.Closer, msg string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}
