package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger points the global zerolog logger at stdout. Debug mode switches to the human
// readable console writer and forces the debug level.
func SetupLogger(cfg Config) {
	log.Logger = newLogger(os.Stdout, cfg)
	zerolog.SetGlobalLevel(logLevel(cfg))
}

func newLogger(out io.Writer, cfg Config) zerolog.Logger {
	if cfg.Debug {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func logLevel(cfg Config) zerolog.Level {
	if cfg.Debug {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
