package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hackgods/clinic-scheduling/internal/config"
)

// New builds the process logger. Dev gets a console writer on stdout unless
// LOG_FORMAT=json; everything else logs JSON. LOG_FILE adds a rotated file.
func New(cfg config.Config, service string) zerolog.Logger {
	return newLogger(cfg, service, os.Stdout)
}

func newLogger(cfg config.Config, service string, stdout io.Writer) zerolog.Logger {
	var out io.Writer = stdout
	if cfg.IsDev() && cfg.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.Kitchen}
	}

	if cfg.LogFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	return zerolog.New(out).
		Level(ParseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("service", service).
		Str("version", cfg.Version).
		Str("env", cfg.Env).
		Logger()
}

// Bootstrap is the logger used before configuration has loaded.
// Callers assign it before logging, since zerolog's event methods need an
// addressable Logger.
func Bootstrap() zerolog.Logger {
	return bootstrapLogger(os.Stderr)
}

func bootstrapLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger()
}

// ParseLevel falls back to info for empty or unknown values.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
