// Package logging configures zerolog for the fetch client and the gateway,
// and names the fields their log lines share.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as accepted by --log-level and FETCH_LOG_LEVEL.
type LogLevel string

const (
	// LevelDebug adds cache lookups and individual attempts.
	LevelDebug LogLevel = "debug"

	// LevelInfo adds recoveries after a retry and server lifecycle.
	LevelInfo LogLevel = "info"

	// LevelWarn adds retries, stale fallbacks and upstream throttling.
	LevelWarn LogLevel = "warn"

	// LevelError keeps only failed requests and misconfiguration.
	LevelError LogLevel = "error"

	// LevelDisabled silences the process.
	LevelDisabled LogLevel = "disabled"
)

// Config selects level and encoding for the process-wide logger.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Service, when set, is attached to every line.
	Service string
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup installs the process-wide logger and level and returns the logger.
// Loggers obtained from NewLogger afterwards write through it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str(FieldService, cfg.Service)
	}
	logger := ctx.Logger()
	log.Logger = logger

	return logger
}

// ParseLevel maps a level name to zerolog. Case and surrounding blanks are
// ignored; "warning", "off" and "none" are accepted as aliases. Unknown names
// fall back to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns the process-wide logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}
