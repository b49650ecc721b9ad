package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Components derive children from it
// through the With* constructors below.
var Logger zerolog.Logger

// Level names a log severity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Unknown levels fall back to info.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(string(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(output).With().Timestamp().Logger()
}

// child binds a derived logger to the heap so call sites can chain level
// methods directly on the constructor's result.
func child(ctx zerolog.Context) *zerolog.Logger {
	l := ctx.Logger()
	return &l
}

// WithComponent derives a logger tagged with a component name.
func WithComponent(component string) *zerolog.Logger {
	return child(Logger.With().Str("component", component))
}

// WithProductID derives a logger tagged with a product id.
func WithProductID(productID string) *zerolog.Logger {
	return child(Logger.With().Str("product_id", productID))
}

// WithSessionID derives a logger tagged with a session id.
func WithSessionID(sessionID string) *zerolog.Logger {
	return child(Logger.With().Str("session_id", sessionID))
}

// WithTaskID derives a logger tagged with a task id.
func WithTaskID(taskID uint64) *zerolog.Logger {
	return child(Logger.With().Uint64("task_id", taskID))
}
