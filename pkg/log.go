package pkg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Component identifies a subsystem for log filtering.
type Component string

// Control plane component identifiers.
const (
	ComponentMode    Component = "mode"
	ComponentQueue   Component = "queue"
	ComponentStore   Component = "store"
	ComponentConsole Component = "console"
	ComponentRunLoop Component = "runloop"
	ComponentHAL     Component = "hal"
)

// LogFormat selects how log records are rendered.
type LogFormat int

// Log formats.
const (
	LogFormatText    LogFormat = iota // slog key=value
	LogFormatJSON                     // slog JSON
	LogFormatConsole                  // zap console, colored levels
)

var logFormatNames = [...]string{
	LogFormatText:    "text",
	LogFormatJSON:    "json",
	LogFormatConsole: "console",
}

func (f LogFormat) String() string {
	if f < 0 || int(f) >= len(logFormatNames) {
		return fmt.Sprintf("LogFormat(%d)", int(f))
	}
	return logFormatNames[f]
}

// ParseLogFormat returns the format called name.
func ParseLogFormat(name string) (LogFormat, error) {
	for f, n := range logFormatNames {
		if n == name {
			return LogFormat(f), nil
		}
	}
	return 0, fmt.Errorf("%w: log format %q", ErrInvalidParameter, name)
}

var (
	// logLevel is shared by every handler built by NewHandler.
	logLevel = new(slog.LevelVar)

	// logger is swapped whole; readers never lock.
	logger atomic.Pointer[slog.Logger]
)

func init() {
	logLevel.Set(slog.LevelWarn)
	SetLogOutput(os.Stderr, LogFormatText)
}

// NewHandler builds a handler writing format to w. Its minimum level
// follows SetLogLevel.
func NewHandler(w io.Writer, format LogFormat) slog.Handler {
	opts := &slog.HandlerOptions{Level: logLevel}
	switch format {
	case LogFormatJSON:
		return slog.NewJSONHandler(w, opts)
	case LogFormatConsole:
		return newConsoleHandler(w)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// SetLogOutput sends all component logs to w in the given format.
func SetLogOutput(w io.Writer, format LogFormat) {
	logger.Store(slog.New(NewHandler(w, format)))
}

// SetLogFormat sends all component logs to os.Stderr in the given format.
func SetLogFormat(format LogFormat) {
	SetLogOutput(os.Stderr, format)
}

// SetLogLevel sets the minimum level for all components.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// LogLevel returns the minimum level.
func LogLevel() slog.Level {
	return logLevel.Level()
}

func logAt(level slog.Level, component Component, msg string, args []any) {
	ctx := context.Background()
	l := logger.Load()
	if !l.Enabled(ctx, level) {
		return
	}
	l.Log(ctx, level, msg, append([]any{slog.String("component", string(component))}, args...)...)
}

// LogDebug logs at debug level for component.
func LogDebug(component Component, msg string, args ...any) {
	logAt(slog.LevelDebug, component, msg, args)
}

// LogInfo logs at info level for component.
func LogInfo(component Component, msg string, args ...any) {
	logAt(slog.LevelInfo, component, msg, args)
}

// LogWarn logs at warn level for component.
func LogWarn(component Component, msg string, args ...any) {
	logAt(slog.LevelWarn, component, msg, args)
}

// LogError logs at error level for component.
func LogError(component Component, msg string, args ...any) {
	logAt(slog.LevelError, component, msg, args)
}
