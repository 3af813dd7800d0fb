package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel maps a level name (case-insensitive) to a LogLevel.
// Unknown names yield LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures Init.
type Options struct {
	Level  LogLevel
	Format Format
	Output io.Writer
}

// OptionsFromEnv reads LOG_LEVEL and LOG_FORMAT. Output defaults to stderr.
func OptionsFromEnv() Options {
	format := FormatText
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), string(FormatJSON)) {
		format = FormatJSON
	}
	return Options{
		Level:  ParseLevel(os.Getenv("LOG_LEVEL")),
		Format: format,
		Output: os.Stderr,
	}
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Init initializes the process-wide logger. It should be called once at
// startup; later calls replace the logger.
func Init(opts Options) {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{
		Level: opts.Level.SlogLevel(),
	}

	var handler slog.Handler
	if opts.Format == FormatJSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	logger := slog.New(handler)
	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// InitForCLI initializes text logging to output at the given level.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	Init(Options{Level: filterLevel, Format: FormatText, Output: output})
}

// Logger returns the configured slog logger, for libraries that take one.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	mu.RLock()
	logger := defaultLogger
	mu.RUnlock()

	if logger == nil {
		// Not initialized yet; only surface problems.
		if level >= LevelWarn {
			fmt.Fprintf(os.Stderr, "%s [%s] %s: %s\n", time.Now().Format(time.RFC3339), level, subsystem, fmt.Sprintf(messageFmt, args...))
		}
		return
	}
	if !logger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	logger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}
