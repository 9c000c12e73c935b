package logging

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Format represents the log output format
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ZeroLogger implements Logger on a zerolog.Logger
type ZeroLogger struct {
	zl     zerolog.Logger
	closer io.Closer
}

// NewLogger writes entries of at least level to w in the given format
func NewLogger(w io.Writer, format Format, level Level) *ZeroLogger {
	return newZeroLogger(w, format, level, nil)
}

// NewConsoleLogger logs human-readable entries to stderr
func NewConsoleLogger(level Level) *ZeroLogger {
	return NewLogger(os.Stderr, FormatText, level)
}

func newZeroLogger(w io.Writer, format Format, level Level, closer io.Closer) *ZeroLogger {
	out := w
	if format == FormatText {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
			NoColor:    w != os.Stderr,
		}
	}

	zl := zerolog.New(out).
		Level(level.zerologLevel()).
		With().
		Timestamp().
		Logger()

	return &ZeroLogger{zl: zl, closer: closer}
}

// FileLoggerConfig holds configuration for file logging
type FileLoggerConfig struct {
	// Path is the log file path
	Path string
	// Format is the output format (json or text)
	Format Format
	// Level is the minimum log level
	Level Level
	// MaxSize is the maximum size in bytes before rotation (0 = no rotation)
	MaxSize int64
	// MaxBackups is the maximum number of backup files to keep
	MaxBackups int
}

// NewFileLogger creates a logger writing to a size-rotated file
func NewFileLogger(config FileLoggerConfig) (*ZeroLogger, error) {
	w, err := NewRotatingWriter(config.Path, config.MaxSize, config.MaxBackups)
	if err != nil {
		return nil, err
	}
	return newZeroLogger(w, config.Format, config.Level, w), nil
}

// Debug logs a debug message
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields Fields) {
	l.emit(ctx, l.zl.Debug(), msg, fields)
}

// Info logs an info message
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields Fields) {
	l.emit(ctx, l.zl.Info(), msg, fields)
}

// Warn logs a warning message
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields Fields) {
	l.emit(ctx, l.zl.Warn(), msg, fields)
}

// Error logs an error message
func (l *ZeroLogger) Error(ctx context.Context, msg string, err error, fields Fields) {
	l.emit(ctx, l.zl.Error().Err(err), msg, fields)
}

func (l *ZeroLogger) emit(ctx context.Context, ev *zerolog.Event, msg string, fields Fields) {
	if ev == nil {
		return
	}
	if cf := FieldsFromContext(ctx); len(cf) > 0 {
		ev = ev.Fields(map[string]interface{}(cf))
	}
	if len(fields) > 0 {
		ev = ev.Fields(map[string]interface{}(fields))
	}
	ev.Msg(msg)
}

// WithFields returns a logger with additional fields
func (l *ZeroLogger) WithFields(fields Fields) Logger {
	return &ZeroLogger{
		zl:     l.zl.With().Fields(map[string]interface{}(fields)).Logger(),
		closer: l.closer,
	}
}

// Close closes the underlying file, if any
func (l *ZeroLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}
