// Package logging configures blocksync's structured logging on log/slog.
//
// Records go to the terminal at the terminal level and, when a log file is
// configured, to a size-rotated JSON file at its own level.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Levels re-exported so callers need not import log/slog for them.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Options configures a logger.
type Options struct {
	// Level is the minimum level written to Output.
	Level slog.Level
	// Output is the terminal stream. Defaults to os.Stderr.
	Output io.Writer
	// JSON switches Output from text to JSON records.
	JSON bool
	// AddSource annotates records with file and line.
	AddSource bool
	// File tees records into a rotated log file when File.Path is set.
	File FileOptions
}

// FileOptions configures the rotated log file. Files are always JSON.
type FileOptions struct {
	Path       string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultOptions returns info-level text logging to stderr.
func DefaultOptions() Options {
	return Options{Level: LevelInfo, Output: os.Stderr}
}

// New builds a logger from opts.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}

	var term slog.Handler = slog.NewTextHandler(opts.Output, hopts)
	if opts.JSON {
		term = slog.NewJSONHandler(opts.Output, hopts)
	}
	if opts.File.Path == "" {
		return slog.New(term)
	}

	file := slog.NewJSONHandler(rotated(opts.File), &slog.HandlerOptions{
		Level:     opts.File.Level,
		AddSource: opts.AddSource,
	})
	return slog.New(fanout{term, file})
}

func rotated(fo FileOptions) *lumberjack.Logger {
	size := fo.MaxSizeMB
	if size <= 0 {
		size = 10
	}
	return &lumberjack.Logger{
		Filename:   fo.Path,
		MaxSize:    size,
		MaxBackups: fo.MaxBackups,
		MaxAge:     fo.MaxAgeDays,
	}
}

// fanout hands each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Default returns the process logger, info-level text on stderr until
// SetDefault replaces it.
func Default() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultOptions())
	}
	return defaultLogger
}

// SetDefault replaces the process logger and slog's default with logger.
func SetDefault(logger *slog.Logger) {
	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// With returns the default logger carrying args on every record.
func With(args ...any) *slog.Logger { return Default().With(args...) }

// Debug logs on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }

// Info logs on the default logger.
func Info(msg string, args ...any) { Default().Info(msg, args...) }

// Warn logs on the default logger.
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

// Error logs on the default logger.
func Error(msg string, args ...any) { Default().Error(msg, args...) }

// Timer returns a func that logs how long op took at debug level.
//
//	defer logging.Timer("scan")()
func Timer(op string) func() {
	start := time.Now()
	return func() {
		Default().Debug("operation finished", Operation(op), slog.Duration(KeyDuration, time.Since(start)))
	}
}

type ctxKey struct{}

// NewContext attaches logger to ctx.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	l, _ := ctx.Value(ctxKey{}).(*slog.Logger)
	return l
}

// WithContext returns the logger attached to ctx, falling back to Default.
func WithContext(ctx context.Context) *slog.Logger {
	if l := FromContext(ctx); l != nil {
		return l
	}
	return Default()
}
