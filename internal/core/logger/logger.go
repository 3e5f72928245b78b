package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

type Level slog.Level

var (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

var defaultLevel = LevelInfo

// SetDefaultLevel sets the level used by loggers created without an explicit one.
func SetDefaultLevel(level Level) {
	defaultLevel = level
}

// NewHandler creates a tint handler for stderr. Color and compact timestamps
// are enabled only when stderr is a terminal.
func NewHandler(level Level) slog.Handler {
	timeFormat := time.Stamp
	isTerminal := isatty.IsTerminal(os.Stderr.Fd())
	if !isTerminal {
		timeFormat = time.RFC3339
	}
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.Level(level),
		NoColor:    !isTerminal,
		TimeFormat: timeFormat,
	})
}

type Option func(*Logger)

func WithName(name string) Option {
	return func(l *Logger) {
		l.name = name
	}
}

func WithLevel(level Level) Option {
	return func(l *Logger) {
		l.level = level
	}
}

func WithHandler(handler slog.Handler) Option {
	return func(l *Logger) {
		l.handler = handler
	}
}

// Logger is a named slog logger.
type Logger struct {
	*slog.Logger
	name    string
	level   Level
	handler slog.Handler
}

// NewLogger creates a new logger instance.
func NewLogger(opts ...Option) *Logger {
	l := &Logger{
		name:  "root",
		level: defaultLevel,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.handler == nil {
		l.handler = NewHandler(l.level)
	}
	l.Logger = slog.New(l.handler).WithGroup(l.name)
	return l
}

// WithGroup returns a logger scoped to a sub-group.
func (l *Logger) WithGroup(group string) *Logger {
	return &Logger{
		Logger:  l.Logger.WithGroup(group),
		name:    l.name,
		level:   l.level,
		handler: l.handler,
	}
}

func (l *Logger) Fatal(msg string, args ...any) {
	l.Logger.Error(msg, args...)
	os.Exit(1)
}
