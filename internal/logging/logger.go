package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps logrus.Logger with a component tag and correlation ID
// propagation through context.Context.
type Logger struct {
	*logrus.Logger
	correlationID string
	component     string
}

// LoggingConfig mirrors config.LoggingConfig so this package stays
// free of an import cycle on internal/config.
type LoggingConfig struct {
	Level          string
	Format         string
	FileEnabled    bool
	FilePath       string
	MaxFileSizeMB  int
	BackupCount    int
	ConsoleEnabled bool
}

// CorrelationIDKey is the context key under which WithCorrelationID
// stores a correlation ID and from which ForContext reads it back.
const CorrelationIDKey = "correlation_id"

var (
	loggers   = map[string]*Logger{}
	loggersMu sync.Mutex
	globalCfg = LoggingConfig{Level: "info", Format: "text", ConsoleEnabled: true}
	globalMu  sync.RWMutex
)

// NewLogger creates a logger instance for the given component.
func NewLogger(component string) *Logger {
	l := &Logger{Logger: logrus.New(), component: component}
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	applyConfig(l, currentConfig())
	return l
}

// GetLogger returns the process-wide cached logger for a component,
// creating it on first use. Every call for the same component name
// returns the same instance so SetupLogging affects all of them.
func GetLogger(component string) *Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[component]; ok {
		return l
	}
	l := NewLogger(component)
	loggers[component] = l
	return l
}

func currentConfig() LoggingConfig {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalCfg
}

// SetupLogging configures level, formatter, and output (console and/or
// rotating file via lumberjack) for every logger created through
// GetLogger, present and future.
func SetupLogging(cfg *LoggingConfig) error {
	globalMu.Lock()
	globalCfg = *cfg
	globalMu.Unlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if err := applyConfig(l, *cfg); err != nil {
			return err
		}
	}
	return nil
}

func applyConfig(l *Logger, cfg LoggingConfig) error {
	level, err := logrus.ParseLevel(strings.ToLower(orDefault(cfg.Level, "info")))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.FileEnabled && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		l.SetOutput(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxInt(cfg.MaxFileSizeMB, 1),
			MaxBackups: cfg.BackupCount,
			MaxAge:     30,
			Compress:   true,
		})
	} else if cfg.ConsoleEnabled {
		l.SetOutput(os.Stdout)
	}

	if strings.Contains(strings.ToLower(cfg.Format), "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Fields is a type alias for logrus.Fields.
type Fields = logrus.Fields

// WithField returns a derived logger with one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Logger: l.Logger.WithField(key, value).Logger, correlationID: l.correlationID, component: l.component}
}

// WithFields returns a derived logger with additional fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{Logger: l.Logger.WithFields(fields).Logger, correlationID: l.correlationID, component: l.component}
}

// WithError returns a derived logger carrying the given error.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.WithError(err).Logger, correlationID: l.correlationID, component: l.component}
}

// WithCorrelationID returns a derived logger tagged with a correlation ID.
func (l *Logger) WithCorrelationID(id string) *Logger {
	return &Logger{Logger: l.Logger, correlationID: id, component: l.component}
}

// GenerateCorrelationID returns a new random correlation ID.
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationID stores a correlation ID on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation ID, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// ForContext returns a derived logger tagged with the context's
// correlation ID and component name, for use at request/connection
// entry points.
func (l *Logger) ForContext(ctx context.Context) *Logger {
	entry := l.Logger.WithField("component", l.component)
	if id := CorrelationIDFromContext(ctx); id != "" {
		entry = entry.WithField("correlation_id", id)
	} else if l.correlationID != "" {
		entry = entry.WithField("correlation_id", l.correlationID)
	}
	return &Logger{Logger: entry.Logger, correlationID: l.correlationID, component: l.component}
}
