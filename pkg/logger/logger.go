// Package logger provides the structured logger shared by every component of
// the certification engine. It is a thin wrapper over logrus so callers can use
// WithField/WithError chains while components get a default "component" field.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// Logger wraps a logrus logger.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a logger from configuration. Unknown levels fall back to info,
// unknown formats fall back to text.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	base.SetOutput(openOutput(cfg))
	return &Logger{Logger: base}
}

// NewDefault returns an info-level text logger tagged with the component name.
func NewDefault(component string) *Logger {
	l := New(LoggingConfig{Level: "info", Format: "text", Output: "stdout"})
	l.component = component
	return l
}

// NewWithWriter returns a logger writing JSON to w. Mostly useful in tests.
func NewWithWriter(component string, w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.DebugLevel)
	return &Logger{Logger: base, component: component}
}

// Component returns the component name this logger was created for.
func (l *Logger) Component() string { return l.component }

// Named returns a copy of the logger tagged with another component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// WithField starts an entry carrying the component field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithFields starts an entry carrying the component field plus fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.entry().WithFields(logrus.Fields(fields))
}

// WithError starts an entry carrying the component field and the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

// WithTrace starts an entry tagged with a trace id.
func (l *Logger) WithTrace(traceID string) *logrus.Entry {
	return l.entry().WithField("trace_id", traceID)
}

// Debug, Info, Warn and Error log a bare message with the component field.
func (l *Logger) Debug(args ...interface{}) { l.entry().Debug(args...) }

func (l *Logger) Info(args ...interface{}) { l.entry().Info(args...) }

func (l *Logger) Warn(args ...interface{}) { l.entry().Warn(args...) }

func (l *Logger) Error(args ...interface{}) { l.entry().Error(args...) }

// Printf logs at info level. It lets the logger back printf-style adapters
// such as cron's.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.entry().Infof(format, args...)
}

func (l *Logger) entry() *logrus.Entry {
	if l.component == "" {
		return logrus.NewEntry(l.Logger)
	}
	return l.Logger.WithField("component", l.component)
}

// NewTraceID returns a fresh correlation id for a logical operation.
func NewTraceID() string {
	return uuid.NewString()
}

func openOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "certengine"
		}
		name := filepath.Clean(prefix + "-" + time.Now().UTC().Format("20060102") + ".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return os.Stderr
		}
		return f
	default:
		return os.Stdout
	}
}
