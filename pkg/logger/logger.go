// Package logger provides the application's structured logger, a thin layer
// over logrus shared by every component.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls level, format and destination of log output.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output string // stdout, stderr or a file path
}

// Logger wraps a logrus entry so call sites can chain WithField/WithError
// and the leveled printers directly.
type Logger struct {
	*logrus.Entry
}

// New builds a logger from configuration, falling back to sensible defaults
// for anything unset or unparseable.
func New(cfg LoggingConfig) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(resolveOutput(cfg.Output))

	return &Logger{Entry: logrus.NewEntry(l)}
}

// NewDefault returns an info-level text logger tagged with a component name.
func NewDefault(component string) *Logger {
	log := New(LoggingConfig{})
	return log.WithField("component", component)
}

// WithField returns a logger carrying an extra structured field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a logger carrying the error as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

func resolveOutput(output string) io.Writer {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stdout
		}
		return f
	}
}
