// Package obslog provides structured logging shared across the
// orchestrator's components, wrapping logrus the way the teacher's
// pkg/logger and infrastructure/logging packages do.
package obslog

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with a fixed "component" field.
type Logger struct {
	*logrus.Logger
	component string
}

// Config controls level and output format.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|text
}

// New creates a Logger for the given component name.
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewDefault creates a Logger with info/json defaults.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info", Format: "json"})
}

// WithField returns an entry carrying the component field plus key/value.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithField(key, value)
}

// WithFields returns an entry carrying the component field plus fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError returns an entry carrying the component field plus the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithError(err)
}

// Entry returns a bare entry tagged with the component field.
func (l *Logger) Entry() *logrus.Entry {
	return l.Logger.WithField("component", l.component)
}
