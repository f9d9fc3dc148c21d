// Package log provides the structured logger used across hookrun. It wraps
// logrus behind a small interface so components never depend on the logging
// backend directly and tests can silence output entirely.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured fields attached to a log entry.
type Fields = logrus.Fields

// Logger is the logging interface passed into every hookrun component.
type Logger interface {
	// Tracef logs a message at trace level.
	Tracef(format string, args ...any)

	// Debugf logs a message at debug level.
	Debugf(format string, args ...any)

	// Infof logs a message at info level.
	Infof(format string, args ...any)

	// Warnf logs a message at warn level.
	Warnf(format string, args ...any)

	// Errorf logs a message at error level.
	Errorf(format string, args ...any)

	// WithField returns a Logger that includes the given field on every entry.
	WithField(key string, value any) Logger

	// WithFields returns a Logger that includes the given fields on every entry.
	WithFields(fields Fields) Logger

	// WithError returns a Logger that includes the given error as a field.
	WithError(err error) Logger

	// SetLevel parses and sets the log level.
	SetLevel(level string) error
}

type logger struct {
	entry *logrus.Entry
}

// Option configures a Logger created by New.
type Option func(*logrus.Logger)

// WithOutput directs log output to the given writer.
func WithOutput(w io.Writer) Option {
	return func(l *logrus.Logger) {
		l.SetOutput(w)
	}
}

// WithLevel sets the initial log level. Invalid names are ignored and the
// default level is kept.
func WithLevel(level string) Option {
	return func(l *logrus.Logger) {
		if parsed, err := logrus.ParseLevel(level); err == nil {
			l.SetLevel(parsed)
		}
	}
}

// New returns a Logger that writes key=value formatted entries to stderr at
// info level unless configured otherwise.
func New(opts ...Option) Logger {
	inner := logrus.New()
	inner.SetOutput(os.Stderr)
	inner.SetLevel(logrus.InfoLevel)
	inner.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})

	for _, opt := range opts {
		opt(inner)
	}

	return &logger{entry: logrus.NewEntry(inner)}
}

// Discard returns a Logger that drops every entry. Intended for tests.
func Discard() Logger {
	return New(WithOutput(io.Discard))
}

func (l *logger) Tracef(format string, args ...any) { l.entry.Tracef(format, args...) }
func (l *logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

func (l *logger) WithField(key string, value any) Logger {
	return &logger{entry: l.entry.WithField(key, value)}
}

func (l *logger) WithFields(fields Fields) Logger {
	return &logger{entry: l.entry.WithFields(fields)}
}

func (l *logger) WithError(err error) Logger {
	return &logger{entry: l.entry.WithError(err)}
}

func (l *logger) SetLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	l.entry.Logger.SetLevel(parsed)

	return nil
}
