// Package logging configures the process-wide logrus logger and hands out
// component-scoped entries.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config holds logging configuration.
type Config struct {
	Format string `yaml:"format" json:"format"` // "text" | "json"
	Level  string `yaml:"level" json:"level"`   // "debug" | "info" | "warn" | "error"
}

// Sink receives leveled messages. *logrus.Entry and *logrus.Logger satisfy it
// through EntrySink.
type Sink interface {
	Log(level logrus.Level, msg string)
}

// EntrySink adapts a logrus entry to Sink.
type EntrySink struct{ *logrus.Entry }

// Log implements Sink.
func (s EntrySink) Log(level logrus.Level, msg string) { s.Entry.Log(level, msg) }

// Setup initializes the standard logrus logger.
func Setup(cfg Config) {
	SetupWriter(cfg, os.Stderr)
}

// SetupWriter is Setup with an explicit output, used by tests.
func SetupWriter(cfg Config, w io.Writer) {
	logrus.SetOutput(w)
	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	logrus.SetLevel(ParseLevel(cfg.Level))
}

// ParseLevel converts a level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Component returns an entry tagged with a component name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}

// Step returns an entry tagged with step and phase.
func Step(step, phase string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"component": "step",
		"step":      step,
		"phase":     phase,
	})
}
