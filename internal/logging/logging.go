// Package logging configures the process-wide structured logger used by
// every component of the coordinator.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger instance. Components should prefer WithField(s)
// over direct use so log lines carry a consistent "component" tag.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetLevel(logrus.InfoLevel)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLevel parses and applies a logrus level name.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Log.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

// SetJSON switches to JSON-formatted log lines, useful when the host
// forwards stderr to a log aggregator.
func SetJSON() {
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// Component returns a logger scoped to a component name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
