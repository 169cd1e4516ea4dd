package observability

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a configured logrus logger. Level is one of debug,
// info, warn or error; format is "text" or "json". Unknown values fall
// back to info and text.
func NewLogger(level, format string) *logrus.Logger {
	return NewLoggerTo(level, format, os.Stdout)
}

// NewLoggerTo is NewLogger with an explicit output writer.
func NewLoggerTo(level, format string, output io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(output)
	log.SetLevel(ParseLevel(level))

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// ParseLevel maps a level string to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
