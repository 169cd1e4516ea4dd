package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestParseLevel tests the ParseLevel function
func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{name: "debug", level: "debug", want: logrus.DebugLevel},
		{name: "DEBUG uppercase", level: "DEBUG", want: logrus.DebugLevel},
		{name: "info", level: "info", want: logrus.InfoLevel},
		{name: "warn", level: "warn", want: logrus.WarnLevel},
		{name: "warning", level: "warning", want: logrus.WarnLevel},
		{name: "error", level: "error", want: logrus.ErrorLevel},
		{name: "invalid defaults to info", level: "invalid", want: logrus.InfoLevel},
		{name: "empty defaults to info", level: "", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.level)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

// TestNewLoggerLevel tests that the configured level filters messages
func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo("warn", "text", &buf)

	log.Info("should be filtered")
	log.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn message missing")
	}
}

// TestNewLoggerJSONFormat tests the json formatter output
func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo("info", "json", &buf)

	log.WithField("entity", "users").Info("request handled")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "request handled" {
		t.Errorf("msg = %v, want 'request handled'", entry["msg"])
	}
	if entry["entity"] != "users" {
		t.Errorf("entity = %v, want 'users'", entry["entity"])
	}
}

// TestNewLoggerTextFormat tests the default text formatter
func TestNewLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo("info", "text", &buf)

	log.Info("hello")

	if _, ok := log.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("Formatter = %T, want *logrus.TextFormatter", log.Formatter)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Error("message missing from output")
	}
}

// TestNewLoggerUnknownFormat tests fallback to text for unknown formats
func TestNewLoggerUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo("info", "xml", &buf)

	if _, ok := log.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("Formatter = %T, want *logrus.TextFormatter", log.Formatter)
	}
}
