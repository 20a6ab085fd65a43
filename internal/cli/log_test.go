package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLoggerFiltersByLevel(t *testing.T) {
	tests := []struct {
		name  string
		level log.Level
		emit  func(*log.Logger)
		want  bool
	}{
		{"info at info", log.InfoLevel, func(l *log.Logger) { l.Info("built index", "n", 2) }, true},
		{"debug at info", log.InfoLevel, func(l *log.Logger) { l.Debug("cache miss", "type", "basin") }, false},
		{"debug at debug", log.DebugLevel, func(l *log.Logger) { l.Debug("cache miss", "type", "basin") }, true},
		{"warn at info", log.InfoLevel, func(l *log.Logger) { l.Warn("basin truncated") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.emit(newLogger(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.want {
				t.Errorf("wrote output = %v, want %v (%q)", got, tt.want, buf.String())
			}
		})
	}
}

func TestStepTimer(t *testing.T) {
	var buf bytes.Buffer
	timer := newStepTimer(newLogger(&buf, log.InfoLevel))
	timer.done("Loaded 6 pages, 11 links")

	out := buf.String()
	if !strings.Contains(out, "Loaded 6 pages, 11 links") {
		t.Errorf("output %q should contain the message", out)
	}
	if !strings.Contains(out, "duration") {
		t.Errorf("output %q should report the elapsed time", out)
	}
}

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	custom := newLogger(&buf, log.InfoLevel)

	if got := loggerFromContext(withLogger(context.Background(), custom)); got != custom {
		t.Error("loggerFromContext should return the stored logger")
	}
	if loggerFromContext(context.Background()) == nil {
		t.Error("loggerFromContext should fall back to a default logger")
	}
}
