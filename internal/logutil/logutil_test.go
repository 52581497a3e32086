package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

type mapReader map[string]any

func (m mapReader) GetString(k string) string {
	s, _ := m[k].(string)
	return s
}

func (m mapReader) GetBool(k string) bool {
	b, _ := m[k].(bool)
	return b
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{" DEBUG ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerFromReader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := LoggerFromReader(mapReader{"logging.level": "warn", "logging.format": "json"}, &buf)
	if err != nil {
		t.Fatalf("LoggerFromReader: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown", "path", "a.json")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"path":"a.json"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLoggerUnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := LoggerFromConfig(LoggerConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Error("expected an error")
	}
}
