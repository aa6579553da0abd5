package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo).With("scheduler")

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Errorf("failed: %s", "boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %s", out)
	}
	for _, want := range []string{`msg="shown 2"`, `msg="failed: boom"`, "component=scheduler", "level=ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	if l.Enabled(slog.LevelError) {
		t.Errorf("Nop logger enabled at error level")
	}
	l.Errorf("discarded")
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tterm.log")
	l, closer, err := Open(path, slog.LevelDebug)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	l.Debugf("written to %s", "file")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file = %q", data)
	}

	l, closer, err = Open("", slog.LevelDebug)
	if err != nil || l == nil || closer == nil {
		t.Errorf("Open(\"\") = %v, %v, %v", l, closer, err)
	}
}
