package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"100", 100, false},
		{"100B", 100, false},
		{"10KB", 10 << 10, false},
		{"100MB", 100 << 20, false},
		{"1gb", 1 << 30, false},
		{" 5 MB ", 5 << 20, false},
		{"abc", 0, true},
		{"0MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Cleanup(func() { _ = Init(nil) })

	if err := Init(nil); err != nil {
		t.Fatalf("Init(nil) error = %v", err)
	}
	if err := Init(&Config{Level: "debug", Format: "json", Output: "stdout"}); err != nil {
		t.Fatalf("Init(json) error = %v", err)
	}
	if err := Init(&Config{Level: "info", Format: "text", Output: "stderr"}); err != nil {
		t.Fatalf("Init(text) error = %v", err)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := ContextWithUserID(context.Background(), 42)
	ctx = ContextWithRequestID(ctx, "req-1")
	FromContext(ctx, base).Info("hello")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if got["user_id"] != float64(42) {
		t.Errorf("user_id = %v, want 42", got["user_id"])
	}
	if got["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", got["request_id"])
	}
}

func TestFromContextWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	FromContext(context.Background(), base).Info("plain")

	if strings.Contains(buf.String(), "user_id") {
		t.Errorf("unexpected user_id in %s", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	loggerMu.Lock()
	prev := defaultLogger
	defaultLogger = slog.New(slog.NewJSONHandler(&buf, nil))
	loggerMu.Unlock()
	t.Cleanup(func() {
		loggerMu.Lock()
		defaultLogger = prev
		loggerMu.Unlock()
	})

	WithComponent("tasks").Info("created")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if got["component"] != "tasks" {
		t.Errorf("component = %v, want tasks", got["component"])
	}
}

func TestSetOutputLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn")
	t.Cleanup(func() { _ = Init(nil) })

	Info("hidden")
	Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message missing")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "deeppomo.log")
	if err := Init(&Config{Level: "info", Format: "text", Output: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() {
		_ = Close()
		_ = Init(nil)
	})

	Info("to file", "k", "v")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q, want message", data)
	}
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := newRotatingWriter(path, &RotationConfig{MaxSize: "10B", MaxBackups: 2})
	if err != nil {
		t.Fatalf("newRotatingWriter() error = %v", err)
	}
	defer w.Close()

	for _, line := range []string{"first-line\n", "second-line\n", "third-line\n", "fourth-line\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	current, _ := os.ReadFile(path)
	if string(current) != "fourth-line\n" {
		t.Errorf("current = %q, want fourth-line", current)
	}
	b1, _ := os.ReadFile(path + ".1")
	if string(b1) != "third-line\n" {
		t.Errorf("backup 1 = %q, want third-line", b1)
	}
	b2, _ := os.ReadFile(path + ".2")
	if string(b2) != "second-line\n" {
		t.Errorf("backup 2 = %q, want second-line", b2)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("backup 3 exists, want at most 2 backups")
	}
}

func TestRotatingWriterReopensAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := newRotatingWriter(path, nil)
	if err != nil {
		t.Fatalf("newRotatingWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := w.Write([]byte("again\n")); err != nil {
		t.Fatalf("Write() after Close error = %v", err)
	}
	_ = w.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "again\n" {
		t.Errorf("file = %q, want again", data)
	}
}
