package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerJSONOutput(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "info", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.WithField("config", "app").Info("configuration loaded")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log entry, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "configuration loaded" {
		t.Errorf("unexpected message field: %v", entry["message"])
	}
	if entry["config"] != "app" {
		t.Errorf("unexpected config field: %v", entry["config"])
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	if _, err := NewLogger(&Config{Level: "chatty", Format: "json", Output: "stdout"}); err == nil {
		t.Error("Expected invalid level to be rejected")
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	dir, err := os.MkdirTemp("", "qconf_log_*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	defer os.RemoveAll(dir)

	logDir := filepath.Join(dir, "logs")
	logger, err := NewLogger(&Config{
		Level:   "info",
		Format:  "json",
		Output:  "file",
		LogDir:  logDir,
		MaxSize: 1,
	})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("written to file")

	data, err := os.ReadFile(filepath.Join(logDir, "qconf.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "warn", Format: "text", Output: "stdout"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Info("suppressed")
	logger.Warn("emitted")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(out, "emitted") {
		t.Error("warn entry missing")
	}
}

func TestGlobalLoggerFallback(t *testing.T) {
	// 未初始化全局日志时包级函数不应崩溃
	old := GetGlobalLogger()
	SetGlobalLogger(nil)
	defer SetGlobalLogger(old)

	Info("no global logger")
	WithField("k", "v").Debug("still fine")
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "info", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	child := logger.WithField("child", "yes")
	logger.Info("parent entry")
	child.Info("child entry")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if strings.Contains(lines[0], "child") {
		t.Error("parent logger picked up child field")
	}
	if !strings.Contains(lines[1], "child") {
		t.Error("child logger missing field")
	}
}
