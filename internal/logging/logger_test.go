package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPlainFormatPrintsBareMessage(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, FormatPlain)
	l.SetOutput(&buf)

	l.WithField("job", "a.py").Debug("1/3 - a.py passed, Duration: 2 s")

	if got := buf.String(); got != "1/3 - a.py passed, Duration: 2 s\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(INFO, FormatPlain)
	l.SetOutput(&buf)

	l.Debug("hidden")
	l.Info("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug message should be filtered at INFO level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("info message missing")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, FormatJSON)
	l.SetOutput(&buf)

	l.WithField("run_id", "abc").Warn("cache dir exists", map[string]interface{}{"path": "/x"})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if entry.Level != "WARN" || entry.Message != "cache dir exists" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Fields["run_id"] != "abc" || entry.Fields["path"] != "/x" {
		t.Errorf("fields not merged: %+v", entry.Fields)
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(DEBUG, FormatText)
	parent.SetOutput(&buf)

	_ = parent.WithField("k", "v")
	parent.Info("msg")

	if strings.Contains(buf.String(), "k=v") {
		t.Error("parent logger picked up a child field")
	}
}

func TestTeeToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "test_runner.log")
	l := NewLogger(DEBUG, FormatPlain)
	l.SetOutput(&bytes.Buffer{})
	if err := l.TeeToFile(path); err != nil {
		t.Fatalf("TeeToFile: %v", err)
	}
	l.Info("to file", map[string]interface{}{"n": 1})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "INFO: to file n=1") {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestParse(t *testing.T) {
	if ParseLevel("warning") != WARN || ParseLevel("nonsense") != INFO {
		t.Error("ParseLevel mismatch")
	}
	if f, err := ParseFormat("full"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(full) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
