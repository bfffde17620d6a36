package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger()
	l.SetOutput(&buf)

	l.Info("hello %s", "world")
	out := buf.String()
	if !strings.Contains(out, "[HUMDB]") {
		t.Errorf("missing log tag: %q", out)
	}
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "hello world") {
		t.Errorf("unexpected log line: %q", out)
	}
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger()
	l.SetOutput(&buf)
	l.SetLevel(LogLevelError)

	l.Info("suppressed")
	l.Warn("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info/warn leaked at error level: %q", buf.String())
	}
	l.Error("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("error output suppressed")
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger().WithFields(map[string]any{"component": "core"})
	l.SetOutput(&buf)
	l.SetFormat(LogFormatJSON)

	l.SQL("SELECT 1", 3*time.Millisecond)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}
	if entry["level"] != "SQL" {
		t.Errorf("level = %v, want SQL", entry["level"])
	}
	if entry["sql"] != "SELECT 1" {
		t.Errorf("sql = %v, want SELECT 1", entry["sql"])
	}
	if entry["component"] != "core" {
		t.Errorf("field component = %v, want core", entry["component"])
	}
}

func TestSlowStatementPromotedToWarn(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger()
	l.SetOutput(&buf)
	l.SetLevel(LogLevelWarn)

	l.SQL("SELECT 1", time.Millisecond)
	if buf.Len() != 0 {
		t.Errorf("fast statement logged at warn level: %q", buf.String())
	}

	l.SQL("SELECT pg_sleep(10)", SlowThreshold+time.Millisecond)
	if !strings.Contains(buf.String(), "SLOW SQL") {
		t.Errorf("slow statement not promoted: %q", buf.String())
	}
}

func TestMultilineStatementCollapsed(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger()
	l.SetOutput(&buf)

	l.SQL("SELECT song_id\n\t\tFROM songs", time.Millisecond)
	if strings.Contains(buf.String(), "\n\t") {
		t.Errorf("statement not collapsed to one line: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "SELECT song_id FROM songs") {
		t.Errorf("collapsed statement mangled: %q", buf.String())
	}
}
