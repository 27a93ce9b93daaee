package activitylog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestExecStarted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	l := New(true, path, "glm", "run-123")
	defer l.Close()

	l.ExecStarted(1, "acceptEdits", "sess-9")

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var e struct {
		Profile        string `json:"profile"`
		RunID          string `json:"run_id"`
		Event          string `json:"event"`
		Attempt        int    `json:"attempt"`
		PermissionMode string `json:"permission_mode"`
		Resume         string `json:"resume"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Profile != "glm" {
		t.Errorf("profile = %q, want %q", e.Profile, "glm")
	}
	if e.RunID != "run-123" {
		t.Errorf("run_id = %q, want %q", e.RunID, "run-123")
	}
	if e.Event != "exec_started" {
		t.Errorf("event = %q, want %q", e.Event, "exec_started")
	}
	if e.Attempt != 1 || e.PermissionMode != "acceptEdits" || e.Resume != "sess-9" {
		t.Errorf("entry = %+v", e)
	}
}

func TestExecStartedOmitsEmptyResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	l := New(true, path, "glm", "run")
	defer l.Close()

	l.ExecStarted(1, "plan", "")

	lines := readLines(t, path)
	if strings.Contains(lines[0], "resume") {
		t.Error("expected resume to be omitted when empty")
	}
}

func TestExecFinished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	l := New(true, path, "glm", "run")
	defer l.Close()

	l.ExecFinished(0, true, 1500*time.Millisecond, 0.25, 4)

	lines := readLines(t, path)
	var e struct {
		Event      string  `json:"event"`
		ExitCode   int     `json:"exit_code"`
		TimedOut   bool    `json:"timed_out"`
		DurationMS int64   `json:"duration_ms"`
		CostUSD    float64 `json:"cost_usd"`
		Turns      int     `json:"turns"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Event != "exec_finished" {
		t.Errorf("event = %q, want %q", e.Event, "exec_finished")
	}
	if !e.TimedOut || e.DurationMS != 1500 || e.CostUSD != 0.25 || e.Turns != 4 {
		t.Errorf("entry = %+v", e)
	}
}

func TestToolUseAndSessionStored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	l := New(true, path, "glm", "run")
	defer l.Close()

	l.ToolUse("Bash", "Bash: ls")
	l.SessionStored("abc")
	l.Retry(1, "exit code 1", 2*time.Second)

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var tool struct {
		Event    string `json:"event"`
		ToolName string `json:"tool_name"`
		Summary  string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &tool); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tool.Event != "tool_use" || tool.ToolName != "Bash" || tool.Summary != "Bash: ls" {
		t.Errorf("tool entry = %+v", tool)
	}
	var stored struct {
		Event     string `json:"event"`
		SessionID string `json:"delegated_session_id"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stored.Event != "session_stored" || stored.SessionID != "abc" {
		t.Errorf("stored entry = %+v", stored)
	}
	var retry struct {
		Event   string `json:"event"`
		DelayMS int64  `json:"delay_ms"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &retry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if retry.Event != "retry" || retry.DelayMS != 2000 {
		t.Errorf("retry entry = %+v", retry)
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	l := New(false, path, "glm", "run")
	defer l.Close()

	l.ExecStarted(1, "plan", "")
	l.ToolUse("Bash", "Bash")
	l.ExecFinished(0, false, time.Second, 0, 0)
	l.SessionStored("x")
	l.Retry(1, "x", time.Second)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file to be created when disabled")
	}
}

func TestNopLoggerIsNoop(t *testing.T) {
	l := Nop()
	// Should not panic.
	l.ExecStarted(1, "plan", "")
	l.ToolUse("Bash", "Bash")
	l.SessionStored("x")
	l.Close()

	var nilLogger *Logger
	nilLogger.ToolUse("Bash", "Bash")
	nilLogger.Close()
}

func TestAppendsAcrossLoggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "activity.jsonl")
	a := New(true, path, "glm", "run-a")
	a.SessionStored("one")
	a.Close()
	b := New(true, path, "kimi", "run-b")
	b.SessionStored("two")
	b.Close()

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestTimestampPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	l := New(true, path, "glm", "run")
	defer l.Close()

	l.SessionStored("x")

	lines := readLines(t, path)
	var e struct {
		Timestamp string `json:"ts"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := time.Parse(time.RFC3339Nano, e.Timestamp); err != nil {
		t.Errorf("ts = %q: %v", e.Timestamp, err)
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Error("expected distinct run ids")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("run id %q is not a uuid: %v", a, err)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}
