// Package activitylog appends one JSON line per delegation event to a
// shared log file. Each line carries the profile that ran and a run id so
// concurrent executions can be told apart.
package activitylog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger writes activity entries. The zero value and Nop() discard
// everything.
type Logger struct {
	mu      sync.Mutex
	f       *os.File
	enabled bool
	path    string
	profile string
	runID   string
}

// NewRunID returns a fresh identifier for one cswitch invocation.
func NewRunID() string {
	return uuid.NewString()
}

// New returns a Logger appending to path. When enabled is false nothing is
// written and the file is never created.
func New(enabled bool, path, profile, runID string) *Logger {
	return &Logger{enabled: enabled, path: path, profile: profile, runID: runID}
}

// Nop returns a Logger that discards all events.
func Nop() *Logger {
	return &Logger{}
}

// RunID returns the run id stamped on every entry.
func (l *Logger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Close releases the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ExecStarted records the launch of one attempt.
func (l *Logger) ExecStarted(attempt int, permissionMode, resumeID string) {
	l.write("exec_started", map[string]any{
		"attempt":         attempt,
		"permission_mode": permissionMode,
		"resume":          resumeID,
	})
}

// ToolUse records a tool invocation reported by the child.
func (l *Logger) ToolUse(tool, summary string) {
	l.write("tool_use", map[string]any{
		"tool_name": tool,
		"summary":   summary,
	})
}

// ExecFinished records the resolved outcome of one attempt.
func (l *Logger) ExecFinished(exitCode int, timedOut bool, duration time.Duration, costUSD float64, turns int) {
	l.write("exec_finished", map[string]any{
		"exit_code":   exitCode,
		"timed_out":   timedOut,
		"duration_ms": duration.Milliseconds(),
		"cost_usd":    costUSD,
		"turns":       turns,
	})
}

// SessionStored records the session id written to the registry.
func (l *Logger) SessionStored(sessionID string) {
	l.write("session_stored", map[string]any{
		"delegated_session_id": sessionID,
	})
}

// Retry records that attempt failed and another will follow after delay.
func (l *Logger) Retry(attempt int, reason string, delay time.Duration) {
	l.write("retry", map[string]any{
		"attempt":  attempt,
		"reason":   reason,
		"delay_ms": delay.Milliseconds(),
	})
}

func (l *Logger) write(event string, fields map[string]any) {
	if l == nil || !l.enabled {
		return
	}
	entry := map[string]any{
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"profile": l.profile,
		"run_id":  l.runID,
		"event":   event,
	}
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		l.f = f
	}
	_, _ = l.f.Write(data)
}
