package executor

import (
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"

	"cswitch/internal/config"
)

// PermissionMode controls how the child handles tool permission prompts.
type PermissionMode string

const (
	ModeDefault     PermissionMode = "default"
	ModeAcceptEdits PermissionMode = "acceptEdits"
	ModePlan        PermissionMode = "plan"
	ModeBypass      PermissionMode = "bypassPermissions"
)

// DefaultPermissionMode is used when no mode is configured.
const DefaultPermissionMode = ModeAcceptEdits

// PermissionModes lists the accepted modes.
var PermissionModes = []PermissionMode{ModeDefault, ModeAcceptEdits, ModePlan, ModeBypass}

// ClaudePathEnv overrides executable lookup.
const ClaudePathEnv = "CSWITCH_CLAUDE_PATH"

// ParsePermissionMode validates s. An empty string selects the default.
func ParsePermissionMode(s string) (PermissionMode, error) {
	if s == "" {
		return DefaultPermissionMode, nil
	}
	for _, m := range PermissionModes {
		if string(m) == s {
			return m, nil
		}
	}
	names := make([]string, len(PermissionModes))
	for i, m := range PermissionModes {
		names[i] = string(m)
	}
	return "", fmt.Errorf("invalid permission mode %q (valid: %s)", s, strings.Join(names, ", "))
}

// Args are the inputs to BuildArgs.
type Args struct {
	Prompt       string
	SettingsPath string
	Mode         PermissionMode
	ResumeID     string
	ExtraArgs    []string
	Tools        config.ProjectTools
}

// BuildArgs returns the child argument vector. The prompt is passed as a
// single argument exactly as given, so slash commands reach the child
// untouched. An empty SettingsPath omits --settings.
func BuildArgs(a Args) []string {
	args := []string{"-p", a.Prompt}
	if a.SettingsPath != "" {
		args = append(args, "--settings", a.SettingsPath)
	}
	args = append(args, "--output-format", "stream-json", "--verbose")
	if a.Mode == ModeBypass {
		args = append(args, "--dangerously-skip-permissions")
	} else {
		mode := a.Mode
		if mode == "" {
			mode = DefaultPermissionMode
		}
		args = append(args, "--permission-mode", string(mode))
	}
	if a.ResumeID != "" {
		args = append(args, "--resume", a.ResumeID)
	}
	args = append(args, a.ExtraArgs...)
	if len(a.Tools.Allowed) > 0 {
		args = append(args, "--allowedTools")
		args = append(args, a.Tools.Allowed...)
	}
	if len(a.Tools.Disallowed) > 0 {
		args = append(args, "--disallowedTools")
		args = append(args, a.Tools.Disallowed...)
	}
	return args
}

// FindExecutable locates the claude executable: $CSWITCH_CLAUDE_PATH when
// set (it must exist), otherwise PATH lookup.
func FindExecutable() (string, error) {
	if p := strings.TrimSpace(os.Getenv(ClaudePathEnv)); p != "" {
		p = config.ExpandPath(p)
		info, err := os.Stat(p)
		if err != nil {
			return "", fmt.Errorf("%s=%s: %w", ClaudePathEnv, p, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s=%s is a directory", ClaudePathEnv, p)
		}
		return p, nil
	}
	p, err := exec.LookPath("claude")
	if err != nil {
		return "", fmt.Errorf("claude executable not found in PATH (set %s to override): %w", ClaudePathEnv, err)
	}
	return p, nil
}

// mergeEnv overlays overrides onto base, replacing existing keys.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range slices.Sorted(maps.Keys(overrides)) {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
