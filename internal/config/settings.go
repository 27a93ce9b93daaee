package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrSettingsNotFound is returned when a settings artifact does not exist.
var ErrSettingsNotFound = errors.New("settings file not found")

// Settings is the subset of a Claude settings artifact cswitch reads.
type Settings struct {
	Path string
	Env  map[string]string
}

// LoadSettings reads and validates the settings artifact at path. The file
// must be a JSON object; its "env" map is flattened to strings because the
// target executable cannot load non-string environment values.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSettingsNotFound, path)
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var raw struct {
		Env map[string]any `json:"env"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}

	env, err := stringifyEnv(raw.Env)
	if err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return &Settings{Path: path, Env: env}, nil
}

// SettingsExists reports whether path names a regular file.
func SettingsExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func stringifyEnv(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch v := v.(type) {
		case string:
			out[k] = v
		case bool:
			out[k] = strconv.FormatBool(v)
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
			out[k] = ""
		default:
			return nil, fmt.Errorf("env.%s: value must be a string, got %T", k, v)
		}
	}
	return out, nil
}

// ProjectTools holds the tool allow/deny lists from a project's .claude dir.
type ProjectTools struct {
	Allowed    []string
	Disallowed []string
}

type projectSettings struct {
	AllowedTools    []string `json:"allowedTools"`
	DisallowedTools []string `json:"disallowedTools"`
}

// LoadProjectTools reads .claude/settings.json and .claude/settings.local.json
// under dir. A list present in the local file replaces the shared one.
// Missing or unparseable files contribute nothing.
func LoadProjectTools(dir string) ProjectTools {
	var tools ProjectTools
	for _, name := range []string{"settings.json", "settings.local.json"} {
		data, err := os.ReadFile(filepath.Join(dir, ".claude", name))
		if err != nil {
			continue
		}
		var ps projectSettings
		if err := json.Unmarshal(data, &ps); err != nil {
			continue
		}
		if ps.AllowedTools != nil {
			tools.Allowed = ps.AllowedTools
		}
		if ps.DisallowedTools != nil {
			tools.Disallowed = ps.DisallowedTools
		}
	}
	return tools
}
