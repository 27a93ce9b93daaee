package config

import (
	"os"
	"path/filepath"
)

// InstancesDir returns the directory holding isolated account instances
// (~/.cswitch/instances/).
func InstancesDir() string {
	return filepath.Join(ConfigDir(), "instances")
}

// InstanceDir returns the isolated Claude config directory for an account.
func InstanceDir(account string) string {
	return filepath.Join(InstancesDir(), account)
}

// SessionsFile returns the delegation session registry path.
func SessionsFile() string {
	return filepath.Join(ConfigDir(), "delegation-sessions.json")
}

// ActivityLogPath returns the JSONL activity log path.
func ActivityLogPath() string {
	return filepath.Join(ConfigDir(), "logs", "activity.jsonl")
}

// ProviderSettingsPath returns the settings artifact for a fixed OAuth provider.
func ProviderSettingsPath(provider string) string {
	return filepath.Join(ConfigDir(), provider+".settings.json")
}

// DefaultClaudeConfigDir returns the Claude config directory used when no
// profile applies: $CLAUDE_CONFIG_DIR if set, otherwise ~/.claude.
func DefaultClaudeConfigDir() string {
	if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
		return ExpandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".claude")
	}
	return filepath.Join(home, ".claude")
}
