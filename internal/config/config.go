package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the persisted cswitch configuration (~/.cswitch/config.yaml).
type Config struct {
	// Default is the settings-type default profile.
	Default    string                    `yaml:"default,omitempty"`
	Profiles   map[string]string         `yaml:"profiles,omitempty"`
	Accounts   AccountsConfig            `yaml:"accounts,omitempty"`
	Variants   map[string]*VariantConfig `yaml:"variants,omitempty"`
	Delegation DelegationConfig          `yaml:"delegation,omitempty"`
}

// AccountsConfig is the registry of isolated account profiles.
type AccountsConfig struct {
	Default string                    `yaml:"default,omitempty"`
	Entries map[string]*AccountConfig `yaml:"entries,omitempty"`
}

type AccountConfig struct {
	CreatedAt time.Time `yaml:"created_at,omitempty"`
	LastUsed  time.Time `yaml:"last_used,omitempty"`
}

// VariantConfig is a named alias over a fixed OAuth provider.
type VariantConfig struct {
	Provider string `yaml:"provider"`
	Account  string `yaml:"account,omitempty"`
	Settings string `yaml:"settings,omitempty"`
}

// DelegationConfig holds defaults for headless execution.
type DelegationConfig struct {
	PermissionMode   string        `yaml:"permission_mode,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`
	MaxRetries       int           `yaml:"max_retries,omitempty"`
	ExtraArgs        string        `yaml:"extra_args,omitempty"`
	SessionRetention time.Duration `yaml:"session_retention,omitempty"`
}

// OAuthProviders is the closed set of zero-configuration OAuth providers.
var OAuthProviders = []string{"agy", "codex", "gemini", "iflow", "qwen"}

// IsOAuthProvider reports whether name is one of the fixed OAuth providers.
func IsOAuthProvider(name string) bool {
	for _, p := range OAuthProviders {
		if p == name {
			return true
		}
	}
	return false
}

// ConfigDir returns the cswitch configuration directory. CSWITCH_DIR
// overrides the default of ~/.cswitch/.
func ConfigDir() string {
	if dir := os.Getenv("CSWITCH_DIR"); dir != "" {
		return ExpandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".cswitch")
	}
	return filepath.Join(home, ".cswitch")
}

// ConfigPath returns the path of config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads the cswitch config from ~/.cswitch/config.yaml.
// If the file does not exist, it returns an empty Config with no error.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the cswitch config from the given path.
// If the file does not exist, it returns an empty Config with no error.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config back to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether name is a legal profile name.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

func (c *Config) validate() error {
	for name := range c.Profiles {
		if !ValidName(name) {
			return fmt.Errorf("profiles: invalid name %q (must match [A-Za-z0-9_-]+)", name)
		}
	}
	for name := range c.Accounts.Entries {
		if !ValidName(name) {
			return fmt.Errorf("accounts: invalid name %q (must match [A-Za-z0-9_-]+)", name)
		}
	}
	for name, v := range c.Variants {
		if !ValidName(name) {
			return fmt.Errorf("variants: invalid name %q (must match [A-Za-z0-9_-]+)", name)
		}
		if v == nil {
			return fmt.Errorf("variants.%s: empty definition", name)
		}
		if !IsOAuthProvider(v.Provider) {
			return fmt.Errorf("variants.%s: unknown provider %q (supported: %s)",
				name, v.Provider, strings.Join(OAuthProviders, ", "))
		}
	}
	if c.Delegation.Timeout < 0 {
		return fmt.Errorf("delegation.timeout must not be negative")
	}
	if c.Delegation.MaxRetries < 0 {
		return fmt.Errorf("delegation.max_retries must not be negative")
	}
	return nil
}

// ProfileNames returns the sorted settings-based profile names.
func (c *Config) ProfileNames() []string {
	return sortedKeys(c.Profiles)
}

// AccountNames returns the sorted account profile names.
func (c *Config) AccountNames() []string {
	return sortedKeys(c.Accounts.Entries)
}

// VariantNames returns the sorted OAuth variant names.
func (c *Config) VariantNames() []string {
	return sortedKeys(c.Variants)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExpandPath handles tilde expansion for configured paths.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
		}
	}
	return p
}
