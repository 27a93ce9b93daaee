// Package profile resolves a profile name to the launch parameters used for
// delegated execution. Resolution follows a fixed precedence: the configured
// default, fixed OAuth providers, user OAuth variants, settings-based
// profiles, then account profiles.
package profile

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cswitch/internal/config"
)

// Kind classifies how a profile runs.
type Kind string

const (
	KindSettings     Kind = "settings"
	KindAccount      Kind = "account"
	KindOAuth        Kind = "oauth"
	KindOAuthVariant Kind = "oauth-variant"
	KindDefault      Kind = "default"
)

// DefaultName is the sentinel that selects the configured default profile.
const DefaultName = "default"

// ErrInvalidName is returned for names outside [A-Za-z0-9_-].
var ErrInvalidName = errors.New("invalid profile name")

// LaunchParams are the per-profile inputs to process launch. Every
// environment value is a string.
type LaunchParams struct {
	SettingsPath string
	Env          map[string]string
	ExtraArgs    []string
	WorkingDir   string
}

// Reference identifies how to run a task. It is resolved once per
// invocation and not modified afterwards.
type Reference struct {
	Kind   Kind
	Name   string
	Launch LaunchParams
}

// Resolver resolves names against a loaded Config.
type Resolver struct {
	cfg *config.Config
}

// NewResolver creates a Resolver. A nil cfg behaves like an empty config.
func NewResolver(cfg *config.Config) *Resolver {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Resolver{cfg: cfg}
}

// Resolve maps name to a Reference. An empty name or "default" resolves
// the configured default and never fails with NotFoundError.
func (r *Resolver) Resolve(name string) (Reference, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == DefaultName {
		return r.resolveDefault(), nil
	}
	if !config.ValidName(name) {
		return Reference{}, fmt.Errorf("%w: %q (allowed characters: A-Z a-z 0-9 _ -)", ErrInvalidName, name)
	}

	if config.IsOAuthProvider(name) {
		return r.oauthRef(name), nil
	}
	if v, ok := r.cfg.Variants[name]; ok && v != nil {
		return r.variantRef(name, v), nil
	}
	if path, ok := r.cfg.Profiles[name]; ok {
		return settingsRef(name, path), nil
	}
	if _, ok := r.cfg.Accounts.Entries[name]; ok {
		return accountRef(name), nil
	}

	return Reference{}, r.notFound(name)
}

func (r *Resolver) resolveDefault() Reference {
	if d := r.cfg.Accounts.Default; d != "" {
		if _, ok := r.cfg.Accounts.Entries[d]; ok {
			return accountRef(d)
		}
	}
	if d := r.cfg.Default; d != "" {
		if path, ok := r.cfg.Profiles[d]; ok {
			return settingsRef(d, path)
		}
	}
	return Reference{
		Kind: KindDefault,
		Name: DefaultName,
		Launch: LaunchParams{
			SettingsPath: filepath.Join(config.DefaultClaudeConfigDir(), "settings.json"),
			Env:          map[string]string{},
		},
	}
}

func (r *Resolver) oauthRef(provider string) Reference {
	return Reference{
		Kind: KindOAuth,
		Name: provider,
		Launch: LaunchParams{
			SettingsPath: config.ProviderSettingsPath(provider),
			Env:          map[string]string{},
		},
	}
}

func (r *Resolver) variantRef(name string, v *config.VariantConfig) Reference {
	settings := config.ProviderSettingsPath(v.Provider)
	if v.Settings != "" {
		settings = config.ExpandPath(v.Settings)
	}
	env := map[string]string{}
	if v.Account != "" {
		env["CLAUDE_CONFIG_DIR"] = config.InstanceDir(v.Account)
	}
	return Reference{
		Kind: KindOAuthVariant,
		Name: name,
		Launch: LaunchParams{
			SettingsPath: settings,
			Env:          env,
		},
	}
}

func settingsRef(name, path string) Reference {
	return Reference{
		Kind: KindSettings,
		Name: name,
		Launch: LaunchParams{
			SettingsPath: config.ExpandPath(path),
			Env:          map[string]string{},
		},
	}
}

func accountRef(name string) Reference {
	dir := config.InstanceDir(name)
	return Reference{
		Kind: KindAccount,
		Name: name,
		Launch: LaunchParams{
			SettingsPath: filepath.Join(dir, "settings.json"),
			Env:          map[string]string{"CLAUDE_CONFIG_DIR": dir},
		},
	}
}

// KnownNames returns every resolvable name across all categories.
func (r *Resolver) KnownNames() []string {
	seen := map[string]struct{}{}
	var names []string
	add := func(list []string) {
		for _, n := range list {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	add(config.OAuthProviders)
	add(r.cfg.VariantNames())
	add(r.cfg.ProfileNames())
	add(r.cfg.AccountNames())
	return names
}
