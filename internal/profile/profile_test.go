package profile

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cswitch/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Profiles: map[string]string{
			"glm":  "/etc/cswitch/glm.settings.json",
			"kimi": "/etc/cswitch/kimi.settings.json",
		},
		Accounts: config.AccountsConfig{
			Entries: map[string]*config.AccountConfig{
				"glm":  {},
				"work": {},
			},
		},
		Variants: map[string]*config.VariantConfig{
			"gem2": {Provider: "gemini", Account: "work"},
		},
	}
}

func setupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CSWITCH_DIR", dir)
	return dir
}

func TestResolve_Precedence(t *testing.T) {
	dir := setupDir(t)
	r := NewResolver(testConfig())

	tests := []struct {
		name     string
		wantKind Kind
	}{
		{"gemini", KindOAuth},
		{"codex", KindOAuth},
		{"gem2", KindOAuthVariant},
		{"kimi", KindSettings},
		{"glm", KindSettings}, // settings wins over an account of the same name
		{"work", KindAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := r.Resolve(tt.name)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.name, err)
			}
			if ref.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", ref.Kind, tt.wantKind)
			}
			if ref.Name != tt.name {
				t.Errorf("Name = %q, want %q", ref.Name, tt.name)
			}
		})
	}

	ref, _ := r.Resolve("work")
	wantDir := filepath.Join(dir, "instances", "work")
	if ref.Launch.Env["CLAUDE_CONFIG_DIR"] != wantDir {
		t.Errorf("account CLAUDE_CONFIG_DIR = %q, want %q", ref.Launch.Env["CLAUDE_CONFIG_DIR"], wantDir)
	}
	if ref.Launch.SettingsPath != filepath.Join(wantDir, "settings.json") {
		t.Errorf("account settings = %q", ref.Launch.SettingsPath)
	}

	ref, _ = r.Resolve("glm")
	if ref.Launch.SettingsPath != "/etc/cswitch/glm.settings.json" {
		t.Errorf("settings path = %q", ref.Launch.SettingsPath)
	}

	ref, _ = r.Resolve("gemini")
	if ref.Launch.SettingsPath != filepath.Join(dir, "gemini.settings.json") {
		t.Errorf("oauth settings path = %q", ref.Launch.SettingsPath)
	}
}

func TestResolve_VariantSettingsOverride(t *testing.T) {
	setupDir(t)
	cfg := testConfig()
	cfg.Variants["gem3"] = &config.VariantConfig{Provider: "gemini", Settings: "/tmp/gem3.json"}
	ref, err := NewResolver(cfg).Resolve("gem3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Launch.SettingsPath != "/tmp/gem3.json" {
		t.Errorf("SettingsPath = %q, want /tmp/gem3.json", ref.Launch.SettingsPath)
	}
	if _, ok := ref.Launch.Env["CLAUDE_CONFIG_DIR"]; ok {
		t.Error("expected no CLAUDE_CONFIG_DIR without account")
	}
}

func TestResolve_Default(t *testing.T) {
	setupDir(t)

	t.Run("account default preferred", func(t *testing.T) {
		cfg := testConfig()
		cfg.Default = "kimi"
		cfg.Accounts.Default = "work"
		ref, err := NewResolver(cfg).Resolve("default")
		if err != nil {
			t.Fatal(err)
		}
		if ref.Kind != KindAccount || ref.Name != "work" {
			t.Errorf("got %s/%s, want account/work", ref.Kind, ref.Name)
		}
	})

	t.Run("settings default", func(t *testing.T) {
		cfg := testConfig()
		cfg.Default = "kimi"
		ref, err := NewResolver(cfg).Resolve("")
		if err != nil {
			t.Fatal(err)
		}
		if ref.Kind != KindSettings || ref.Name != "kimi" {
			t.Errorf("got %s/%s, want settings/kimi", ref.Kind, ref.Name)
		}
	})

	t.Run("dangling defaults fall back", func(t *testing.T) {
		cfg := testConfig()
		cfg.Default = "gone"
		cfg.Accounts.Default = "also-gone"
		ref, err := NewResolver(cfg).Resolve("default")
		if err != nil {
			t.Fatalf("default must not fail: %v", err)
		}
		if ref.Kind != KindDefault {
			t.Errorf("Kind = %q, want %q", ref.Kind, KindDefault)
		}
	})

	t.Run("nil config", func(t *testing.T) {
		claudeDir := t.TempDir()
		t.Setenv("CLAUDE_CONFIG_DIR", claudeDir)
		ref, err := NewResolver(nil).Resolve("default")
		if err != nil {
			t.Fatal(err)
		}
		if ref.Launch.SettingsPath != filepath.Join(claudeDir, "settings.json") {
			t.Errorf("SettingsPath = %q", ref.Launch.SettingsPath)
		}
	})
}

func TestResolve_InvalidName(t *testing.T) {
	setupDir(t)
	r := NewResolver(testConfig())
	for _, name := range []string{"glm.x", "a b", "../etc"} {
		_, err := r.Resolve(name)
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("Resolve(%q) err = %v, want ErrInvalidName", name, err)
		}
		var nf *NotFoundError
		if errors.As(err, &nf) {
			t.Errorf("Resolve(%q) returned NotFoundError for invalid name", name)
		}
	}
}

func TestResolve_NotFoundSuggestions(t *testing.T) {
	setupDir(t)
	r := NewResolver(testConfig())

	_, err := r.Resolve("GLN")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if diff := cmp.Diff([]string{"glm"}, nf.Suggestions); diff != "" {
		t.Errorf("suggestions mismatch (-want +got):\n%s", diff)
	}
	msg := err.Error()
	for _, want := range []string{"Did you mean: glm", "Settings-based", "Accounts", "OAuth providers", "- kimi"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q:\n%s", want, msg)
		}
	}
}

func TestResolve_NotFoundNoSuggestions(t *testing.T) {
	setupDir(t)
	_, err := NewResolver(testConfig()).Resolve("zzzzzzzz")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if len(nf.Suggestions) != 0 {
		t.Errorf("Suggestions = %v, want none", nf.Suggestions)
	}
	if strings.Contains(err.Error(), "Did you mean") {
		t.Error("unexpected suggestion line")
	}
}

func TestSuggest_OrderAndCap(t *testing.T) {
	candidates := []string{"abcd", "abce", "abc", "abcdef", "xyz", "ab", "abdd"}
	got := Suggest("abcd", candidates)
	// distance 0: abcd; distance 1: abc, abce, abdd; capped at 3.
	want := []string{"abcd", "abc", "abce"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Suggest mismatch (-want +got):\n%s", diff)
	}
	for _, s := range got {
		if Levenshtein("abcd", s) > 2 {
			t.Errorf("suggestion %q exceeds distance 2", s)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"glm", "glm", 0},
		{"glm", "gml", 2},
		{"gemini", "gemni", 1},
	}
	for _, tt := range tests {
		if got := Levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestKnownNames_Union(t *testing.T) {
	setupDir(t)
	names := NewResolver(testConfig()).KnownNames()
	seen := map[string]int{}
	for _, n := range names {
		seen[n]++
	}
	for _, want := range []string{"gemini", "gem2", "glm", "kimi", "work"} {
		if seen[want] != 1 {
			t.Errorf("KnownNames count for %q = %d, want 1", want, seen[want])
		}
	}
}
