package version

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Version is the current version of cswitch.
const Version = "0.4.0"

// GitRef is injected at build time for dev builds (e.g. via -ldflags -X).
var GitRef = "unknown"

// ReleaseBuild is injected at build time. When true, DisplayVersion omits git ref.
var ReleaseBuild = "false"

// probeTimeout bounds `claude --version`.
const probeTimeout = 5 * time.Second

// DisplayVersion returns v<semver> for release builds and
// v<semver>-<gitref> otherwise.
func DisplayVersion() string {
	switch strings.ToLower(strings.TrimSpace(ReleaseBuild)) {
	case "1", "true", "yes":
		return "v" + Version
	}
	ref := strings.TrimSpace(GitRef)
	if ref == "" {
		ref = "unknown"
	}
	return "v" + Version + "-" + ref
}

// Banner is the first line printed by `cswitch version`.
func Banner() string {
	return fmt.Sprintf("cswitch %s (%s %s/%s)", DisplayVersion(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Claude asks the claude executable at path for its version and returns the
// first non-empty line of its output.
func Claude(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", path, err)
	}
	for _, line := range strings.Split(string(bytes.TrimSpace(out)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s --version: empty output", path)
}

// Report renders the banner followed by the delegated claude version, or
// the reason it could not be determined.
func Report(claude string, err error) string {
	if err != nil {
		return Banner() + "\nclaude: unavailable (" + err.Error() + ")"
	}
	return Banner() + "\nclaude: " + claude
}
