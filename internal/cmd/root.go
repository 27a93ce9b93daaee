package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	debugEnv = "CSWITCH_DEBUG"
	quietEnv = "CSWITCH_QUIET"
)

// ExitError carries the process exit code for a run that completed but did
// not succeed. Its diagnostics have already been printed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cswitch",
		Short: "Delegate Claude tasks to switchable profiles",
		Long: `cswitch runs a prompt through the claude CLI in headless mode under a named
profile: a settings file, an isolated account, or an OAuth provider variant.
Sessions are remembered per profile so later runs can continue them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newProfileCmd(),
		newSessionCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// envFlag reports whether an environment toggle is set to a truthy value.
func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// newLogger returns a console debug logger on stderr when CSWITCH_DEBUG is
// set, and a no-op logger otherwise.
func newLogger() (*zap.Logger, error) {
	if !envFlag(debugEnv) {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
