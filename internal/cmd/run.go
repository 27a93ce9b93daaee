package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"cswitch/internal/activitylog"
	"cswitch/internal/config"
	"cswitch/internal/executor"
	"cswitch/internal/profile"
	"cswitch/internal/progress"
	"cswitch/internal/sessionstore"
)

const (
	exitTimedOut    = 124
	exitInterrupted = 130
)

type runFlags struct {
	profile        string
	cont           bool
	resume         string
	strictResume   bool
	timeout        time.Duration
	permissionMode string
	retries        int
	retryDelay     time.Duration
	dir            string
	quiet          bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [flags] <prompt>",
		Short: "Run a prompt headlessly under a profile",
		Long: `Run a prompt through claude in headless mode under the given profile.

Progress, tool activity and the completion summary are written to stderr; the
final answer is written to stdout so it can be piped.

Profiles resolve in this order: the configured default, fixed OAuth providers
(agy, codex, gemini, iflow, qwen), OAuth variants, settings-based profiles,
then accounts.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts, err := runOptions(cmd, cfg, f)
			if err != nil {
				return err
			}

			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			resolver := profile.NewResolver(cfg)
			activity := activitylog.New(true, config.ActivityLogPath(), resolvedName(resolver, f.profile), activitylog.NewRunID())
			defer activity.Close()

			store := sessionstore.New(config.SessionsFile(),
				sessionstore.WithRetention(cfg.Delegation.SessionRetention))
			ex := executor.New(resolver, store,
				executor.WithReporter(progress.ForStderr(f.quiet || envFlag(quietEnv))),
				executor.WithActivityLog(activity),
				executor.WithLogger(logger),
				executor.WithSignalRelay(true),
			)

			prompt := strings.Join(args, " ")
			res, err := ex.ExecuteWithRetry(cmd.Context(), f.profile, prompt, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, res.Content)
			if res.Content != "" && !strings.HasSuffix(res.Content, "\n") {
				fmt.Fprintln(out)
			}
			if code := exitCode(res); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.profile, "profile", "p", profile.DefaultName, "Profile to run under")
	cmd.Flags().BoolVarP(&f.cont, "continue", "c", false, "Continue the last session of this profile")
	cmd.Flags().StringVar(&f.resume, "resume", "", "Resume a specific session id")
	cmd.Flags().BoolVar(&f.strictResume, "strict-resume", false, "Fail instead of starting fresh when --continue finds no session")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Abort the run after this long (default from config, 0 = none)")
	cmd.Flags().StringVar(&f.permissionMode, "permission-mode", "", "Permission mode: default, acceptEdits, plan, bypassPermissions")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "Retries after a failed or timed-out run (default from config)")
	cmd.Flags().DurationVar(&f.retryDelay, "retry-delay", executor.DefaultRetryDelay, "Base backoff between retries; attempt n waits n times this")
	cmd.Flags().StringVar(&f.dir, "dir", "", "Working directory for the child (default: current directory)")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Hide spinner and tool progress")
	return cmd
}

// runOptions merges config.yaml delegation defaults with explicit flags.
func runOptions(cmd *cobra.Command, cfg *config.Config, f runFlags) (executor.Options, error) {
	d := cfg.Delegation
	opts := executor.Options{
		PermissionMode: d.PermissionMode,
		Timeout:        d.Timeout,
		MaxRetries:     d.MaxRetries,
		RetryDelay:     f.retryDelay,
		Continue:       f.cont,
		SessionID:      strings.TrimSpace(f.resume),
		StrictResume:   f.strictResume,
		WorkingDir:     config.ExpandPath(f.dir),
	}
	flags := cmd.Flags()
	if flags.Changed("permission-mode") {
		opts.PermissionMode = f.permissionMode
	}
	if flags.Changed("timeout") {
		opts.Timeout = f.timeout
	}
	if flags.Changed("retries") {
		opts.MaxRetries = f.retries
	}
	if opts.MaxRetries < 0 {
		return opts, fmt.Errorf("--retries must not be negative")
	}
	if d.ExtraArgs != "" {
		extra, err := shlex.Split(d.ExtraArgs)
		if err != nil {
			return opts, fmt.Errorf("delegation.extra_args: %w", err)
		}
		opts.ExtraArgs = extra
	}
	return opts, nil
}

// resolvedName is the profile name the run will execute under, so "default"
// is logged as the profile it stands for. Resolution errors are reported by
// the executor; here the requested name is kept.
func resolvedName(r *profile.Resolver, name string) string {
	ref, err := r.Resolve(name)
	if err != nil {
		return name
	}
	return ref.Name
}

// exitCode maps a finished run onto the cswitch process exit code.
func exitCode(res *executor.Result) int {
	switch {
	case res.Succeeded:
		return 0
	case res.Interrupted:
		return exitInterrupted
	case res.TimedOut:
		return exitTimedOut
	case res.ExitCode > 0:
		return res.ExitCode
	default:
		return 1
	}
}
