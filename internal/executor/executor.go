// Package executor runs one prompt against a profile in a headless claude
// child: it resolves the profile, builds the argument vector, supervises
// the process, interprets its stream, and records the resulting session.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cswitch/internal/activitylog"
	"cswitch/internal/config"
	"cswitch/internal/profile"
	"cswitch/internal/progress"
	"cswitch/internal/sessionstore"
	"cswitch/internal/stream"
	"cswitch/internal/supervisor"
)

const readChunk = 32 * 1024

// Options are per-execution settings.
type Options struct {
	PermissionMode string
	// Timeout bounds one attempt. Zero means no limit.
	Timeout time.Duration
	// Continue resumes the most recent session recorded for the profile.
	Continue bool
	// SessionID resumes a specific session and takes precedence over
	// Continue.
	SessionID string
	// StrictResume makes Continue fail when no previous session exists
	// instead of starting a new one.
	StrictResume bool
	MaxRetries   int
	// RetryDelay is the base backoff; attempt n waits RetryDelay*n.
	RetryDelay time.Duration
	WorkingDir string
	ExtraArgs  []string

	attempt int
}

// Result is the outcome of one execution. A non-zero exit or a timeout is
// reported here, not as an error.
type Result struct {
	Profile     string
	ExitCode    int
	Succeeded   bool
	TimedOut    bool
	Interrupted bool
	Duration    time.Duration
	SessionID   string
	TotalCost   float64
	HasCost     bool
	Turns       int
	IsError     bool
	Content     string
	Records     []stream.Record
	RawStdout   string
	RawStderr   string
	Attempts    int
}

// Executor owns the collaborators shared by executions. Each Execute call
// has its own buffers and child process.
type Executor struct {
	resolver       *profile.Resolver
	sessions       *sessionstore.Store
	reporter       *progress.Reporter
	activity       *activitylog.Logger
	log            *zap.Logger
	claudePath     string
	relaySignals   bool
	interruptGrace time.Duration
	timeoutGrace   time.Duration

	run   func(ctx context.Context, name, prompt string, opts Options) (*Result, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithReporter sets the progress reporter. The default discards output.
func WithReporter(r *progress.Reporter) Option {
	return func(e *Executor) { e.reporter = r }
}

// WithActivityLog sets the activity logger.
func WithActivityLog(l *activitylog.Logger) Option {
	return func(e *Executor) { e.activity = l }
}

// WithLogger sets the debug logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithClaudePath skips executable lookup.
func WithClaudePath(p string) Option {
	return func(e *Executor) { e.claudePath = p }
}

// WithSignalRelay forwards interrupts received by this process to the child.
func WithSignalRelay(on bool) Option {
	return func(e *Executor) { e.relaySignals = on }
}

// WithGrace overrides the interrupt and timeout grace windows.
func WithGrace(interrupt, timeout time.Duration) Option {
	return func(e *Executor) {
		e.interruptGrace = interrupt
		e.timeoutGrace = timeout
	}
}

// New returns an Executor resolving profiles with resolver and recording
// sessions in sessions.
func New(resolver *profile.Resolver, sessions *sessionstore.Store, opts ...Option) *Executor {
	e := &Executor{
		resolver: resolver,
		sessions: sessions,
		reporter: progress.New(io.Discard, progress.Options{Quiet: true}),
		activity: activitylog.Nop(),
		log:      zap.NewNop(),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	e.run = e.Execute
	return e
}

// Execute runs prompt once under the named profile. Configuration problems
// return a *ConfigError and a spawn failure a *LaunchError; everything that
// happens after the child starts is reported in the Result.
func (e *Executor) Execute(ctx context.Context, name, prompt string, opts Options) (*Result, error) {
	mode, err := ParsePermissionMode(opts.PermissionMode)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	ref, err := e.resolver.Resolve(name)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	settingsPath, err := settingsFor(ref)
	if err != nil {
		return nil, err
	}
	claude := e.claudePath
	if claude == "" {
		if claude, err = FindExecutable(); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}

	workDir := opts.WorkingDir
	if workDir == "" {
		workDir = ref.Launch.WorkingDir
	}
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, configErrorf("working directory: %w", err)
		}
	}

	resumeID, err := e.resumeID(ref.Name, opts)
	if err != nil {
		return nil, err
	}

	args := BuildArgs(Args{
		Prompt:       prompt,
		SettingsPath: settingsPath,
		Mode:         mode,
		ResumeID:     resumeID,
		ExtraArgs:    append(append([]string{}, ref.Launch.ExtraArgs...), opts.ExtraArgs...),
		Tools:        config.LoadProjectTools(workDir),
	})
	e.activity.ExecStarted(max(opts.attempt, 1), string(mode), resumeID)
	e.log.Debug("launching",
		zap.String("profile", ref.Name),
		zap.String("kind", string(ref.Kind)),
		zap.String("path", claude),
		zap.Strings("args", args),
		zap.String("dir", workDir))

	proc, err := supervisor.Start(ctx, supervisor.Command{
		Path: claude,
		Args: args,
		Env:  mergeEnv(os.Environ(), ref.Launch.Env),
		Dir:  workDir,
	}, supervisor.Options{
		Timeout:        opts.Timeout,
		InterruptGrace: e.interruptGrace,
		TimeoutGrace:   e.timeoutGrace,
		RelaySignals:   e.relaySignals,
		Logger:         e.log,
	})
	if err != nil {
		return nil, &LaunchError{Path: claude, Err: err}
	}

	e.reporter.Start(ref.Name)
	interp, stdout, stderr := e.pump(proc)
	exit, waitErr := proc.Wait()
	if waitErr != nil {
		e.log.Debug("wait failed", zap.Error(waitErr))
	}

	res := fold(ref.Name, exit, interp, stdout, stderr)
	e.persist(ref.Name, workDir, res)
	e.reporter.Done(progress.Summary{
		Duration:  res.Duration,
		TimedOut:  res.TimedOut,
		Succeeded: res.Succeeded,
		ExitCode:  res.ExitCode,
		Cost:      res.TotalCost,
		HasCost:   res.HasCost,
		Turns:     res.Turns,
		SessionID: res.SessionID,
	})
	e.activity.ExecFinished(res.ExitCode, res.TimedOut, res.Duration, res.TotalCost, res.Turns)
	return res, nil
}

// settingsFor validates the profile's settings artifact and returns the path
// to pass to the child. The default profile may have no artifact at all, in
// which case the child runs on its own defaults and the path is empty.
func settingsFor(ref profile.Reference) (string, error) {
	path := ref.Launch.SettingsPath
	_, err := config.LoadSettings(path)
	switch {
	case err == nil:
		return path, nil
	case errors.Is(err, config.ErrSettingsNotFound) && ref.Kind == profile.KindDefault:
		return "", nil
	case errors.Is(err, config.ErrSettingsNotFound):
		return "", configErrorf("profile %s has no settings artifact: %w", ref.Name, err)
	default:
		return "", configErrorf("profile %s: %w", ref.Name, err)
	}
}

// resumeID picks the session to resume: an explicit id, else the last
// session for the profile when continuing.
func (e *Executor) resumeID(profileName string, opts Options) (string, error) {
	if opts.SessionID != "" {
		return opts.SessionID, nil
	}
	if !opts.Continue {
		return "", nil
	}
	var rec *sessionstore.Record
	if e.sessions != nil {
		var err error
		rec, err = e.sessions.Last(profileName)
		if err != nil {
			e.reporter.Warn("reading session registry: %v", err)
		}
	}
	if rec != nil && rec.SessionID != "" {
		return rec.SessionID, nil
	}
	if opts.StrictResume {
		return "", configErrorf("profile %s: %w to continue", profileName, ErrNoPreviousSession)
	}
	e.reporter.Warn("no previous session for %s; starting a new session", profileName)
	return "", nil
}

// pump drains stdout and stderr concurrently until both reach EOF.
// Stdout feeds the interpreter and emits tool lines; stderr is passed
// through as it arrives.
func (e *Executor) pump(proc *supervisor.Process) (*stream.Interpreter, []byte, []byte) {
	interp := stream.NewInterpreter()
	var (
		mu     sync.Mutex
		stdout []byte
		stderr []byte
	)
	var g errgroup.Group
	g.Go(func() error {
		buf := make([]byte, readChunk)
		for {
			n, err := proc.Stdout.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				mu.Lock()
				stdout = append(stdout, chunk...)
				mu.Unlock()
				e.emit(interp.Feed(chunk))
			}
			if err != nil {
				e.emit(interp.Flush())
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read stdout: %w", err)
			}
		}
	})
	g.Go(func() error {
		buf := make([]byte, readChunk)
		for {
			n, err := proc.Stderr.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				mu.Lock()
				stderr = append(stderr, chunk...)
				mu.Unlock()
				e.reporter.Passthrough(chunk)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read stderr: %w", err)
			}
		}
	})
	if err := g.Wait(); err != nil {
		e.log.Debug("output pump", zap.Error(err))
	}
	return interp, stdout, stderr
}

func (e *Executor) emit(recs []stream.Record) {
	for _, rec := range recs {
		for _, tu := range rec.ToolUses {
			line := stream.Summarize(tu)
			e.reporter.Tool(line)
			e.activity.ToolUse(tu.Name, line)
		}
	}
}

// fold builds the Result from the child's exit and its decoded stream. The
// result record, when present, is authoritative; otherwise content falls
// back to raw stdout.
func fold(profileName string, exit supervisor.Exit, interp *stream.Interpreter, stdout, stderr []byte) *Result {
	res := &Result{
		Profile:     profileName,
		ExitCode:    exit.Code,
		TimedOut:    exit.TimedOut,
		Interrupted: exit.Interrupted,
		Duration:    exit.Duration,
		SessionID:   interp.SessionID(),
		Records:     interp.Records(),
		RawStdout:   string(stdout),
		RawStderr:   string(stderr),
		Content:     string(stdout),
		Attempts:    1,
	}
	if r := interp.Result(); r != nil {
		res.TotalCost = r.TotalCost
		res.HasCost = true
		res.Turns = r.NumTurns
		res.IsError = r.IsError
		res.Content = r.Content
	}
	res.Succeeded = res.ExitCode == 0 && !res.TimedOut && !res.IsError
	return res
}

// persist records the session, including after a timeout, and occasionally
// sweeps expired entries. Registry failures are warnings.
func (e *Executor) persist(profileName, workDir string, res *Result) {
	if e.sessions == nil {
		return
	}
	if res.SessionID != "" {
		err := e.sessions.Save(profileName, res.SessionID, sessionstore.Usage{
			Cost:  res.TotalCost,
			Turns: res.Turns,
			Cwd:   workDir,
		})
		if err != nil {
			e.reporter.Warn("saving session: %v", err)
		} else {
			e.activity.SessionStored(res.SessionID)
		}
	}
	ran, n, err := e.sessions.MaybeSweep()
	switch {
	case err != nil:
		e.log.Debug("session sweep failed", zap.Error(err))
	case ran:
		e.log.Debug("session sweep", zap.Int("removed", n))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
