// Package supervisor runs one headless child process: no stdin, separate
// stdout/stderr pipes, an optional timeout, and interrupt relay scoped to
// the life of the child. Termination is two-phase: a polite signal to the
// child's process group, then a forced kill once the grace window lapses.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultInterruptGrace is the wait between the polite signal and the
	// forced kill when the user interrupts.
	DefaultInterruptGrace = 2 * time.Second
	// DefaultTimeoutGrace is the same wait after the execution timeout.
	DefaultTimeoutGrace = 10 * time.Second
)

// Command describes the child to launch.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Options tune supervision. Zero values select the defaults.
type Options struct {
	Timeout        time.Duration
	InterruptGrace time.Duration
	TimeoutGrace   time.Duration
	// RelaySignals forwards SIGINT/SIGTERM received by this process to the
	// child for the duration of the execution.
	RelaySignals bool
	Logger       *zap.Logger
}

// Exit is the resolved outcome of a supervised child. A timeout or an
// interrupt is reported here rather than as an error.
type Exit struct {
	Code        int
	TimedOut    bool
	Interrupted bool
	Duration    time.Duration
}

// Process is a running child. Callers drain Stdout and Stderr to EOF and
// then call Wait.
type Process struct {
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd     *exec.Cmd
	opts    Options
	log     *zap.Logger
	started time.Time

	exited    chan struct{}
	stopRelay func()

	mu          sync.Mutex
	timedOut    bool
	interrupted bool
	terminating bool
	killAt      time.Time

	waitOnce sync.Once
	exit     Exit
	waitErr  error
}

// Resolve maps a script path to the interpreter invocation that runs it.
// Batch files go through cmd.exe and PowerShell scripts through
// powershell; everything else is executed directly.
func Resolve(path string, args []string) (string, []string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cmd", ".bat":
		return "cmd.exe", append([]string{"/d", "/s", "/c", path}, args...)
	case ".ps1":
		return "powershell", append([]string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-File", path}, args...)
	}
	return path, args
}

// Start launches c. The returned error means the child never ran.
func Start(ctx context.Context, c Command, opts Options) (*Process, error) {
	if opts.InterruptGrace <= 0 {
		opts.InterruptGrace = DefaultInterruptGrace
	}
	if opts.TimeoutGrace <= 0 {
		opts.TimeoutGrace = DefaultTimeoutGrace
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	name, args := Resolve(c.Path, c.Args)
	cmd := exec.Command(name, args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdin = nil
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	log.Debug("child started", zap.String("path", name), zap.Int("pid", cmd.Process.Pid))

	p := &Process{
		Stdout:    stdout,
		Stderr:    stderr,
		cmd:       cmd,
		opts:      opts,
		log:       log,
		started:   time.Now(),
		exited:    make(chan struct{}),
		stopRelay: func() {},
	}

	var sigs <-chan os.Signal
	if opts.RelaySignals {
		sigs, p.stopRelay = notifySignals()
	}
	go p.watch(ctx, sigs)
	return p, nil
}

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

func (p *Process) watch(ctx context.Context, sigs <-chan os.Signal) {
	var timeout <-chan time.Time
	if p.opts.Timeout > 0 {
		t := time.NewTimer(p.opts.Timeout)
		defer t.Stop()
		timeout = t.C
	}
	done := ctx.Done()
	for {
		select {
		case <-p.exited:
			return
		case <-timeout:
			timeout = nil
			select {
			case <-p.exited:
				return
			default:
			}
			p.mu.Lock()
			p.timedOut = true
			p.mu.Unlock()
			p.log.Debug("child timed out", zap.Duration("timeout", p.opts.Timeout))
			p.Terminate(p.opts.TimeoutGrace)
		case sig := <-sigs:
			p.markInterrupted()
			p.log.Debug("relaying signal", zap.Stringer("signal", sig))
			p.Terminate(p.opts.InterruptGrace)
		case <-done:
			done = nil
			p.markInterrupted()
			p.Terminate(p.opts.InterruptGrace)
		}
	}
}

func (p *Process) markInterrupted() {
	p.mu.Lock()
	p.interrupted = true
	p.mu.Unlock()
}

// Terminate asks the child's process group to exit and force-kills it if
// it is still running after grace. A call whose kill deadline is no earlier
// than one already scheduled is a no-op; a shorter grace re-signals and
// brings the kill forward. Signalling an already exited child is not an
// error.
func (p *Process) Terminate(grace time.Duration) {
	deadline := time.Now().Add(grace)
	p.mu.Lock()
	if p.terminating && !deadline.Before(p.killAt) {
		p.mu.Unlock()
		return
	}
	p.terminating = true
	p.killAt = deadline
	p.mu.Unlock()

	select {
	case <-p.exited:
		return
	default:
	}
	if err := signalTerm(p.cmd.Process); err != nil && !isGone(err) {
		p.log.Debug("terminate signal failed", zap.Error(err))
	}
	go func() {
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-p.exited:
		case <-t.C:
			p.log.Debug("grace elapsed, killing child", zap.Duration("grace", grace))
			if err := forceKill(p.cmd.Process); err != nil && !isGone(err) {
				p.log.Debug("kill failed", zap.Error(err))
			}
		}
	}()
}

// Wait blocks until the child exits and returns its resolved outcome. The
// error is non-nil only when the exit status could not be determined.
func (p *Process) Wait() (Exit, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		close(p.exited)
		p.stopRelay()

		p.mu.Lock()
		p.exit = Exit{
			TimedOut:    p.timedOut,
			Interrupted: p.interrupted,
			Duration:    time.Since(p.started),
		}
		p.mu.Unlock()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			p.exit.Code = 0
		case errors.As(err, &exitErr):
			p.exit.Code = exitErr.ExitCode()
		default:
			p.exit.Code = -1
			p.waitErr = err
		}
		p.log.Debug("child exited",
			zap.Int("code", p.exit.Code),
			zap.Bool("timed_out", p.exit.TimedOut),
			zap.Bool("interrupted", p.exit.Interrupted))
	})
	return p.exit, p.waitErr
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || isNoSuchProcess(err)
}
