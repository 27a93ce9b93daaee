//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// setProcAttr puts the child in its own process group so terminal
// interrupts reach only cswitch, which then decides how to stop the child.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalTerm(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

func forceKill(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}

func notifySignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	return ch, func() { signal.Stop(ch) }
}
