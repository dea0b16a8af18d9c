//go:build unix

package services

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcAttr puts a pipe-backed service in its own process group.
// pty.Start makes the child a session leader, which already implies one.
func configureProcAttr(cmd *exec.Cmd, usePTY bool) {
	if !usePTY {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	return syscall.Kill(-p.Pid, sig)
}
