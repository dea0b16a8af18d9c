//go:build !unix

package services

import (
	"os"
	"os/exec"
	"syscall"
)

func configureProcAttr(cmd *exec.Cmd, usePTY bool) {}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	return p.Kill()
}
