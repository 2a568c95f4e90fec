//go:build windows

package terminal

import (
	"os"
	"syscall"
)

func signalGroup(proc *os.Process, _ syscall.Signal) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}

func exitStatus(state *os.ProcessState, _ error) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	return ExitStatus{Code: state.ExitCode()}
}
