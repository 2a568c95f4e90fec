//go:build !windows

package terminal

import (
	"errors"
	"os"
	"syscall"
)

// signalGroup signals the process group led by proc. pty.Start runs the
// child with Setsid, so its pid is also its process group id.
func signalGroup(proc *os.Process, sig syscall.Signal) error {
	if proc == nil {
		return nil
	}
	err := syscall.Kill(-proc.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func exitStatus(state *os.ProcessState, err error) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: ws.Signal().String()}
	}
	return ExitStatus{Code: state.ExitCode()}
}
