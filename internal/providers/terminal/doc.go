// Package terminal supervises processes attached to pseudo-terminals.
//
// A PTYSpawner starts a resolved command.Spec under a pty (creack/pty) so
// interactive programs such as shells with job control, editors and ssh
// behave as on a real terminal. Each Process exposes:
//   - Read: raw terminal output, io.EOF after hang-up
//   - Write: input queued for a dedicated writer goroutine
//   - Resize: pty window size updates
//   - Exit: the exit status, delivered exactly once
//   - Kill: SIGHUP to the process group, SIGKILL after a grace period
//   - Close: kill if still running, reap, release the pty
//
// Kill and Close are idempotent; killing an exited process is a no-op.
// The package does not interpret escape sequences; that is left to the
// browser's terminal emulator.
package terminal
