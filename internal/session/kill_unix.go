//go:build !windows

package session

import "syscall"

// killProcessGroup sends SIGTERM to the session's process group so the
// server and the shell hosting it both see the signal.
func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
}

func killProcessGroupForce(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
