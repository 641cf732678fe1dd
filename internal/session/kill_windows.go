//go:build windows

package session

// GNU screen is not available on Windows; the exec paths fail before these
// are reached. They exist so the package still compiles there.
func killProcessGroup(pid int)      {}
func killProcessGroupForce(pid int) {}
