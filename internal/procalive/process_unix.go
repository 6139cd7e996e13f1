//go:build unix

package procalive

import "syscall"

// isProcessAlive checks if a process with the given PID exists.
// On Unix, uses kill(pid, 0) which checks for process existence
// without actually sending a signal.
//
// Returns true if the process exists (including if we lack permission
// to signal it - EPERM means it exists but we can't signal it).
func isProcessAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
