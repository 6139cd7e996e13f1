// Package procalive detects whether the process that last held a mount
// lock is still running, so a crashed fatsh session doesn't wedge an image
// forever behind a phantom advisory lock.
package procalive

// Alive checks whether a process with the given PID currently exists.
// Platform-specific: see process_unix.go / process_windows.go.
func Alive(pid int) bool {
	return isProcessAlive(pid)
}

// StartTime returns a platform-specific, monotonically-comparable value for
// when the process with the given PID started. It is meaningful only for
// same-host, same-boot comparisons: detecting whether a PID has been
// recycled since a mount lock recorded it.
//
// Returns (0, error) if unavailable on this platform or for this PID.
func StartTime(pid int) (int64, error) {
	return getProcessStartTime(pid)
}
