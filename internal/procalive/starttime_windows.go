//go:build windows

package procalive

import "errors"

// ErrStartTimeNotSupported is returned on platforms where process start time
// cannot be retrieved.
var ErrStartTimeNotSupported = errors.New("process start time not supported")

// getProcessStartTime is not supported on Windows.
// Returns (0, ErrStartTimeNotSupported).
func getProcessStartTime(pid int) (int64, error) {
	return 0, ErrStartTimeNotSupported
}
