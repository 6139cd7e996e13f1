// Package mountlock provides a best-effort advisory lock for a single
// filesystem image. Unlike the teacher's named-lock registry, there is
// exactly one lock per image: it lives in a sidecar file next to the
// image path and records who currently has the image mounted.
package mountlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opslab-sim/coresim/internal/identity"
	"github.com/opslab-sim/coresim/internal/procalive"
)

// CurrentVersion is the schema version written to all new lock records.
const CurrentVersion = 1

// Lock is the JSON structure persisted in an image's sidecar lock file.
type Lock struct {
	Version    int       `json:"version"`
	Owner      string    `json:"owner"`
	Host       string    `json:"host"`
	PID        int       `json:"pid"`
	PIDStartNS int64     `json:"pid_start_ns,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	AcquiredAt time.Time `json:"acquired_ts"`
}

// Age returns the duration since the lock was acquired.
func (l *Lock) Age() time.Duration {
	return time.Since(l.AcquiredAt)
}

var (
	// ErrHeld is returned when the image is already mounted by another holder.
	ErrHeld = errors.New("image already mounted")
	// ErrNotOwner is returned when releasing a lock held by a different holder.
	ErrNotOwner = errors.New("not lock owner")
	// ErrNotFound is returned when no lock file exists to release.
	ErrNotFound = errors.New("no mount lock held")
	// ErrCorrupted is returned when a lock file exists but contains malformed JSON.
	ErrCorrupted = errors.New("corrupted mount lock file")
)

// HeldError describes who currently holds the image mounted.
type HeldError struct {
	Lock *Lock
}

func (e *HeldError) Error() string {
	age := e.Lock.Age().Truncate(time.Second)
	return fmt.Sprintf("image mounted by %s@%s (pid %d) for %s",
		e.Lock.Owner, e.Lock.Host, e.Lock.PID, age)
}

func (e *HeldError) Unwrap() error { return ErrHeld }

// NotOwnerError describes an ownership mismatch on release.
type NotOwnerError struct {
	Lock    *Lock
	Current identity.Identity
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("mount lock owned by %s@%s (pid %d), not %s@%s (pid %d)",
		e.Lock.Owner, e.Lock.Host, e.Lock.PID, e.Current.Owner, e.Current.Host, e.Current.PID)
}

func (e *NotOwnerError) Unwrap() error { return ErrNotOwner }

// Path returns the sidecar lock path for an image at imagePath.
func Path(imagePath string) string {
	return imagePath + ".lock"
}

// AcquireOptions configures lock acquisition.
type AcquireOptions struct {
	// Force skips the held-by-another-live-process check entirely. Used by
	// an operator who knows better than the liveness heuristic.
	Force bool
}

// Acquire attempts to record the calling process as the holder of the
// image's mount lock. If a lock already exists and its owning process
// appears dead (same host only), the stale lock is broken and acquisition
// retried once. Returns *HeldError if the image is mounted by a live
// holder and Force is not set.
func Acquire(imagePath string, opts AcquireOptions) (*Lock, error) {
	path := Path(imagePath)
	id := identity.Current()

	lock := &Lock{
		Version:    CurrentVersion,
		Owner:      id.Owner,
		Host:       id.Host,
		PID:        id.PID,
		SessionID:  id.SessionID,
		AcquiredAt: time.Now(),
	}
	if startNS, err := procalive.StartTime(id.PID); err == nil {
		lock.PIDStartNS = startNS
	}

	if !opts.Force {
		if existing, err := Read(path); err == nil {
			if isStale(existing) {
				_ = os.Remove(path)
				_ = syncDir(path)
			} else {
				return nil, &HeldError{Lock: existing}
			}
		} else if err != nil && !os.IsNotExist(err) {
			if errors.Is(err, ErrCorrupted) {
				// No valid holder recorded; safe to overwrite.
				_ = os.Remove(path)
				_ = syncDir(path)
			} else {
				return nil, fmt.Errorf("read mount lock: %w", err)
			}
		}
	}

	if err := Write(path, lock); err != nil {
		return nil, fmt.Errorf("write mount lock: %w", err)
	}
	return lock, nil
}

// Release removes the image's mount lock. Returns ErrNotFound if no lock
// is held, or *NotOwnerError if the caller is neither the recorded holder
// nor forcing release.
func Release(imagePath string, force bool) error {
	path := Path(imagePath)

	existing, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		if errors.Is(err, ErrCorrupted) {
			if force {
				if rmErr := os.Remove(path); rmErr != nil {
					if os.IsNotExist(rmErr) {
						return ErrNotFound
					}
					return fmt.Errorf("remove corrupted mount lock: %w", rmErr)
				}
				return syncDir(path)
			}
			return fmt.Errorf("mount lock is corrupted: %w", err)
		}
		return fmt.Errorf("read mount lock: %w", err)
	}

	if !force {
		id := identity.Current()
		if existing.Owner != id.Owner || existing.Host != id.Host || existing.PID != id.PID {
			return &NotOwnerError{Lock: existing, Current: id}
		}
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove mount lock: %w", err)
	}
	return syncDir(path)
}

// Holder returns the current holder of the image's mount lock, or nil if
// the image is not locked (or the lock is stale).
func Holder(imagePath string) (*Lock, error) {
	existing, err := Read(Path(imagePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if isStale(existing) {
		return nil, nil
	}
	return existing, nil
}

// isStale reports whether the lock's owning process appears dead. Only
// meaningful on the same host: cross-host locks are conservatively treated
// as live since the PID cannot be verified.
func isStale(lock *Lock) bool {
	hostname, err := os.Hostname()
	if err != nil || hostname != lock.Host {
		return false
	}
	if !procalive.Alive(lock.PID) {
		return true
	}
	if lock.PIDStartNS != 0 {
		if currentStart, err := procalive.StartTime(lock.PID); err == nil && currentStart != lock.PIDStartNS {
			return true // PID recycled: original holder is dead.
		}
	}
	return false
}

// Read parses a mount lock file from path.
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled, not user input
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty mount lock file")
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return &lock, nil
}

// Write atomically writes a mount lock file, via write-to-temp then rename,
// fsyncing both the file and its parent directory for durability.
func Write(path string, lock *Lock) error {
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mountlock-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	return syncDir(path)
}

// syncDir fsyncs the parent directory of path so a create/rename/remove of
// the lock file is durably persisted and not left as a phantom entry.
func syncDir(path string) error {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()
	return dir.Sync()
}
