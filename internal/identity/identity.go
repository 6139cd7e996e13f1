// Package identity reports who/what is holding a filesystem image mounted.
package identity

import (
	"fmt"
	"hash/fnv"
	"os"
	"os/user"
	"sync"

	"github.com/opslab-sim/coresim/internal/procalive"
)

// EnvOwner overrides the detected OS username as the mount holder's name.
const EnvOwner = "CORESIM_OWNER"

// EnvSessionID overrides the auto-generated session identifier.
// When empty or unset, an ID is derived from the process PID and start time.
const EnvSessionID = "CORESIM_SESSION_ID"

// Identity identifies the process that currently holds an image mounted.
type Identity struct {
	Owner     string
	Host      string
	PID       int
	SessionID string
}

// Current returns the identity of the calling process.
func Current() Identity {
	return Identity{
		Owner:     getOwner(),
		Host:      getHost(),
		PID:       os.Getpid(),
		SessionID: getSessionID(),
	}
}

func getOwner() string {
	if owner := os.Getenv(EnvOwner); owner != "" {
		return owner
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

func getHost() string {
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

var (
	autoSessionID     string
	autoSessionIDOnce sync.Once
)

func getSessionID() string {
	if id := os.Getenv(EnvSessionID); id != "" {
		return id
	}
	autoSessionIDOnce.Do(func() {
		autoSessionID = generateSessionID()
	})
	return autoSessionID
}

// generateSessionID produces a short, deterministic ID from the current
// process's PID and start time. Format: "sess-XXXX" (4 hex digits).
func generateSessionID() string {
	pid := os.Getpid()
	startNS, err := procalive.StartTime(pid)
	// If start time is unavailable (Windows lacking a provider, etc.), fall
	// back to PID alone. Less collision-resistant but still functional.
	input := fmt.Sprintf("%d-%d", pid, startNS)
	if err != nil {
		input = fmt.Sprintf("%d", pid)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(input))
	return fmt.Sprintf("sess-%04x", h.Sum32()&0xFFFF)
}
