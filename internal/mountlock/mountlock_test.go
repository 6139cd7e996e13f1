package mountlock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquire(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	lock, err := Acquire(image, AcquireOptions{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if lock.Owner == "" {
		t.Error("Owner should not be empty")
	}
	if lock.PID == 0 {
		t.Error("PID should not be 0")
	}

	on, err := Read(Path(image))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if on.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", on.PID, os.Getpid())
	}
}

func TestAcquireContention(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	other := &Lock{
		Version:    CurrentVersion,
		Owner:      "other-owner",
		Host:       "other-host",
		PID:        99999,
		AcquiredAt: time.Now(),
	}
	if err := Write(Path(image), other); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	_, err := Acquire(image, AcquireOptions{})
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("Acquire() error = %v, want *HeldError", err)
	}
	if held.Lock.Owner != "other-owner" {
		t.Errorf("holder Owner = %q, want %q", held.Lock.Owner, "other-owner")
	}
}

func TestAcquireBreaksDeadPIDOnSameHost(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	hostname, err := os.Hostname()
	if err != nil {
		t.Skip("cannot get hostname")
	}

	dead := &Lock{
		Version:    CurrentVersion,
		Owner:      "ghost",
		Host:       hostname,
		PID:        99999999, // very unlikely to exist
		AcquiredAt: time.Now(),
	}
	if err := Write(Path(image), dead); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lock, err := Acquire(image, AcquireOptions{})
	if err != nil {
		t.Fatalf("Acquire() should break dead-PID lock, got error = %v", err)
	}
	if lock.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", lock.PID, os.Getpid())
	}
}

func TestAcquireForceSkipsContention(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	other := &Lock{
		Version:    CurrentVersion,
		Owner:      "other-owner",
		Host:       "other-host",
		PID:        os.Getpid(),
		AcquiredAt: time.Now(),
	}
	if err := Write(Path(image), other); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lock, err := Acquire(image, AcquireOptions{Force: true})
	if err != nil {
		t.Fatalf("Acquire(Force) error = %v", err)
	}
	if lock.Owner == "other-owner" {
		t.Error("Force acquire should overwrite holder, not keep the previous owner")
	}
}

func TestRelease(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	if _, err := Acquire(image, AcquireOptions{}); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := Release(image, false); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(Path(image)); !os.IsNotExist(err) {
		t.Error("lock file should be removed after Release")
	}
}

func TestReleaseNotFound(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	err := Release(image, false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Release() error = %v, want ErrNotFound", err)
	}
}

func TestReleaseNotOwner(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	other := &Lock{
		Version:    CurrentVersion,
		Owner:      "other-owner",
		Host:       "other-host",
		PID:        os.Getpid(),
		AcquiredAt: time.Now(),
	}
	if err := Write(Path(image), other); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	err := Release(image, false)
	var notOwner *NotOwnerError
	if !errors.As(err, &notOwner) {
		t.Fatalf("Release() error = %v, want *NotOwnerError", err)
	}
}

func TestReleaseForce(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	other := &Lock{
		Version:    CurrentVersion,
		Owner:      "other-owner",
		Host:       "other-host",
		PID:        99999,
		AcquiredAt: time.Now(),
	}
	if err := Write(Path(image), other); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := Release(image, true); err != nil {
		t.Fatalf("Release(force) error = %v", err)
	}
}

func TestHolderNilWhenUnlocked(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	holder, err := Holder(image)
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if holder != nil {
		t.Errorf("Holder() = %+v, want nil", holder)
	}
}

func TestHolderReturnsLiveLock(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	if _, err := Acquire(image, AcquireOptions{}); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	holder, err := Holder(image)
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if holder == nil || holder.PID != os.Getpid() {
		t.Errorf("Holder() = %+v, want current process", holder)
	}
}

func TestReadCorrupted(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")
	path := Path(image)

	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Read(path)
	if !errors.Is(err, ErrCorrupted) {
		t.Errorf("Read() error = %v, want ErrCorrupted", err)
	}
}
