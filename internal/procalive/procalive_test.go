package procalive

import (
	"os"
	"runtime"
	"testing"
)

func TestAlive_CurrentProcess(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("Alive returned false for current process")
	}
}

func TestAlive_NonExistent(t *testing.T) {
	if Alive(99999999) {
		t.Error("Alive returned true for non-existent PID 99999999")
	}
}

func TestStartTime_CurrentProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("start time not supported on Windows")
	}

	startNS, err := StartTime(os.Getpid())
	if err != nil {
		t.Fatalf("StartTime: %v", err)
	}
	if startNS <= 0 {
		t.Errorf("StartTime returned non-positive value %d for current process", startNS)
	}
}

func TestStartTime_Windows_Unsupported(t *testing.T) {
	if runtime.GOOS != "windows" {
		t.Skip("only relevant on Windows")
	}

	_, err := StartTime(os.Getpid())
	if err != ErrStartTimeNotSupported {
		t.Errorf("expected ErrStartTimeNotSupported on Windows, got %v", err)
	}
}
