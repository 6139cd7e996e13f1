package fatfs

import (
	"path/filepath"
	"testing"
)

func TestFsckCleanImagePasses(t *testing.T) {
	dir := t.TempDir()
	fs := mustMount(t, filepath.Join(dir, "disk.img"))
	defer func() { _ = fs.Unmount() }()

	if err := fs.Mkdir("/a"); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	if err := fs.Touch("/a/f"); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	results := fs.Fsck()
	if got := Overall(results); got != StatusOK {
		t.Errorf("Overall() = %v, want %v (results: %+v)", got, StatusOK, results)
	}
}

func TestFsckDetectsBitmapFATMismatch(t *testing.T) {
	dir := t.TempDir()
	fs := mustMount(t, filepath.Join(dir, "disk.img"))
	defer func() { _ = fs.Unmount() }()

	// Corrupt the bitmap directly: mark a reachable block (the root) as free.
	fs.bm.markFree(RootBlock())

	results := fs.Fsck()
	if got := Overall(results); got != StatusFail {
		t.Errorf("Overall() = %v, want %v after corrupting the bitmap", got, StatusFail)
	}
}

func TestOverallPrefersWorstStatus(t *testing.T) {
	results := []CheckResult{
		{Name: "a", Status: StatusOK},
		{Name: "b", Status: StatusWarn},
	}
	if got := Overall(results); got != StatusWarn {
		t.Errorf("Overall() = %v, want %v", got, StatusWarn)
	}
	results = append(results, CheckResult{Name: "c", Status: StatusFail})
	if got := Overall(results); got != StatusFail {
		t.Errorf("Overall() = %v, want %v", got, StatusFail)
	}
}
