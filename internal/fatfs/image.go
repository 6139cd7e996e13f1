package fatfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opslab-sim/coresim/internal/mountlock"
)

// image is the backing store for one mounted filesystem: a fixed-size
// file of NumBlocks*BlockSize bytes, opened create-if-missing, accessed
// at random by block index.
type image struct {
	path    string
	lockKey string
	file    *os.File
	locked  bool // true once this process holds the mount lock
}

// SidecarPaths computes where an image's mount lock and telemetry trace
// sidecar files live. root, when non-empty, relocates both sidecars into
// that directory instead of next to the image itself — the fixed,
// computable layout the teacher's internal/root discovery collapses to
// once there is a single resource (the image) to anchor on instead of a
// repository to search upward for. An empty root keeps the previous
// behavior of sidecars living next to the image path.
func SidecarPaths(imagePath, root string) (lockKey, tracePath string) {
	if root == "" {
		return imagePath, imagePath + ".trace.jsonl"
	}
	base := filepath.Base(imagePath)
	return filepath.Join(root, base), filepath.Join(root, base+".trace.jsonl")
}

// openImage opens path in create-if-missing read/write mode. A freshly
// created (zero-length) file is extended to the full fixed capacity so
// every block index is addressable from the start. root selects where the
// mount lock sidecar lives; see SidecarPaths.
func openImage(path, root string, force bool) (*image, bool, error) {
	lockKey, _ := SidecarPaths(path, root)
	if _, err := mountlock.Acquire(lockKey, mountlock.AcquireOptions{Force: force}); err != nil {
		return nil, false, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		_ = mountlock.Release(lockKey, true)
		return nil, false, &PathError{Op: "mount", Path: path, Err: fmt.Errorf("%w: %v", ErrImageOpen, err)}
	}

	fresh := false
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		_ = mountlock.Release(lockKey, true)
		return nil, false, &PathError{Op: "mount", Path: path, Err: fmt.Errorf("%w: %v", ErrImageOpen, err)}
	}
	if info.Size() == 0 {
		fresh = true
		if err := f.Truncate(int64(NumBlocks) * BlockSize); err != nil {
			_ = f.Close()
			_ = mountlock.Release(lockKey, true)
			return nil, false, &PathError{Op: "mount", Path: path, Err: fmt.Errorf("%w: %v", ErrImageOpen, err)}
		}
	}

	return &image{path: path, lockKey: lockKey, file: f, locked: true}, fresh, nil
}

func (img *image) close() error {
	err := img.file.Close()
	if img.locked {
		if relErr := mountlock.Release(img.lockKey, false); relErr != nil && err == nil {
			err = relErr
		}
		img.locked = false
	}
	return err
}

// readBlock reads the bytes [i*BlockSize, (i+1)*BlockSize) into buf,
// which must be exactly BlockSize long.
func (img *image) readBlock(i int, buf []byte) error {
	if len(buf) != BlockSize {
		return fmt.Errorf("%w: read buffer must be %d bytes, got %d", ErrInternal, BlockSize, len(buf))
	}
	_, err := img.file.ReadAt(buf, int64(i)*BlockSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read block %d: %w", i, err)
	}
	return nil
}

// writeBlock writes buf, which must be exactly BlockSize long, to the
// bytes [i*BlockSize, (i+1)*BlockSize).
func (img *image) writeBlock(i int, buf []byte) error {
	if len(buf) != BlockSize {
		return fmt.Errorf("%w: write buffer must be %d bytes, got %d", ErrInternal, BlockSize, len(buf))
	}
	if _, err := img.file.WriteAt(buf, int64(i)*BlockSize); err != nil {
		return fmt.Errorf("write block %d: %w", i, err)
	}
	return nil
}

func (img *image) sync() error {
	return img.file.Sync()
}
