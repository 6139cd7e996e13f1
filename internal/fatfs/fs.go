// Package fatfs implements a FAT-style filesystem engine backed by a
// single fixed-size image file: a bitmap, a file allocation table, and a
// tree of fixed-width directory records, all addressed in BlockSize
// chunks.
package fatfs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/opslab-sim/coresim/internal/telemetry"
)

// Filesystem is a mounted image: its backing store plus the decoded
// bitmap, FAT, and a write-through cache of directory blocks. The
// on-disk image is always the authoritative copy; the cache exists only
// to avoid re-reading a directory block on every lookup within one
// operation, and is refreshed on every write.
type Filesystem struct {
	img   *image
	bm    *bitmap
	ft    *fat
	cache map[int]*directoryBlock

	trace *telemetry.Writer
	now   func() time.Time
}

// MountOptions configures Mount.
type MountOptions struct {
	// Force bypasses the mount-lock's held-by-another-process check.
	Force bool
	// Root relocates the mount-lock sidecar into the Root directory
	// instead of next to the image itself. Empty keeps the lock beside the image. See
	// SidecarPaths.
	Root string
	// Trace receives one event per mount/unmount/operation. Nil disables
	// tracing.
	Trace *telemetry.Writer
}

// Mount opens the image at path, parsing its bitmap and FAT if it is
// non-empty or initializing a fresh one otherwise, and returns a ready
// Filesystem. The Filesystem is a process-wide singleton for the
// lifetime of the mount, per spec.md's concurrency model.
func Mount(path string, opts MountOptions) (*Filesystem, error) {
	img, fresh, err := openImage(path, opts.Root, opts.Force)
	if err != nil {
		return nil, err
	}

	fs := &Filesystem{
		img:   img,
		cache: make(map[int]*directoryBlock),
		trace: opts.Trace,
		now:   time.Now,
	}

	if fresh {
		if err := fs.initializeFresh(); err != nil {
			_ = img.close()
			return nil, err
		}
	} else {
		if err := fs.loadExisting(); err != nil {
			_ = img.close()
			return nil, err
		}
	}

	fs.emit(telemetry.EventMount, "mount", path, nil)
	return fs, nil
}

// initializeFresh sets up a brand new image: an all-free bitmap, an
// all-terminator FAT, and an empty root directory, then flushes all
// three to disk.
func (fs *Filesystem) initializeFresh() error {
	fs.bm = newBitmap()
	fs.ft = newFAT()

	for i := 0; i < FirstUserBlock(); i++ {
		fs.bm.markUsed(i)
	}
	fs.ft.setNext(RootBlock(), chainEnd)

	root := &directoryBlock{}
	if err := fs.writeDirBlock(RootBlock(), root); err != nil {
		return err
	}
	return fs.flushMetadata()
}

// loadExisting parses the bitmap and FAT regions of an existing image.
func (fs *Filesystem) loadExisting() error {
	bmData := make([]byte, BitmapBlocks()*BlockSize)
	for i := 0; i < BitmapBlocks(); i++ {
		if err := fs.img.readBlock(i, bmData[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return &PathError{Op: "mount", Path: fs.img.path, Err: err}
		}
	}
	bm, err := decodeBitmap(bmData)
	if err != nil {
		return &PathError{Op: "mount", Path: fs.img.path, Err: &CorruptImageError{Reason: err.Error()}}
	}
	fs.bm = bm

	fatData := make([]byte, FATBlocks()*BlockSize)
	for i := 0; i < FATBlocks(); i++ {
		if err := fs.img.readBlock(BitmapBlocks()+i, fatData[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return &PathError{Op: "mount", Path: fs.img.path, Err: err}
		}
	}
	ft, err := decodeFAT(fatData)
	if err != nil {
		return &PathError{Op: "mount", Path: fs.img.path, Err: &CorruptImageError{Reason: err.Error()}}
	}
	fs.ft = ft

	if _, err := fs.readDirBlock(RootBlock()); err != nil {
		return &PathError{Op: "mount", Path: fs.img.path, Err: &CorruptImageError{Reason: err.Error()}}
	}
	return nil
}

// flushMetadata writes the bitmap and FAT regions to disk.
func (fs *Filesystem) flushMetadata() error {
	bmData := fs.bm.encode()
	for i := 0; i < BitmapBlocks(); i++ {
		if err := fs.img.writeBlock(i, bmData[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return err
		}
	}
	ftData := fs.ft.encode()
	for i := 0; i < FATBlocks(); i++ {
		if err := fs.img.writeBlock(BitmapBlocks()+i, ftData[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return err
		}
	}
	return nil
}

// Unmount flushes bitmap, FAT, and any dirty directory blocks, then
// closes the image. After Unmount, no operation on fs is valid.
func (fs *Filesystem) Unmount() error {
	if err := fs.flushMetadata(); err != nil {
		return err
	}
	for block, db := range fs.cache {
		if err := fs.writeDirBlockToDisk(block, db); err != nil {
			return err
		}
	}
	if err := fs.img.sync(); err != nil {
		return err
	}
	fs.emit(telemetry.EventUnmount, "unmount", fs.img.path, nil)
	return fs.img.close()
}

func (fs *Filesystem) emit(kind, op, path string, extra map[string]any) {
	fs.trace.Emit(&telemetry.Event{Kind: kind, Op: op, Path: path, Extra: extra})
}

// readDirBlock returns the decoded directory block at index, consulting
// and populating the write-through cache.
func (fs *Filesystem) readDirBlock(block int) (*directoryBlock, error) {
	if db, ok := fs.cache[block]; ok {
		return db, nil
	}
	raw := make([]byte, BlockSize)
	if err := fs.img.readBlock(block, raw); err != nil {
		return nil, err
	}
	db, err := decodeDirectoryBlock(raw)
	if err != nil {
		return nil, err
	}
	fs.cache[block] = db
	return db, nil
}

// writeDirBlock updates the cache and immediately writes through to
// disk, keeping the two representations from ever diverging.
func (fs *Filesystem) writeDirBlock(block int, db *directoryBlock) error {
	fs.cache[block] = db
	return fs.writeDirBlockToDisk(block, db)
}

func (fs *Filesystem) writeDirBlockToDisk(block int, db *directoryBlock) error {
	raw, err := db.encode()
	if err != nil {
		return err
	}
	return fs.img.writeBlock(block, raw)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPath)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("%w: name %q exceeds %d bytes", ErrInvalidPath, name, maxNameLen)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("%w: name %q contains a path separator", ErrInvalidPath, name)
	}
	return nil
}

// splitPath validates that path is absolute and breaks it into its
// non-empty components.
func splitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, path)
	}
	var parts []string
	for _, c := range strings.Split(path, "/") {
		if c == "" {
			continue
		}
		if err := validateName(c); err != nil {
			return nil, err
		}
		parts = append(parts, c)
	}
	return parts, nil
}

// resolveParent walks every component but the last, starting from the
// root directory, and returns the parent's block index plus the final
// component's name.
func (fs *Filesystem) resolveParent(path string) (int, string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return 0, "", err
	}
	if len(parts) == 0 {
		return 0, "", fmt.Errorf("%w: root has no parent", ErrInvalidPath)
	}
	block := RootBlock()
	for _, comp := range parts[:len(parts)-1] {
		db, err := fs.readDirBlock(block)
		if err != nil {
			return 0, "", err
		}
		entry, _, found := db.find(comp)
		if !found {
			return 0, "", &PathError{Op: "resolve", Path: path, Err: ErrNoSuchDir}
		}
		if !entry.IsDir {
			return 0, "", &PathError{Op: "resolve", Path: path, Err: ErrNotADirectory}
		}
		block = int(entry.Head)
	}
	return block, parts[len(parts)-1], nil
}

// resolveDir walks every component of path, requiring each to be a
// directory, and returns its own block index. Path "/" resolves to the
// root block.
func (fs *Filesystem) resolveDir(path string) (int, error) {
	parts, err := splitPath(path)
	if err != nil {
		return 0, err
	}
	block := RootBlock()
	for _, comp := range parts {
		db, err := fs.readDirBlock(block)
		if err != nil {
			return 0, err
		}
		entry, _, found := db.find(comp)
		if !found {
			return 0, &PathError{Op: "resolve", Path: path, Err: ErrNoSuchDir}
		}
		if !entry.IsDir {
			return 0, &PathError{Op: "resolve", Path: path, Err: ErrNotADirectory}
		}
		block = int(entry.Head)
	}
	return block, nil
}

// resolveEntry locates the child record named by path's final
// component, returning its parent block, the entry itself, and its
// index within the parent's directory block.
func (fs *Filesystem) resolveEntry(path string) (parentBlock int, entry dirEntry, idx int, err error) {
	parentBlock, name, err := fs.resolveParent(path)
	if err != nil {
		return 0, dirEntry{}, -1, err
	}
	db, err := fs.readDirBlock(parentBlock)
	if err != nil {
		return 0, dirEntry{}, -1, err
	}
	entry, idx, found := db.find(name)
	if !found {
		return 0, dirEntry{}, -1, &PathError{Op: "resolve", Path: path, Err: ErrNoSuchFile}
	}
	return parentBlock, entry, idx, nil
}

// Mkdir creates a new, empty directory at path. The parent must exist;
// the final component must not already exist in the parent.
func (fs *Filesystem) Mkdir(path string) error {
	parentBlock, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	parent, err := fs.readDirBlock(parentBlock)
	if err != nil {
		return err
	}
	if _, _, found := parent.find(name); found {
		return &PathError{Op: "mkdir", Path: path, Err: ErrAlreadyExists}
	}
	if len(parent.Entries) >= maxEntriesPerBlock {
		return &PathError{Op: "mkdir", Path: path, Err: &DirFullError{MaxEntries: maxEntriesPerBlock}}
	}

	block := fs.bm.allocate(FirstUserBlock())
	if block == -1 {
		return &PathError{Op: "mkdir", Path: path, Err: &NoSpaceError{Needed: 1, Free: fs.bm.freeCount()}}
	}
	fs.ft.setNext(block, chainEnd)

	if err := fs.writeDirBlock(block, &directoryBlock{}); err != nil {
		fs.bm.markFree(block)
		return err
	}

	entry := newDirEntry(name, true, int32(block), fs.now())
	if err := parent.insert(entry); err != nil {
		fs.bm.markFree(block)
		return &PathError{Op: "mkdir", Path: path, Err: err}
	}
	if err := fs.writeDirBlock(parentBlock, parent); err != nil {
		return err
	}
	if err := fs.flushMetadata(); err != nil {
		return err
	}
	fs.emit(telemetry.EventOperation, "mkdir", path, nil)
	return nil
}

// Rmdir recursively removes path's children (files via Rm, directories
// via Rmdir), then releases path's own block and its parent entry.
func (fs *Filesystem) Rmdir(path string) error {
	_, entry, idx, err := fs.resolveEntry(path)
	if err != nil {
		return &PathError{Op: "rmdir", Path: path, Err: unwrapLookup(err, ErrNoSuchDir)}
	}
	if !entry.IsDir {
		return &PathError{Op: "rmdir", Path: path, Err: ErrNotADirectory}
	}

	dirBlock := int(entry.Head)
	db, err := fs.readDirBlock(dirBlock)
	if err != nil {
		return err
	}
	for len(db.Entries) > 0 {
		child := db.Entries[0]
		childPath := joinPath(path, child.Name)
		if child.IsDir {
			if err := fs.Rmdir(childPath); err != nil {
				return err
			}
		} else {
			if err := fs.Rm(childPath); err != nil {
				return err
			}
		}
		db, err = fs.readDirBlock(dirBlock)
		if err != nil {
			return err
		}
	}

	parentBlock, _, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	parent, err := fs.readDirBlock(parentBlock)
	if err != nil {
		return err
	}
	parent.removeAt(idx)
	if err := fs.writeDirBlock(parentBlock, parent); err != nil {
		return err
	}

	fs.bm.markFree(dirBlock)
	fs.ft.setNext(dirBlock, chainEnd)
	delete(fs.cache, dirBlock)
	if err := fs.flushMetadata(); err != nil {
		return err
	}
	fs.emit(telemetry.EventOperation, "rmdir", path, nil)
	return nil
}

// Touch creates an empty file at path, or updates its last-access time
// if it already exists.
func (fs *Filesystem) Touch(path string) error {
	parentBlock, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	parent, err := fs.readDirBlock(parentBlock)
	if err != nil {
		return err
	}

	if existing, idx, found := parent.find(name); found {
		if existing.IsDir {
			return &PathError{Op: "touch", Path: path, Err: ErrIsDirectory}
		}
		existing.LastAccess = fs.now()
		parent.Entries[idx] = existing
		return fs.writeDirBlock(parentBlock, parent)
	}

	if len(parent.Entries) >= maxEntriesPerBlock {
		return &PathError{Op: "touch", Path: path, Err: &DirFullError{MaxEntries: maxEntriesPerBlock}}
	}
	block := fs.bm.allocate(FirstUserBlock())
	if block == -1 {
		return &PathError{Op: "touch", Path: path, Err: &NoSpaceError{Needed: 1, Free: fs.bm.freeCount()}}
	}
	fs.ft.setNext(block, chainEnd)

	entry := newDirEntry(name, false, int32(block), fs.now())
	if err := parent.insert(entry); err != nil {
		fs.bm.markFree(block)
		return &PathError{Op: "touch", Path: path, Err: err}
	}
	if err := fs.writeDirBlock(parentBlock, parent); err != nil {
		return err
	}
	if err := fs.flushMetadata(); err != nil {
		return err
	}
	fs.emit(telemetry.EventOperation, "touch", path, nil)
	return nil
}

// Rm releases every block in path's chain and removes its child record
// from the parent directory.
func (fs *Filesystem) Rm(path string) error {
	parentBlock, entry, idx, err := fs.resolveEntry(path)
	if err != nil {
		return &PathError{Op: "rm", Path: path, Err: unwrapLookup(err, ErrNoSuchFile)}
	}
	if entry.IsDir {
		return &PathError{Op: "rm", Path: path, Err: ErrIsDirectory}
	}

	blocks, err := fs.ft.chain(int(entry.Head))
	if err != nil {
		return &PathError{Op: "rm", Path: path, Err: fmt.Errorf("%w: %v", ErrInternal, err)}
	}
	for _, b := range blocks {
		fs.bm.markFree(b)
		fs.ft.setNext(b, chainEnd)
	}

	parent, err := fs.readDirBlock(parentBlock)
	if err != nil {
		return err
	}
	parent.removeAt(idx)
	if err := fs.writeDirBlock(parentBlock, parent); err != nil {
		return err
	}
	if err := fs.flushMetadata(); err != nil {
		return err
	}
	fs.emit(telemetry.EventOperation, "rm", path, nil)
	return nil
}

// Cp reads hostPath from the host filesystem and writes it into the
// image at imagePath, allocating and chaining blocks as needed. The
// child record is committed only once the entire content has been
// written; on NoSpace, every block allocated by this call is freed.
func (fs *Filesystem) Cp(hostPath, imagePath string) error {
	hf, err := os.Open(hostPath) //nolint:gosec // G304: host path is operator-supplied
	if err != nil {
		return &PathError{Op: "cp", Path: hostPath, Err: fmt.Errorf("%w: %v", ErrHostOpen, err)}
	}
	defer func() { _ = hf.Close() }()

	parentBlock, name, err := fs.resolveParent(imagePath)
	if err != nil {
		return err
	}
	parent, err := fs.readDirBlock(parentBlock)
	if err != nil {
		return err
	}
	if _, _, found := parent.find(name); found {
		return &PathError{Op: "cp", Path: imagePath, Err: ErrAlreadyExists}
	}
	if len(parent.Entries) >= maxEntriesPerBlock {
		return &PathError{Op: "cp", Path: imagePath, Err: &DirFullError{MaxEntries: maxEntriesPerBlock}}
	}

	var allocated []int
	rollback := func() {
		for _, b := range allocated {
			fs.bm.markFree(b)
			fs.ft.setNext(b, chainEnd)
		}
	}

	buf := make([]byte, BlockSize)
	var head, prev int = -1, -1
	var total uint64

	for {
		n, readErr := io.ReadFull(hf, buf)
		if n > 0 {
			block := fs.bm.allocate(FirstUserBlock())
			if block == -1 {
				rollback()
				return &PathError{Op: "cp", Path: imagePath, Err: &NoSpaceError{Needed: 1, Free: fs.bm.freeCount()}}
			}
			allocated = append(allocated, block)
			fs.ft.setNext(block, chainEnd)
			if prev != -1 {
				fs.ft.setNext(prev, block)
			} else {
				head = block
			}
			prev = block

			zeroed := buf
			if n < BlockSize {
				zeroed = make([]byte, BlockSize)
				copy(zeroed, buf[:n])
			}
			if err := fs.img.writeBlock(block, zeroed); err != nil {
				rollback()
				return err
			}
			total += uint64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			rollback()
			return &PathError{Op: "cp", Path: hostPath, Err: fmt.Errorf("%w: %v", ErrHostOpen, readErr)}
		}
	}

	entry := newDirEntry(name, false, int32(head), fs.now())
	entry.Size = total
	if err := parent.insert(entry); err != nil {
		rollback()
		return &PathError{Op: "cp", Path: imagePath, Err: err}
	}
	if err := fs.writeDirBlock(parentBlock, parent); err != nil {
		rollback()
		return err
	}
	if err := fs.flushMetadata(); err != nil {
		return err
	}
	fs.emit(telemetry.EventOperation, "cp", imagePath, map[string]any{"bytes": total})
	return nil
}

// Cat streams path's valid content bytes to w.
func (fs *Filesystem) Cat(path string, w io.Writer) error {
	_, entry, _, err := fs.resolveEntry(path)
	if err != nil {
		return &PathError{Op: "cat", Path: path, Err: unwrapLookup(err, ErrNoSuchFile)}
	}
	if entry.IsDir {
		return &PathError{Op: "cat", Path: path, Err: ErrIsDirectory}
	}

	blocks, err := fs.ft.chain(int(entry.Head))
	if err != nil {
		return &PathError{Op: "cat", Path: path, Err: fmt.Errorf("%w: %v", ErrInternal, err)}
	}

	remaining := entry.Size
	buf := make([]byte, BlockSize)
	for _, b := range blocks {
		if err := fs.img.readBlock(b, buf); err != nil {
			return err
		}
		n := uint64(BlockSize)
		if remaining < n {
			n = remaining
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	fs.emit(telemetry.EventOperation, "cat", path, nil)
	return nil
}

// Ls returns path's direct children.
func (fs *Filesystem) Ls(path string) ([]dirEntry, error) {
	block, err := fs.resolveDir(path)
	if err != nil {
		return nil, &PathError{Op: "ls", Path: path, Err: unwrapLookup(err, ErrNoSuchDir)}
	}
	db, err := fs.readDirBlock(block)
	if err != nil {
		return nil, err
	}
	fs.emit(telemetry.EventOperation, "ls", path, nil)
	out := make([]dirEntry, len(db.Entries))
	copy(out, db.Entries)
	return out, nil
}

// FindMatch is one hit from Find: the descendant's full path and entry.
type FindMatch struct {
	Path  string
	Entry dirEntry
}

// Find performs a depth-first traversal of baseDir, returning every
// descendant whose name contains needle as a substring.
func (fs *Filesystem) Find(baseDir, needle string) ([]FindMatch, error) {
	block, err := fs.resolveDir(baseDir)
	if err != nil {
		return nil, &PathError{Op: "find", Path: baseDir, Err: unwrapLookup(err, ErrNoSuchDir)}
	}
	var matches []FindMatch
	if err := fs.findWalk(block, baseDir, needle, &matches); err != nil {
		return nil, err
	}
	fs.emit(telemetry.EventOperation, "find", baseDir, map[string]any{"needle": needle})
	return matches, nil
}

func (fs *Filesystem) findWalk(block int, prefix, needle string, matches *[]FindMatch) error {
	db, err := fs.readDirBlock(block)
	if err != nil {
		return err
	}
	for _, e := range db.Entries {
		childPath := joinPath(prefix, e.Name)
		if strings.Contains(e.Name, needle) {
			*matches = append(*matches, FindMatch{Path: childPath, Entry: e})
		}
		if e.IsDir {
			if err := fs.findWalk(int(e.Head), childPath, needle, matches); err != nil {
				return err
			}
		}
	}
	return nil
}

// DfResult reports free and total space.
type DfResult struct {
	FreeBlocks  int
	TotalBlocks int
	FreeBytes   int64
	TotalBytes  int64
}

// Df reports the image's free space.
func (fs *Filesystem) Df() DfResult {
	free := fs.bm.freeCount()
	return DfResult{
		FreeBlocks:  free,
		TotalBlocks: NumBlocks,
		FreeBytes:   int64(free) * BlockSize,
		TotalBytes:  int64(NumBlocks) * BlockSize,
	}
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// unwrapLookup extracts a resolution failure's underlying sentinel,
// rewriting ErrNoSuchDir to want (e.g. Rm promises NoSuchFile, not
// NoSuchDir, when an intermediate directory component is missing).
func unwrapLookup(err error, want error) error {
	pe, ok := err.(*PathError)
	if !ok {
		return err
	}
	if pe.Err == ErrNoSuchDir {
		return want
	}
	return pe.Err
}
