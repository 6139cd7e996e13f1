package fatfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// maxNameLen bounds a directory entry's name, NUL-padded to this width
// on disk.
const maxNameLen = 119

// recordSize is one packed directory entry: three int64 unix-second
// timestamps, a uint64 size, an int32 head block, a one-byte is-dir
// flag, and the NUL-padded name.
const recordSize = 8*3 + 8 + 4 + 1 + maxNameLen

// maxEntriesPerBlock is how many directory records fit in one block;
// spec.md's directory encoder caps a directory at this many children.
const maxEntriesPerBlock = BlockSize / recordSize

// dirEntry is one child record: a file or subdirectory name plus its
// metadata and content head block.
type dirEntry struct {
	Name         string
	Created      time.Time
	LastAccess   time.Time
	LastModified time.Time
	Size         uint64
	IsDir        bool
	Head         int32
}

func newDirEntry(name string, isDir bool, head int32, now time.Time) dirEntry {
	return dirEntry{
		Name:         name,
		Created:      now,
		LastAccess:   now,
		LastModified: now,
		IsDir:        isDir,
		Head:         head,
	}
}

// encode writes the fixed field order spec.md's directory encoder
// specifies: created, last-access, last-modified, size, head, is-dir,
// name (padded to maxNameLen bytes).
func (d dirEntry) encode() ([]byte, error) {
	if len(d.Name) > maxNameLen {
		return nil, fmt.Errorf("name %q exceeds %d bytes", d.Name, maxNameLen)
	}
	buf := make([]byte, recordSize)
	off := 0
	putTime := func(t time.Time) {
		binary.LittleEndian.PutUint64(buf[off:], uint64(t.Unix()))
		off += 8
	}
	putTime(d.Created)
	putTime(d.LastAccess)
	putTime(d.LastModified)
	binary.LittleEndian.PutUint64(buf[off:], d.Size)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(d.Head))
	off += 4
	if d.IsDir {
		buf[off] = 1
	}
	off++
	copy(buf[off:off+maxNameLen], d.Name)
	return buf, nil
}

// isSentinelRecord reports whether raw encodes the terminator record: a
// created timestamp of exactly zero.
func isSentinelRecord(raw []byte) bool {
	return binary.LittleEndian.Uint64(raw[0:8]) == 0
}

func decodeDirEntry(raw []byte) (dirEntry, error) {
	if len(raw) < recordSize {
		return dirEntry{}, fmt.Errorf("directory record too short: got %d bytes, want %d", len(raw), recordSize)
	}
	off := 0
	getTime := func() time.Time {
		sec := int64(binary.LittleEndian.Uint64(raw[off:]))
		off += 8
		return time.Unix(sec, 0).UTC()
	}
	d := dirEntry{}
	d.Created = getTime()
	d.LastAccess = getTime()
	d.LastModified = getTime()
	d.Size = binary.LittleEndian.Uint64(raw[off:])
	off += 8
	d.Head = int32(binary.LittleEndian.Uint32(raw[off:]))
	off += 4
	d.IsDir = raw[off] != 0
	off++
	name := raw[off : off+maxNameLen]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	d.Name = string(name)
	return d, nil
}

// directoryBlock is the decoded contents of one directory's block: its
// children, in on-disk order.
type directoryBlock struct {
	Entries []dirEntry
}

// encode packs entries into one block, NUL-terminated by a sentinel
// record (or implicitly terminated by reaching maxEntriesPerBlock).
func (db *directoryBlock) encode() ([]byte, error) {
	if len(db.Entries) > maxEntriesPerBlock {
		return nil, &DirFullError{MaxEntries: maxEntriesPerBlock}
	}
	buf := make([]byte, BlockSize)
	off := 0
	for _, e := range db.Entries {
		raw, err := e.encode()
		if err != nil {
			return nil, err
		}
		copy(buf[off:], raw)
		off += recordSize
	}
	// Remaining record-sized slots already zero-valued, i.e. sentinel
	// records (created == 0); no further action needed.
	return buf, nil
}

func decodeDirectoryBlock(data []byte) (*directoryBlock, error) {
	if len(data) < BlockSize {
		return nil, fmt.Errorf("directory block too short: got %d bytes, want %d", len(data), BlockSize)
	}
	db := &directoryBlock{}
	for i := 0; i < maxEntriesPerBlock; i++ {
		raw := data[i*recordSize : (i+1)*recordSize]
		if isSentinelRecord(raw) {
			break
		}
		e, err := decodeDirEntry(raw)
		if err != nil {
			return nil, err
		}
		db.Entries = append(db.Entries, e)
	}
	return db, nil
}

func (db *directoryBlock) find(name string) (dirEntry, int, bool) {
	for i, e := range db.Entries {
		if e.Name == name {
			return e, i, true
		}
	}
	return dirEntry{}, -1, false
}

func (db *directoryBlock) insert(e dirEntry) error {
	if len(db.Entries) >= maxEntriesPerBlock {
		return &DirFullError{MaxEntries: maxEntriesPerBlock}
	}
	db.Entries = append(db.Entries, e)
	return nil
}

func (db *directoryBlock) removeAt(i int) {
	db.Entries = append(db.Entries[:i], db.Entries[i+1:]...)
}
