package fatfs

import (
	"testing"
	"time"
)

func TestDirEntryEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	e := newDirEntry("report.txt", false, 42, now)
	e.Size = 12345

	raw, err := e.encode()
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	if len(raw) != recordSize {
		t.Fatalf("encode() length = %d, want %d", len(raw), recordSize)
	}

	decoded, err := decodeDirEntry(raw)
	if err != nil {
		t.Fatalf("decodeDirEntry() error = %v", err)
	}
	if decoded.Name != e.Name {
		t.Errorf("Name = %q, want %q", decoded.Name, e.Name)
	}
	if decoded.Size != e.Size {
		t.Errorf("Size = %d, want %d", decoded.Size, e.Size)
	}
	if decoded.Head != e.Head {
		t.Errorf("Head = %d, want %d", decoded.Head, e.Head)
	}
	if decoded.IsDir != e.IsDir {
		t.Errorf("IsDir = %v, want %v", decoded.IsDir, e.IsDir)
	}
	if !decoded.Created.Equal(e.Created) {
		t.Errorf("Created = %v, want %v", decoded.Created, e.Created)
	}
}

func TestDirEntryEncodeRejectsOversizeName(t *testing.T) {
	e := newDirEntry(string(make([]byte, maxNameLen+1)), false, 0, time.Now())
	if _, err := e.encode(); err == nil {
		t.Error("encode() should reject a name longer than maxNameLen")
	}
}

func TestDirectoryBlockRoundTripAndSentinel(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	db := &directoryBlock{}
	if err := db.insert(newDirEntry("a", false, 1, now)); err != nil {
		t.Fatalf("insert() error = %v", err)
	}
	if err := db.insert(newDirEntry("b", true, 2, now)); err != nil {
		t.Fatalf("insert() error = %v", err)
	}

	raw, err := db.encode()
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	if len(raw) != BlockSize {
		t.Fatalf("encode() length = %d, want %d", len(raw), BlockSize)
	}

	decoded, err := decodeDirectoryBlock(raw)
	if err != nil {
		t.Fatalf("decodeDirectoryBlock() error = %v", err)
	}
	if len(decoded.Entries) != 2 {
		t.Fatalf("decoded %d entries, want 2", len(decoded.Entries))
	}
	if decoded.Entries[0].Name != "a" || decoded.Entries[1].Name != "b" {
		t.Errorf("decoded entries = %+v, want [a b]", decoded.Entries)
	}
}

func TestDirectoryBlockInsertRejectsOverCapacity(t *testing.T) {
	db := &directoryBlock{}
	now := time.Now()
	for i := 0; i < maxEntriesPerBlock; i++ {
		name := string(rune('a' + i%26))
		if err := db.insert(newDirEntry(name, false, int32(i), now)); err != nil {
			t.Fatalf("insert() #%d error = %v", i, err)
		}
	}
	if err := db.insert(newDirEntry("overflow", false, 0, now)); err == nil {
		t.Error("insert() past maxEntriesPerBlock should fail with DirFullError")
	}
}

func TestDirectoryBlockFindAndRemove(t *testing.T) {
	db := &directoryBlock{}
	now := time.Now()
	_ = db.insert(newDirEntry("x", false, 1, now))
	_ = db.insert(newDirEntry("y", false, 2, now))

	entry, idx, found := db.find("y")
	if !found || entry.Head != 2 {
		t.Fatalf("find(y) = %+v, %d, %v", entry, idx, found)
	}

	db.removeAt(idx)
	if _, _, found := db.find("y"); found {
		t.Error("y should no longer be found after removeAt")
	}
	if len(db.Entries) != 1 || db.Entries[0].Name != "x" {
		t.Errorf("remaining entries = %+v, want [x]", db.Entries)
	}
}
