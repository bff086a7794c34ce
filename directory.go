package goifs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/aligator/goifs/checkpoint"
)

// MaxNameSize is the size of the name field of a directory entry.
// Names are NUL padded, so at most MaxNameSize-1 bytes are usable.
const MaxNameSize = 128

const dirEntrySize = 8 + MaxNameSize

// dirEntry is the on-disk record linking a name to an inode.
type dirEntry struct {
	InodeID uint64
	Name    [MaxNameSize]byte
}

func (e *dirEntry) name() string {
	if i := bytes.IndexByte(e.Name[:], 0); i >= 0 {
		return string(e.Name[:i])
	}
	return string(e.Name[:])
}

func newDirEntry(id uint64, name string) dirEntry {
	e := dirEntry{InodeID: id}
	copy(e.Name[:], name)
	return e
}

func (e *dirEntry) encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, dirEntrySize))
	// Writing into a bytes.Buffer cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, e)
	return buf.Bytes()
}

// validName checks a name before it is stored in a directory.
func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case len(name) >= MaxNameSize:
		return fmt.Errorf("%w: %d bytes, at most %d allowed", ErrNameTooLong, len(name), MaxNameSize-1)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// readDir decodes all entries of a directory.
func (v *Volume) readDir(dir *Inode) ([]dirEntry, error) {
	if err := checkInode(dir); err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, fmt.Errorf("%w: inode %d", ErrNotDirectory, dir.ID)
	}
	if dir.Size%dirEntrySize != 0 {
		return nil, fmt.Errorf("%w: directory %d has size %d", ErrCorrupt, dir.ID, dir.Size)
	}

	entries := make([]dirEntry, dir.Size/dirEntrySize)
	if len(entries) == 0 {
		return entries, nil
	}

	buf, err := v.readFile(dir, 0, 0)
	if err != nil {
		return nil, err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, entries); err != nil {
		return nil, checkpoint.Wrap(err, ErrCorrupt)
	}
	return entries, nil
}

// lookup searches dir for name and returns the index of the entry in the
// directory together with all entries. The index is -1 if name is missing.
func (v *Volume) lookup(dir *Inode, name string) (int, []dirEntry, error) {
	entries, err := v.readDir(dir)
	if err != nil {
		return -1, nil, err
	}

	for i := range entries {
		if entries[i].name() == name {
			return i, entries, nil
		}
	}
	return -1, entries, nil
}

// addEntry appends a new entry to dir. The name must be unused in dir.
func (v *Volume) addEntry(dir *Inode, name string, id uint64) error {
	if err := validName(name); err != nil {
		return err
	}

	entry := newDirEntry(id, name)
	if _, err := v.writeAt(dir, entry.encode(), dir.Size); err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("adding %q to directory %d", name, dir.ID))
	}
	return nil
}

// removeEntry deletes entry index from dir by moving the last entry into its
// place. The directory keeps at least one block.
func (v *Volume) removeEntry(dir *Inode, entries []dirEntry, index int) error {
	last := len(entries) - 1
	if index < 0 || index > last {
		return fmt.Errorf("%w: entry %d of %d", ErrOutOfRange, index, len(entries))
	}

	if index != last {
		if _, err := v.writeAt(dir, entries[last].encode(), uint64(index)*dirEntrySize); err != nil {
			return err
		}
	}

	dir.Size -= dirEntrySize
	dir.Modified = v.now().Unix()
	if err := v.writeInode(dir); err != nil {
		return err
	}

	_, err := v.deallocateBlocks(dir, v.blockSize)
	return err
}

// unlink removes the entry pointing to id from dir.
func (v *Volume) unlink(dir *Inode, id uint64) error {
	entries, err := v.readDir(dir)
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].InodeID == id {
			return v.removeEntry(dir, entries, i)
		}
	}
	return fmt.Errorf("%w: inode %d in directory %d", ErrNotFound, id, dir.ID)
}
