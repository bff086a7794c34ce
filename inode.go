package goifs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/aligator/goifs/checkpoint"
)

// FileType distinguishes files from directories.
type FileType uint8

const (
	TypeDirectory FileType = 1
	TypeFile      FileType = 2
)

func (t FileType) String() string {
	switch t {
	case TypeDirectory:
		return "directory"
	case TypeFile:
		return "file"
	}
	return fmt.Sprintf("FileType(%d)", uint8(t))
}

// RootID is the id of the root directory. It is allocated by Format and can
// never be freed.
const RootID uint64 = 0

// inodeSize is the encoded size of Inode.
const inodeSize = 144

// Inode is the on-disk record describing a file or directory.
// Block numbers are relative to the start of the data region.
type Inode struct {
	Used bool
	Type FileType
	_    [6]byte

	ID     uint64
	Parent uint64
	Size   uint64

	// BlocksReserved is the number of data blocks holding content.
	// BlocksIndirect is the number of pointer table blocks owned in addition.
	BlocksReserved uint32
	BlocksIndirect uint32

	// Modified is a unix timestamp in seconds.
	Modified int64

	Direct   [NumDirect]uint64
	Indirect [NumIndirect]uint64
}

// IsDir reports whether the inode is a directory.
func (i *Inode) IsDir() bool {
	return i.Type == TypeDirectory
}

// ModTime returns the modification time.
func (i *Inode) ModTime() time.Time {
	return time.Unix(i.Modified, 0)
}

// hashName is the starting point of the inode search for a new entry name in
// the directory parent.
func hashName(name string, parent, count uint64) uint64 {
	hash := uint64(7243)
	for i := 0; i < len(name); i++ {
		hash += (hash << 5) + uint64(name[i]) + parent
	}
	return hash % count
}

// inodeLocation returns the first device block of the inode record, how many
// blocks it touches and its offset inside the first block.
func (v *Volume) inodeLocation(id uint64) (block, count, offset uint64) {
	pos := id * inodeSize
	block = v.sb.InodeStart + pos/v.blockSize
	offset = pos % v.blockSize
	count = 1
	if offset+inodeSize > v.blockSize {
		count = 2
	}
	return block, count, offset
}

func (v *Volume) readInode(id uint64) (*Inode, error) {
	if id >= v.sb.InodeCount {
		return nil, fmt.Errorf("%w: id %d of %d", ErrInvalidInode, id, v.sb.InodeCount)
	}

	block, count, offset := v.inodeLocation(id)
	buf, err := v.readBlocks(count, block)
	if err != nil {
		return nil, err
	}

	inode := &Inode{}
	if err := binary.Read(bytes.NewReader(buf[offset:offset+inodeSize]), binary.LittleEndian, inode); err != nil {
		return nil, checkpoint.Wrap(err, ErrCorrupt)
	}
	return inode, nil
}

func (v *Volume) writeInode(inode *Inode) error {
	if inode.ID >= v.sb.InodeCount {
		return fmt.Errorf("%w: id %d of %d", ErrInvalidInode, inode.ID, v.sb.InodeCount)
	}

	encoded := bytes.NewBuffer(make([]byte, 0, inodeSize))
	if err := binary.Write(encoded, binary.LittleEndian, inode); err != nil {
		return checkpoint.From(err)
	}

	block, count, offset := v.inodeLocation(inode.ID)
	buf, err := v.readBlocks(count, block)
	if err != nil {
		return err
	}

	copy(buf[offset:], encoded.Bytes())
	return v.writeBlocks(buf, block)
}

// findFreeInode probes the inode table for an unused record, starting at
// the hash of name and parent.
func (v *Volume) findFreeInode(name string, parent uint64) (uint64, error) {
	if v.sb.UsedInodes >= v.sb.InodeCount {
		return 0, ErrNoInodes
	}

	start := hashName(name, parent, v.sb.InodeCount)
	for searched := uint64(0); searched < v.sb.InodeCount; searched++ {
		id := (start + searched) % v.sb.InodeCount
		if id == RootID {
			continue
		}

		inode, err := v.readInode(id)
		if err != nil {
			return 0, err
		}
		if !inode.Used {
			return id, nil
		}
	}

	return 0, ErrNoInodes
}

// allocInode creates and persists a new empty inode. It owns no blocks yet.
func (v *Volume) allocInode(name string, parent uint64, typ FileType) (*Inode, error) {
	id, err := v.findFreeInode(name, parent)
	if err != nil {
		return nil, err
	}

	inode := &Inode{
		Used:     true,
		Type:     typ,
		ID:       id,
		Parent:   parent,
		Modified: v.now().Unix(),
	}
	if err := v.writeInode(inode); err != nil {
		return nil, err
	}

	v.sb.UsedInodes++
	return inode, nil
}

// freeInode clears the record. All blocks must have been released before.
func (v *Volume) freeInode(inode *Inode) error {
	if inode.ID == RootID {
		return fmt.Errorf("%w: the root directory cannot be freed", ErrInvalidInode)
	}

	id := inode.ID
	*inode = Inode{ID: id}
	if err := v.writeInode(inode); err != nil {
		return err
	}

	v.sb.UsedInodes--
	v.forgetDescriptors(id)
	return nil
}
