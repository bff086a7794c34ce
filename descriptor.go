package goifs

import (
	"fmt"
	"io"
)

// MaxOpenFiles is the size of the descriptor table of a volume.
const MaxOpenFiles = 256

// descriptor is an open file. It works on its own copy of the inode whose
// data fields are written back on Close. Two descriptors of the same file do
// not see each others size changes and the one closed last wins.
// Removing the file invalidates its descriptors, moving it updates their parent.
type descriptor struct {
	used   bool
	inode  Inode
	offset uint64
	dirty  bool
}

func (v *Volume) descriptor(fd int) (*descriptor, error) {
	if fd < 0 || fd >= MaxOpenFiles || !v.fds[fd].used {
		return nil, fmt.Errorf("%w: %d", ErrBadDescriptor, fd)
	}
	return &v.fds[fd], nil
}

// Open opens the file at path and returns its descriptor.
func (v *Volume) Open(path string) (int, error) {
	if err := v.ready(); err != nil {
		return -1, err
	}

	inode, err := v.resolve(path)
	if err != nil {
		return -1, err
	}
	if inode.IsDir() {
		return -1, fmt.Errorf("%w: %q", ErrIsDirectory, path)
	}
	return v.openInode(inode)
}

// OpenInode opens the file with the inode id.
func (v *Volume) OpenInode(id uint64) (int, error) {
	if err := v.ready(); err != nil {
		return -1, err
	}

	inode, err := v.readInode(id)
	if err != nil {
		return -1, err
	}
	if err := checkInode(inode); err != nil {
		return -1, err
	}
	return v.openInode(inode)
}

func (v *Volume) openInode(inode *Inode) (int, error) {
	for fd := range v.fds {
		if !v.fds[fd].used {
			v.fds[fd] = descriptor{used: true, inode: *inode}
			return fd, nil
		}
	}
	return -1, ErrTooManyOpenFiles
}

// Close releases fd and persists its inode if it was written.
func (v *Volume) Close(fd int) error {
	d, err := v.descriptor(fd)
	if err != nil {
		return err
	}

	var writeErr error
	if d.dirty {
		writeErr = v.flushDescriptor(d)
	}
	*d = descriptor{}
	return writeErr
}

// flushDescriptor merges the data fields of the descriptors inode into the
// inode on disk. Where the file is linked is left alone, it may have been
// moved while open.
func (v *Volume) flushDescriptor(d *descriptor) error {
	current, err := v.readInode(d.inode.ID)
	if err != nil {
		return err
	}
	if !current.Used {
		d.dirty = false
		return nil
	}

	current.Size = d.inode.Size
	current.BlocksReserved = d.inode.BlocksReserved
	current.BlocksIndirect = d.inode.BlocksIndirect
	current.Modified = d.inode.Modified
	current.Direct = d.inode.Direct
	current.Indirect = d.inode.Indirect
	if err := v.writeInode(current); err != nil {
		return err
	}

	d.inode = *current
	d.dirty = false
	return nil
}

// forgetDescriptors invalidates every descriptor open on the inode id. Their
// I/O fails with ErrInvalidInode afterwards and Close writes nothing back.
func (v *Volume) forgetDescriptors(id uint64) {
	for fd := range v.fds {
		d := &v.fds[fd]
		if d.used && d.inode.ID == id {
			d.inode = Inode{ID: id}
			d.dirty = false
		}
	}
}

// Read reads from the cursor of fd and advances it.
func (v *Volume) Read(fd int, p []byte) (int, error) {
	d, err := v.descriptor(fd)
	if err != nil {
		return 0, err
	}

	n, err := v.readAt(&d.inode, p, d.offset)
	d.offset += uint64(n)
	if err == io.EOF && n > 0 {
		// A short read is not the end yet, the next one will report it.
		err = nil
	}
	return n, err
}

// ReadAt reads from fd at off without moving the cursor.
func (v *Volume) ReadAt(fd int, p []byte, off int64) (int, error) {
	d, err := v.descriptor(fd)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	return v.readAt(&d.inode, p, uint64(off))
}

// Write writes at the cursor of fd and advances it.
func (v *Volume) Write(fd int, p []byte) (int, error) {
	d, err := v.descriptor(fd)
	if err != nil {
		return 0, err
	}

	n, err := v.writeDescriptor(d, p, d.offset)
	d.offset += uint64(n)
	return n, err
}

// WriteAt writes to fd at off without moving the cursor.
func (v *Volume) WriteAt(fd int, p []byte, off int64) (int, error) {
	d, err := v.descriptor(fd)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	return v.writeDescriptor(d, p, uint64(off))
}

// writeDescriptor writes p at off. A gap between the end of the file and off
// is filled with zeros first.
func (v *Volume) writeDescriptor(d *descriptor, p []byte, off uint64) (int, error) {
	if off > d.inode.Size && len(p) > 0 {
		if err := checkInode(&d.inode); err != nil {
			return 0, err
		}
		if err := v.resize(&d.inode, off); err != nil {
			return 0, err
		}
		d.dirty = true
	}

	n, err := v.writeAt(&d.inode, p, off)
	if n > 0 {
		d.dirty = true
	}
	if perr := v.persist(); err == nil {
		err = perr
	}
	return n, err
}

// Seek moves the cursor of fd like io.Seeker. Positions before the start of
// the file are clamped to 0.
func (v *Volume) Seek(fd int, offset int64, whence int) (int64, error) {
	d, err := v.descriptor(fd)
	if err != nil {
		return 0, err
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(d.offset) + offset
	case io.SeekEnd:
		pos = int64(d.inode.Size) + offset
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidWhence, whence)
	}

	if pos < 0 {
		pos = 0
	}
	d.offset = uint64(pos)
	return pos, nil
}

// Truncate sets the size of the file open as fd like Resize.
func (v *Volume) Truncate(fd int, size uint64) error {
	d, err := v.descriptor(fd)
	if err != nil {
		return err
	}

	if err := checkInode(&d.inode); err != nil {
		return err
	}

	err = v.resize(&d.inode, size)
	d.dirty = true
	if perr := v.persist(); err == nil {
		err = perr
	}
	return err
}

// StatDescriptor returns the descriptors view of its inode.
func (v *Volume) StatDescriptor(fd int) (Inode, error) {
	d, err := v.descriptor(fd)
	if err != nil {
		return Inode{}, err
	}
	return d.inode, nil
}

// reparentDescriptors points the inode copies of every descriptor open on id
// to the new parent.
func (v *Volume) reparentDescriptors(id, parent uint64) {
	for fd := range v.fds {
		d := &v.fds[fd]
		if d.used && d.inode.ID == id {
			d.inode.Parent = parent
		}
	}
}
