package goifs

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

func (v *Volume) opLog(op, path string) logrus.FieldLogger {
	return v.log.WithFields(logrus.Fields{"op": op, "path": path})
}

// finish persists the metadata after a mutating operation. It runs even if
// the operation failed because earlier steps may already have changed it.
func (v *Volume) finish(log logrus.FieldLogger, err error) error {
	if perr := v.persist(); err == nil {
		err = perr
	}
	if err != nil {
		log.WithError(err).Debug("operation failed")
	} else {
		log.Debug("operation done")
	}
	return err
}

// Create creates a file or directory at path with capacity for size bytes,
// but at least one block. The new file is empty.
func (v *Volume) Create(path string, typ FileType, size uint64) (uint64, error) {
	if err := v.ready(); err != nil {
		return 0, err
	}
	if typ != TypeFile && typ != TypeDirectory {
		return 0, fmt.Errorf("%w: %v", ErrInvalidType, typ)
	}

	log := v.opLog("create", path).WithFields(logrus.Fields{"type": typ, "size": size})

	dir, name, err := v.resolveParent(path)
	if err != nil {
		return 0, err
	}

	inode, err := v.create(dir, name, typ, size)
	if err != nil {
		return 0, v.finish(log, err)
	}
	return inode.ID, v.finish(log.WithField("inode", inode.ID), nil)
}

// Mkdir creates a directory.
func (v *Volume) Mkdir(path string) error {
	_, err := v.Create(path, TypeDirectory, 0)
	return err
}

// Mkfile creates a file with capacity for size bytes.
func (v *Volume) Mkfile(path string, size uint64) error {
	_, err := v.Create(path, TypeFile, size)
	return err
}

// create links a new inode as name into dir. If anything fails, the inode
// and its entry are removed again.
func (v *Volume) create(dir *Inode, name string, typ FileType, size uint64) (*Inode, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if size > v.sb.MaxFileSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFileTooLarge, size, v.sb.MaxFileSize)
	}

	i, _, err := v.lookup(dir, name)
	if err != nil {
		return nil, err
	}
	if i >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrExists, name)
	}

	inode, err := v.allocInode(name, dir.ID, typ)
	if err != nil {
		return nil, err
	}

	if err := v.addEntry(dir, name, inode.ID); err != nil {
		v.discardQuietly(inode)
		return nil, err
	}

	if _, err := v.allocateBlocks(inode, size); err != nil {
		if uerr := v.unlink(dir, inode.ID); uerr != nil {
			v.log.WithError(uerr).WithField("inode", inode.ID).Warn("could not unlink inode after a failed create")
		}
		v.discardQuietly(inode)
		return nil, err
	}

	return inode, nil
}

// discard releases all blocks of inode and frees it.
func (v *Volume) discard(inode *Inode) error {
	inode.Size = 0
	if _, err := v.deallocateBlocks(inode, 0); err != nil {
		return err
	}
	return v.freeInode(inode)
}

func (v *Volume) discardQuietly(inode *Inode) {
	if err := v.discard(inode); err != nil {
		v.log.WithError(err).WithField("inode", inode.ID).Warn("could not release inode")
	}
}

// Remove deletes the file at path.
func (v *Volume) Remove(path string) error {
	if err := v.ready(); err != nil {
		return err
	}
	log := v.opLog("rm", path)

	inode, err := v.resolve(path)
	if err != nil {
		return err
	}
	if inode.IsDir() {
		return fmt.Errorf("%w: %q", ErrIsDirectory, path)
	}

	return v.finish(log.WithField("inode", inode.ID), v.delete(inode))
}

// RemoveDir deletes the directory at path together with everything in it.
func (v *Volume) RemoveDir(path string) error {
	if err := v.ready(); err != nil {
		return err
	}
	log := v.opLog("rmdir", path)

	inode, err := v.resolve(path)
	if err != nil {
		return err
	}
	if !inode.IsDir() {
		return fmt.Errorf("%w: %q", ErrNotDirectory, path)
	}
	if inode.ID == RootID {
		return fmt.Errorf("%w: the root directory cannot be removed", ErrInvalidPath)
	}

	return v.finish(log.WithField("inode", inode.ID), v.delete(inode))
}

// delete unlinks target from its parent and releases it and, for
// directories, everything below it. The tree is walked with an explicit
// stack so the depth is only limited by memory.
func (v *Volume) delete(target *Inode) error {
	if target.ID == RootID {
		return fmt.Errorf("%w: the root directory cannot be removed", ErrInvalidPath)
	}

	inWorkingDir, err := v.isAncestor(target.ID, v.wd.id)
	if err != nil {
		return err
	}

	parent, err := v.readInode(target.Parent)
	if err != nil {
		return err
	}
	if err := v.unlink(parent, target.ID); err != nil {
		return err
	}

	var order []*Inode
	stack := []*Inode{target}
	for len(stack) > 0 {
		inode := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, inode)

		if !inode.IsDir() {
			continue
		}
		entries, err := v.readDir(inode)
		if err != nil {
			return err
		}
		for i := range entries {
			child, err := v.readInode(entries[i].InodeID)
			if err != nil {
				return err
			}
			stack = append(stack, child)
		}
	}

	// Parents come before their children in order.
	for i := len(order) - 1; i >= 0; i-- {
		if err := v.discard(order[i]); err != nil {
			return err
		}
	}

	if inWorkingDir {
		v.wd = workingDir{id: RootID, path: separator}
	}
	return nil
}

// Resize sets the size of the file at path. Growing allocates the missing
// blocks and the new range reads as zeros. Shrinking keeps all blocks.
func (v *Volume) Resize(path string, size uint64) error {
	if err := v.ready(); err != nil {
		return err
	}
	log := v.opLog("resize", path).WithField("size", size)

	inode, err := v.resolve(path)
	if err != nil {
		return err
	}
	if inode.IsDir() {
		return fmt.Errorf("%w: %q", ErrIsDirectory, path)
	}

	return v.finish(log.WithField("inode", inode.ID), v.resize(inode, size))
}

func (v *Volume) resize(inode *Inode, size uint64) error {
	if size > v.sb.MaxFileSize {
		return fmt.Errorf("%w: %d > %d", ErrFileTooLarge, size, v.sb.MaxFileSize)
	}

	if size > inode.Size {
		// Bytes behind the old size may still hold data from before a
		// shrink. Newly allocated blocks are zeroed already.
		zeroEnd := uint64(inode.BlocksReserved) * v.blockSize
		if size < zeroEnd {
			zeroEnd = size
		}

		if _, err := v.allocateBlocks(inode, size); err != nil {
			return err
		}

		zero := make([]byte, v.blockSize)
		for off := inode.Size; off < zeroEnd; {
			n := zeroEnd - off
			if n > v.blockSize {
				n = v.blockSize
			}
			if _, err := v.writeAt(inode, zero[:n], off); err != nil {
				return err
			}
			off += n
		}
	}

	inode.Size = size
	inode.Modified = v.now().Unix()
	return v.writeInode(inode)
}

// Reserve changes the capacity of the file or directory at path to
// ceil(size/blockSize) blocks. It never goes below one block or below the
// blocks needed for the current size.
func (v *Volume) Reserve(path string, size uint64) error {
	if err := v.ready(); err != nil {
		return err
	}
	log := v.opLog("reserve", path).WithField("size", size)

	inode, err := v.resolve(path)
	if err != nil {
		return err
	}

	if size == 0 {
		size = 1
	}
	need := ceilDiv(size, v.blockSize)

	var blocks uint64
	switch {
	case need > uint64(inode.BlocksReserved):
		blocks, err = v.allocateBlocks(inode, size)
	case need < uint64(inode.BlocksReserved):
		blocks, err = v.deallocateBlocks(inode, size)
	}
	if err == nil {
		inode.Modified = v.now().Unix()
		err = v.writeInode(inode)
	}

	return v.finish(log.WithFields(logrus.Fields{"inode": inode.ID, "blocks": blocks}), err)
}

// Stat returns the inode at path.
func (v *Volume) Stat(path string) (Inode, error) {
	if err := v.ready(); err != nil {
		return Inode{}, err
	}

	inode, err := v.resolve(path)
	if err != nil {
		return Inode{}, err
	}
	return *inode, nil
}

// SetModTime changes the modification time of path.
func (v *Volume) SetModTime(path string, t time.Time) error {
	if err := v.ready(); err != nil {
		return err
	}

	inode, err := v.resolve(path)
	if err != nil {
		return err
	}
	inode.Modified = t.Unix()
	return v.writeInode(inode)
}

// Entry is a single line of a directory listing.
// For directories Size and Reserved are the totals of the whole tree.
type Entry struct {
	Name     string
	ID       uint64
	Type     FileType
	Size     uint64
	Reserved uint64
	Modified time.Time

	inode Inode
}

func (e Entry) fileInfo() os.FileInfo {
	return e.inode.FileInfo(e.Name)
}

// List returns the entries of the directory at path, or the file itself if
// path is a file.
func (v *Volume) List(path string) ([]Entry, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}

	target, err := v.resolve(path)
	if err != nil {
		return nil, err
	}

	if !target.IsDir() {
		name, err := v.nameOf(target)
		if err != nil {
			return nil, err
		}
		entry, err := v.entryOf(target, name)
		if err != nil {
			return nil, err
		}
		return []Entry{entry}, nil
	}

	entries, err := v.readDir(target)
	if err != nil {
		return nil, err
	}

	list := make([]Entry, 0, len(entries))
	for i := range entries {
		inode, err := v.readInode(entries[i].InodeID)
		if err != nil {
			return nil, err
		}
		entry, err := v.entryOf(inode, entries[i].name())
		if err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	return list, nil
}

func (v *Volume) entryOf(inode *Inode, name string) (Entry, error) {
	entry := Entry{
		Name:     name,
		ID:       inode.ID,
		Type:     inode.Type,
		Size:     inode.Size,
		Reserved: uint64(inode.BlocksReserved) * v.blockSize,
		Modified: inode.ModTime(),
		inode:    *inode,
	}
	if inode.IsDir() {
		size, reserved, err := v.usage(inode)
		if err != nil {
			return Entry{}, err
		}
		entry.Size, entry.Reserved = size, reserved
	}
	return entry, nil
}

// Usage sums the size and the reserved bytes of path and everything below it.
func (v *Volume) Usage(path string) (size, reserved uint64, err error) {
	if err := v.ready(); err != nil {
		return 0, 0, err
	}

	inode, err := v.resolve(path)
	if err != nil {
		return 0, 0, err
	}
	return v.usage(inode)
}

func (v *Volume) usage(root *Inode) (size, reserved uint64, err error) {
	stack := []*Inode{root}
	for len(stack) > 0 {
		inode := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		size += inode.Size
		reserved += uint64(inode.BlocksReserved) * v.blockSize

		if !inode.IsDir() {
			continue
		}
		entries, err := v.readDir(inode)
		if err != nil {
			return 0, 0, err
		}
		for i := range entries {
			child, err := v.readInode(entries[i].InodeID)
			if err != nil {
				return 0, 0, err
			}
			stack = append(stack, child)
		}
	}
	return size, reserved, nil
}

// nameOf returns the name inode is linked with in its parent.
func (v *Volume) nameOf(inode *Inode) (string, error) {
	if inode.ID == RootID {
		return separator, nil
	}

	parent, err := v.readInode(inode.Parent)
	if err != nil {
		return "", err
	}
	entries, err := v.readDir(parent)
	if err != nil {
		return "", err
	}
	for i := range entries {
		if entries[i].InodeID == inode.ID {
			return entries[i].name(), nil
		}
	}
	return "", fmt.Errorf("%w: inode %d is not linked in its parent %d", ErrCorrupt, inode.ID, inode.Parent)
}

// ChangeDirectory changes the working directory. An empty path changes to the root.
func (v *Volume) ChangeDirectory(path string) error {
	if err := v.ready(); err != nil {
		return err
	}
	if path == "" {
		path = separator
	}

	inode, err := v.resolve(path)
	if err != nil {
		return err
	}
	if !inode.IsDir() {
		return fmt.Errorf("%w: %q", ErrNotDirectory, path)
	}

	abs, err := v.pathOf(inode.ID)
	if err != nil {
		return err
	}

	v.wd = workingDir{id: inode.ID, path: abs}
	v.opLog("cd", path).WithField("inode", inode.ID).Debug("changed working directory")
	return nil
}

// WorkingDirectory returns the absolute path of the working directory.
func (v *Volume) WorkingDirectory() string {
	return v.wd.path
}
