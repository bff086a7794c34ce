package goifs

import (
	"os"
	"time"
)

// FileInfo returns an os.FileInfo describing the inode under the given name.
func (i *Inode) FileInfo(name string) os.FileInfo {
	return inodeFileInfo{name: name, inode: *i}
}

type inodeFileInfo struct {
	name  string
	inode Inode
}

func (e inodeFileInfo) Name() string {
	return e.name
}

func (e inodeFileInfo) Size() int64 {
	return int64(e.inode.Size)
}

// Mode reports fixed permissions as the volume does not store any.
func (e inodeFileInfo) Mode() os.FileMode {
	if e.IsDir() {
		return os.ModeDir | 0o755
	}
	return 0o644
}

func (e inodeFileInfo) ModTime() time.Time {
	return e.inode.ModTime()
}

func (e inodeFileInfo) IsDir() bool {
	return e.inode.IsDir()
}

// Sys returns the Inode.
func (e inodeFileInfo) Sys() interface{} {
	return e.inode
}
