package goifs

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aligator/goifs/checkpoint"
	"github.com/spf13/afero"
)

// ErrNotSupported is returned for operations the volume has no metadata for.
var ErrNotSupported = errors.New("operation not supported")

// Fs exposes a Volume as afero.Fs. Names are always resolved from the root,
// independent of the working directory of the Volume.
// Every call holds a lock, so an Fs can be shared by goroutines.
type Fs struct {
	mu sync.Mutex
	v  *Volume
}

var _ afero.Fs = (*Fs)(nil)

// NewFs wraps v. The Volume must not be used directly while the Fs is in use.
func NewFs(v *Volume) *Fs {
	return &Fs{v: v}
}

// Volume returns the wrapped volume.
func (fs *Fs) Volume() *Volume {
	return fs.v
}

func cleanPath(name string) string {
	return path.Clean(separator + filepath.ToSlash(name))
}

func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

func (fs *Fs) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return pathError("mkdir", name, fs.v.Mkdir(cleanPath(name)))
}

func (fs *Fs) MkdirAll(p string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current := ""
	for _, c := range strings.Split(cleanPath(p), separator) {
		if c == "" {
			continue
		}
		current += separator + c

		inode, err := fs.v.Stat(current)
		switch {
		case err == nil && inode.IsDir():
			continue
		case err == nil:
			return pathError("mkdir", current, syscall.ENOTDIR)
		case !errors.Is(err, ErrNotFound):
			return pathError("mkdir", current, err)
		}

		if err := fs.v.Mkdir(current); err != nil {
			return pathError("mkdir", current, err)
		}
	}
	return nil
}

func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := cleanPath(name)
	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0

	inode, err := fs.v.Stat(p)
	switch {
	case errors.Is(err, ErrNotFound) && flag&os.O_CREATE != 0:
		if _, err := fs.v.Create(p, TypeFile, 0); err != nil {
			return nil, pathError("open", name, err)
		}
		if inode, err = fs.v.Stat(p); err != nil {
			return nil, pathError("open", name, err)
		}
	case err != nil:
		return nil, pathError("open", name, err)
	case flag&(os.O_CREATE|os.O_EXCL) == os.O_CREATE|os.O_EXCL:
		return nil, pathError("open", name, os.ErrExist)
	}

	base := path.Base(p)
	if inode.IsDir() {
		if writable {
			return nil, pathError("open", name, ErrIsDirectory)
		}
		return &File{fs: fs, path: p, name: name, fd: -1, isDirectory: true, stat: inode.FileInfo(base)}, nil
	}

	fd, err := fs.v.OpenInode(inode.ID)
	if err != nil {
		return nil, pathError("open", name, err)
	}

	if writable && flag&os.O_TRUNC != 0 {
		if err := fs.v.Truncate(fd, 0); err != nil {
			fs.v.Close(fd)
			return nil, pathError("open", name, err)
		}
	}

	return &File{
		fs:         fs,
		path:       p,
		name:       name,
		fd:         fd,
		isReadOnly: !writable,
		isAppend:   flag&os.O_APPEND != 0,
	}, nil
}

// Remove removes a file or an empty directory.
func (fs *Fs) Remove(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := cleanPath(name)
	inode, err := fs.v.Stat(p)
	if err != nil {
		return pathError("remove", name, err)
	}

	if !inode.IsDir() {
		return pathError("remove", name, fs.v.Remove(p))
	}
	if inode.Size > 0 {
		return pathError("remove", name, syscall.ENOTEMPTY)
	}
	return pathError("remove", name, fs.v.RemoveDir(p))
}

// RemoveAll removes name and everything below it. A missing name is no error.
func (fs *Fs) RemoveAll(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := cleanPath(name)
	inode, err := fs.v.Stat(p)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return pathError("removeall", name, err)
	}

	if inode.IsDir() {
		return pathError("removeall", name, fs.v.RemoveDir(p))
	}
	return pathError("removeall", name, fs.v.Remove(p))
}

// Rename moves oldname to newname following the rules of Volume.Move.
func (fs *Fs) Rename(oldname, newname string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return pathError("rename", oldname, fs.v.Move(cleanPath(oldname), cleanPath(newname)))
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := cleanPath(name)
	inode, err := fs.v.Stat(p)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return inode.FileInfo(path.Base(p)), nil
}

func (fs *Fs) Name() string {
	return "goifs"
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return pathError("chmod", name, checkpoint.From(ErrNotSupported))
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return pathError("chown", name, checkpoint.From(ErrNotSupported))
}

// Chtimes sets the modification time, the access time is not stored.
func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return pathError("chtimes", name, fs.v.SetModTime(cleanPath(name), mtime))
}
