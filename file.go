package goifs

import (
	"errors"
	"io"
	"os"
	"path"
	"sort"
	"syscall"

	"github.com/aligator/goifs/checkpoint"
	"github.com/spf13/afero"
)

// These errors may occur while processing a file.
var (
	ErrReadFile  = errors.New("could not read file completely")
	ErrWriteFile = errors.New("could not write file")
	ErrSeekFile  = errors.New("could not seek inside of the file")
	ErrReadDir   = errors.New("could not read the directory")
)

// File is an open file or directory of an Fs.
// Regular files are backed by a Volume descriptor, directories are listed
// from the volume when Readdir is called first.
type File struct {
	fs   *Fs
	path string
	name string

	fd          int
	isDirectory bool
	isReadOnly  bool
	isAppend    bool

	// Only used for directories.
	stat    os.FileInfo
	entries []os.FileInfo
	offset  int
}

var _ afero.File = (*File)(nil)

func (f *File) checkOpen(op string) error {
	if f.fs == nil {
		return pathError(op, f.name, os.ErrClosed)
	}
	return nil
}

func (f *File) Close() error {
	if err := f.checkOpen("close"); err != nil {
		return err
	}

	var err error
	if !f.isDirectory {
		f.fs.mu.Lock()
		err = f.fs.v.Close(f.fd)
		f.fs.mu.Unlock()
	}

	*f = File{name: f.name, fd: -1}
	return pathError("close", f.name, err)
}

func (f *File) Read(p []byte) (n int, err error) {
	if err := f.checkOpen("read"); err != nil {
		return 0, err
	}
	if f.isDirectory {
		return 0, pathError("read", f.name, syscall.EISDIR)
	}

	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	n, err = f.fs.v.Read(f.fd, p)
	return n, checkpoint.Wrap(err, ErrReadFile)
}

func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if err := f.checkOpen("read"); err != nil {
		return 0, err
	}
	if f.isDirectory {
		return 0, pathError("read", f.name, syscall.EISDIR)
	}

	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	n, err = f.fs.v.ReadAt(f.fd, p, off)
	return n, checkpoint.Wrap(err, ErrReadFile)
}

// Seek jumps to a specific offset in the file. This affects all Read and
// Write operations except ReadAt and WriteAt.
// Offsets before the start of the file seek to the start.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.checkOpen("seek"); err != nil {
		return 0, err
	}
	if f.isDirectory {
		return 0, pathError("seek", f.name, syscall.EISDIR)
	}

	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	pos, err := f.fs.v.Seek(f.fd, offset, whence)
	return pos, checkpoint.Wrap(err, ErrSeekFile)
}

func (f *File) Write(p []byte) (n int, err error) {
	if err := f.checkWritable(); err != nil {
		return 0, err
	}

	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if f.isAppend {
		if _, err := f.fs.v.Seek(f.fd, 0, io.SeekEnd); err != nil {
			return 0, checkpoint.Wrap(err, ErrWriteFile)
		}
	}

	n, err = f.fs.v.Write(f.fd, p)
	return n, checkpoint.Wrap(err, ErrWriteFile)
}

func (f *File) WriteAt(p []byte, off int64) (n int, err error) {
	if err := f.checkWritable(); err != nil {
		return 0, err
	}

	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	n, err = f.fs.v.WriteAt(f.fd, p, off)
	return n, checkpoint.Wrap(err, ErrWriteFile)
}

func (f *File) checkWritable() error {
	if err := f.checkOpen("write"); err != nil {
		return err
	}
	if f.isDirectory {
		return pathError("write", f.name, syscall.EISDIR)
	}
	if f.isReadOnly {
		return pathError("write", f.name, syscall.EBADF)
	}
	return nil
}

func (f *File) Name() string {
	return f.name
}

// Readdir reads the contents of a directory like os.File.Readdir.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if err := f.checkOpen("readdir"); err != nil {
		return nil, err
	}
	if !f.isDirectory {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	if f.entries == nil {
		f.fs.mu.Lock()
		list, err := f.fs.v.List(f.path)
		f.fs.mu.Unlock()
		if err != nil {
			return nil, checkpoint.Wrap(err, ErrReadDir)
		}

		f.entries = make([]os.FileInfo, 0, len(list))
		for _, entry := range list {
			f.entries = append(f.entries, entry.fileInfo())
		}
		sort.Slice(f.entries, func(i, j int) bool {
			return f.entries[i].Name() < f.entries[j].Name()
		})
	}

	rest := f.entries[f.offset:]
	if count <= 0 {
		f.offset = len(f.entries)
		return rest, nil
	}

	if len(rest) == 0 {
		return nil, io.EOF
	}
	if count > len(rest) {
		count = len(rest)
	}
	f.offset += count
	return rest[:count], nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}

	return names, nil
}

func (f *File) Stat() (os.FileInfo, error) {
	if err := f.checkOpen("stat"); err != nil {
		return nil, err
	}
	if f.isDirectory {
		return f.stat, nil
	}

	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	inode, err := f.fs.v.StatDescriptor(f.fd)
	if err != nil {
		return nil, pathError("stat", f.name, err)
	}
	return inode.FileInfo(path.Base(f.path)), nil
}

func (f *File) Sync() error {
	if err := f.checkOpen("sync"); err != nil {
		return err
	}

	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	return pathError("sync", f.name, f.fs.v.Sync())
}

func (f *File) Truncate(size int64) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if size < 0 {
		return pathError("truncate", f.name, syscall.EINVAL)
	}

	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	return pathError("truncate", f.name, f.fs.v.Truncate(f.fd, uint64(size)))
}

func (f *File) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}
