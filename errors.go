package goifs

import (
	"errors"
	"io/fs"
)

// kindError is a sentinel which also reports itself as one of the io/fs error
// kinds, so callers going through afero or io/fs can use fs.ErrNotExist and
// friends.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func newKindError(msg string, kind error) error {
	return &kindError{msg: msg, kind: kind}
}

// Lookup errors. Nothing is mutated when one of them is returned.
var (
	ErrNotFound     = newKindError("no such file or directory", fs.ErrNotExist)
	ErrExists       = newKindError("file already exists", fs.ErrExist)
	ErrNotDirectory = newKindError("not a directory", fs.ErrInvalid)
	ErrIsDirectory  = newKindError("is a directory", fs.ErrInvalid)
	ErrInvalidName  = newKindError("invalid file name", fs.ErrInvalid)
	ErrNameTooLong  = newKindError("file name too long", fs.ErrInvalid)
	ErrInvalidPath  = newKindError("invalid path", fs.ErrInvalid)
	ErrPathTooLong  = newKindError("path too long", fs.ErrInvalid)
	ErrInvalidType  = newKindError("invalid file type", fs.ErrInvalid)
)

// Capacity errors.
var (
	ErrFileTooLarge     = errors.New("file size exceeds the maximum file size")
	ErrNoSpace          = errors.New("not enough free data blocks")
	ErrNoInodes         = errors.New("inode table exhausted")
	ErrTooManyOpenFiles = errors.New("too many open files")
	ErrVolumeTooSmall   = errors.New("volume too small")
)

// Invariant and device errors.
var (
	ErrBadSignature     = errors.New("volume is not formatted")
	ErrCorrupt          = errors.New("volume metadata is inconsistent")
	ErrInvalidInode     = errors.New("invalid inode")
	ErrBadDescriptor    = newKindError("bad file descriptor", fs.ErrClosed)
	ErrOutOfRange       = errors.New("offset out of range")
	ErrInvalidBlockSize = errors.New("invalid block size")
	ErrInvalidWhence    = errors.New("invalid whence")
	ErrReadDevice       = errors.New("could not read from the block device")
	ErrWriteDevice      = errors.New("could not write to the block device")
)
