// Package blockdev provides block devices backed by a single afero.File.
// The file may live on the host (afero.OsFs) or in memory (afero.MemMapFs),
// which makes it a convenient volume for tests.
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// ErrOutOfRange is returned for transfers reaching past the last block.
var ErrOutOfRange = errors.New("block out of range")

// ErrInvalidGeometry is returned if the block size or count cannot describe a device.
var ErrInvalidGeometry = errors.New("invalid device geometry")

// File is a block device stored in a file.
type File struct {
	file       afero.File
	blockSize  uint64
	blockCount uint64
}

// Create creates (or truncates) name on fs to hold blockCount blocks of
// blockSize bytes, which all read as zero.
func Create(fs afero.Fs, name string, blockSize, blockCount uint64) (*File, error) {
	if blockSize == 0 || blockCount == 0 {
		return nil, fmt.Errorf("%w: %d blocks of %d bytes", ErrInvalidGeometry, blockCount, blockSize)
	}

	file, err := fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating device file `%s`: %w", name, err)
	}

	if err := file.Truncate(int64(blockSize * blockCount)); err != nil {
		file.Close()
		return nil, fmt.Errorf("sizing device file `%s`: %w", name, err)
	}

	return &File{file: file, blockSize: blockSize, blockCount: blockCount}, nil
}

// Open opens an existing device file. The block count is derived from the
// file size, a trailing partial block is ignored.
func Open(fs afero.Fs, name string, blockSize uint64) (*File, error) {
	if blockSize == 0 {
		return nil, fmt.Errorf("%w: block size 0", ErrInvalidGeometry)
	}

	file, err := fs.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening device file `%s`: %w", name, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat device file `%s`: %w", name, err)
	}

	count := uint64(stat.Size()) / blockSize
	if count == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: `%s` is smaller than one block", ErrInvalidGeometry, name)
	}

	return &File{file: file, blockSize: blockSize, blockCount: count}, nil
}

// NewMemory returns a zeroed device which only exists in memory.
func NewMemory(blockSize, blockCount uint64) (*File, error) {
	return Create(afero.NewMemMapFs(), "volume.img", blockSize, blockCount)
}

func (f *File) BlockSize() uint64 { return f.blockSize }

func (f *File) BlockCount() uint64 { return f.blockCount }

// Name returns the name of the backing file.
func (f *File) Name() string { return f.file.Name() }

func (f *File) check(buf []byte, count, start uint64) error {
	if start >= f.blockCount || count > f.blockCount-start {
		return fmt.Errorf("%w: blocks %d+%d of %d", ErrOutOfRange, start, count, f.blockCount)
	}
	if uint64(len(buf)) < count*f.blockSize {
		return fmt.Errorf("%w: buffer of %d bytes for %d blocks", io.ErrShortBuffer, len(buf), count)
	}
	return nil
}

// ReadBlocks reads count blocks beginning at block start into buf.
func (f *File) ReadBlocks(buf []byte, count, start uint64) error {
	if err := f.check(buf, count, start); err != nil {
		return err
	}

	size := count * f.blockSize
	n, err := f.file.ReadAt(buf[:size], int64(start*f.blockSize))
	if err == io.EOF && uint64(n) == size {
		err = nil
	}
	if err != nil {
		return fmt.Errorf(
			"reading file `%s` at block `%d`: %w",
			f.file.Name(),
			start,
			err,
		)
	}

	return nil
}

// WriteBlocks writes count blocks from buf beginning at block start.
func (f *File) WriteBlocks(buf []byte, count, start uint64) error {
	if err := f.check(buf, count, start); err != nil {
		return err
	}

	if _, err := f.file.WriteAt(buf[:count*f.blockSize], int64(start*f.blockSize)); err != nil {
		return fmt.Errorf(
			"writing file `%s` at block `%d`: %w",
			f.file.Name(),
			start,
			err,
		)
	}

	return nil
}

// Sync flushes the backing file.
func (f *File) Sync() error {
	return f.file.Sync()
}

func (f *File) Close() error {
	return f.file.Close()
}
