// Package goifs implements an inode based filesystem on top of a plain block
// device.
//
// A volume is laid out in four regions:
//  [0]              superblock
//  [1..)            inode table, 144 byte records addressed by id
//  [bitmapStart..)  one bit per data block
//  [dataStart..)    data blocks, numbered relative to dataStart
// Files address their data through 10 direct pointers, a singly indirect
// table and a table of tables. Directories are files containing packed
// 136 byte entries.
//
// A Volume is not safe for concurrent use.
package goifs

import (
	"errors"
	"fmt"
	"time"

	"github.com/aligator/goifs/checkpoint"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrUnmounted is returned by every operation after Unmount.
var ErrUnmounted = errors.New("volume is not mounted")

type workingDir struct {
	id   uint64
	path string
}

// Volume is a mounted filesystem.
type Volume struct {
	dev       BlockDevice
	blockSize uint64

	sb     superBlock
	bitmap *bitmap
	wd     workingDir
	fds    [MaxOpenFiles]descriptor

	mounted bool

	log      logrus.FieldLogger
	now      func() time.Time
	volumeID uuid.UUID
}

// Option configures a Volume on Format or Mount.
type Option func(v *Volume)

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(v *Volume) {
		v.log = log
	}
}

// WithClock replaces time.Now for modification times.
func WithClock(now func() time.Time) Option {
	return func(v *Volume) {
		v.now = now
	}
}

// WithVolumeID sets the id Format writes into the superblock instead of a
// random one. Mount ignores it.
func WithVolumeID(id uuid.UUID) Option {
	return func(v *Volume) {
		v.volumeID = id
	}
}

func newVolume(dev BlockDevice, opts []Option) *Volume {
	v := &Volume{
		dev:       dev,
		blockSize: dev.BlockSize(),
		log:       logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.WithField("component", "goifs")
	return v
}

// Format creates a new empty filesystem on dev and returns it mounted.
// The inode table and the bitmap are wiped; data blocks are zeroed when they
// get allocated.
func Format(dev BlockDevice, opts ...Option) (*Volume, error) {
	v := newVolume(dev, opts)
	if v.volumeID == uuid.Nil {
		v.volumeID = uuid.New()
	}

	sb, err := newSuperBlock(v.blockSize, dev.BlockCount(), v.volumeID)
	if err != nil {
		return nil, err
	}
	v.sb = sb

	if err := v.wipe(sb.InodeStart, sb.DataStart); err != nil {
		return nil, err
	}
	v.bitmap = newBitmap(make([]byte, sb.BitmapBytes), sb.TotalDataBlocks)

	root := &Inode{
		Used:     true,
		Type:     TypeDirectory,
		ID:       RootID,
		Parent:   RootID,
		Modified: v.now().Unix(),
	}
	v.sb.UsedInodes = 1
	if _, err := v.allocateBlocks(root, v.blockSize); err != nil {
		return nil, checkpoint.Wrap(err, ErrVolumeTooSmall)
	}

	v.mounted = true
	v.wd = workingDir{id: RootID, path: separator}
	if err := v.persist(); err != nil {
		return nil, err
	}

	v.log.WithFields(logrus.Fields{
		"volume":     v.sb.VolumeID,
		"blocks":     v.sb.BlockCount,
		"blockSize":  v.blockSize,
		"inodes":     v.sb.InodeCount,
		"dataBlocks": v.sb.TotalDataBlocks,
	}).Info("formatted volume")
	return v, nil
}

// wipe zeroes the blocks [from, to).
func (v *Volume) wipe(from, to uint64) error {
	const chunk = 64

	zero := make([]byte, chunk*v.blockSize)
	for b := from; b < to; b += chunk {
		n := uint64(chunk)
		if to-b < n {
			n = to - b
		}
		if err := v.writeBlocks(zero[:n*v.blockSize], b); err != nil {
			return err
		}
	}
	return nil
}

// Mount opens the filesystem stored on dev.
// It fails with ErrBadSignature if dev was never formatted.
func Mount(dev BlockDevice, opts ...Option) (*Volume, error) {
	v := newVolume(dev, opts)
	if v.blockSize < MinBlockSize || v.blockSize%pointerSize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, v.blockSize)
	}

	sb, err := v.readSuperBlock()
	if err != nil {
		return nil, err
	}
	if err := sb.validate(dev); err != nil {
		return nil, checkpoint.From(err)
	}
	v.sb = sb

	if err := v.readBitmap(); err != nil {
		return nil, err
	}

	root, err := v.readInode(RootID)
	if err != nil {
		return nil, err
	}
	if !root.Used || !root.IsDir() {
		return nil, fmt.Errorf("%w: root directory missing", ErrCorrupt)
	}

	v.mounted = true
	v.wd = workingDir{id: RootID, path: separator}

	v.log.WithFields(logrus.Fields{
		"volume":     v.sb.VolumeID,
		"usedInodes": v.sb.UsedInodes,
		"freeBlocks": v.sb.FreeDataBlocks,
	}).Info("mounted volume")
	return v, nil
}

// Unmount closes all open descriptors and writes the metadata back.
// The Volume cannot be used afterwards.
func (v *Volume) Unmount() error {
	if err := v.ready(); err != nil {
		return err
	}

	var firstErr error
	for fd := range v.fds {
		if v.fds[fd].used {
			if err := v.Close(fd); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := v.persist(); err != nil && firstErr == nil {
		firstErr = err
	}

	v.mounted = false
	v.log.WithField("volume", v.sb.VolumeID).Info("unmounted volume")
	return firstErr
}

func (v *Volume) ready() error {
	if !v.mounted {
		return ErrUnmounted
	}
	return nil
}

// Sync writes the inodes of all open descriptors and the metadata. If the
// device has a Sync method it is called afterwards.
func (v *Volume) Sync() error {
	if err := v.ready(); err != nil {
		return err
	}

	for fd := range v.fds {
		if v.fds[fd].used && v.fds[fd].dirty {
			if err := v.flushDescriptor(&v.fds[fd]); err != nil {
				return err
			}
		}
	}
	if err := v.persist(); err != nil {
		return err
	}

	if syncer, ok := v.dev.(interface{ Sync() error }); ok {
		return checkpoint.From(syncer.Sync())
	}
	return nil
}

// persist writes the superblock and the bitmap.
func (v *Volume) persist() error {
	if err := v.writeSuperBlock(); err != nil {
		return err
	}
	return v.writeBitmap()
}

// Info describes the layout and usage of a volume.
type Info struct {
	VolumeID         string `yaml:"volume_id"`
	VolumeSize       uint64 `yaml:"volume_size"`
	BlockSize        uint64 `yaml:"block_size"`
	Blocks           uint64 `yaml:"blocks"`
	Inodes           uint64 `yaml:"inodes"`
	UsedInodes       uint64 `yaml:"used_inodes"`
	FreeInodes       uint64 `yaml:"free_inodes"`
	InodeStart       uint64 `yaml:"inode_start"`
	InodeBlocks      uint64 `yaml:"inode_blocks"`
	BitmapStart      uint64 `yaml:"bitmap_start"`
	BitmapBlocks     uint64 `yaml:"bitmap_blocks"`
	DataStart        uint64 `yaml:"data_start"`
	TotalDataBlocks  uint64 `yaml:"total_data_blocks"`
	FreeDataBlocks   uint64 `yaml:"free_data_blocks"`
	UsedDataBlocks   uint64 `yaml:"used_data_blocks"`
	RootDataBlock    uint64 `yaml:"root_data_block"`
	MaxFileSize      uint64 `yaml:"max_file_size"`
	MaxBlocksPerFile uint64 `yaml:"max_blocks_per_file"`
}

// Info returns the current layout and usage counters.
func (v *Volume) Info() (Info, error) {
	if err := v.ready(); err != nil {
		return Info{}, err
	}

	root, err := v.readInode(RootID)
	if err != nil {
		return Info{}, err
	}

	sb := v.sb
	return Info{
		VolumeID:         sb.VolumeID.String(),
		VolumeSize:       sb.BlockCount * sb.BlockSize,
		BlockSize:        sb.BlockSize,
		Blocks:           sb.BlockCount,
		Inodes:           sb.InodeCount,
		UsedInodes:       sb.UsedInodes,
		FreeInodes:       sb.InodeCount - sb.UsedInodes,
		InodeStart:       sb.InodeStart,
		InodeBlocks:      sb.InodeBlocks,
		BitmapStart:      sb.BitmapStart,
		BitmapBlocks:     sb.BitmapBlocks,
		DataStart:        sb.DataStart,
		TotalDataBlocks:  sb.TotalDataBlocks,
		FreeDataBlocks:   sb.FreeDataBlocks,
		UsedDataBlocks:   sb.TotalDataBlocks - sb.FreeDataBlocks,
		RootDataBlock:    sb.DataStart + root.Direct[0],
		MaxFileSize:      sb.MaxFileSize,
		MaxBlocksPerFile: sb.MaxBlocksPerFile,
	}, nil
}

// BlockSize returns the block size of the volume.
func (v *Volume) BlockSize() uint64 {
	return v.blockSize
}
