package goifs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/aligator/goifs/checkpoint"
	"github.com/google/uuid"
)

// Magic values at the start and the end of the superblock.
// The second one is the byte reversed first one ("goifsv01").
const (
	signature  uint64 = 0x676f696673763031
	signature2 uint64 = 0x3130767366696f67
)

const (
	// NumDirect is the number of direct block pointers of an inode.
	NumDirect = 10
	// NumIndirect is the number of indirect block pointers of an inode:
	// one singly indirect table and one table of tables.
	NumIndirect = 2
	// BlocksPerInode is the number of device blocks accounted for each inode
	// when sizing the inode table.
	BlocksPerInode = 2

	// MinBlockSize and MaxBlockSize bound the supported block sizes.
	MinBlockSize = 512
	MaxBlockSize = 64 * 1024

	pointerSize = 8
)

// superBlock is the on-disk layout of block 0.
// All block numbers are absolute device blocks.
type superBlock struct {
	Signature  uint64
	VolumeID   uuid.UUID
	BlockSize  uint64
	BlockCount uint64

	InodeStart  uint64
	InodeCount  uint64
	InodeBlocks uint64
	UsedInodes  uint64

	BitmapStart  uint64
	BitmapBytes  uint64
	BitmapBlocks uint64

	TotalDataBlocks  uint64
	FreeDataBlocks   uint64
	PointersPerBlock uint64
	MaxBlocksPerFile uint64
	MaxFileSize      uint64
	DataStart        uint64

	Signature2 uint64
}

// nextPrime returns the smallest prime >= n.
func nextPrime(n uint64) uint64 {
	if n <= 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for ; ; n += 2 {
		prime := true
		for d := uint64(3); d*d <= n; d += 2 {
			if n%d == 0 {
				prime = false
				break
			}
		}
		if prime {
			return n
		}
	}
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// newSuperBlock derives the layout of a fresh volume.
// The inode table starts right after the superblock, followed by the bitmap
// and the data region which takes all remaining blocks.
func newSuperBlock(blockSize, blockCount uint64, id uuid.UUID) (superBlock, error) {
	if blockSize < MinBlockSize || blockSize > MaxBlockSize || blockSize%pointerSize != 0 {
		return superBlock{}, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}

	sb := superBlock{
		Signature:  signature,
		Signature2: signature2,
		VolumeID:   id,
		BlockSize:  blockSize,
		BlockCount: blockCount,
		InodeStart: 1,
	}

	sb.InodeCount = nextPrime(blockCount / BlocksPerInode)
	sb.InodeBlocks = ceilDiv(sb.InodeCount*inodeSize, blockSize)
	sb.BitmapStart = sb.InodeStart + sb.InodeBlocks
	if blockCount <= sb.BitmapStart+1 {
		return superBlock{}, fmt.Errorf("%w: %d blocks", ErrVolumeTooSmall, blockCount)
	}

	candidate := blockCount - sb.BitmapStart
	sb.BitmapBytes = ceilDiv(candidate, 8)
	sb.BitmapBlocks = ceilDiv(sb.BitmapBytes, blockSize)
	if candidate <= sb.BitmapBlocks {
		return superBlock{}, fmt.Errorf("%w: %d blocks", ErrVolumeTooSmall, blockCount)
	}

	sb.TotalDataBlocks = candidate - sb.BitmapBlocks
	sb.FreeDataBlocks = sb.TotalDataBlocks
	sb.DataStart = sb.BitmapStart + sb.BitmapBlocks

	sb.PointersPerBlock = blockSize / pointerSize
	sb.MaxBlocksPerFile = NumDirect + sb.PointersPerBlock + sb.PointersPerBlock*sb.PointersPerBlock
	sb.MaxFileSize = sb.MaxBlocksPerFile * blockSize

	return sb, nil
}

// validate checks a superblock read from dev.
func (sb *superBlock) validate(dev BlockDevice) error {
	if sb.Signature != signature || sb.Signature2 != signature2 {
		return ErrBadSignature
	}

	corrupt := func(format string, a ...interface{}) error {
		return fmt.Errorf("%w: "+format, append([]interface{}{ErrCorrupt}, a...)...)
	}

	switch {
	case sb.BlockSize != dev.BlockSize():
		return corrupt("block size %d, device uses %d", sb.BlockSize, dev.BlockSize())
	case sb.BlockCount > dev.BlockCount():
		return corrupt("%d blocks, device has %d", sb.BlockCount, dev.BlockCount())
	case sb.InodeStart == 0 || sb.InodeStart+sb.InodeBlocks != sb.BitmapStart:
		return corrupt("inode region %d+%d does not end at the bitmap %d", sb.InodeStart, sb.InodeBlocks, sb.BitmapStart)
	case sb.InodeCount*inodeSize > sb.InodeBlocks*sb.BlockSize:
		return corrupt("%d inodes do not fit into %d blocks", sb.InodeCount, sb.InodeBlocks)
	case sb.BitmapStart+sb.BitmapBlocks != sb.DataStart:
		return corrupt("bitmap region %d+%d does not end at the data region %d", sb.BitmapStart, sb.BitmapBlocks, sb.DataStart)
	case sb.BitmapBytes*8 < sb.TotalDataBlocks || sb.BitmapBytes > sb.BitmapBlocks*sb.BlockSize:
		return corrupt("bitmap of %d bytes for %d blocks", sb.BitmapBytes, sb.TotalDataBlocks)
	case sb.DataStart+sb.TotalDataBlocks > sb.BlockCount:
		return corrupt("data region %d+%d exceeds %d blocks", sb.DataStart, sb.TotalDataBlocks, sb.BlockCount)
	case sb.UsedInodes > sb.InodeCount:
		return corrupt("%d of %d inodes used", sb.UsedInodes, sb.InodeCount)
	case sb.FreeDataBlocks > sb.TotalDataBlocks:
		return corrupt("%d of %d data blocks free", sb.FreeDataBlocks, sb.TotalDataBlocks)
	case sb.PointersPerBlock != sb.BlockSize/pointerSize:
		return corrupt("%d pointers per block", sb.PointersPerBlock)
	}

	return nil
}

func (v *Volume) readSuperBlock() (superBlock, error) {
	buf, err := v.readBlocks(1, 0)
	if err != nil {
		return superBlock{}, err
	}

	var sb superBlock
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &sb); err != nil {
		return superBlock{}, checkpoint.Wrap(err, ErrCorrupt)
	}
	return sb, nil
}

func (v *Volume) writeSuperBlock() error {
	buf := bytes.NewBuffer(make([]byte, 0, v.blockSize))
	if err := binary.Write(buf, binary.LittleEndian, &v.sb); err != nil {
		return checkpoint.From(err)
	}

	block := make([]byte, v.blockSize)
	copy(block, buf.Bytes())
	return v.writeBlocks(block, 0)
}
