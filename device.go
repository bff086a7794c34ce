package goifs

import (
	"fmt"

	"github.com/aligator/goifs/checkpoint"
)

// BlockDevice is the storage a Volume lives on.
// Both transfer methods move count whole blocks starting at block start and
// buf must hold at least count*BlockSize() bytes.
// Generated mock using mockgen:
//  mockgen -source=device.go -destination=device_mock.go -package goifs
type BlockDevice interface {
	ReadBlocks(buf []byte, count, start uint64) error
	WriteBlocks(buf []byte, count, start uint64) error
	BlockSize() uint64
	BlockCount() uint64
}

// readBlocks reads count blocks into a new buffer.
func (v *Volume) readBlocks(count, start uint64) ([]byte, error) {
	buf := make([]byte, count*v.blockSize)
	if err := v.dev.ReadBlocks(buf, count, start); err != nil {
		return nil, checkpoint.Wrap(err, fmt.Errorf("%w: blocks %d+%d", ErrReadDevice, start, count))
	}
	return buf, nil
}

func (v *Volume) writeBlocks(buf []byte, start uint64) error {
	count := uint64(len(buf)) / v.blockSize
	if err := v.dev.WriteBlocks(buf, count, start); err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("%w: blocks %d+%d", ErrWriteDevice, start, count))
	}
	return nil
}

// readData reads the data region block with the relative number block.
func (v *Volume) readData(block uint64) ([]byte, error) {
	return v.readBlocks(1, v.sb.DataStart+block)
}

func (v *Volume) writeData(block uint64, buf []byte) error {
	return v.writeBlocks(buf, v.sb.DataStart+block)
}
