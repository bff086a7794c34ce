package goifs

import (
	"fmt"

	"github.com/aligator/goifs/checkpoint"
)

// bitmap tracks the used data blocks, one bit per block. A set bit means used.
// Bits past total exist only to fill the last byte and are never handed out.
type bitmap struct {
	bits  []byte
	total uint64
}

func newBitmap(bits []byte, total uint64) *bitmap {
	return &bitmap{bits: bits, total: total}
}

func (b *bitmap) used(block uint64) bool {
	return b.bits[block/8]&(1<<(block%8)) != 0
}

func (b *bitmap) set(block uint64) {
	b.bits[block/8] |= 1 << (block % 8)
}

func (b *bitmap) clear(block uint64) {
	b.bits[block/8] &^= 1 << (block % 8)
}

// scan looks for a free run of at least need blocks and returns the first
// one found. If there is none, the largest free run is returned instead.
// A length of 0 means no block is free at all.
func (b *bitmap) scan(need uint64) (start, length uint64) {
	var runStart, runLen uint64

	end := func() {
		if runLen > length {
			start, length = runStart, runLen
		}
		runLen = 0
	}

	for i := uint64(0); i < b.total; {
		// Whole bytes can be skipped or taken at once as long as they are
		// completely inside the valid range.
		if i%8 == 0 && i+8 <= b.total {
			switch b.bits[i/8] {
			case 0xff:
				end()
				i += 8
				continue
			case 0x00:
				if runLen == 0 {
					runStart = i
				}
				runLen += 8
				i += 8
				if runLen >= need {
					return runStart, runLen
				}
				continue
			}
		}

		if b.used(i) {
			end()
		} else {
			if runLen == 0 {
				runStart = i
			}
			runLen++
			if runLen >= need {
				return runStart, runLen
			}
		}
		i++
	}

	end()
	return start, length
}

// allocate marks n free blocks as used and returns them in the order they
// should be used. A single run large enough is preferred; otherwise the
// largest runs are taken one after another. On failure no bit is changed.
func (b *bitmap) allocate(n uint64) ([]uint64, error) {
	blocks := make([]uint64, 0, n)

	for remaining := n; remaining > 0; {
		start, length := b.scan(remaining)
		if length == 0 {
			for _, block := range blocks {
				b.clear(block)
			}
			return nil, fmt.Errorf("%w: %d of %d blocks found", ErrNoSpace, len(blocks), n)
		}

		if length > remaining {
			length = remaining
		}
		for block := start; block < start+length; block++ {
			b.set(block)
			blocks = append(blocks, block)
		}
		remaining -= length
	}

	return blocks, nil
}

// findFreeBlocks takes n blocks from the bitmap and books them in the superblock.
func (v *Volume) findFreeBlocks(n uint64) ([]uint64, error) {
	if n > v.sb.FreeDataBlocks {
		return nil, fmt.Errorf("%w: need %d, %d free", ErrNoSpace, n, v.sb.FreeDataBlocks)
	}

	blocks, err := v.bitmap.allocate(n)
	if err != nil {
		return nil, checkpoint.From(err)
	}

	v.sb.FreeDataBlocks -= n
	return blocks, nil
}

// freeBlock releases a single data block.
func (v *Volume) freeBlock(block uint64) {
	if block >= v.bitmap.total || !v.bitmap.used(block) {
		v.log.WithField("block", block).Warn("releasing a block which is not in use")
		return
	}

	v.bitmap.clear(block)
	v.sb.FreeDataBlocks++
}

func (v *Volume) readBitmap() error {
	buf, err := v.readBlocks(v.sb.BitmapBlocks, v.sb.BitmapStart)
	if err != nil {
		return err
	}

	v.bitmap = newBitmap(buf[:v.sb.BitmapBytes], v.sb.TotalDataBlocks)
	return nil
}

func (v *Volume) writeBitmap() error {
	buf := make([]byte, v.sb.BitmapBlocks*v.blockSize)
	copy(buf, v.bitmap.bits)
	return v.writeBlocks(buf, v.sb.BitmapStart)
}
