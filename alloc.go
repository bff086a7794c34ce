package goifs

import (
	"fmt"

	"github.com/aligator/goifs/checkpoint"
)

// tableEditor loads pointer tables on demand while the pointers of an inode
// are changed and writes back the modified ones on flush.
type tableEditor struct {
	v *Volume

	single, outer, inner           pointerTable
	singleDirty, outerDirty, dirty bool

	innerBlock uint64
	innerOuter uint64
}

func (e *tableEditor) loadSingle(block uint64) error {
	if e.single != nil {
		return nil
	}
	table, err := e.v.readTable(block)
	e.single = table
	return err
}

func (e *tableEditor) loadOuter(block uint64) error {
	if e.outer != nil {
		return nil
	}
	table, err := e.v.readTable(block)
	e.outer = table
	return err
}

// loadInner switches to the inner table at slot outer of the table of tables.
func (e *tableEditor) loadInner(outer uint64) error {
	if e.inner != nil && e.innerOuter == outer {
		return nil
	}
	if err := e.flushInner(); err != nil {
		return err
	}

	table, err := e.v.readTable(e.outer[outer])
	if err != nil {
		return err
	}
	e.inner, e.innerOuter, e.innerBlock = table, outer, e.outer[outer]
	return nil
}

// newInner starts a fresh inner table stored in block.
func (e *tableEditor) newInner(outer, block uint64) error {
	if err := e.flushInner(); err != nil {
		return err
	}
	e.outer[outer] = block
	e.outerDirty = true
	e.inner, e.innerOuter, e.innerBlock = make(pointerTable, e.v.sb.PointersPerBlock), outer, block
	e.dirty = true
	return nil
}

func (e *tableEditor) flushInner() error {
	if e.inner == nil || !e.dirty {
		return nil
	}
	e.dirty = false
	return e.v.writeTable(e.innerBlock, e.inner)
}

func (e *tableEditor) flush(inode *Inode) error {
	if err := e.flushInner(); err != nil {
		return err
	}
	if e.single != nil && e.singleDirty {
		if err := e.v.writeTable(inode.Indirect[0], e.single); err != nil {
			return err
		}
		e.singleDirty = false
	}
	if e.outer != nil && e.outerDirty {
		if err := e.v.writeTable(inode.Indirect[1], e.outer); err != nil {
			return err
		}
		e.outerDirty = false
	}
	return nil
}

// allocateBlocks grows the capacity of inode to hold size bytes, at least one
// block. Every new block is zeroed. It returns the number of blocks taken from
// the bitmap, including new pointer tables.
func (v *Volume) allocateBlocks(inode *Inode, size uint64) (uint64, error) {
	if size > v.sb.MaxFileSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrFileTooLarge, size, v.sb.MaxFileSize)
	}

	need := ceilDiv(size, v.blockSize)
	if need == 0 {
		need = 1
	}
	have := uint64(inode.BlocksReserved)
	if need <= have {
		return 0, nil
	}

	pointers := v.sb.PointersPerBlock
	count := need - have + tablesFor(need, pointers) - uint64(inode.BlocksIndirect)

	blocks, err := v.findFreeBlocks(count)
	if err != nil {
		return 0, checkpoint.Wrap(err, fmt.Errorf("%w: growing inode %d to %d blocks", ErrNoSpace, inode.ID, need))
	}

	next := func() uint64 {
		b := blocks[0]
		blocks = blocks[1:]
		return b
	}

	zero := make([]byte, v.blockSize)
	e := &tableEditor{v: v}

	for i := have; i < need; i++ {
		pos := position(i, pointers)

		data := next()
		if err := v.writeData(data, zero); err != nil {
			return 0, err
		}

		switch pos.level {
		case levelDirect:
			inode.Direct[pos.index] = data

		case levelSingle:
			if pos.index == 0 {
				inode.Indirect[0] = next()
				inode.BlocksIndirect++
				e.single = make(pointerTable, pointers)
			} else if err := e.loadSingle(inode.Indirect[0]); err != nil {
				return 0, err
			}
			e.single[pos.index] = data
			e.singleDirty = true

		case levelDouble:
			if pos.outer == 0 && pos.index == 0 {
				inode.Indirect[1] = next()
				inode.BlocksIndirect++
				e.outer = make(pointerTable, pointers)
				e.outerDirty = true
			} else if err := e.loadOuter(inode.Indirect[1]); err != nil {
				return 0, err
			}

			if pos.index == 0 {
				inode.BlocksIndirect++
				if err := e.newInner(pos.outer, next()); err != nil {
					return 0, err
				}
			} else if err := e.loadInner(pos.outer); err != nil {
				return 0, err
			}
			e.inner[pos.index] = data
			e.dirty = true

		default:
			return 0, fmt.Errorf("%w: block %d", ErrFileTooLarge, i)
		}

		inode.BlocksReserved++
	}

	if err := e.flush(inode); err != nil {
		return 0, err
	}
	if err := v.writeInode(inode); err != nil {
		return 0, err
	}

	return count, nil
}

// deallocateBlocks shrinks the capacity of inode to the blocks needed for
// max(minSize, inode.Size) bytes, releasing from the end of the file.
// Pointer tables are released together with their first slot.
// It returns the number of blocks given back, including pointer tables.
func (v *Volume) deallocateBlocks(inode *Inode, minSize uint64) (uint64, error) {
	size := minSize
	if inode.Size > size {
		size = inode.Size
	}
	keep := ceilDiv(size, v.blockSize)

	pointers := v.sb.PointersPerBlock
	e := &tableEditor{v: v}
	var released uint64

	for i := uint64(inode.BlocksReserved); i > keep; i-- {
		pos := position(i-1, pointers)

		switch pos.level {
		case levelDirect:
			v.freeBlock(inode.Direct[pos.index])
			inode.Direct[pos.index] = 0

		case levelSingle:
			if err := e.loadSingle(inode.Indirect[0]); err != nil {
				return released, err
			}
			v.freeBlock(e.single[pos.index])
			e.single[pos.index] = 0
			e.singleDirty = true

			if pos.index == 0 {
				v.freeBlock(inode.Indirect[0])
				inode.Indirect[0] = 0
				inode.BlocksIndirect--
				e.single, e.singleDirty = nil, false
				released++
			}

		case levelDouble:
			if err := e.loadOuter(inode.Indirect[1]); err != nil {
				return released, err
			}
			if err := e.loadInner(pos.outer); err != nil {
				return released, err
			}
			v.freeBlock(e.inner[pos.index])
			e.inner[pos.index] = 0
			e.dirty = true

			if pos.index == 0 {
				v.freeBlock(e.outer[pos.outer])
				e.outer[pos.outer] = 0
				e.outerDirty = true
				inode.BlocksIndirect--
				e.inner, e.dirty = nil, false
				released++

				if pos.outer == 0 {
					v.freeBlock(inode.Indirect[1])
					inode.Indirect[1] = 0
					inode.BlocksIndirect--
					e.outer, e.outerDirty = nil, false
					released++
				}
			}

		default:
			return released, fmt.Errorf("%w: inode %d reserves %d blocks", ErrCorrupt, inode.ID, inode.BlocksReserved)
		}

		inode.BlocksReserved--
		released++
	}

	if released == 0 {
		return 0, nil
	}

	if err := e.flush(inode); err != nil {
		return released, err
	}
	if err := v.writeInode(inode); err != nil {
		return released, err
	}
	return released, nil
}
