package goifs

import (
	"encoding/binary"
	"fmt"
)

type blockLevel int

const (
	levelDirect blockLevel = iota
	levelSingle
	levelDouble
	levelOutOfRange
)

// blockPos locates a logical file block in the pointer tree.
// For levelDirect and levelSingle only index is used: the slot in the inode
// or in the singly indirect table. For levelDouble outer selects the inner
// table from the table of tables and index the slot inside of it.
type blockPos struct {
	level blockLevel
	outer uint64
	index uint64
}

// position maps the logical block i of a file to its place in the pointer tree.
func position(i, pointers uint64) blockPos {
	if i < NumDirect {
		return blockPos{level: levelDirect, index: i}
	}

	i -= NumDirect
	if i < pointers {
		return blockPos{level: levelSingle, index: i}
	}

	i -= pointers
	if i < pointers*pointers {
		return blockPos{level: levelDouble, outer: i / pointers, index: i % pointers}
	}

	return blockPos{level: levelOutOfRange}
}

// tablesFor returns how many pointer table blocks a file of n data blocks needs.
func tablesFor(n, pointers uint64) uint64 {
	switch {
	case n <= NumDirect:
		return 0
	case n <= NumDirect+pointers:
		return 1
	}
	// The singly table, the table of tables and one inner table per started
	// group of pointers.
	return 2 + ceilDiv(n-NumDirect-pointers, pointers)
}

// pointerTable is a decoded pointer table block.
type pointerTable []uint64

func decodeTable(buf []byte) pointerTable {
	table := make(pointerTable, len(buf)/pointerSize)
	for i := range table {
		table[i] = binary.LittleEndian.Uint64(buf[i*pointerSize:])
	}
	return table
}

func (t pointerTable) encode() []byte {
	buf := make([]byte, len(t)*pointerSize)
	for i, p := range t {
		binary.LittleEndian.PutUint64(buf[i*pointerSize:], p)
	}
	return buf
}

func (v *Volume) readTable(block uint64) (pointerTable, error) {
	buf, err := v.readData(block)
	if err != nil {
		return nil, err
	}
	return decodeTable(buf), nil
}

func (v *Volume) writeTable(block uint64, table pointerTable) error {
	return v.writeData(block, table.encode())
}

type cachedTable struct {
	block uint64
	table pointerTable
}

// tableCursor resolves logical blocks of one inode. It keeps the table of
// tables and the last used leaf table so that sequential access does not
// re-read them for every block. It must not outlive changes of the inode's
// pointers.
type tableCursor struct {
	v     *Volume
	inode *Inode

	outer *cachedTable
	leaf  *cachedTable
}

func (v *Volume) newCursor(inode *Inode) *tableCursor {
	return &tableCursor{v: v, inode: inode}
}

func (c *tableCursor) load(slot **cachedTable, block uint64) (pointerTable, error) {
	if *slot != nil && (*slot).block == block {
		return (*slot).table, nil
	}

	table, err := c.v.readTable(block)
	if err != nil {
		return nil, err
	}
	*slot = &cachedTable{block: block, table: table}
	return table, nil
}

// block returns the data block holding the logical block i.
func (c *tableCursor) block(i uint64) (uint64, error) {
	if i >= uint64(c.inode.BlocksReserved) {
		return 0, fmt.Errorf("%w: block %d of %d reserved", ErrOutOfRange, i, c.inode.BlocksReserved)
	}

	pos := position(i, c.v.sb.PointersPerBlock)
	switch pos.level {
	case levelDirect:
		return c.inode.Direct[pos.index], nil

	case levelSingle:
		table, err := c.load(&c.leaf, c.inode.Indirect[0])
		if err != nil {
			return 0, err
		}
		return table[pos.index], nil

	case levelDouble:
		outer, err := c.load(&c.outer, c.inode.Indirect[1])
		if err != nil {
			return 0, err
		}
		table, err := c.load(&c.leaf, outer[pos.outer])
		if err != nil {
			return 0, err
		}
		return table[pos.index], nil
	}

	return 0, fmt.Errorf("%w: block %d", ErrFileTooLarge, i)
}
