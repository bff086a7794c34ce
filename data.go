package goifs

import (
	"fmt"
	"io"
)

func checkInode(inode *Inode) error {
	if inode == nil {
		return fmt.Errorf("%w: nil", ErrInvalidInode)
	}
	if !inode.Used {
		return fmt.Errorf("%w: inode %d is not in use", ErrInvalidInode, inode.ID)
	}
	return nil
}

// writeAt writes p at byte offset off of the inode, growing it as needed.
// off must not be beyond the current size. The updated inode is persisted.
func (v *Volume) writeAt(inode *Inode, p []byte, off uint64) (int, error) {
	if err := checkInode(inode); err != nil {
		return 0, err
	}
	if off > inode.Size {
		return 0, fmt.Errorf("%w: write at %d of inode %d with size %d", ErrOutOfRange, off, inode.ID, inode.Size)
	}

	end := off + uint64(len(p))
	if end > v.sb.MaxFileSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrFileTooLarge, end, v.sb.MaxFileSize)
	}
	if len(p) == 0 {
		return 0, nil
	}

	if end > uint64(inode.BlocksReserved)*v.blockSize {
		if _, err := v.allocateBlocks(inode, end); err != nil {
			return 0, err
		}
	}

	cursor := v.newCursor(inode)
	written := 0
	for written < len(p) {
		pos := off + uint64(written)
		block, err := cursor.block(pos / v.blockSize)
		if err != nil {
			return written, err
		}

		inBlock := pos % v.blockSize
		n := int(v.blockSize - inBlock)
		if rest := len(p) - written; rest < n {
			n = rest
		}

		if inBlock == 0 && uint64(n) == v.blockSize {
			err = v.writeData(block, p[written:written+n])
		} else {
			var buf []byte
			buf, err = v.readData(block)
			if err == nil {
				copy(buf[inBlock:], p[written:written+n])
				err = v.writeData(block, buf)
			}
		}
		if err != nil {
			return written, err
		}

		written += n
	}

	if end > inode.Size {
		inode.Size = end
	}
	inode.Modified = v.now().Unix()
	if err := v.writeInode(inode); err != nil {
		return written, err
	}

	return written, nil
}

// readAt reads into p from byte offset off of the inode.
// Like io.ReaderAt it returns io.EOF whenever fewer than len(p) bytes are read.
func (v *Volume) readAt(inode *Inode, p []byte, off uint64) (int, error) {
	if err := checkInode(inode); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= inode.Size {
		return 0, io.EOF
	}

	want := len(p)
	if rest := inode.Size - off; rest < uint64(want) {
		want = int(rest)
	}

	cursor := v.newCursor(inode)
	read := 0
	for read < want {
		pos := off + uint64(read)
		block, err := cursor.block(pos / v.blockSize)
		if err != nil {
			return read, err
		}

		buf, err := v.readData(block)
		if err != nil {
			return read, err
		}

		read += copy(p[read:want], buf[pos%v.blockSize:])
	}

	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}

// readFile returns length bytes of the inode starting at off.
// A length of 0 reads to the end of the file.
func (v *Volume) readFile(inode *Inode, off, length uint64) ([]byte, error) {
	if err := checkInode(inode); err != nil {
		return nil, err
	}
	if off > inode.Size {
		return nil, fmt.Errorf("%w: read at %d of inode %d with size %d", ErrOutOfRange, off, inode.ID, inode.Size)
	}

	rest := inode.Size - off
	if length == 0 || length > rest {
		length = rest
	}

	buf := make([]byte, length)
	n, err := v.readAt(inode, buf, off)
	if err != nil && err != io.EOF {
		return buf[:n], err
	}
	return buf[:n], nil
}
