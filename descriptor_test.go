package goifs

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"testing"
)

func TestVolume_Seek(t *testing.T) {
	v, _ := testingVolume(t, 64)
	writeTestFile(t, v, "/f", []byte("Hello World"))
	fd, err := v.Open("/f")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer v.Close(fd)

	tests := []struct {
		name    string
		offset  int64
		whence  int
		want    int64
		wantErr error
	}{
		{name: "start", offset: 6, whence: io.SeekStart, want: 6},
		{name: "current", offset: -2, whence: io.SeekCurrent, want: 4},
		{name: "end", offset: -5, whence: io.SeekEnd, want: 6},
		{name: "behind the end", offset: 3, whence: io.SeekEnd, want: 14},
		{name: "before the start is clamped", offset: -20, whence: io.SeekCurrent, want: 0},
		{name: "invalid whence", offset: 0, whence: 42, wantErr: ErrInvalidWhence},
	}
	for _, tt := range tests {
		got, err := v.Seek(fd, tt.offset, tt.whence)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: Volume.Seek() error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if tt.wantErr == nil && got != tt.want {
			t.Errorf("%s: Volume.Seek() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestVolume_Read(t *testing.T) {
	v, _ := testingVolume(t, 64)
	writeTestFile(t, v, "/f", []byte("Hello World"))
	fd, err := v.Open("/f")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer v.Close(fd)

	p := make([]byte, 6)
	if n, err := v.Read(fd, p); n != 6 || err != nil || string(p) != "Hello " {
		t.Errorf("Volume.Read() = %v, %v, %q", n, err, p)
	}
	// The short read is no error yet.
	if n, err := v.Read(fd, p); n != 5 || err != nil || string(p[:n]) != "World" {
		t.Errorf("Volume.Read() = %v, %v, %q", n, err, p[:n])
	}
	if n, err := v.Read(fd, p); n != 0 || err != io.EOF {
		t.Errorf("Volume.Read() at the end = %v, %v, want 0, EOF", n, err)
	}

	// ReadAt keeps the cursor.
	if n, err := v.ReadAt(fd, p[:5], 0); n != 5 || err != nil || string(p[:5]) != "Hello" {
		t.Errorf("Volume.ReadAt() = %v, %v, %q", n, err, p[:5])
	}
	if pos, _ := v.Seek(fd, 0, io.SeekCurrent); pos != 11 {
		t.Errorf("Volume.ReadAt() moved the cursor to %v", pos)
	}
	if _, err := v.ReadAt(fd, p, -1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Volume.ReadAt() error = %v, wantErr %v", err, ErrOutOfRange)
	}
}

func TestVolume_Write(t *testing.T) {
	v, _ := testingVolume(t, 64)
	writeTestFile(t, v, "/f", []byte("Hello World"))
	fd, err := v.Open("/f")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := v.Seek(fd, 6, io.SeekStart); err != nil {
		t.Fatalf("Volume.Seek() error = %v", err)
	}
	if n, err := v.Write(fd, []byte("Gophers")); n != 7 || err != nil {
		t.Errorf("Volume.Write() = %v, %v", n, err)
	}
	if n, err := v.WriteAt(fd, []byte("J"), 0); n != 1 || err != nil {
		t.Errorf("Volume.WriteAt() = %v, %v", n, err)
	}
	if _, err := v.WriteAt(fd, []byte("x"), int64(v.sb.MaxFileSize)+1); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Volume.WriteAt() behind the maximum size error = %v, wantErr %v", err, ErrFileTooLarge)
	}

	inode, err := v.StatDescriptor(fd)
	if err != nil || inode.Size != 13 {
		t.Errorf("Volume.StatDescriptor() = %v, %v, want size 13", inode.Size, err)
	}

	if err := v.Truncate(fd, 5); err != nil {
		t.Fatalf("Volume.Truncate() error = %v", err)
	}
	if err := v.Close(fd); err != nil {
		t.Fatalf("Volume.Close() error = %v", err)
	}

	if got := readTestFile(t, v, "/f"); string(got) != "Jello" {
		t.Errorf("content = %q, want %q", got, "Jello")
	}
}

func TestVolume_Open(t *testing.T) {
	v, _ := testingVolume(t, 64)
	writeTestFile(t, v, "/f", nil)
	if err := v.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	if _, err := v.Open("/d"); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Volume.Open() of a directory error = %v, wantErr %v", err, ErrIsDirectory)
	}
	if _, err := v.Open("/x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Volume.Open() of a missing file error = %v, wantErr %v", err, ErrNotFound)
	}
	if _, err := v.OpenInode(5); !errors.Is(err, ErrInvalidInode) {
		t.Errorf("Volume.OpenInode() of an unused inode error = %v, wantErr %v", err, ErrInvalidInode)
	}

	for i := 0; i < MaxOpenFiles; i++ {
		if _, err := v.Open("/f"); err != nil {
			t.Fatalf("Volume.Open() #%v error = %v", i, err)
		}
	}
	if _, err := v.Open("/f"); !errors.Is(err, ErrTooManyOpenFiles) {
		t.Errorf("Volume.Open() error = %v, wantErr %v", err, ErrTooManyOpenFiles)
	}

	if err := v.Close(17); err != nil {
		t.Fatalf("Volume.Close() error = %v", err)
	}
	if fd, err := v.Open("/f"); err != nil || fd != 17 {
		t.Errorf("Volume.Open() = %v, %v, want the free descriptor 17", fd, err)
	}
}

func TestVolume_Close(t *testing.T) {
	v, _ := testingVolume(t, 64)
	writeTestFile(t, v, "/f", nil)
	fd, err := v.Open("/f")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := v.Close(fd); err != nil {
		t.Fatalf("Volume.Close() error = %v", err)
	}

	for _, err := range []error{
		v.Close(fd),
		v.Close(-1),
		v.Close(MaxOpenFiles),
	} {
		if !errors.Is(err, ErrBadDescriptor) || !errors.Is(err, fs.ErrClosed) {
			t.Errorf("Volume.Close() error = %v, wantErr %v", err, ErrBadDescriptor)
		}
	}
	if _, err := v.Read(fd, make([]byte, 1)); !errors.Is(err, ErrBadDescriptor) {
		t.Errorf("Volume.Read() error = %v, wantErr %v", err, ErrBadDescriptor)
	}
}

func TestVolume_Close_lastWriterWins(t *testing.T) {
	tests := []struct {
		name     string
		closeFd1 bool
		want     uint64
	}{
		{name: "first closed last", closeFd1: true, want: 4},
		{name: "second closed last", closeFd1: false, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := testingVolume(t, 64)
			writeTestFile(t, v, "/f", nil)

			fd1, err := v.Open("/f")
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			fd2, err := v.Open("/f")
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}

			if _, err := v.Write(fd1, []byte("aaaa")); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if _, err := v.Write(fd2, []byte("bb")); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			first, last := fd2, fd1
			if !tt.closeFd1 {
				first, last = fd1, fd2
			}
			if err := v.Close(first); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if err := v.Close(last); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			inode, err := v.Stat("/f")
			if err != nil {
				t.Fatalf("Stat() error = %v", err)
			}
			if inode.Size != tt.want {
				t.Errorf("size = %v, want %v", inode.Size, tt.want)
			}
			if got := readTestFile(t, v, "/f"); string(got) != "bbaa"[:tt.want] {
				t.Errorf("content = %q, want %q", got, "bbaa"[:tt.want])
			}
		})
	}
}

func TestVolume_Write_behindTheEnd(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		seek     int64
		want     []byte
		wantSize uint64
	}{
		{
			name:     "gap in the same block",
			content:  []byte("abc"),
			seek:     6,
			want:     []byte("abc\x00\x00\x00x"),
			wantSize: 7,
		},
		{
			name:     "gap over blocks",
			content:  []byte("abc"),
			seek:     3 * testBlockSize,
			want:     append(append([]byte("abc"), make([]byte, 3*testBlockSize-3)...), 'x'),
			wantSize: 3*testBlockSize + 1,
		},
		{
			name:     "at the end",
			content:  []byte("abc"),
			seek:     3,
			want:     []byte("abcx"),
			wantSize: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := testingVolume(t, 64)
			writeTestFile(t, v, "/f", tt.content)

			fd, err := v.Open("/f")
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if _, err := v.Seek(fd, tt.seek, io.SeekStart); err != nil {
				t.Fatalf("Volume.Seek() error = %v", err)
			}
			if n, err := v.Write(fd, []byte("x")); n != 1 || err != nil {
				t.Errorf("Volume.Write() = %v, %v", n, err)
			}
			if err := v.Close(fd); err != nil {
				t.Fatalf("Volume.Close() error = %v", err)
			}

			inode, err := v.Stat("/f")
			if err != nil || inode.Size != tt.wantSize {
				t.Errorf("size = %v, %v, want %v", inode.Size, err, tt.wantSize)
			}
			if got := readTestFile(t, v, "/f"); !bytes.Equal(got, tt.want) {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVolume_Close_afterRemove(t *testing.T) {
	v, _ := testingVolume(t, 64)
	writeTestFile(t, v, "/a", nil)
	writeTestFile(t, v, "/keep", []byte("keep"))
	before, err := v.Info()
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}

	fd, err := v.Open("/a")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := v.Write(fd, pattern(10)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	inode, err := v.StatDescriptor(fd)
	if err != nil {
		t.Fatalf("StatDescriptor() error = %v", err)
	}
	id := inode.ID

	if err := v.Remove("/a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := v.Write(fd, []byte("x")); !errors.Is(err, ErrInvalidInode) {
		t.Errorf("Volume.Write() on a removed file error = %v, wantErr %v", err, ErrInvalidInode)
	}
	if err := v.Truncate(fd, 100); !errors.Is(err, ErrInvalidInode) {
		t.Errorf("Volume.Truncate() on a removed file error = %v, wantErr %v", err, ErrInvalidInode)
	}
	if err := v.Sync(); err != nil {
		t.Fatalf("Volume.Sync() error = %v", err)
	}
	if err := v.Close(fd); err != nil {
		t.Fatalf("Volume.Close() error = %v", err)
	}

	freed, err := v.readInode(id)
	if err != nil {
		t.Fatalf("readInode() error = %v", err)
	}
	if freed.Used {
		t.Errorf("Close() brought the removed inode %d back: %+v", id, freed)
	}

	after, err := v.Info()
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if after.UsedInodes != before.UsedInodes-1 || after.FreeDataBlocks != before.FreeDataBlocks+1 {
		t.Errorf("Info() = %v inodes %v free blocks, want %v and %v",
			after.UsedInodes, after.FreeDataBlocks, before.UsedInodes-1, before.FreeDataBlocks+1)
	}

	// A new file may now take the blocks of the removed one.
	writeTestFile(t, v, "/b", pattern(600))
	if got := readTestFile(t, v, "/keep"); string(got) != "keep" {
		t.Errorf("content of /keep = %q", got)
	}
}

func TestVolume_Close_afterMove(t *testing.T) {
	v, _ := testingVolume(t, 64)
	writeTestFile(t, v, "/a", nil)
	if err := v.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	fd, err := v.Open("/a")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := v.Write(fd, []byte("moved")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := v.Move("/a", "/d"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	if _, err := v.Write(fd, []byte(" along")); err != nil {
		t.Fatalf("Write() after Move error = %v", err)
	}
	if err := v.Close(fd); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries, err := v.List("/d/a")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a" {
		t.Errorf("List() = %+v, want the moved file", entries)
	}

	d, err := v.Stat("/d")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	inode, err := v.Stat("/d/a")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if inode.Parent != d.ID {
		t.Errorf("Parent = %v, want %v", inode.Parent, d.ID)
	}
	if got := readTestFile(t, v, "/d/a"); string(got) != "moved along" {
		t.Errorf("content = %q, want %q", got, "moved along")
	}
}
