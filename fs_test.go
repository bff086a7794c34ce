package goifs

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// testingFs returns an Fs on a new volume holding:
//  /dir/file.txt   "Hello World"
//  /dir/sub/
//  /empty/
//  /readme.md      "# goifs"
func testingFs(t *testing.T) *Fs {
	t.Helper()

	v, _ := testingVolume(t, 256)
	for _, dir := range []string{"/dir", "/dir/sub", "/empty"} {
		if err := v.Mkdir(dir); err != nil {
			t.Fatalf("Mkdir(%q) error = %v", dir, err)
		}
	}
	writeTestFile(t, v, "/dir/file.txt", []byte("Hello World"))
	writeTestFile(t, v, "/readme.md", []byte("# goifs"))
	return NewFs(v)
}

func TestFs_Create(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "new file", path: "/new.txt"},
		{name: "truncate existing", path: "/dir/file.txt"},
		{name: "without leading slash", path: "dir/other.txt"},
		{name: "missing parent", path: "/nothing/new.txt", wantErr: fs.ErrNotExist},
		{name: "directory", path: "/dir", wantErr: fs.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := testingFs(t)
			f, err := fsys.Create(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fs.Create() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				return
			}

			if _, err := f.WriteString("new"); err != nil {
				t.Errorf("File.WriteString() error = %v", err)
			}
			if err := f.Close(); err != nil {
				t.Errorf("File.Close() error = %v", err)
			}

			got, err := afero.ReadFile(fsys, tt.path)
			if err != nil || string(got) != "new" {
				t.Errorf("content = %q, %v, want %q", got, err, "new")
			}
		})
	}
}

func TestFs_Mkdir(t *testing.T) {
	fsys := testingFs(t)

	if err := fsys.Mkdir("/new", 0o755); err != nil {
		t.Errorf("Fs.Mkdir() error = %v", err)
	}
	if err := fsys.Mkdir("/new", 0o755); !errors.Is(err, fs.ErrExist) {
		t.Errorf("Fs.Mkdir() error = %v, wantErr %v", err, fs.ErrExist)
	}
	var pathErr *os.PathError
	if err := fsys.Mkdir("/a/b", 0o755); !errors.As(err, &pathErr) || pathErr.Op != "mkdir" {
		t.Errorf("Fs.Mkdir() error = %v, want a *os.PathError", err)
	}
}

func TestFs_MkdirAll(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "new tree", path: "/a/b/c"},
		{name: "partly existing", path: "/dir/sub/x/y"},
		{name: "existing", path: "/dir/sub"},
		{name: "through a file", path: "/dir/file.txt/x", wantErr: syscall.ENOTDIR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := testingFs(t)
			err := fsys.MkdirAll(tt.path, 0o755)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fs.MkdirAll() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				return
			}
			if ok, err := afero.IsDir(fsys, tt.path); !ok || err != nil {
				t.Errorf("Fs.MkdirAll() did not create %q: %v", tt.path, err)
			}
		})
	}
}

func TestFs_OpenFile(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		flag    int
		want    string
		wantErr error
	}{
		{name: "read only", path: "/dir/file.txt", flag: os.O_RDONLY, want: "Hello World"},
		{name: "append", path: "/dir/file.txt", flag: os.O_WRONLY | os.O_APPEND, want: "Hello World!"},
		{name: "overwrite", path: "/dir/file.txt", flag: os.O_RDWR, want: "!ello World"},
		{name: "truncate", path: "/dir/file.txt", flag: os.O_RDWR | os.O_TRUNC, want: "!"},
		{name: "create", path: "/dir/new", flag: os.O_WRONLY | os.O_CREATE, want: "!"},
		{name: "exclusive", path: "/dir/file.txt", flag: os.O_WRONLY | os.O_CREATE | os.O_EXCL, wantErr: fs.ErrExist},
		{name: "missing", path: "/dir/new", flag: os.O_WRONLY, wantErr: fs.ErrNotExist},
		{name: "writable directory", path: "/dir", flag: os.O_RDWR, wantErr: fs.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := testingFs(t)
			f, err := fsys.OpenFile(tt.path, tt.flag, 0o644)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fs.OpenFile() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				return
			}

			if tt.flag&(os.O_WRONLY|os.O_RDWR) != 0 {
				if _, err := f.Write([]byte("!")); err != nil {
					t.Errorf("File.Write() error = %v", err)
				}
			}
			if err := f.Close(); err != nil {
				t.Errorf("File.Close() error = %v", err)
			}

			got, err := afero.ReadFile(fsys, tt.path)
			if err != nil || string(got) != tt.want {
				t.Errorf("content = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestFs_Remove(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "file", path: "/readme.md"},
		{name: "empty directory", path: "/empty"},
		{name: "directory which is not empty", path: "/dir", wantErr: syscall.ENOTEMPTY},
		{name: "missing", path: "/nothing", wantErr: fs.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := testingFs(t)
			if err := fsys.Remove(tt.path); !errors.Is(err, tt.wantErr) {
				t.Errorf("Fs.Remove() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				return
			}
			if ok, _ := afero.Exists(fsys, tt.path); ok {
				t.Errorf("Fs.Remove() left %q", tt.path)
			}
		})
	}
}

func TestFs_RemoveAll(t *testing.T) {
	fsys := testingFs(t)

	for _, p := range []string{"/dir", "/readme.md", "/nothing"} {
		if err := fsys.RemoveAll(p); err != nil {
			t.Errorf("Fs.RemoveAll(%q) error = %v", p, err)
		}
		if ok, _ := afero.Exists(fsys, p); ok {
			t.Errorf("Fs.RemoveAll() left %q", p)
		}
	}

	info, err := fsys.Volume().Info()
	if err != nil {
		t.Fatalf("Volume.Info() error = %v", err)
	}
	// The root and /empty.
	if info.UsedInodes != 2 {
		t.Errorf("UsedInodes = %v, want 2", info.UsedInodes)
	}
}

func TestFs_Rename(t *testing.T) {
	fsys := testingFs(t)

	if err := fsys.Rename("/dir/file.txt", "/moved.txt"); err != nil {
		t.Fatalf("Fs.Rename() error = %v", err)
	}
	if got, err := afero.ReadFile(fsys, "/moved.txt"); err != nil || string(got) != "Hello World" {
		t.Errorf("content = %q, %v", got, err)
	}
	if ok, _ := afero.Exists(fsys, "/dir/file.txt"); ok {
		t.Errorf("Fs.Rename() left the old name")
	}

	if err := fsys.Rename("/dir", "/dir/sub"); !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("Fs.Rename() into itself error = %v, wantErr %v", err, fs.ErrInvalid)
	}
}

func TestFs_Stat(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantName string
		wantSize int64
		wantDir  bool
		wantErr  error
	}{
		{name: "file", path: "/dir/file.txt", wantName: "file.txt", wantSize: 11},
		{name: "directory", path: "dir", wantName: "dir", wantSize: 2 * dirEntrySize, wantDir: true},
		{name: "root", path: "/", wantName: "/", wantSize: 3 * dirEntrySize, wantDir: true},
		{name: "missing", path: "/nothing", wantErr: fs.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := testingFs(t)
			got, err := fsys.Stat(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fs.Stat() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				return
			}
			if got.Name() != tt.wantName || got.Size() != tt.wantSize || got.IsDir() != tt.wantDir {
				t.Errorf("Fs.Stat() = %v %v %v, want %v %v %v", got.Name(), got.Size(), got.IsDir(), tt.wantName, tt.wantSize, tt.wantDir)
			}
		})
	}
}

func TestFs_Name(t *testing.T) {
	if got := (&Fs{}).Name(); got != "goifs" {
		t.Errorf("Fs.Name() = %v, want goifs", got)
	}
}

func TestFs_Chmod(t *testing.T) {
	fsys := testingFs(t)
	if err := fsys.Chmod("/readme.md", 0o600); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Fs.Chmod() error = %v, wantErr %v", err, ErrNotSupported)
	}
}

func TestFs_Chown(t *testing.T) {
	fsys := testingFs(t)
	if err := fsys.Chown("/readme.md", 1, 1); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Fs.Chown() error = %v, wantErr %v", err, ErrNotSupported)
	}
}

func TestFs_Chtimes(t *testing.T) {
	fsys := testingFs(t)
	mtime := time.Date(2020, time.December, 24, 18, 0, 0, 0, time.UTC)

	if err := fsys.Chtimes("/readme.md", time.Time{}, mtime); err != nil {
		t.Fatalf("Fs.Chtimes() error = %v", err)
	}
	info, err := fsys.Stat("/readme.md")
	if err != nil {
		t.Fatalf("Fs.Stat() error = %v", err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("ModTime() = %v, want %v", info.ModTime(), mtime)
	}

	if err := fsys.Chtimes("/nothing", time.Time{}, mtime); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Fs.Chtimes() error = %v, wantErr %v", err, fs.ErrNotExist)
	}
}
