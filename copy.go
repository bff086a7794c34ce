package goifs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aligator/goifs/checkpoint"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// target is where a copy, move or import ends up.
type target struct {
	dir  *Inode
	name string
	// replace is an existing file or directory which has to be deleted first.
	replace *Inode
}

// destination works out where something called name ends up if it is copied
// or moved to dst:
//  - dst is a directory: inside of it as name, replacing an entry called name
//  - dst is a file: replacing it
//  - dst does not exist: as a new entry in the directory containing dst
// srcID is the inode being copied or moved, or 0 if it does not live on the volume.
func (v *Volume) destination(name string, srcID uint64, dst string) (target, error) {
	existing, err := v.resolve(dst)
	if errors.Is(err, ErrNotFound) {
		dir, base, err := v.resolveParent(dst)
		if err != nil {
			return target{}, err
		}
		return target{dir: dir, name: base}, validName(base)
	}
	if err != nil {
		return target{}, err
	}
	if srcID != RootID && existing.ID == srcID {
		return target{}, fmt.Errorf("%w: %q is the source itself", ErrInvalidPath, dst)
	}

	if !existing.IsDir() {
		dir, err := v.readInode(existing.Parent)
		if err != nil {
			return target{}, err
		}
		base, err := v.nameOf(existing)
		if err != nil {
			return target{}, err
		}
		return target{dir: dir, name: base, replace: existing}, nil
	}

	t := target{dir: existing, name: name}
	i, entries, err := v.lookup(existing, name)
	if err != nil {
		return target{}, err
	}
	if i >= 0 {
		if entries[i].InodeID == srcID {
			return target{}, fmt.Errorf("%w: %q already contains the source", ErrInvalidPath, dst)
		}
		if t.replace, err = v.readInode(entries[i].InodeID); err != nil {
			return target{}, err
		}
	}
	return t, nil
}

// prepare checks that src may be placed at t and deletes what t replaces.
// It returns a fresh copy of the target directory.
func (v *Volume) prepare(src *Inode, t target) (*Inode, error) {
	if src != nil && src.IsDir() {
		below, err := v.isAncestor(src.ID, t.dir.ID)
		if err != nil {
			return nil, err
		}
		if below {
			return nil, fmt.Errorf("%w: a directory cannot be placed inside of itself", ErrInvalidPath)
		}
	}

	if t.replace != nil {
		if src != nil {
			above, err := v.isAncestor(t.replace.ID, src.ID)
			if err != nil {
				return nil, err
			}
			if above {
				return nil, fmt.Errorf("%w: the source is inside of %q", ErrInvalidPath, t.name)
			}
		}
		if err := v.delete(t.replace); err != nil {
			return nil, err
		}
	}

	// delete changed the directory through another copy of its inode.
	return v.readInode(t.dir.ID)
}

// Copy copies the file or directory src to dst.
func (v *Volume) Copy(src, dst string) error {
	if err := v.ready(); err != nil {
		return err
	}
	log := v.opLog("cp", src).WithField("destination", dst)

	srcInode, err := v.resolve(src)
	if err != nil {
		return err
	}
	name, err := v.nameOf(srcInode)
	if err != nil {
		return err
	}
	if srcInode.ID == RootID {
		return fmt.Errorf("%w: the root directory cannot be copied", ErrInvalidPath)
	}

	t, err := v.destination(name, srcInode.ID, dst)
	if err != nil {
		return err
	}

	copied, err := v.copyTo(srcInode, t)
	if copied != nil {
		log = log.WithField("inode", copied.ID)
	}
	return v.finish(log, err)
}

func (v *Volume) copyTo(src *Inode, t target) (*Inode, error) {
	dir, err := v.prepare(src, t)
	if err != nil {
		return nil, err
	}

	if src.IsDir() {
		return v.copyDir(src, dir, t.name)
	}
	return v.copyFile(src, dir, t.name)
}

// copyFile creates name in dir with the same capacity as src and streams the
// content through two descriptors.
func (v *Volume) copyFile(src, dir *Inode, name string) (*Inode, error) {
	dst, err := v.create(dir, name, TypeFile, uint64(src.BlocksReserved)*v.blockSize)
	if err != nil {
		return nil, err
	}

	in, err := v.openInode(src)
	if err != nil {
		return dst, err
	}
	defer v.Close(in)

	out, err := v.openInode(dst)
	if err != nil {
		return dst, err
	}

	buf := make([]byte, v.blockSize)
	for {
		n, err := v.Read(in, buf)
		if n > 0 {
			if _, werr := v.Write(out, buf[:n]); werr != nil {
				v.Close(out)
				return dst, werr
			}
		}
		if err == io.EOF || (err == nil && n < len(buf)) {
			break
		}
		if err != nil {
			v.Close(out)
			return dst, err
		}
	}

	return dst, v.Close(out)
}

type copyJob struct {
	src *Inode
	dst *Inode
}

// copyDir copies the tree src as name into dir.
func (v *Volume) copyDir(src, dir *Inode, name string) (*Inode, error) {
	top, err := v.create(dir, name, TypeDirectory, src.Size)
	if err != nil {
		return nil, err
	}

	stack := []copyJob{{src: src, dst: top}}
	for len(stack) > 0 {
		job := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := v.readDir(job.src)
		if err != nil {
			return top, err
		}
		for i := range entries {
			child, err := v.readInode(entries[i].InodeID)
			if err != nil {
				return top, err
			}

			if child.IsDir() {
				sub, err := v.create(job.dst, entries[i].name(), TypeDirectory, child.Size)
				if err != nil {
					return top, err
				}
				stack = append(stack, copyJob{src: child, dst: sub})
				continue
			}

			if _, err := v.copyFile(child, job.dst, entries[i].name()); err != nil {
				return top, err
			}
		}
	}
	return top, nil
}

// Move moves the file or directory src to dst. The inode keeps its id and no
// data is copied.
func (v *Volume) Move(src, dst string) error {
	if err := v.ready(); err != nil {
		return err
	}

	srcInode, err := v.resolve(src)
	if err != nil {
		return err
	}
	if srcInode.ID == RootID {
		return fmt.Errorf("%w: the root directory cannot be moved", ErrInvalidPath)
	}
	log := v.opLog("mv", src).WithFields(logrus.Fields{"destination": dst, "inode": srcInode.ID})

	name, err := v.nameOf(srcInode)
	if err != nil {
		return err
	}
	t, err := v.destination(name, srcInode.ID, dst)
	if err != nil {
		return err
	}

	return v.finish(log, v.moveTo(srcInode, name, t))
}

func (v *Volume) moveTo(src *Inode, oldName string, t target) error {
	if _, err := v.prepare(src, t); err != nil {
		return err
	}

	oldParent, err := v.readInode(src.Parent)
	if err != nil {
		return err
	}
	if err := v.unlink(oldParent, src.ID); err != nil {
		return err
	}

	dir, err := v.readInode(t.dir.ID)
	if err != nil {
		return err
	}
	if err := v.addEntry(dir, t.name, src.ID); err != nil {
		v.relink(src, oldName)
		return err
	}

	src.Parent = dir.ID
	src.Modified = v.now().Unix()
	if err := v.writeInode(src); err != nil {
		return err
	}
	v.reparentDescriptors(src.ID, dir.ID)

	// The working directory may have been moved along.
	if wd, err := v.pathOf(v.wd.id); err == nil {
		v.wd.path = wd
	}
	return nil
}

// relink puts src back into its old parent after a failed move.
func (v *Volume) relink(src *Inode, name string) {
	parent, err := v.readInode(src.Parent)
	if err == nil {
		err = v.addEntry(parent, name, src.ID)
	}
	if err != nil {
		v.log.WithError(err).WithField("inode", src.ID).Warn("could not restore entry after a failed move")
	}
}

// Import copies the host file hostPath from host to dst.
func (v *Volume) Import(host afero.Fs, hostPath, dst string) error {
	if err := v.ready(); err != nil {
		return err
	}
	log := v.opLog("cpin", dst).WithField("host", hostPath)

	in, err := host.Open(hostPath)
	if err != nil {
		return checkpoint.From(err)
	}
	defer in.Close()

	stat, err := in.Stat()
	if err != nil {
		return checkpoint.From(err)
	}
	if stat.IsDir() {
		return &os.PathError{Op: "cpin", Path: hostPath, Err: ErrIsDirectory}
	}

	t, err := v.destination(path.Base(hostPath), RootID, dst)
	if err != nil {
		return err
	}
	dir, err := v.prepare(nil, t)
	if err != nil {
		return v.finish(log, err)
	}

	inode, err := v.create(dir, t.name, TypeFile, uint64(stat.Size()))
	if err != nil {
		return v.finish(log, err)
	}

	fd, err := v.openInode(inode)
	if err != nil {
		return v.finish(log, err)
	}

	buf := make([]byte, v.blockSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, err := v.Write(fd, buf[:n]); err != nil {
				v.Close(fd)
				return v.finish(log, err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			v.Close(fd)
			return v.finish(log, checkpoint.From(rerr))
		}
	}

	return v.finish(log.WithField("inode", inode.ID), v.Close(fd))
}

// Export copies the file src to hostPath on host. If hostPath is a host
// directory the file is written into it under its own name.
func (v *Volume) Export(src string, host afero.Fs, hostPath string) error {
	if err := v.ready(); err != nil {
		return err
	}
	log := v.opLog("cpout", src).WithField("host", hostPath)

	inode, err := v.resolve(src)
	if err != nil {
		return err
	}
	if inode.IsDir() {
		return fmt.Errorf("%w: %q", ErrIsDirectory, src)
	}

	if isDir, err := afero.IsDir(host, hostPath); err == nil && isDir {
		name, err := v.nameOf(inode)
		if err != nil {
			return err
		}
		hostPath = path.Join(hostPath, name)
	}

	out, err := host.Create(hostPath)
	if err != nil {
		return checkpoint.From(err)
	}

	fd, err := v.openInode(inode)
	if err != nil {
		out.Close()
		return err
	}
	defer v.Close(fd)

	buf := make([]byte, v.blockSize)
	for {
		n, rerr := v.Read(fd, buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				return checkpoint.From(err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return rerr
		}
	}

	if err := out.Close(); err != nil {
		return checkpoint.From(err)
	}
	log.WithField("inode", inode.ID).Debug("operation done")
	return nil
}
