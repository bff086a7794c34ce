package goifs

import (
	"fmt"
	"strings"
)

const (
	// MaxDepth is the maximum number of components of a path.
	MaxDepth = 256
	// MaxPath is the maximum length of a path in bytes.
	MaxPath = 4096

	separator = "/"
)

// splitPath splits p into its non empty components.
func splitPath(p string) (components []string, absolute bool, err error) {
	if len(p) > MaxPath {
		return nil, false, fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(p))
	}

	absolute = strings.HasPrefix(p, separator)
	for _, c := range strings.Split(p, separator) {
		if c != "" {
			components = append(components, c)
		}
	}

	if len(components) > MaxDepth {
		return nil, false, fmt.Errorf("%w: %d components", ErrPathTooLong, len(components))
	}
	return components, absolute, nil
}

func (v *Volume) startOf(absolute bool) (*Inode, error) {
	if absolute {
		return v.readInode(RootID)
	}
	return v.readInode(v.wd.id)
}

// walk follows components starting at dir.
func (v *Volume) walk(dir *Inode, components []string) (*Inode, error) {
	current := dir
	for _, c := range components {
		if !current.IsDir() {
			return nil, fmt.Errorf("%w: %q", ErrNotDirectory, c)
		}

		switch c {
		case ".":
			continue
		case "..":
			parent, err := v.readInode(current.Parent)
			if err != nil {
				return nil, err
			}
			current = parent
			continue
		}

		i, entries, err := v.lookup(current, c)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, c)
		}

		next, err := v.readInode(entries[i].InodeID)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// resolve returns the inode p points to. The empty path is the working directory.
func (v *Volume) resolve(p string) (*Inode, error) {
	components, absolute, err := splitPath(p)
	if err != nil {
		return nil, err
	}

	start, err := v.startOf(absolute)
	if err != nil {
		return nil, err
	}
	return v.walk(start, components)
}

// resolveParent resolves everything but the last component of p, which is
// returned as name. The returned inode is always a directory.
func (v *Volume) resolveParent(p string) (*Inode, string, error) {
	components, absolute, err := splitPath(p)
	if err != nil {
		return nil, "", err
	}
	if len(components) == 0 {
		return nil, "", fmt.Errorf("%w: %q has no name", ErrInvalidPath, p)
	}

	start, err := v.startOf(absolute)
	if err != nil {
		return nil, "", err
	}

	last := len(components) - 1
	dir, err := v.walk(start, components[:last])
	if err != nil {
		return nil, "", err
	}
	if !dir.IsDir() {
		return nil, "", fmt.Errorf("%w: container of %q", ErrNotDirectory, p)
	}
	return dir, components[last], nil
}

// pathOf builds the absolute path of the inode id by following the parent
// pointers up to the root.
func (v *Volume) pathOf(id uint64) (string, error) {
	var names []string
	for depth := uint64(0); id != RootID; depth++ {
		if depth > v.sb.InodeCount {
			return "", fmt.Errorf("%w: inode %d has a parent cycle", ErrCorrupt, id)
		}

		inode, err := v.readInode(id)
		if err != nil {
			return "", err
		}
		parent, err := v.readInode(inode.Parent)
		if err != nil {
			return "", err
		}
		entries, err := v.readDir(parent)
		if err != nil {
			return "", err
		}

		found := false
		for i := range entries {
			if entries[i].InodeID == id {
				names = append(names, entries[i].name())
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("%w: inode %d is not linked in its parent %d", ErrCorrupt, id, inode.Parent)
		}
		id = inode.Parent
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return separator + strings.Join(names, separator), nil
}

// isAncestor reports whether the directory ancestor is id or one of its parents.
func (v *Volume) isAncestor(ancestor, id uint64) (bool, error) {
	for depth := uint64(0); ; depth++ {
		if id == ancestor {
			return true, nil
		}
		if id == RootID {
			return false, nil
		}
		if depth > v.sb.InodeCount {
			return false, fmt.Errorf("%w: inode %d has a parent cycle", ErrCorrupt, id)
		}

		inode, err := v.readInode(id)
		if err != nil {
			return false, err
		}
		id = inode.Parent
	}
}
