// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fskeleton

import (
	"io/fs"
	"strings"
)

const maxSymlinkHops = 40

// Open opens the named file. It blocks until name (or the implicit
// directory containing it) has been created, or until the directory that
// would hold it is closed to new children by NoMore or NoMoreChildren,
// in which case it fails with fs.ErrNotExist.
func (fsys FS) Open(name string) (f fs.File, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}()
	n, err := fsys.lookup(name, true)
	if err != nil {
		return nil, err
	}
	return n.open()
}

// Stat returns a FileInfo describing the named file, following a
// trailing symlink.
func (fsys FS) Stat(name string) (info fs.FileInfo, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "stat", Path: name, Err: err}
		}
	}()
	return fsys.lookup(name, true)
}

// Lstat is like Stat but describes a trailing symlink itself rather
// than its target.
func (fsys FS) Lstat(name string) (info fs.FileInfo, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "lstat", Path: name, Err: err}
		}
	}()
	return fsys.lookup(name, false)
}

// ReadLink returns the destination of the named symbolic link.
func (fsys FS) ReadLink(name string) (target string, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "readlink", Path: name, Err: err}
		}
	}()
	n, err := fsys.lookup(name, false)
	if err != nil {
		return "", err
	}
	l, ok := n.(*linkent)
	if !ok {
		return "", fs.ErrInvalid
	}
	return l.target, nil
}

// lookup walks name component by component from the root, resolving
// symlinks encountered along the way (or at the end, if followLast).
func (fsys FS) lookup(name string, followLast bool) (node, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	if name == "." {
		return fsys.root, nil
	}

	comps := strings.Split(name, "/")
	at := fsys.root
	hops := 0
	for i := 0; i < len(comps); i++ {
		child, err := at.lookup(comps[i])
		if err != nil {
			return nil, err
		}

		last := i == len(comps)-1
		if l, ok := child.(*linkent); ok && (!last || followLast) {
			hops++
			if hops > maxSymlinkHops {
				return nil, fs.ErrInvalid
			}
			rest := strings.Split(l.target, "/")
			if !last {
				rest = append(rest, comps[i+1:]...)
			}
			comps, at, i = rest, fsys.root, -1
			continue
		}

		if last {
			return child, nil
		}
		dir, ok := child.(*dirent)
		if !ok {
			return nil, fs.ErrNotExist
		}
		at = dir
	}
	return at, nil
}
