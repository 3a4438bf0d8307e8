// Package aferofs exposes a mounted filesystem as afero.Fs and, through GoFs, as io/fs.FS.
package aferofs

import (
	"errors"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/spf13/afero"
)

// Fs implements afero.Fs on top of a fsys.FileSystem.
// Paths are slash separated, relative paths start at the root.
type Fs struct {
	fs fsys.FileSystem
}

// New wraps fs.
func New(fs fsys.FileSystem) *Fs {
	return &Fs{fs: fs}
}

var _ afero.Fs = (*Fs)(nil)

func clean(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// lookup returns the node at name or an error matching os.ErrNotExist.
func (f *Fs) lookup(op, name string) (fsys.Node, error) {
	n, err := f.fs.Root().Search(clean(name))
	if err != nil {
		return nil, &os.PathError{Op: op, Path: name, Err: err}
	}
	if n == nil {
		return nil, &os.PathError{Op: op, Path: name, Err: os.ErrNotExist}
	}
	return n, nil
}

// parent returns the directory which contains name together with the base name.
func (f *Fs) parent(op, name string) (fsys.Node, string, error) {
	p := clean(name)
	if p == "" {
		return nil, "", &os.PathError{Op: op, Path: name, Err: os.ErrExist}
	}
	dir, base := path.Split(p)
	d, err := f.lookup(op, dir)
	if err != nil {
		return nil, "", err
	}
	if !d.IsDirectory() {
		return nil, "", &os.PathError{Op: op, Path: name, Err: syscall.ENOTDIR}
	}
	return d, base, nil
}

func pathError(op, name string, err error) error {
	switch {
	case errors.Is(err, fsys.ErrNameCollision):
		err = checkpoint.Wrap(err, os.ErrExist)
	case errors.Is(err, fsys.ErrInvalidName), errors.Is(err, fsys.ErrInvalidOperation):
		err = checkpoint.Wrap(err, os.ErrInvalid)
	case errors.Is(err, fsys.ErrNoSpace):
		err = checkpoint.Wrap(err, syscall.ENOSPC)
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

func (f *Fs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (f *Fs) Mkdir(name string, perm os.FileMode) error {
	d, base, err := f.parent("mkdir", name)
	if err != nil {
		return err
	}
	if _, err := d.CreateDirectory(base); err != nil {
		return pathError("mkdir", name, err)
	}
	return nil
}

func (f *Fs) MkdirAll(p string, perm os.FileMode) error {
	current := f.fs.Root()
	for _, segment := range strings.Split(clean(p), "/") {
		if segment == "" {
			continue
		}
		next, err := current.Search(segment)
		if err != nil {
			return pathError("mkdir", p, err)
		}
		if next == nil {
			next, err = current.CreateDirectory(segment)
			if err != nil {
				return pathError("mkdir", p, err)
			}
		}
		if !next.IsDirectory() {
			return &os.PathError{Op: "mkdir", Path: p, Err: syscall.ENOTDIR}
		}
		current = next
	}
	return nil
}

func (f *Fs) Open(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile supports O_CREATE, O_EXCL, O_TRUNC and O_APPEND. perm is ignored.
func (f *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	n, err := f.lookup("open", name)
	switch {
	case err != nil && errors.Is(err, os.ErrNotExist) && flag&os.O_CREATE != 0:
		d, base, err := f.parent("open", name)
		if err != nil {
			return nil, err
		}
		n, err = d.CreateFile(base)
		if err != nil {
			return nil, pathError("open", name, err)
		}
	case err != nil:
		return nil, err
	case flag&(os.O_CREATE|os.O_EXCL) == os.O_CREATE|os.O_EXCL:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrExist}
	}

	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	if n.IsDirectory() && writable {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EISDIR}
	}
	if writable && flag&os.O_TRUNC != 0 {
		if err := n.SetLength(0); err != nil {
			return nil, pathError("open", name, err)
		}
	}

	return &File{
		node:     n,
		name:     name,
		flag:     flag,
		writable: writable,
	}, nil
}

// Remove deletes a file or an empty directory.
func (f *Fs) Remove(name string) error {
	n, err := f.lookup("remove", name)
	if err != nil {
		return err
	}
	if n.IsRoot() {
		return &os.PathError{Op: "remove", Path: name, Err: syscall.EPERM}
	}
	if n.IsDirectory() {
		children, err := n.List()
		if err != nil {
			return pathError("remove", name, err)
		}
		if len(children) > 0 {
			return &os.PathError{Op: "remove", Path: name, Err: syscall.ENOTEMPTY}
		}
	}
	if err := n.Delete(); err != nil {
		return pathError("remove", name, err)
	}
	return nil
}

// RemoveAll deletes name with all children. A missing path is no error.
func (f *Fs) RemoveAll(p string) error {
	n, err := f.lookup("remove", p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if n.IsRoot() {
		children, err := n.ListFiles()
		if err != nil {
			return pathError("remove", p, err)
		}
		for _, c := range children {
			if err := c.Delete(); err != nil {
				return pathError("remove", p, err)
			}
		}
		return nil
	}
	if err := n.Delete(); err != nil {
		return pathError("remove", p, err)
	}
	return nil
}

// Rename moves oldname to newname. An existing file at newname is replaced.
func (f *Fs) Rename(oldname, newname string) error {
	n, err := f.lookup("rename", oldname)
	if err != nil {
		return err
	}
	if n.IsRoot() {
		return &os.PathError{Op: "rename", Path: oldname, Err: syscall.EPERM}
	}
	d, base, err := f.parent("rename", newname)
	if err != nil {
		return err
	}

	existing, err := d.Search(base)
	if err != nil {
		return pathError("rename", newname, err)
	}
	if existing != nil && existing != n {
		if existing.IsDirectory() || n.IsDirectory() {
			return &os.PathError{Op: "rename", Path: newname, Err: os.ErrExist}
		}
		if err := existing.Delete(); err != nil {
			return pathError("rename", newname, err)
		}
	}

	if err := n.Move(d, base); err != nil {
		return pathError("rename", oldname, err)
	}
	return nil
}

func (f *Fs) Stat(name string) (os.FileInfo, error) {
	n, err := f.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return FileInfo(n), nil
}

// Name is the filesystem type, for example "FAT32".
func (f *Fs) Name() string {
	return f.fs.Type().String()
}

// Chmod is not supported, FAT has no permissions.
func (f *Fs) Chmod(name string, mode os.FileMode) error {
	return &os.PathError{Op: "chmod", Path: name, Err: syscall.EPERM}
}

// Chown is not supported, FAT has no owners.
func (f *Fs) Chown(name string, uid, gid int) error {
	return &os.PathError{Op: "chown", Path: name, Err: syscall.EPERM}
}

// Chtimes is not supported.
func (f *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return &os.PathError{Op: "chtimes", Path: name, Err: syscall.EPERM}
}
