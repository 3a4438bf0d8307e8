package aferofs

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"syscall"

	"github.com/aligator/aums/fsys"
)

// GoDirEntry is a fs.DirEntry of a node.
type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

// GoFile is an open file which also implements fs.ReadDirFile.
type GoFile struct {
	*File
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	infos, err := g.File.Readdir(n)

	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = GoDirEntry{info}
	}
	return entries, err
}

// GoFs exposes a mounted filesystem as fs.FS.
// Names follow the io/fs rules, so they are unrooted and "." is the root.
type GoFs struct {
	fs *Fs
}

var (
	_ fs.ReadDirFS = (*GoFs)(nil)
	_ fs.StatFS    = (*GoFs)(nil)
)

// NewGoFS wraps filesystem.
func NewGoFS(filesystem fsys.FileSystem) *GoFs {
	return &GoFs{fs: New(filesystem)}
}

func (g *GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	file, err := g.fs.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}

	f, ok := file.(*File)
	if !ok {
		return nil, errors.New("invalid File implementation")
	}
	return GoFile{f}, nil
}

// ReadDir returns the entries of the directory name sorted by name.
func (g *GoFs) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	n, err := g.fs.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	if !n.IsDirectory() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: syscall.ENOTDIR}
	}

	children, err := n.ListFiles()
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	entries := make([]fs.DirEntry, len(children))
	for i, c := range children {
		entries[i] = GoDirEntry{FileInfo(c)}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries, nil
}

func (g *GoFs) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	return g.fs.Stat(name)
}
