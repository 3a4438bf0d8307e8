package aferofs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/spf13/afero"
)

// These errors may occur while processing a file.
var (
	ErrReadFile  = errors.New("could not read file completely")
	ErrWriteFile = errors.New("could not write file completely")
	ErrSeekFile  = errors.New("could not seek inside of the file")
	ErrReadDir   = errors.New("could not read the directory")
)

// File is an open file or directory.
type File struct {
	node     fsys.Node
	name     string
	flag     int
	writable bool

	offset    int64
	dirOffset int
	closed    bool
}

var _ afero.File = (*File)(nil)

// Close flushes the metadata of files opened for writing.
func (f *File) Close() error {
	if f.closed {
		return &os.PathError{Op: "close", Path: f.name, Err: os.ErrClosed}
	}
	f.closed = true
	if f.writable {
		return f.node.Close()
	}
	return nil
}

func (f *File) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Reading a file if the size has been already reached, makes no sense.
	if f.node.Length() <= f.offset {
		return 0, io.EOF
	}

	n, err = f.node.ReadAt(p, f.offset)
	f.offset += int64(n)
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}
	return n, nil
}

func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	n, err = f.node.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}
	return n, err
}

// Seek jumps to a specific offset in the file. This affects all Read and Write operations except ReadAt and WriteAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// May return an afero.ErrOutOfRange error if the offset is out of range.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.node.Length() + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 || offset > f.node.Length() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	f.offset = offset
	return offset, nil
}

func (f *File) Write(p []byte) (n int, err error) {
	if f.flag&os.O_APPEND != 0 {
		f.offset = f.node.Length()
	}
	n, err = f.WriteAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *File) WriteAt(p []byte, off int64) (n int, err error) {
	if !f.writable {
		return 0, &os.PathError{Op: "write", Path: f.name, Err: syscall.EBADF}
	}
	n, err = f.node.WriteAt(p, off)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrWriteFile)
	}
	return n, nil
}

func (f *File) Name() string {
	return f.name
}

// Readdir reads the contents of a directory.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if !f.node.IsDirectory() {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	content, err := f.node.ListFiles()
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	if f.dirOffset > len(content) {
		f.dirOffset = len(content)
	}
	content = content[f.dirOffset:]
	if count > 0 {
		if len(content) == 0 {
			return nil, io.EOF
		}
		if count < len(content) {
			content = content[:count]
		}
	}
	f.dirOffset += len(content)

	result := make([]os.FileInfo, len(content))
	for i := range content {
		result[i] = FileInfo(content[i])
	}
	return result, nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}
	return names, nil
}

func (f *File) Stat() (os.FileInfo, error) {
	return FileInfo(f.node), nil
}

// Sync writes the metadata of the file.
func (f *File) Sync() error {
	return f.node.Flush()
}

func (f *File) Truncate(size int64) error {
	if !f.writable {
		return &os.PathError{Op: "truncate", Path: f.name, Err: syscall.EBADF}
	}
	return f.node.SetLength(size)
}

func (f *File) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}
