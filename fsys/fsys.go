// Package fsys defines what a mounted filesystem offers independent of its on-disk format.
package fsys

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// These errors are shared by all filesystem implementations.
var (
	ErrUnsupportedFileSystem = errors.New("unsupported filesystem")
	// ErrNoSpace is returned when no free clusters are left. The filesystem stays consistent.
	ErrNoSpace          = errors.New("no space left on device")
	ErrNameCollision    = errors.New("name already exists")
	ErrInvalidName      = errors.New("invalid file name")
	ErrInvalidOperation = errors.New("invalid operation")
)

// InvalidOperationError is returned when an operation is used on the wrong kind of node,
// for example reading a directory.
type InvalidOperationError struct {
	Op   string
	Name string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, ErrInvalidOperation)
}

func (e *InvalidOperationError) Is(target error) bool {
	return target == ErrInvalidOperation
}

// Type is the normalized filesystem or partition type.
type Type int

const (
	TypeUnknown Type = iota
	TypeFAT12
	TypeFAT16
	TypeFAT32
	TypeNTFSExFAT
	TypeLinuxExt
	TypeHFSPlus
)

func (t Type) String() string {
	switch t {
	case TypeFAT12:
		return "FAT12"
	case TypeFAT16:
		return "FAT16"
	case TypeFAT32:
		return "FAT32"
	case TypeNTFSExFAT:
		return "NTFS/exFAT"
	case TypeLinuxExt:
		return "Linux ext"
	case TypeHFSPlus:
		return "HFS+"
	default:
		return "unknown"
	}
}

// Attributes of a node.
type Attributes struct {
	ReadOnly bool
	Hidden   bool
	System   bool
	Archive  bool
}

// Node is a file or a directory.
// Every node implements the whole interface. Operations which make no sense
// for the kind of node return an *InvalidOperationError.
type Node interface {
	// Name is the long name of the node, "/" for the root.
	Name() string
	IsDirectory() bool
	IsRoot() bool
	// Parent returns nil for the root.
	Parent() Node
	AbsolutePath() string
	Attributes() Attributes

	CreatedAt() time.Time
	LastModified() time.Time
	LastAccessed() time.Time

	// List returns the names of all children of a directory.
	List() ([]string, error)
	// ListFiles returns all children of a directory.
	ListFiles() ([]Node, error)
	CreateFile(name string) (Node, error)
	CreateDirectory(name string) (Node, error)
	// Search resolves a slash separated path relative to a directory.
	// Each segment must match exactly. A missing node returns nil without an error.
	Search(path string) (Node, error)

	// Length is the size of a file in bytes.
	Length() int64
	// SetLength grows or truncates a file.
	SetLength(n int64) error
	io.ReaderAt
	io.WriterAt
	// Flush writes the metadata of a file to its directory.
	Flush() error
	// Close flushes a file.
	Close() error

	// MoveTo moves the node into the directory dest of the same filesystem.
	MoveTo(dest Node) error
	// Move moves the node into dest and renames it in one step.
	// The name is checked in dest before anything changes.
	Move(dest Node, name string) error
	// Delete removes the node, directories recursively.
	Delete() error
	Rename(name string) error
}

// FileSystem is a mounted filesystem.
type FileSystem interface {
	Root() Node
	VolumeLabel() string
	// Capacity is the usable size of the data area in bytes.
	Capacity() int64
	OccupiedSpace() int64
	FreeSpace() int64
	// ChunkSize is the allocation unit in bytes.
	ChunkSize() int
	Type() Type
}

// Device is the byte addressed storage a filesystem lives on.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
	BlockSize() int
}

// Probe tries to mount a filesystem of one kind.
// It returns an error matching ErrUnsupportedFileSystem if the device holds another kind of filesystem.
type Probe interface {
	Probe(dev Device) (FileSystem, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(dev Device) (FileSystem, error)

func (f ProbeFunc) Probe(dev Device) (FileSystem, error) {
	return f(dev)
}

// Mount runs the probes in order and returns the first filesystem recognized.
// Errors other than ErrUnsupportedFileSystem abort the search.
func Mount(dev Device, probes []Probe) (FileSystem, error) {
	for _, p := range probes {
		fs, err := p.Probe(dev)
		if err == nil {
			return fs, nil
		}
		if !errors.Is(err, ErrUnsupportedFileSystem) {
			return nil, err
		}
	}
	return nil, ErrUnsupportedFileSystem
}
