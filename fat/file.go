package fat

import (
	"fmt"
	"io"
	"math"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/golang/glog"
)

// File is a regular file. Its cluster chain is read on first access.
// Changes to the size and the timestamps are written to the parent directory by Flush.
type File struct {
	node

	chain *clusterChain
}

func (f *File) IsDirectory() bool {
	return false
}

func (f *File) loadChain() error {
	if f.chain != nil {
		return nil
	}
	chain, err := newClusterChain(f.fs.table, f.fs.dev, f.entry.header.firstCluster())
	if err != nil {
		return err
	}
	f.chain = chain
	return nil
}

// Length is the size of the file in bytes.
func (f *File) Length() int64 {
	return int64(f.entry.header.FileSize)
}

// resize changes the clusters and the size. When growing, the range from the old end up to zeroTo is cleared.
func (f *File) resize(n, zeroTo int64) error {
	switch {
	case n < 0:
		return checkpoint.Wrapf(fmt.Errorf("length %d", n), fsys.ErrInvalidOperation, "set length %s", f.AbsolutePath())
	case n > math.MaxUint32:
		return checkpoint.Wrapf(fmt.Errorf("length %d", n), fsys.ErrNoSpace, "set length %s", f.AbsolutePath())
	}
	if err := f.loadChain(); err != nil {
		return err
	}

	from := f.Length()
	if zeroTo > n {
		zeroTo = n
	}
	if err := f.chain.SetLength(n); err != nil {
		return err
	}
	f.entry.header.setFirstCluster(f.chain.start())

	if from < zeroTo {
		zero := make([]byte, f.fs.boot.BytesPerCluster())
		for off := from; off < zeroTo; {
			chunk := zero
			if rest := zeroTo - off; rest < int64(len(chunk)) {
				chunk = chunk[:rest]
			}
			if _, err := f.chain.WriteAt(chunk, off); err != nil {
				return err
			}
			off += int64(len(chunk))
		}
	}

	f.entry.header.FileSize = uint32(n)
	f.entry.header.modified(f.fs.now())
	return nil
}

// SetLength truncates or grows the file. New bytes read as zero.
func (f *File) SetLength(n int64) error {
	return f.resize(n, n)
}

// ReadAt reads from the file. Reading past the end returns io.EOF.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, checkpoint.Wrapf(fmt.Errorf("offset %d", off), fsys.ErrInvalidOperation, "read %s", f.AbsolutePath())
	}
	size := f.Length()
	if off >= size {
		return 0, io.EOF
	}

	var eof error
	if rest := size - off; int64(len(p)) > rest {
		p = p[:rest]
		eof = io.EOF
	}

	if err := f.loadChain(); err != nil {
		return 0, err
	}
	n, err := f.chain.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, err
	}

	date, _, _ := EncodeTimestamp(f.fs.now())
	f.entry.header.LastAccessDate = date
	return n, eof
}

// WriteAt writes p at off and grows the file if needed.
// A gap between the old end and off reads as zero.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, checkpoint.Wrapf(fmt.Errorf("offset %d", off), fsys.ErrInvalidOperation, "write %s", f.AbsolutePath())
	}
	if err := f.loadChain(); err != nil {
		return 0, err
	}

	if end := off + int64(len(p)); end > f.Length() {
		if err := f.resize(end, off); err != nil {
			return 0, err
		}
	}

	n, err := f.chain.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	f.entry.header.modified(f.fs.now())
	return n, nil
}

// Flush writes the entry of the file to its directory.
func (f *File) Flush() error {
	glog.V(2).Infof("fat: flush %s (%d bytes)", f.AbsolutePath(), f.Length())
	return f.parent.write()
}

// Close flushes the file.
func (f *File) Close() error {
	return f.Flush()
}

// Delete removes the entry and frees the clusters.
func (f *File) Delete() error {
	p := f.parent
	if err := p.load(); err != nil {
		return err
	}
	if err := f.loadChain(); err != nil {
		return err
	}

	p.remove(f.entry)
	delete(p.children, f.entry)
	if err := p.write(); err != nil {
		return err
	}

	glog.V(1).Infof("fat: deleted file %s", f.AbsolutePath())
	return f.chain.SetLength(0)
}

func (f *File) List() ([]string, error) {
	return nil, f.invalid("list")
}

func (f *File) ListFiles() ([]fsys.Node, error) {
	return nil, f.invalid("list")
}

func (f *File) CreateFile(string) (fsys.Node, error) {
	return nil, f.invalid("create file")
}

func (f *File) CreateDirectory(string) (fsys.Node, error) {
	return nil, f.invalid("create directory")
}

func (f *File) Search(string) (fsys.Node, error) {
	return nil, f.invalid("search")
}
