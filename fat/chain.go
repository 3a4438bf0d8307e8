package fat

import (
	"errors"
	"fmt"
	"io"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
)

// ErrOutOfChain is returned when writing behind the allocated clusters.
var ErrOutOfChain = errors.New("access beyond the allocated clusters")

// storage is the space backing a directory table or file content.
// Length is always a multiple of the allocation unit.
type storage interface {
	Length() int64
	SetLength(n int64) error
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	// start is the first cluster, 0 if there is none.
	start() uint32
}

// clusterChain is the storage of a file or a cluster based directory.
type clusterChain struct {
	table    *table
	dev      fsys.Device
	boot     *BootSector
	clusters []uint32
}

func newClusterChain(t *table, dev fsys.Device, start uint32) (*clusterChain, error) {
	clusters, err := t.Chain(start)
	if err != nil {
		return nil, err
	}
	return &clusterChain{
		table:    t,
		dev:      dev,
		boot:     t.boot,
		clusters: clusters,
	}, nil
}

func (c *clusterChain) start() uint32 {
	if len(c.clusters) == 0 {
		return clusterFree
	}
	return c.clusters[0]
}

func (c *clusterChain) Length() int64 {
	return int64(len(c.clusters)) * c.boot.BytesPerCluster()
}

// SetLength allocates or frees clusters so that n bytes fit.
func (c *clusterChain) SetLength(n int64) error {
	bpc := c.boot.BytesPerCluster()
	want := int((n + bpc - 1) / bpc)

	var err error
	switch {
	case want > len(c.clusters):
		c.clusters, err = c.table.Alloc(c.clusters, want-len(c.clusters))
	case want < len(c.clusters):
		c.clusters, err = c.table.Free(c.clusters, len(c.clusters)-want)
	}
	return err
}

// ReadAt reads from the chain. Reading past the end returns io.EOF.
func (c *clusterChain) ReadAt(p []byte, off int64) (int, error) {
	var eof error
	if rest := c.Length() - off; int64(len(p)) > rest {
		if rest <= 0 {
			return 0, io.EOF
		}
		p = p[:rest]
		eof = io.EOF
	}

	n, err := c.each(p, off, c.dev.ReadAt)
	if err != nil {
		return n, err
	}
	return n, eof
}

// WriteAt writes into the allocated clusters, it never allocates.
func (c *clusterChain) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > c.Length() {
		return 0, checkpoint.Wrapf(fmt.Errorf("%d bytes at %d of %d", len(p), off, c.Length()), ErrOutOfChain, "write")
	}
	return c.each(p, off, c.dev.WriteAt)
}

// each splits p into runs of consecutive clusters and calls fn once per run.
func (c *clusterChain) each(p []byte, off int64, fn func([]byte, int64) (int, error)) (int, error) {
	bpc := c.boot.BytesPerCluster()
	done := 0
	for done < len(p) {
		pos := off + int64(done)
		idx := int(pos / bpc)
		inner := pos % bpc

		run := 1
		for idx+run < len(c.clusters) && c.clusters[idx+run] == c.clusters[idx+run-1]+1 {
			run++
		}

		n := int64(run)*bpc - inner
		if rest := int64(len(p) - done); n > rest {
			n = rest
		}
		if _, err := fn(p[done:done+int(n)], c.boot.ClusterOffset(c.clusters[idx])+inner); err != nil {
			return done, checkpoint.From(err)
		}
		done += int(n)
	}
	return done, nil
}

// fixedRegion is the FAT12/16 root directory, which lies in front of the data area.
type fixedRegion struct {
	dev    fsys.Device
	offset int64
	size   int64
}

func (r *fixedRegion) start() uint32 {
	return clusterFree
}

func (r *fixedRegion) Length() int64 {
	return r.size
}

// SetLength fails with fsys.ErrNoSpace when n exceeds the region.
func (r *fixedRegion) SetLength(n int64) error {
	if n > r.size {
		return checkpoint.Wrapf(fmt.Errorf("%d bytes, root holds %d", n, r.size), fsys.ErrNoSpace, "root directory")
	}
	return nil
}

func (r *fixedRegion) ReadAt(p []byte, off int64) (int, error) {
	var eof error
	if rest := r.size - off; int64(len(p)) > rest {
		if rest <= 0 {
			return 0, io.EOF
		}
		p = p[:rest]
		eof = io.EOF
	}
	n, err := r.dev.ReadAt(p, r.offset+off)
	if err != nil {
		return n, checkpoint.From(err)
	}
	return n, eof
}

func (r *fixedRegion) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > r.size {
		return 0, checkpoint.Wrapf(fmt.Errorf("%d bytes at %d of %d", len(p), off, r.size), ErrOutOfChain, "write")
	}
	n, err := r.dev.WriteAt(p, r.offset+off)
	return n, checkpoint.From(err)
}
