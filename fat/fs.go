// Package fat implements FAT16 and FAT32 on top of a byte addressed device.
// It reads the boot sector and the allocation table on mount, directories
// are read on first access. All changes are written through immediately.
//
// A FileSystem is not safe for concurrent use.
package fat

import (
	"io"
	"strings"
	"time"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/golang/glog"
)

// Probe mounts FAT16 and FAT32 volumes.
type Probe struct {
	// Location is used for the timestamps of directory entries, which carry no zone. Default is time.Local.
	Location *time.Location
	// Now returns the current time. Default is time.Now.
	Now func() time.Time
}

// Probe implements fsys.Probe.
func (p Probe) Probe(dev fsys.Device) (fsys.FileSystem, error) {
	fs, err := Open(dev, p)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// FileSystem is a mounted FAT volume.
type FileSystem struct {
	dev   fsys.Device
	boot  *BootSector
	table *table
	root  *Directory

	loc   *time.Location
	clock func() time.Time
}

// Open mounts the FAT volume at offset 0 of dev.
// It returns an error matching fsys.ErrUnsupportedFileSystem if dev holds no FAT16 or FAT32 volume.
func Open(dev fsys.Device, p Probe) (*FileSystem, error) {
	sector := make([]byte, bootSectorSize)
	if _, err := dev.ReadAt(sector, 0); err != nil {
		if err == io.EOF {
			return nil, checkpoint.Wrapf(io.ErrUnexpectedEOF, fsys.ErrUnsupportedFileSystem, "device of %d bytes", dev.Size())
		}
		return nil, checkpoint.From(err)
	}

	boot, err := ParseBootSector(sector)
	if err != nil {
		return nil, checkpoint.Wrap(err, fsys.ErrUnsupportedFileSystem)
	}
	if boot.Type == fsys.TypeFAT12 {
		return nil, checkpoint.Wrapf(ErrInvalidBootSector, fsys.ErrUnsupportedFileSystem, "%v", boot.Type)
	}
	if size := int64(boot.TotalSectors) * int64(boot.BytesPerSector); size > dev.Size() {
		glog.Warningf("fat: volume of %d bytes is larger than the device of %d bytes", size, dev.Size())
	}

	fs := &FileSystem{
		dev:   dev,
		boot:  boot,
		loc:   p.Location,
		clock: p.Now,
	}
	if fs.loc == nil {
		fs.loc = time.Local
	}
	if fs.clock == nil {
		fs.clock = time.Now
	}

	var info *fsInfo
	if boot.Type == fsys.TypeFAT32 && boot.FSInfoSector != 0 {
		info, err = readFSInfo(dev, int64(boot.FSInfoSector)*int64(boot.BytesPerSector))
		if err != nil {
			return nil, err
		}
	}
	fs.table = newTable(dev, boot, info)

	fs.root = newDirectory(fs, nil, nil)
	if boot.Type == fsys.TypeFAT32 {
		chain, err := newClusterChain(fs.table, dev, boot.RootCluster)
		if err != nil {
			return nil, err
		}
		fs.root.store = chain
	} else {
		fs.root.store = &fixedRegion{
			dev:    dev,
			offset: boot.RootDirOffset(),
			size:   boot.RootDirSize(),
		}
	}
	if err := fs.root.load(); err != nil {
		return nil, err
	}

	glog.V(1).Infof("fat: mounted %v volume %q, %d clusters of %d bytes", boot.Type, fs.VolumeLabel(), boot.ClusterCount(), boot.BytesPerCluster())
	return fs, nil
}

func (fs *FileSystem) now() time.Time {
	return fs.clock().In(fs.loc)
}

// BootSector returns the parsed geometry of the volume.
func (fs *FileSystem) BootSector() BootSector {
	return *fs.boot
}

func (fs *FileSystem) Root() fsys.Node {
	return fs.root
}

// VolumeLabel prefers the label entry of the root directory over the boot sector.
func (fs *FileSystem) VolumeLabel() string {
	if l := fs.root.label; l != nil {
		return strings.TrimRight(string(l.Name[:]), " ")
	}
	return fs.boot.VolumeLabel
}

// Capacity is the size of the data area.
func (fs *FileSystem) Capacity() int64 {
	return int64(fs.boot.ClusterCount()) * fs.boot.BytesPerCluster()
}

func (fs *FileSystem) FreeSpace() int64 {
	free, err := fs.table.FreeClusters()
	if err != nil {
		glog.Warningf("fat: could not count free clusters: %v", err)
		return 0
	}
	return int64(free) * fs.boot.BytesPerCluster()
}

func (fs *FileSystem) OccupiedSpace() int64 {
	return fs.Capacity() - fs.FreeSpace()
}

func (fs *FileSystem) ChunkSize() int {
	return int(fs.boot.BytesPerCluster())
}

func (fs *FileSystem) Type() fsys.Type {
	return fs.boot.Type
}
