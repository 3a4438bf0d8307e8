package partition

import (
	"errors"
	"fmt"

	"github.com/aligator/aums/block"
	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/golang/glog"
)

// Partition is a byte addressed view of one partition together with its filesystem.
type Partition struct {
	Entry
	// Index is the slot in the partition table, 0 for a device without partition table.
	Index int
	// Raw is set when the device has no partition table and the partition spans the whole device.
	Raw bool

	dev *block.ByteDevice
	fs  fsys.FileSystem
	err error
}

// Device returns the byte view of the partition. It is nil if the partition lies outside the device.
func (p *Partition) Device() *block.ByteDevice {
	return p.dev
}

// FileSystem returns the mounted filesystem or nil, if none was mounted.
func (p *Partition) FileSystem() fsys.FileSystem {
	return p.fs
}

// Err tells why no filesystem is mounted, for example an error matching fsys.ErrUnsupportedFileSystem.
func (p *Partition) Err() error {
	return p.err
}

// Discover finds the partitions of dev and mounts them with the first matching probe.
//
// The whole device is probed first, as filesystems without partition table
// carry the same 0x55AA signature as a MBR. Afterwards the MBR is parsed.
// Partitions with unknown type or without matching probe are still returned,
// without filesystem.
func Discover(dev *block.ByteDevice, probes []fsys.Probe) ([]*Partition, error) {
	fs, err := fsys.Mount(dev, probes)
	if err == nil {
		sectors := dev.Size() / int64(dev.BlockSize())
		glog.V(1).Infof("partition: no partition table, found %v on the whole device", fs.Type())
		return []*Partition{{
			Entry: Entry{
				Type:     fs.Type(),
				RawType:  mbrTypeFor(fs.Type()),
				StartLBA: 0,
				Sectors:  uint32(sectors),
			},
			Raw: true,
			dev: dev,
			fs:  fs,
		}}, nil
	}
	if !errors.Is(err, fsys.ErrUnsupportedFileSystem) {
		return nil, err
	}

	size := dev.BlockSize()
	if size < MBRSize {
		size = MBRSize
	}
	sector := make([]byte, size)
	if _, err := dev.ReadAt(sector, 0); err != nil {
		return nil, checkpoint.From(err)
	}

	entries, ok, err := ParseMBR(sector)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, checkpoint.From(ErrNoPartitionTable)
	}

	var partitions []*Partition
	for _, e := range entries {
		i := e.Slot
		p := &Partition{Entry: e, Index: i}
		partitions = append(partitions, p)

		p.dev, p.err = dev.Window(int64(e.StartLBA), int64(e.Sectors))
		if p.err != nil {
			glog.Warningf("partition: %d lies outside the device: %v", i, p.err)
			continue
		}

		if e.Type == fsys.TypeUnknown {
			p.err = checkpoint.Wrapf(UnknownTypeError(e.RawType), fsys.ErrUnsupportedFileSystem, "partition %d", i)
			glog.V(1).Infof("partition: %d has unknown type %#02x", i, e.RawType)
			continue
		}

		p.fs, p.err = fsys.Mount(p.dev, probes)
		if p.err != nil {
			if !errors.Is(p.err, fsys.ErrUnsupportedFileSystem) {
				return nil, p.err
			}
			glog.V(1).Infof("partition: %d (%v) has no supported filesystem", i, e.Type)
			continue
		}
		glog.V(1).Infof("partition: %d mounted %v", i, p.fs.Type())
	}
	return partitions, nil
}

// UnknownTypeError describes a partition type byte which is not known.
type UnknownTypeError byte

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown partition type %#02x", byte(e))
}
