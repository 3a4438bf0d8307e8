package fat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
)

const bootSectorSize = 512

// Cluster count limits defined by Microsoft.
const (
	maxFAT12Clusters = 4084
	maxFAT16Clusters = 65524
	maxFAT32Clusters = 0x0FFFFFF4
)

// ErrInvalidBootSector is returned if the first sector does not describe a FAT volume.
var ErrInvalidBootSector = errors.New("invalid FAT boot sector")

// BootSector holds the volume geometry. It is read once at mount.
type BootSector struct {
	Type              fsys.Type
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8
	// RootEntryCount is the number of entries of the fixed FAT16 root directory.
	RootEntryCount uint16
	TotalSectors   uint32
	SectorsPerFAT  uint32
	// RootCluster is the first cluster of the FAT32 root directory.
	RootCluster uint32
	// FSInfoSector is the sector of the FAT32 FSInfo structure, 0 if there is none.
	FSInfoSector uint16
	// Mirrored means all FAT copies are kept in sync.
	Mirrored bool
	// ActiveFAT is the only valid FAT if the FATs are not mirrored.
	ActiveFAT   uint8
	VolumeLabel string
	VolumeID    uint32
}

func invalid(format string, args ...interface{}) error {
	return checkpoint.Wrap(fmt.Errorf(format, args...), ErrInvalidBootSector)
}

// ParseBootSector decodes and validates the boot sector of a FAT volume.
// The type is FAT32 if the FAT16 FAT size field is 0, otherwise the
// cluster count decides between FAT12 and FAT16.
func ParseBootSector(b []byte) (*BootSector, error) {
	if len(b) < bootSectorSize {
		return nil, invalid("sector of %d bytes", len(b))
	}

	bpb := BPB{}
	if err := decode(b, &bpb); err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidBootSector)
	}

	// Check for valid jump instructions.
	if !(bpb.BSJumpBoot[0] == 0xEB && bpb.BSJumpBoot[2] == 0x90) && bpb.BSJumpBoot[0] != 0xE9 {
		return nil, invalid("no valid jump instruction")
	}
	if b[510] != 0x55 || b[511] != 0xAA {
		return nil, invalid("missing boot signature")
	}

	switch bpb.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, invalid("bytes per sector %d", bpb.BytesPerSector)
	}

	spc := bpb.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 {
		return nil, invalid("sectors per cluster %d", spc)
	}
	if int(bpb.BytesPerSector)*int(spc) > 64*1024 {
		return nil, invalid("cluster size %d", int(bpb.BytesPerSector)*int(spc))
	}
	if bpb.ReservedSectorCount == 0 {
		return nil, invalid("no reserved sectors")
	}
	if bpb.NumFATs == 0 {
		return nil, invalid("no FAT")
	}
	if bpb.Media != 0xF0 && bpb.Media < 0xF8 {
		return nil, invalid("media %#02x", bpb.Media)
	}

	bs := &BootSector{
		BytesPerSector:    bpb.BytesPerSector,
		SectorsPerCluster: spc,
		ReservedSectors:   bpb.ReservedSectorCount,
		FATCount:          bpb.NumFATs,
		RootEntryCount:    bpb.RootEntryCount,
		TotalSectors:      uint32(bpb.TotalSectors16),
		Mirrored:          true,
	}
	if bs.TotalSectors == 0 {
		bs.TotalSectors = bpb.TotalSectors32
	}

	var label [11]byte
	if bpb.FATSize16 == 0 {
		ext := FAT32SpecificData{}
		if err := decode(bpb.FATSpecificData[:], &ext); err != nil {
			return nil, checkpoint.Wrap(err, ErrInvalidBootSector)
		}
		if bpb.RootEntryCount != 0 || ext.FATSize == 0 {
			return nil, invalid("inconsistent FAT32 layout")
		}
		if ext.RootCluster < 2 {
			return nil, invalid("root cluster %d", ext.RootCluster)
		}
		bs.Type = fsys.TypeFAT32
		bs.SectorsPerFAT = ext.FATSize
		bs.RootCluster = ext.RootCluster
		bs.FSInfoSector = ext.FSInfo
		if ext.FSInfo == 0xFFFF {
			bs.FSInfoSector = 0
		}
		bs.Mirrored = ext.ExtFlags&0x80 == 0
		bs.ActiveFAT = uint8(ext.ExtFlags & 0x07)
		bs.VolumeID = ext.BSVolumeID
		if ext.BSBootSignature == 0x29 {
			label = ext.BSVolumeLabel
		}
	} else {
		ext := FAT16SpecificData{}
		if err := decode(bpb.FATSpecificData[:], &ext); err != nil {
			return nil, checkpoint.Wrap(err, ErrInvalidBootSector)
		}
		if bpb.RootEntryCount == 0 || int(bpb.RootEntryCount)*dirEntrySize%int(bpb.BytesPerSector) != 0 {
			return nil, invalid("root entry count %d", bpb.RootEntryCount)
		}
		bs.SectorsPerFAT = uint32(bpb.FATSize16)
		bs.VolumeID = ext.BSVolumeID
		if ext.BSBootSignature == 0x29 {
			label = ext.BSVolumeLabel
		}
	}

	if bs.ActiveFAT >= bs.FATCount {
		return nil, invalid("active FAT %d of %d", bs.ActiveFAT, bs.FATCount)
	}
	if bs.TotalSectors == 0 || bs.dataSectorsStart() >= bs.TotalSectors {
		return nil, invalid("total sectors %d", bs.TotalSectors)
	}

	clusters := bs.ClusterCount()
	if bs.Type != fsys.TypeFAT32 {
		if clusters <= maxFAT12Clusters {
			bs.Type = fsys.TypeFAT12
		} else {
			bs.Type = fsys.TypeFAT16
		}
	}
	if clusters > maxFAT32Clusters || clusters == 0 {
		return nil, invalid("cluster count %d", clusters)
	}
	if bs.Type != fsys.TypeFAT12 && uint64(bs.FATEntryCount())*uint64(bs.entryWidth()) > uint64(bs.SectorsPerFAT)*uint64(bs.BytesPerSector) {
		return nil, invalid("FAT too small for %d clusters", clusters)
	}

	bs.VolumeLabel = strings.TrimRight(string(label[:]), " \x00")
	if bs.VolumeLabel == "NO NAME" {
		bs.VolumeLabel = ""
	}

	return bs, nil
}

// BytesPerCluster is the cluster size.
func (b *BootSector) BytesPerCluster() int64 {
	return int64(b.SectorsPerCluster) * int64(b.BytesPerSector)
}

// FATOffset is the byte offset of the FAT copy n.
func (b *BootSector) FATOffset(n int) int64 {
	return int64(b.BytesPerSector) * (int64(b.ReservedSectors) + int64(n)*int64(b.SectorsPerFAT))
}

// RootDirOffset is the byte offset of the fixed FAT16 root directory.
func (b *BootSector) RootDirOffset() int64 {
	return b.FATOffset(int(b.FATCount))
}

// RootDirSize is the byte size of the fixed FAT16 root directory, 0 for FAT32.
func (b *BootSector) RootDirSize() int64 {
	return int64(b.RootEntryCount) * dirEntrySize
}

// DataAreaOffset is the byte offset of cluster 2.
func (b *BootSector) DataAreaOffset() int64 {
	return b.RootDirOffset() + b.RootDirSize()
}

func (b *BootSector) dataSectorsStart() uint32 {
	return uint32(b.DataAreaOffset() / int64(b.BytesPerSector))
}

// ClusterCount is the number of data clusters.
func (b *BootSector) ClusterCount() uint32 {
	return (b.TotalSectors - b.dataSectorsStart()) / uint32(b.SectorsPerCluster)
}

// FATEntryCount is the number of FAT entries in use, including the two reserved ones.
func (b *BootSector) FATEntryCount() uint32 {
	return b.ClusterCount() + 2
}

// ClusterOffset is the byte offset of a data cluster.
func (b *BootSector) ClusterOffset(cluster uint32) int64 {
	return b.DataAreaOffset() + int64(cluster-2)*b.BytesPerCluster()
}

func (b *BootSector) entryWidth() int {
	if b.Type == fsys.TypeFAT32 {
		return 4
	}
	return 2
}
