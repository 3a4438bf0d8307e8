package fat

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/golang/glog"
)

// FormatOptions configure Format. Zero values select defaults.
type FormatOptions struct {
	// Type is fsys.TypeFAT16 or fsys.TypeFAT32, default is FAT32.
	Type fsys.Type
	// Label is the volume label of at most 11 characters.
	Label string
	// SectorsPerCluster must be a power of two.
	SectorsPerCluster uint8
	// HiddenSectors is the start of the partition on the disk.
	HiddenSectors uint32
	VolumeID      uint32
	Now           func() time.Time
}

const (
	fat16ReservedSectors = 1
	fat16RootEntries     = 512
	fat32ReservedSectors = 32
	fat32FSInfoSector    = 1
	fat32BackupSector    = 6
	fatCopies            = 2
	mediaFixed           = 0xF8
	zeroChunk            = 64 * 1024
)

// Format writes an empty FAT volume to dev. Existing data is lost.
func Format(dev fsys.Device, opts FormatOptions) error {
	if opts.Type == fsys.TypeUnknown {
		opts.Type = fsys.TypeFAT32
	}
	if opts.Type != fsys.TypeFAT16 && opts.Type != fsys.TypeFAT32 {
		return checkpoint.Wrapf(fmt.Errorf("%v", opts.Type), fsys.ErrUnsupportedFileSystem, "format")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	label := strings.ToUpper(opts.Label)
	if len(label) > 11 {
		return checkpoint.Wrapf(fmt.Errorf("label %q", opts.Label), fsys.ErrInvalidName, "format")
	}

	bps := dev.BlockSize()
	switch bps {
	case 512, 1024, 2048, 4096:
	default:
		bps = 512
	}
	sectors := dev.Size() / int64(bps)
	if sectors > 0xFFFFFFFF {
		sectors = 0xFFFFFFFF
	}
	total := uint32(sectors)

	g := geometry{bps: uint32(bps), total: total, fat32: opts.Type == fsys.TypeFAT32}
	if g.fat32 {
		g.reserved = fat32ReservedSectors
	} else {
		g.reserved = fat16ReservedSectors
		g.rootSectors = (fat16RootEntries*dirEntrySize + g.bps - 1) / g.bps
	}

	if err := g.pickCluster(opts.SectorsPerCluster); err != nil {
		return err
	}

	boot := g.bootSector(opts, label)
	if _, err := dev.WriteAt(boot, 0); err != nil {
		return checkpoint.From(err)
	}

	if g.fat32 {
		info := make([]byte, g.bps)
		encodeFSInfo(info, g.clusters-1, firstCluster)
		if _, err := dev.WriteAt(info, int64(fat32FSInfoSector)*int64(g.bps)); err != nil {
			return checkpoint.From(err)
		}
		if _, err := dev.WriteAt(boot, int64(fat32BackupSector)*int64(g.bps)); err != nil {
			return checkpoint.From(err)
		}
		if _, err := dev.WriteAt(info, int64(fat32BackupSector+fat32FSInfoSector)*int64(g.bps)); err != nil {
			return checkpoint.From(err)
		}
	}

	// Clear both FATs and the root directory.
	fatStart := int64(g.reserved) * int64(g.bps)
	rootSize := int64(g.rootSectors) * int64(g.bps)
	if g.fat32 {
		rootSize = int64(g.spc) * int64(g.bps)
	}
	if err := zero(dev, fatStart, int64(fatCopies)*int64(g.fatSize)*int64(g.bps)+rootSize); err != nil {
		return err
	}

	head := make([]byte, 12)
	if g.fat32 {
		binary.LittleEndian.PutUint32(head[0:], 0x0FFFFF00|mediaFixed)
		binary.LittleEndian.PutUint32(head[4:], fat32Mask)
		binary.LittleEndian.PutUint32(head[8:], fat32Mask)
	} else {
		binary.LittleEndian.PutUint16(head[0:], 0xFF00|mediaFixed)
		binary.LittleEndian.PutUint16(head[2:], 0xFFFF)
		head = head[:4]
	}
	for n := 0; n < fatCopies; n++ {
		if _, err := dev.WriteAt(head, fatStart+int64(n)*int64(g.fatSize)*int64(g.bps)); err != nil {
			return checkpoint.From(err)
		}
	}

	if label != "" {
		h := EntryHeader{Attribute: attrVolumeID}
		copy(h.Name[:], fmt.Sprintf("%-11s", label))
		h.WriteDate, h.WriteTime, _ = EncodeTimestamp(opts.Now())
		var record [dirEntrySize]byte
		encode(record[:], &h)
		if _, err := dev.WriteAt(record[:], fatStart+int64(fatCopies)*int64(g.fatSize)*int64(g.bps)); err != nil {
			return checkpoint.From(err)
		}
	}

	glog.V(1).Infof("fat: formatted %d sectors as %v, %d clusters of %d sectors", total, opts.Type, g.clusters, g.spc)
	return nil
}

type geometry struct {
	fat32       bool
	bps         uint32
	total       uint32
	reserved    uint32
	rootSectors uint32
	spc         uint32
	fatSize     uint32
	clusters    uint32
}

// layout computes the FAT size for the current cluster size. The FAT has to
// cover the clusters which remain after the FAT itself is subtracted.
func (g *geometry) layout() bool {
	width := uint32(2)
	if g.fat32 {
		width = 4
	}

	g.fatSize = 1
	for {
		meta := g.reserved + fatCopies*g.fatSize + g.rootSectors
		if meta >= g.total {
			return false
		}
		g.clusters = (g.total - meta) / g.spc
		need := ((g.clusters+2)*width + g.bps - 1) / g.bps
		if need <= g.fatSize {
			return true
		}
		g.fatSize = need
	}
}

func (g *geometry) pickCluster(spc uint8) error {
	limit := uint32(maxFAT16Clusters)
	if g.fat32 {
		limit = maxFAT32Clusters
	}

	if spc != 0 {
		if spc&(spc-1) != 0 || uint32(spc)*g.bps > 64*1024 {
			return checkpoint.Wrapf(fmt.Errorf("sectors per cluster %d", spc), ErrInvalidBootSector, "format")
		}
		g.spc = uint32(spc)
		if !g.layout() || g.clusters > limit || g.clusters <= maxFAT12Clusters {
			return checkpoint.Wrapf(fmt.Errorf("%d clusters", g.clusters), ErrInvalidBootSector, "format")
		}
		return nil
	}

	g.spc = 1
	if g.fat32 && int64(g.total)*int64(g.bps) >= 512*1024*1024 {
		g.spc = 4096 / g.bps
		if g.spc == 0 {
			g.spc = 1
		}
	}
	for ; g.spc*g.bps <= 64*1024; g.spc *= 2 {
		if !g.layout() || g.clusters <= maxFAT12Clusters {
			break
		}
		if g.clusters <= limit {
			return nil
		}
	}
	return checkpoint.Wrapf(fmt.Errorf("%d sectors", g.total), ErrInvalidBootSector, "format: no usable cluster size")
}

func (g *geometry) bootSector(opts FormatOptions, label string) []byte {
	if label == "" {
		label = "NO NAME"
	}
	var vol [11]byte
	copy(vol[:], fmt.Sprintf("%-11s", label))

	bpb := BPB{
		BytesPerSector:      uint16(g.bps),
		SectorsPerCluster:   byte(g.spc),
		ReservedSectorCount: uint16(g.reserved),
		NumFATs:             fatCopies,
		Media:               mediaFixed,
		SectorsPerTrack:     32,
		NumberOfHeads:       64,
		HiddenSectors:       opts.HiddenSectors,
	}
	copy(bpb.BSOEMName[:], "AUMS    ")

	if g.fat32 {
		bpb.BSJumpBoot = [3]byte{0xEB, 0x58, 0x90}
		bpb.TotalSectors32 = g.total
		ext := FAT32SpecificData{
			FATSize:         g.fatSize,
			RootCluster:     firstCluster,
			FSInfo:          fat32FSInfoSector,
			BkBootSector:    fat32BackupSector,
			BSDriveNumber:   0x80,
			BSBootSignature: 0x29,
			BSVolumeID:      opts.VolumeID,
			BSVolumeLabel:   vol,
		}
		copy(ext.BSFileSystemType[:], "FAT32   ")
		encode(bpb.FATSpecificData[:], &ext)
	} else {
		bpb.BSJumpBoot = [3]byte{0xEB, 0x3C, 0x90}
		bpb.RootEntryCount = fat16RootEntries
		bpb.FATSize16 = uint16(g.fatSize)
		if g.total < 0x10000 {
			bpb.TotalSectors16 = uint16(g.total)
		} else {
			bpb.TotalSectors32 = g.total
		}
		ext := FAT16SpecificData{
			BSDriveNumber:   0x80,
			BSBootSignature: 0x29,
			BSVolumeID:      opts.VolumeID,
			BSVolumeLabel:   vol,
		}
		copy(ext.BSFileSystemType[:], "FAT16   ")
		encode(bpb.FATSpecificData[:], &ext)
	}

	b := make([]byte, g.bps)
	encode(b, &bpb)
	b[510], b[511] = 0x55, 0xAA
	return b
}

func zero(dev fsys.Device, off, n int64) error {
	buf := make([]byte, zeroChunk)
	for n > 0 {
		chunk := buf
		if n < int64(len(chunk)) {
			chunk = chunk[:n]
		}
		if _, err := dev.WriteAt(chunk, off); err != nil {
			return checkpoint.From(err)
		}
		off += int64(len(chunk))
		n -= int64(len(chunk))
	}
	return nil
}
