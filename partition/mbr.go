// Package partition discovers the partitions of a block device and mounts them.
package partition

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/golang/glog"
)

// MBR layout.
const (
	MBRSize         = 512
	tableOffset     = 446
	entrySize       = 16
	slotCount       = 4
	signatureOffset = 510
)

// Raw partition type bytes with special meaning.
const (
	TypeEmpty       = 0x00
	TypeExtended    = 0x05
	TypeExtendedLBA = 0x0F
)

// These errors may occur while reading a partition table.
var (
	ErrShortSector      = errors.New("sector too short for a master boot record")
	ErrTooManyEntries   = errors.New("more than four primary partitions")
	ErrNoPartitionTable = errors.New("neither a partition table nor a filesystem found")
)

// Entry describes one partition.
type Entry struct {
	// Type is the normalized type.
	Type fsys.Type
	// RawType is the type byte from the partition table.
	RawType  byte
	StartLBA uint32
	Sectors  uint32
	// Slot is the position in the partition table, set by ParseMBR.
	// WriteMBR fills the slots in order and ignores it.
	Slot int
}

// TypeFromMBR maps a partition type byte to the normalized type.
func TypeFromMBR(raw byte) fsys.Type {
	switch raw {
	case 0x0B, 0x0C, 0x1B, 0x1C:
		return fsys.TypeFAT32
	case 0x01:
		return fsys.TypeFAT12
	case 0x04, 0x06, 0x0E:
		return fsys.TypeFAT16
	case 0x83:
		return fsys.TypeLinuxExt
	case 0x07:
		return fsys.TypeNTFSExFAT
	case 0xAF:
		return fsys.TypeHFSPlus
	default:
		return fsys.TypeUnknown
	}
}

// mbrTypeFor is the inverse of TypeFromMBR used when writing tables.
func mbrTypeFor(t fsys.Type) byte {
	switch t {
	case fsys.TypeFAT32:
		return 0x0C
	case fsys.TypeFAT16:
		return 0x0E
	case fsys.TypeFAT12:
		return 0x01
	case fsys.TypeLinuxExt:
		return 0x83
	case fsys.TypeNTFSExFAT:
		return 0x07
	case fsys.TypeHFSPlus:
		return 0xAF
	default:
		return 0xDA
	}
}

// ParseMBR reads the partition entries from sector 0.
// ok is false if the sector carries no MBR signature.
// Empty and extended slots are skipped, the remaining entries keep their slot order.
func ParseMBR(sector []byte) (entries []Entry, ok bool, err error) {
	if len(sector) < MBRSize {
		return nil, false, checkpoint.Wrapf(fmt.Errorf("%d bytes", len(sector)), ErrShortSector, "parse mbr")
	}
	if sector[signatureOffset] != 0x55 || sector[signatureOffset+1] != 0xAA {
		return nil, false, nil
	}

	for i := 0; i < slotCount; i++ {
		slot := sector[tableOffset+i*entrySize : tableOffset+(i+1)*entrySize]
		raw := slot[4]
		switch raw {
		case TypeEmpty:
			continue
		case TypeExtended, TypeExtendedLBA:
			glog.Warningf("partition: slot %d is an extended partition, not supported", i)
			continue
		}

		entries = append(entries, Entry{
			Type:     TypeFromMBR(raw),
			RawType:  raw,
			StartLBA: binary.LittleEndian.Uint32(slot[8:12]),
			Sectors:  binary.LittleEndian.Uint32(slot[12:16]),
			Slot:     i,
		})
	}
	return entries, true, nil
}

// WriteMBR writes a partition table with the given entries into sector.
// The boot code area is left untouched. An entry with RawType 0 gets the
// raw type matching its Type.
func WriteMBR(sector []byte, entries []Entry) error {
	if len(sector) < MBRSize {
		return checkpoint.Wrapf(fmt.Errorf("%d bytes", len(sector)), ErrShortSector, "write mbr")
	}
	if len(entries) > slotCount {
		return checkpoint.Wrapf(fmt.Errorf("%d entries", len(entries)), ErrTooManyEntries, "write mbr")
	}

	table := sector[tableOffset:signatureOffset]
	for i := range table {
		table[i] = 0
	}
	for i, e := range entries {
		slot := table[i*entrySize : (i+1)*entrySize]
		raw := e.RawType
		if raw == TypeEmpty {
			raw = mbrTypeFor(e.Type)
		}
		// CHS fields are unused, mark them as "use LBA".
		slot[1], slot[2], slot[3] = 0xFE, 0xFF, 0xFF
		slot[4] = raw
		slot[5], slot[6], slot[7] = 0xFE, 0xFF, 0xFF
		binary.LittleEndian.PutUint32(slot[8:12], e.StartLBA)
		binary.LittleEndian.PutUint32(slot[12:16], e.Sectors)
	}
	sector[signatureOffset] = 0x55
	sector[signatureOffset+1] = 0xAA
	return nil
}
