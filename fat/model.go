// File model contains the structs which match the direct structures of the FAT filesystem.
// They are decoded and encoded with encoding/binary, all fields are little endian.

package fat

import (
	"bytes"
	"encoding/binary"
)

// BPB is the BIOS parameter block shared by all FAT types, followed by the type specific part.
type BPB struct {
	BSJumpBoot          [3]byte
	BSOEMName           [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   byte
	ReservedSectorCount uint16
	NumFATs             byte
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSpecificData     [54]byte
}

// FAT16SpecificData starts at offset 36 of a FAT12/16 boot sector.
type FAT16SpecificData struct {
	BSDriveNumber    byte
	BSReserved1      byte
	BSBootSignature  byte
	BSVolumeID       uint32
	BSVolumeLabel    [11]byte
	BSFileSystemType [8]byte
}

// FAT32SpecificData starts at offset 36 of a FAT32 boot sector.
type FAT32SpecificData struct {
	FATSize          uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfo           uint16
	BkBootSector     uint16
	Reserved         [12]byte
	BSDriveNumber    byte
	BSReserved1      byte
	BSBootSignature  byte
	BSVolumeID       uint32
	BSVolumeLabel    [11]byte
	BSFileSystemType [8]byte
}

// EntryHeader is a 32 byte short directory entry.
type EntryHeader struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// LongFilenameEntry is a 32 byte long file name fragment holding 13 UTF-16 code units.
type LongFilenameEntry struct {
	Sequence  byte
	First     [5]uint16
	Attribute byte
	EntryType byte
	Checksum  byte
	Second    [6]uint16
	Zero      [2]byte
	Third     [2]uint16
}

// decode reads a fixed size structure from b.
func decode(b []byte, v interface{}) error {
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
}

// encode writes a fixed size structure into b, which must be large enough.
func encode(b []byte, v interface{}) {
	var buf bytes.Buffer
	buf.Grow(binary.Size(v))
	// Writing fixed size structs into a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, v)
	copy(b, buf.Bytes())
}
