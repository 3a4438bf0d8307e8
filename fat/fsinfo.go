package fat

import (
	"encoding/binary"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/golang/glog"
)

// FSInfo layout.
const (
	fsInfoLeadSignature   = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000
	fsInfoFreeCountOffset = 488
	fsInfoNextFreeOffset  = 492

	// fsInfoUnknown marks a field which has to be computed.
	fsInfoUnknown = 0xFFFFFFFF
)

// fsInfo caches the FAT32 FSInfo sector.
// NextFree holds the cluster allocated last, the search for free clusters starts behind it.
type fsInfo struct {
	dev    fsys.Device
	offset int64

	FreeCount uint32
	NextFree  uint32
}

// readFSInfo reads the FSInfo sector at offset. It returns nil if the signatures do not match.
func readFSInfo(dev fsys.Device, offset int64) (*fsInfo, error) {
	b := make([]byte, bootSectorSize)
	if _, err := dev.ReadAt(b, offset); err != nil {
		return nil, checkpoint.From(err)
	}

	if binary.LittleEndian.Uint32(b[0:4]) != fsInfoLeadSignature ||
		binary.LittleEndian.Uint32(b[484:488]) != fsInfoStructSignature ||
		binary.LittleEndian.Uint32(b[508:512]) != fsInfoTrailSignature {
		glog.Warningf("fat: FSInfo sector at %d has invalid signatures, ignoring it", offset)
		return nil, nil
	}

	return &fsInfo{
		dev:       dev,
		offset:    offset,
		FreeCount: binary.LittleEndian.Uint32(b[fsInfoFreeCountOffset:]),
		NextFree:  binary.LittleEndian.Uint32(b[fsInfoNextFreeOffset:]),
	}, nil
}

// write persists the free count and the allocation hint.
func (i *fsInfo) write() error {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], i.FreeCount)
	binary.LittleEndian.PutUint32(b[4:8], i.NextFree)
	_, err := i.dev.WriteAt(b[:], i.offset+fsInfoFreeCountOffset)
	return checkpoint.From(err)
}

// encodeFSInfo builds a complete FSInfo sector.
func encodeFSInfo(b []byte, freeCount, nextFree uint32) {
	for i := range b[:bootSectorSize] {
		b[i] = 0
	}
	binary.LittleEndian.PutUint32(b[0:4], fsInfoLeadSignature)
	binary.LittleEndian.PutUint32(b[484:488], fsInfoStructSignature)
	binary.LittleEndian.PutUint32(b[fsInfoFreeCountOffset:], freeCount)
	binary.LittleEndian.PutUint32(b[fsInfoNextFreeOffset:], nextFree)
	binary.LittleEndian.PutUint32(b[508:512], fsInfoTrailSignature)
}
