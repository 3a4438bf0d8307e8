package fat

import (
	"time"

	"github.com/aligator/aums/fsys"
)

const dirEntrySize = 32

// Directory entry attributes.
const (
	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	attrLongName  = attrReadOnly | attrHidden | attrSystem | attrVolumeID
)

// First name byte markers.
const (
	entryEnd     = 0x00
	entryDeleted = 0xE5
	// entryKanji is stored instead of a leading 0xE5 of a real name.
	entryKanji = 0x05
)

// Case flags in EntryHeader.NTReserved.
const (
	ntLowerBase = 0x08
	ntLowerExt  = 0x10
)

func (h *EntryHeader) isDirectory() bool {
	return h.Attribute&attrDirectory != 0
}

func (h *EntryHeader) isVolumeLabel() bool {
	return h.Attribute&(attrVolumeID|attrDirectory) == attrVolumeID && h.Attribute != attrLongName
}

func (h *EntryHeader) isLongName() bool {
	return h.Attribute&0x3F == attrLongName
}

func (h *EntryHeader) firstCluster() uint32 {
	return uint32(h.FirstClusterHI)<<16 | uint32(h.FirstClusterLO)
}

func (h *EntryHeader) setFirstCluster(c uint32) {
	h.FirstClusterHI = uint16(c >> 16)
	h.FirstClusterLO = uint16(c)
}

func (h *EntryHeader) attributes() fsys.Attributes {
	return fsys.Attributes{
		ReadOnly: h.Attribute&attrReadOnly != 0,
		Hidden:   h.Attribute&attrHidden != 0,
		System:   h.Attribute&attrSystem != 0,
		Archive:  h.Attribute&attrArchive != 0,
	}
}

// stamp sets all timestamps to t.
func (h *EntryHeader) stamp(t time.Time) {
	h.CreateDate, h.CreateTime, h.CreateTimeTenth = EncodeTimestamp(t)
	h.WriteDate, h.WriteTime, _ = EncodeTimestamp(t)
	h.LastAccessDate = h.WriteDate
}

func (h *EntryHeader) modified(t time.Time) {
	h.WriteDate, h.WriteTime, _ = EncodeTimestamp(t)
	h.LastAccessDate = h.WriteDate
	h.Attribute |= attrArchive
}

func decodeEntryHeader(b []byte) EntryHeader {
	h := EntryHeader{}
	// A 32 byte slice always decodes.
	_ = decode(b[:dirEntrySize], &h)
	return h
}
