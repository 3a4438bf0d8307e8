package fat

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys"
	"github.com/golang/glog"
)

const (
	lfnUnits    = 13
	lfnLast     = 0x40
	lfnSeqMask  = 0x1F
	maxNameLen  = 255
	invalidName = "/\\\"*:<>?|"
)

// lfnEntry is a short entry together with its long name.
type lfnEntry struct {
	name   string
	header EntryHeader
	// long is set if LFN fragments are stored in front of the short entry.
	long bool
}

func newLfnEntry(name string, short shortName) *lfnEntry {
	e := &lfnEntry{name: name}
	e.setName(name, short)
	return e
}

func (e *lfnEntry) short() shortName {
	return shortName(e.header.Name)
}

func (e *lfnEntry) setName(name string, short shortName) {
	e.name = name
	e.header.Name = short
	e.long = name != short.String()
}

func (e *lfnEntry) isDot() bool {
	return e.name == "." || e.name == ".."
}

// size is the number of directory records used by the entry.
func (e *lfnEntry) size() int {
	if !e.long {
		return 1
	}
	units := len(utf16.Encode([]rune(e.name)))
	return (units+lfnUnits-1)/lfnUnits + 1
}

// appendTo appends the LFN fragments in reverse order followed by the short entry.
func (e *lfnEntry) appendTo(b []byte) []byte {
	var record [dirEntrySize]byte

	if e.long {
		units := utf16.Encode([]rune(e.name))
		count := (len(units) + lfnUnits - 1) / lfnUnits
		sum := e.short().checksum()

		for seq := count; seq >= 1; seq-- {
			var part [lfnUnits]uint16
			for i := range part {
				pos := (seq-1)*lfnUnits + i
				switch {
				case pos < len(units):
					part[i] = units[pos]
				case pos == len(units):
					part[i] = 0x0000
				default:
					part[i] = 0xFFFF
				}
			}

			l := LongFilenameEntry{
				Sequence:  byte(seq),
				Attribute: attrLongName,
				Checksum:  sum,
			}
			if seq == count {
				l.Sequence |= lfnLast
			}
			copy(l.First[:], part[0:5])
			copy(l.Second[:], part[5:11])
			copy(l.Third[:], part[11:13])

			encode(record[:], &l)
			b = append(b, record[:]...)
		}
	}

	encode(record[:], &e.header)
	return append(b, record[:]...)
}

func (l *LongFilenameEntry) units() []uint16 {
	units := make([]uint16, 0, lfnUnits)
	units = append(units, l.First[:]...)
	units = append(units, l.Second[:]...)
	return append(units, l.Third[:]...)
}

// assemble builds the long name from fragments in on-disk order.
// ok is false if the fragments do not belong to the short entry.
func assemble(fragments []LongFilenameEntry, sum byte) (string, bool) {
	count := len(fragments)
	if fragments[0].Sequence&lfnLast == 0 {
		return "", false
	}

	units := make([]uint16, 0, count*lfnUnits)
	for i := count - 1; i >= 0; i-- {
		f := fragments[i]
		if int(f.Sequence&lfnSeqMask) != count-i || f.Checksum != sum {
			return "", false
		}
		units = append(units, f.units()...)
	}

	for i, u := range units {
		if u == 0 {
			units = units[:i]
			break
		}
	}
	return string(utf16.Decode(units)), true
}

// readEntries decodes a directory table. The volume label entry is returned separately.
func readEntries(data []byte) (entries []*lfnEntry, label *EntryHeader) {
	var pending []LongFilenameEntry

	for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
		record := data[off : off+dirEntrySize]
		if record[0] == entryEnd {
			break
		}
		if record[0] == entryDeleted {
			pending = nil
			continue
		}

		h := decodeEntryHeader(record)
		switch {
		case h.isLongName():
			l := LongFilenameEntry{}
			_ = decode(record, &l)
			if l.Sequence&lfnLast != 0 {
				if len(pending) > 0 {
					glog.Warningf("fat: dropping %d orphaned long name fragments", len(pending))
				}
				pending = pending[:0]
			}
			pending = append(pending, l)
			continue

		case h.isVolumeLabel():
			label = &h
			pending = nil
			continue
		}

		e := &lfnEntry{header: h}
		short := shortName(h.Name)
		if len(pending) > 0 {
			if name, ok := assemble(pending, short.checksum()); ok {
				e.name, e.long = name, true
			} else {
				glog.Warningf("fat: long name fragments do not match %q, using the short name", short.String())
			}
			pending = nil
		}
		if e.name == "" {
			e.name = short.display(h.NTReserved)
		}
		entries = append(entries, e)
	}

	return entries, label
}

// validName checks a long name.
func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return checkpoint.Wrapf(fmt.Errorf("%q", name), fsys.ErrInvalidName, "name")
	case len(utf16.Encode([]rune(name))) > maxNameLen:
		return checkpoint.Wrapf(fmt.Errorf("%d characters", len(name)), fsys.ErrInvalidName, "name")
	}
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(invalidName, r) {
			return checkpoint.Wrapf(fmt.Errorf("%q contains %q", name, r), fsys.ErrInvalidName, "name")
		}
	}
	return nil
}
