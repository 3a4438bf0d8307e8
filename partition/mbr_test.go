package partition

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/aligator/aums/fsys"
	"github.com/google/go-cmp/cmp"
)

func TestParseMBR(t *testing.T) {
	slot := func(b []byte, i int, raw byte, start, sectors uint32) {
		s := b[tableOffset+i*entrySize:]
		s[4] = raw
		binary.LittleEndian.PutUint32(s[8:], start)
		binary.LittleEndian.PutUint32(s[12:], sectors)
	}

	tests := []struct {
		name    string
		sector  func() []byte
		want    []Entry
		wantOk  bool
		wantErr error
	}{
		{
			name:    "short sector",
			sector:  func() []byte { return make([]byte, 100) },
			wantErr: ErrShortSector,
		},
		{
			name:   "no signature",
			sector: func() []byte { return make([]byte, MBRSize) },
		},
		{
			name: "empty table",
			sector: func() []byte {
				b := make([]byte, MBRSize)
				b[510], b[511] = 0x55, 0xAA
				return b
			},
			wantOk: true,
		},
		{
			name: "slot order with gaps",
			sector: func() []byte {
				b := make([]byte, MBRSize)
				slot(b, 1, 0x0C, 2048, 1000)
				slot(b, 3, 0x83, 4096, 2000)
				b[510], b[511] = 0x55, 0xAA
				return b
			},
			want: []Entry{
				{Type: fsys.TypeFAT32, RawType: 0x0C, StartLBA: 2048, Sectors: 1000, Slot: 1},
				{Type: fsys.TypeLinuxExt, RawType: 0x83, StartLBA: 4096, Sectors: 2000, Slot: 3},
			},
			wantOk: true,
		},
		{
			name: "extended partitions are skipped",
			sector: func() []byte {
				b := make([]byte, MBRSize)
				slot(b, 0, 0x06, 63, 100)
				slot(b, 1, TypeExtended, 200, 100)
				slot(b, 2, TypeExtendedLBA, 300, 100)
				slot(b, 3, 0x42, 400, 100)
				b[510], b[511] = 0x55, 0xAA
				return b
			},
			want: []Entry{
				{Type: fsys.TypeFAT16, RawType: 0x06, StartLBA: 63, Sectors: 100},
				{Type: fsys.TypeUnknown, RawType: 0x42, StartLBA: 400, Sectors: 100, Slot: 3},
			},
			wantOk: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseMBR(tt.sector())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseMBR() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOk {
				t.Errorf("ParseMBR() ok = %v, want %v", ok, tt.wantOk)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseMBR() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteMBR(t *testing.T) {
	entries := []Entry{
		{Type: fsys.TypeFAT32, StartLBA: 2048, Sectors: 16384},
		{Type: fsys.TypeFAT16, RawType: 0x06, StartLBA: 18432, Sectors: 8192},
		{Type: fsys.TypeLinuxExt, StartLBA: 26624, Sectors: 100},
	}

	sector := make([]byte, MBRSize)
	sector[0] = 0xFA
	if err := WriteMBR(sector, entries); err != nil {
		t.Fatalf("WriteMBR() error = %v", err)
	}
	if sector[0] != 0xFA {
		t.Error("WriteMBR() changed the boot code")
	}

	got, ok, err := ParseMBR(sector)
	if err != nil || !ok {
		t.Fatalf("ParseMBR() = %v, %v", ok, err)
	}
	want := []Entry{
		{Type: fsys.TypeFAT32, RawType: 0x0C, StartLBA: 2048, Sectors: 16384},
		{Type: fsys.TypeFAT16, RawType: 0x06, StartLBA: 18432, Sectors: 8192, Slot: 1},
		{Type: fsys.TypeLinuxExt, RawType: 0x83, StartLBA: 26624, Sectors: 100, Slot: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseMBR() after WriteMBR() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteMBR_errors(t *testing.T) {
	if err := WriteMBR(make([]byte, 10), nil); !errors.Is(err, ErrShortSector) {
		t.Errorf("WriteMBR() error = %v, want %v", err, ErrShortSector)
	}
	if err := WriteMBR(make([]byte, MBRSize), make([]Entry, 5)); !errors.Is(err, ErrTooManyEntries) {
		t.Errorf("WriteMBR() error = %v, want %v", err, ErrTooManyEntries)
	}
}

func TestTypeFromMBR(t *testing.T) {
	tests := []struct {
		raw  byte
		want fsys.Type
	}{
		{raw: 0x01, want: fsys.TypeFAT12},
		{raw: 0x04, want: fsys.TypeFAT16},
		{raw: 0x06, want: fsys.TypeFAT16},
		{raw: 0x0E, want: fsys.TypeFAT16},
		{raw: 0x0B, want: fsys.TypeFAT32},
		{raw: 0x0C, want: fsys.TypeFAT32},
		{raw: 0x1B, want: fsys.TypeFAT32},
		{raw: 0x1C, want: fsys.TypeFAT32},
		{raw: 0x07, want: fsys.TypeNTFSExFAT},
		{raw: 0x83, want: fsys.TypeLinuxExt},
		{raw: 0xAF, want: fsys.TypeHFSPlus},
		{raw: 0xEE, want: fsys.TypeUnknown},
	}
	for _, tt := range tests {
		if got := TypeFromMBR(tt.raw); got != tt.want {
			t.Errorf("TypeFromMBR(%#02x) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
