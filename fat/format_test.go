package fat

import (
	"errors"
	"testing"

	"github.com/aligator/aums/fsys"
)

func TestFormat_errors(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		opts    FormatOptions
		wantErr error
	}{
		{name: "FAT12", size: testImageSize, opts: FormatOptions{Type: fsys.TypeFAT12}, wantErr: fsys.ErrUnsupportedFileSystem},
		{name: "label too long", size: testImageSize, opts: FormatOptions{Label: "a very long label"}, wantErr: fsys.ErrInvalidName},
		{name: "cluster size not a power of two", size: testImageSize, opts: FormatOptions{SectorsPerCluster: 3}, wantErr: ErrInvalidBootSector},
		{name: "too few clusters for FAT16", size: testImageSize, opts: FormatOptions{Type: fsys.TypeFAT16, SectorsPerCluster: 8}, wantErr: ErrInvalidBootSector},
		{name: "device too small", size: 1024 * 1024, opts: FormatOptions{Type: fsys.TypeFAT16}, wantErr: ErrInvalidBootSector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := testDevice(t, tt.size)
			if err := Format(dev, tt.opts); !errors.Is(err, tt.wantErr) {
				t.Errorf("Format() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormat_sectorsPerCluster(t *testing.T) {
	dev := testDevice(t, 64*1024*1024)
	if err := Format(dev, FormatOptions{Type: fsys.TypeFAT32, SectorsPerCluster: 8, Now: testNow}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	fs := testMount(t, dev)
	if fs.ChunkSize() != 4096 {
		t.Errorf("ChunkSize() got = %d, want 4096", fs.ChunkSize())
	}
	if fs.Type() != fsys.TypeFAT32 {
		t.Errorf("Type() got = %v, want %v", fs.Type(), fsys.TypeFAT32)
	}
	if free := fs.FreeSpace(); free != fs.Capacity()-4096 {
		t.Errorf("FreeSpace() got = %d, want %d", free, fs.Capacity()-4096)
	}
}
