package fat

import (
	"testing"
	"time"

	"github.com/aligator/aums/block"
	"github.com/aligator/aums/fsys"
	"github.com/spf13/afero"
)

const testImageSize = 8 * 1024 * 1024

func testNow() time.Time {
	return time.Date(2021, 3, 4, 5, 6, 8, 0, time.UTC)
}

var testProbe = Probe{Location: time.UTC, Now: testNow}

// testDevice creates an empty image of size bytes in memory.
func testDevice(t *testing.T, size int64) *block.ByteDevice {
	t.Helper()

	f, err := afero.NewMemMapFs().Create("disk.img")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
	dev := block.NewFileDevice(f, block.DefaultBlockSize)
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	return block.NewByteDevice(dev)
}

// testFormat formats a new image and mounts it.
func testFormat(t *testing.T, typ fsys.Type, label string) (*FileSystem, *block.ByteDevice) {
	t.Helper()

	dev := testDevice(t, testImageSize)
	if err := Format(dev, FormatOptions{Type: typ, Label: label, VolumeID: 0x1234, Now: testNow}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	return testMount(t, dev), dev
}

// testMount mounts dev again, dropping everything cached.
func testMount(t *testing.T, dev fsys.Device) *FileSystem {
	t.Helper()

	fs, err := Open(dev, testProbe)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return fs
}

// bothTypes runs f for a FAT16 and a FAT32 volume.
func bothTypes(t *testing.T, f func(t *testing.T, fs *FileSystem, dev *block.ByteDevice)) {
	for _, typ := range []fsys.Type{fsys.TypeFAT16, fsys.TypeFAT32} {
		t.Run(typ.String(), func(t *testing.T) {
			fs, dev := testFormat(t, typ, "")
			f(t, fs, dev)
		})
	}
}
