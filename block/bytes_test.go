package block

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/spf13/afero"
)

func memDevice(t *testing.T, blocks, blockSize int) (*FileDevice, []byte) {
	t.Helper()

	image := make([]byte, blocks*blockSize)
	rand.New(rand.NewSource(1)).Read(image)

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "disk.img", image, 0644); err != nil {
		t.Fatal(err)
	}
	d, err := OpenFile(fs, "disk.img", blockSize, false)
	if err != nil {
		t.Fatal(err)
	}
	return d, image
}

func TestByteDevice_ReadAt(t *testing.T) {
	d, image := memDevice(t, 16, 512)
	b := NewByteDevice(d)

	tests := []struct {
		name    string
		off     int64
		length  int
		wantN   int
		wantErr error
	}{
		{name: "aligned whole blocks", off: 1024, length: 1024, wantN: 1024},
		{name: "unaligned head", off: 100, length: 412, wantN: 412},
		{name: "unaligned head and tail", off: 500, length: 2000, wantN: 2000},
		{name: "inside one block", off: 1030, length: 10, wantN: 10},
		{name: "aligned start, short tail", off: 2048, length: 700, wantN: 700},
		{name: "past the end", off: 8000, length: 500, wantN: 192, wantErr: io.EOF},
		{name: "at the end", off: 8192, length: 1, wantN: 0, wantErr: io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := make([]byte, tt.length)
			n, err := b.ReadAt(p, tt.off)
			if err != tt.wantErr {
				t.Fatalf("ReadAt() error = %v, want %v", err, tt.wantErr)
			}
			if n != tt.wantN {
				t.Fatalf("ReadAt() n = %d, want %d", n, tt.wantN)
			}
			if !bytes.Equal(p[:n], image[tt.off:tt.off+int64(n)]) {
				t.Errorf("ReadAt() returned wrong bytes")
			}
		})
	}
}

func TestByteDevice_WriteAt_preservesNeighbours(t *testing.T) {
	tests := []struct {
		name   string
		off    int64
		length int
	}{
		{name: "unaligned head", off: 3, length: 509},
		{name: "unaligned tail", off: 512, length: 700},
		{name: "both unaligned spanning blocks", off: 777, length: 3000},
		{name: "inside one block", off: 4100, length: 7},
		{name: "aligned", off: 1024, length: 2048},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, image := memDevice(t, 16, 512)
			b := NewByteDevice(d)

			data := bytes.Repeat([]byte{0xA5}, tt.length)
			n, err := b.WriteAt(data, tt.off)
			if err != nil || n != tt.length {
				t.Fatalf("WriteAt() = %d, %v", n, err)
			}
			copy(image[tt.off:], data)

			got := make([]byte, len(image))
			if _, err := b.ReadAt(got, 0); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, image) {
				t.Errorf("device content differs from expected image")
			}
		})
	}
}

func TestByteDevice_WriteAt_outOfRange(t *testing.T) {
	d, _ := memDevice(t, 4, 512)
	b := NewByteDevice(d)
	if _, err := b.WriteAt(make([]byte, 10), 2040); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("WriteAt() error = %v, want ErrOutOfRange", err)
	}
}

func TestByteDevice_Window(t *testing.T) {
	d, image := memDevice(t, 16, 512)
	whole := NewByteDevice(d)

	w, err := whole.Window(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	if w.Size() != 8*512 {
		t.Errorf("Size() = %d", w.Size())
	}

	p := make([]byte, 600)
	if _, err := w.ReadAt(p, 10); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, image[4*512+10:4*512+610]) {
		t.Errorf("window read is not offset by its start block")
	}

	if _, err := whole.Window(10, 8); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Window() error = %v, want ErrOutOfRange", err)
	}
}

func TestByteDevice_blockCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dev := NewMockDevice(ctrl)
	dev.EXPECT().Blocks().Return(int64(8))
	dev.EXPECT().BlockSize().Return(512)

	// 10 bytes at 1000: one partial block, read-modify-write of block 1 only.
	gomock.InOrder(
		dev.EXPECT().ReadBlocks(int64(1), gomock.Len(512)).Return(nil),
		dev.EXPECT().WriteBlocks(int64(1), gomock.Len(512)).DoAndReturn(func(lba int64, p []byte) error {
			if p[1000-512] != 7 || p[1000-512+9] != 7 || p[1000-512+10] != 0 {
				t.Errorf("scratch block not patched at the right place")
			}
			return nil
		}),
		// 1536 bytes at 512: blocks 1..3 in a single aligned transfer.
		dev.EXPECT().WriteBlocks(int64(1), gomock.Len(1536)).Return(nil),
	)

	b := NewByteDevice(dev)
	if _, err := b.WriteAt(bytes.Repeat([]byte{7}, 10), 1000); err != nil {
		t.Fatal(err)
	}
	if _, err := b.WriteAt(make([]byte, 1536), 512); err != nil {
		t.Fatal(err)
	}
}

func TestFileDevice_check(t *testing.T) {
	d, _ := memDevice(t, 4, 512)

	tests := []struct {
		name    string
		lba     int64
		size    int
		wantErr error
	}{
		{name: "ok", lba: 3, size: 512},
		{name: "unaligned", lba: 0, size: 100, wantErr: ErrUnaligned},
		{name: "past the end", lba: 3, size: 1024, wantErr: ErrOutOfRange},
		{name: "negative", lba: -1, size: 512, wantErr: ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.ReadBlocks(tt.lba, make([]byte, tt.size))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("ReadBlocks() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadBlocks() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
